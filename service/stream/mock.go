package stream

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*VerdictEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*VerdictEvent, 0),
	}
}

// PublishVerdict records the event and returns any configured error.
func (m *MockPublisher) PublishVerdict(ctx context.Context, event *VerdictEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// PublishedEvents returns a copy of all recorded events.
func (m *MockPublisher) PublishedEvents() []*VerdictEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*VerdictEvent, len(m.publishedEvents))
	copy(out, m.publishedEvents)
	return out
}

// SetPublishError configures the error returned by PublishVerdict.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
