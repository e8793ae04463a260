package analyzer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/solsift/service/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAnalyzer implements WalletAnalyzer with a canned verdict map.
type mockAnalyzer struct {
	mu       sync.Mutex
	verdicts map[string]*Verdict

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *mockAnalyzer) Analyze(ctx context.Context, address string, params Params) *Verdict {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		max := m.maxInFlight.Load()
		if cur <= max || m.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	time.Sleep(5 * time.Millisecond) // let workers overlap

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verdicts[address]
}

func newTestRunner(a WalletAnalyzer, concurrency int, publisher stream.Publisher) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(a, concurrency, time.Minute, publisher, logger)
}

func TestRun_CollectsAdmittedVerdictsInInputOrder(t *testing.T) {
	mock := &mockAnalyzer{
		verdicts: map[string]*Verdict{
			"a": {Address: "a", TotalPNL: 10},
			"c": {Address: "c", TotalPNL: 30},
			// "b" is excluded
		},
	}
	runner := newTestRunner(mock, 2, nil)

	verdicts := runner.Run(context.Background(), []string{"a", "b", "c"}, Params{})

	require.Len(t, verdicts, 2)
	assert.Equal(t, "a", verdicts[0].Address)
	assert.Equal(t, "c", verdicts[1].Address)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	mock := &mockAnalyzer{verdicts: map[string]*Verdict{}}
	runner := newTestRunner(mock, 3, nil)

	addresses := make([]string, 20)
	for i := range addresses {
		addresses[i] = "wallet"
	}

	runner.Run(context.Background(), addresses, Params{})

	assert.LessOrEqual(t, mock.maxInFlight.Load(), int32(3))
}

func TestRun_EmptyAddressList(t *testing.T) {
	mock := &mockAnalyzer{verdicts: map[string]*Verdict{}}
	runner := newTestRunner(mock, 2, nil)

	verdicts := runner.Run(context.Background(), nil, Params{})
	assert.Empty(t, verdicts)
}

func TestRun_PublishesAdmittedVerdicts(t *testing.T) {
	mock := &mockAnalyzer{
		verdicts: map[string]*Verdict{
			"a": {Address: "a", TotalPNL: 10, WinRate: 75, Settings: Params{Timeframe: "3"}},
		},
	}
	publisher := stream.NewMockPublisher()
	runner := newTestRunner(mock, 2, publisher)

	runner.Run(context.Background(), []string{"a", "b"}, Params{})

	events := publisher.PublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].WalletAddress)
	assert.Equal(t, 10.0, events[0].TotalPNL)
	assert.Equal(t, "3", events[0].Timeframe)
}

func TestRun_PublishFailureDoesNotDropVerdicts(t *testing.T) {
	mock := &mockAnalyzer{
		verdicts: map[string]*Verdict{"a": {Address: "a"}},
	}
	publisher := stream.NewMockPublisher()
	publisher.SetPublishError(assert.AnError)
	runner := newTestRunner(mock, 1, publisher)

	verdicts := runner.Run(context.Background(), []string{"a"}, Params{})
	assert.Len(t, verdicts, 1)
}
