// Package export handles the flat-file surfaces of a run: wallet address
// lists in, verdict reports out.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/brojonat/solsift/service/analyzer"
	"github.com/gagliardetto/solana-go"
)

// verdictColumns is the output column order, fixed for downstream
// consumers.
var verdictColumns = []string{"address", "total_pnl", "realized_pnl", "unrealized_pnl", "win_rate", "settings"}

// LoadAddresses reads wallet addresses from the first column of a CSV
// file. No header row is assumed; blank rows are skipped. Rows that fail
// base58 public key validation are kept (addresses are opaque to the
// pipeline) but logged so operators can spot malformed input early.
func LoadAddresses(path string, logger *slog.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open addresses file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // rows may carry extra columns

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read addresses file: %w", err)
	}

	var addresses []string
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		address := strings.TrimSpace(record[0])
		if address == "" {
			continue
		}

		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			logger.Warn("address is not a valid base58 public key, keeping anyway",
				"row", i+1,
				"address", address,
			)
		}
		addresses = append(addresses, address)
	}

	logger.Info("loaded wallet addresses", "path", path, "count", len(addresses))
	return addresses, nil
}

// WriteVerdicts exports verdicts to a CSV file sorted by total PNL
// descending. The settings column is the JSON-serialized analysis
// parameters of the run.
func WriteVerdicts(path string, verdicts []*analyzer.Verdict) error {
	sorted := make([]*analyzer.Verdict, len(verdicts))
	copy(sorted, verdicts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalPNL > sorted[j].TotalPNL
	})

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(verdictColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, v := range sorted {
		settings, err := json.Marshal(v.Settings)
		if err != nil {
			return fmt.Errorf("marshal settings for %s: %w", v.Address, err)
		}

		record := []string{
			v.Address,
			formatFloat(v.TotalPNL),
			formatFloat(v.RealizedPNL),
			formatFloat(v.UnrealizedPNL),
			formatFloat(v.WinRate),
			string(settings),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write record for %s: %w", v.Address, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush export file: %w", err)
	}
	return nil
}

// WriteJSON exports arbitrary data as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
