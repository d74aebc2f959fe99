package cmd

import (
	"context"
	"errors"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"cyclebot/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errNoLedger = errors.New("no trade ledger configured (database.driver or ledger.path)")

func newStatsCmd() *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print trade ledger statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l, err := openLedgers(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer l.close()
			return printStats(cmd.Context(), l, recent, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 0, "also print the last N trades")
	return cmd
}

// ledgerReport - вывод команды stats
type ledgerReport struct {
	Source string                   `json:"source"`
	Stats  *models.LedgerStats      `json:"stats,omitempty"`
	Totals *models.PerformanceStats `json:"totals,omitempty"`
	Recent []models.TradeRecord     `json:"recent,omitempty"`
}

// printStats - полная статистика из SQL журнала, итоги из файлового
func printStats(ctx context.Context, l *ledgers, recent int, out io.Writer) error {
	var report ledgerReport

	switch {
	case l.stats != nil:
		stats, err := l.stats.Snapshot(ctx)
		if err != nil {
			return err
		}
		report.Source = "database"
		report.Stats = &stats
		if recent > 0 {
			if report.Recent, err = l.stats.Recent(ctx, recent); err != nil {
				return err
			}
		}
	case l.jsonl != nil:
		records, err := l.jsonl.ReadAll()
		if err != nil {
			return err
		}
		totals := models.ComputePerformance(records)
		report.Source = l.jsonl.Path()
		report.Totals = &totals
		if recent > 0 {
			report.Recent = newestFirst(records, recent)
		}
	default:
		return errNoLedger
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func newestFirst(records []models.TradeRecord, limit int) []models.TradeRecord {
	if limit > len(records) {
		limit = len(records)
	}
	out := make([]models.TradeRecord, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, records[i])
	}
	return out
}
