package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropwire/dropwire/config"
	"github.com/dropwire/dropwire/internal/engine"
	"github.com/dropwire/dropwire/internal/history"
	"github.com/dropwire/dropwire/internal/manifest"
	"github.com/dropwire/dropwire/pkg/logging"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List transfers completed from this machine",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runHistory(); err != nil {
			logging.L().Fatalf("history failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory() error {
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	records, err := ledger.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No transfers recorded yet.")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %-9s %-6s %-10s %s (%s, %d chunks)\n",
			rec.FinishedAt.Format("2006-01-02 15:04"),
			rec.Direction, rec.Mode, rec.Status,
			rec.Name, engine.FormatBytes(rec.Bytes), rec.Chunks)
	}
	return nil
}

func openLedger() (*history.Ledger, error) {
	return history.Open(config.Get().HistoryDBPath)
}

func historyRecord(transferID string, m *manifest.Manifest, mode, status string, finished time.Time) history.Record {
	return history.Record{
		TransferID: transferID,
		Name:       m.DisplayName(),
		Direction:  history.DirectionSent,
		Mode:       mode,
		Bytes:      m.TotalBytes(),
		Chunks:     m.TotalChunks(),
		Status:     status,
		FinishedAt: finished,
	}
}
