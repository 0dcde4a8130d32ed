// Package journal
package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/amirphl/intraday-backtest/internal/sim"
)

// Writer is the append-only trade log for one simulation run.
type Writer interface {
	RunID() string
	WriteTrade(t sim.TradeRecord) error
	Close() error
}

// CSVTradeLog writes one CSV file per run, named by the run's UUID, with the
// classic intraday trade-log columns. Rows are appended in the order the
// engine closes trades, which is exit-time order.
type CSVTradeLog struct {
	runID string
	path  string
	f     *os.File
	w     *csv.Writer
}

func NewCSVTradeLog(dir string) (*CSVTradeLog, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trade log dir: %w", err)
	}

	runID := uuid.NewString()
	path := filepath.Join(dir, fmt.Sprintf("trade_log_%s.csv", runID))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade log file: %w", err)
	}

	w := csv.NewWriter(f)
	header := []string{
		"Date", "Symbol", "Direction",
		"EntryTime", "EntryPrice", "Qty",
		"ExitTime", "ExitPrice", "PnL", "Return", "ExitType",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write trade log header: %w", err)
	}

	return &CSVTradeLog{runID: runID, path: path, f: f, w: w}, nil
}

func (j *CSVTradeLog) RunID() string { return j.runID }
func (j *CSVTradeLog) Path() string  { return j.path }

func (j *CSVTradeLog) WriteTrade(t sim.TradeRecord) error {
	row := []string{
		t.ExitTime.Format("2006-01-02"),
		t.Symbol,
		t.Direction.String(),
		t.EntryTime.Format(time.RFC3339),
		fmt.Sprintf("%.4f", t.EntryPrice),
		fmt.Sprintf("%.4f", t.Quantity),
		t.ExitTime.Format(time.RFC3339),
		fmt.Sprintf("%.4f", t.ExitPrice),
		fmt.Sprintf("%.4f", t.PnL),
		fmt.Sprintf("%.6f", t.Return),
		string(t.ExitType),
	}
	if err := j.w.Write(row); err != nil {
		return fmt.Errorf("failed to write trade row: %w", err)
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSVTradeLog) Close() error {
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}
