package db

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/intraday-backtest/internal/candle"
	"github.com/amirphl/intraday-backtest/internal/utils"
)

// csvTimeLayouts are tried in order when parsing the time column.
var csvTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
}

// ImportCSVGlob loads 1-minute candle CSV files matching pattern into
// storage. Expected columns: time, ticker, open, high, low, close, volume and
// an optional turnover column; header names are matched case-insensitively.
// Invalid rows are skipped with a log line rather than aborting the import.
func ImportCSVGlob(ctx context.Context, storage Storage, pattern string) (int, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid data glob %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no data files match %q", pattern)
	}
	sort.Strings(files)

	total := 0
	for _, file := range files {
		n, err := importCSVFile(ctx, storage, file)
		if err != nil {
			return total, fmt.Errorf("failed to import %s: %w", file, err)
		}
		utils.GetLogger().Printf("CSVLoader | Imported %d candles from %s", n, file)
		total += n
	}
	return total, nil
}

func importCSVFile(ctx context.Context, storage Storage, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	timeIdx, ok := col["time"]
	if !ok {
		return 0, fmt.Errorf("missing required column %q", "time")
	}
	symIdx, ok := col["ticker"]
	if !ok {
		if symIdx, ok = col["symbol"]; !ok {
			return 0, fmt.Errorf("missing required column %q", "ticker")
		}
	}
	for _, name := range []string{"open", "high", "low", "close", "volume"} {
		if _, ok := col[name]; !ok {
			return 0, fmt.Errorf("missing required column %q", name)
		}
	}
	turnoverIdx, hasTurnover := col["turnover"]

	var candles []candle.Candle
	for {
		row, err := r.Read()
		if err != nil {
			break
		}

		ts, err := parseCSVTime(row[timeIdx])
		if err != nil {
			utils.GetLogger().Printf("CSVLoader | Skipping row with bad time %q: %v", row[timeIdx], err)
			continue
		}

		c := candle.Candle{
			Timestamp: ts.Truncate(time.Minute),
			Open:      parseCSVFloat(row[col["open"]]),
			High:      parseCSVFloat(row[col["high"]]),
			Low:       parseCSVFloat(row[col["low"]]),
			Close:     parseCSVFloat(row[col["close"]]),
			Volume:    parseCSVFloat(row[col["volume"]]),
			Symbol:    strings.TrimSpace(row[symIdx]),
			Timeframe: "1m",
			Source:    filepath.Base(path),
		}
		if hasTurnover {
			c.Turnover = parseCSVFloat(row[turnoverIdx])
		}

		if err := c.Validate(); err != nil {
			utils.GetLogger().Printf("CSVLoader | Skipping invalid candle at %s: %v", c.Timestamp, err)
			continue
		}
		candles = append(candles, c)
	}

	if len(candles) == 0 {
		return 0, nil
	}
	if err := storage.SaveCandles(ctx, candles); err != nil {
		return 0, fmt.Errorf("failed to save candles: %w", err)
	}
	return len(candles), nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range csvTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseCSVFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
