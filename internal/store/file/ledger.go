package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dkovacs/screenerbot/internal/domain"
)

var ledgerColumns = []string{
	"id", "symbol", "strategy", "side", "quantity",
	"entry_date", "entry_price", "exit_date", "exit_price",
	"return_pct", "exit_reason", "holding_days",
}

// Ledger is the append-only trade history for one portfolio, stored as
// trades.csv. Rows are written once at close and never rewritten.
type Ledger struct {
	path   string
	logger *slog.Logger
}

// NewLedger creates a Ledger under dir.
func NewLedger(dir string, logger *slog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create ledger dir %s: %w", dir, err)
	}
	return &Ledger{
		path:   filepath.Join(dir, "trades.csv"),
		logger: logger.With(slog.String("component", "file_ledger")),
	}, nil
}

// Append writes one trade record to the end of the ledger, creating the
// file with a header row on first use.
func (l *Ledger) Append(_ context.Context, rec domain.TradeRecord) error {
	_, statErr := os.Stat(l.path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("file: open ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(ledgerColumns); err != nil {
			return fmt.Errorf("file: write ledger header: %w", err)
		}
	}
	row := []string{
		rec.ID, rec.Symbol, rec.Strategy, string(rec.Side), formatFloat(rec.Quantity),
		rec.EntryDate.UTC().Format(time.RFC3339), formatFloat(rec.EntryPrice),
		rec.ExitDate.UTC().Format(time.RFC3339), formatFloat(rec.ExitPrice),
		formatFloat(rec.ReturnPct), rec.ExitReason, strconv.Itoa(rec.HoldingDays),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("file: write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("file: flush ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("file: sync ledger: %w", err)
	}
	return nil
}

// ListRecent returns up to limit most recent records, newest last.
// Malformed rows are skipped with a warning.
func (l *Ledger) ListRecent(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("file: read ledger: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[name] = i
	}

	var out []domain.TradeRecord
	for i, row := range records[1:] {
		rec, err := parseLedgerRow(col, row)
		if err != nil {
			l.logger.Warn("skipping malformed ledger row",
				slog.Int("row", i+2),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, rec)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func parseLedgerRow(col map[string]int, row []string) (domain.TradeRecord, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	side, err := domain.ParseSide(get("side"))
	if err != nil {
		return domain.TradeRecord{}, err
	}
	entryDate, err := time.Parse(time.RFC3339, get("entry_date"))
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("entry_date %q: %w", get("entry_date"), err)
	}
	exitDate, err := time.Parse(time.RFC3339, get("exit_date"))
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("exit_date %q: %w", get("exit_date"), err)
	}

	rec := domain.TradeRecord{
		ID:         get("id"),
		Symbol:     get("symbol"),
		Strategy:   get("strategy"),
		Side:       side,
		EntryDate:  entryDate,
		ExitDate:   exitDate,
		ExitReason: get("exit_reason"),
	}
	rec.Quantity, _ = strconv.ParseFloat(get("quantity"), 64)
	rec.EntryPrice, _ = strconv.ParseFloat(get("entry_price"), 64)
	rec.ExitPrice, _ = strconv.ParseFloat(get("exit_price"), 64)
	rec.ReturnPct, _ = strconv.ParseFloat(get("return_pct"), 64)
	rec.HoldingDays, _ = strconv.Atoi(get("holding_days"))
	return rec, nil
}

// Compile-time interface check.
var _ domain.TradeLedger = (*Ledger)(nil)
