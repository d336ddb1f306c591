// Package file implements the persistence interfaces on plain files: a
// row-oriented CSV positions table with a JSON mirror, and an append-only
// CSV trade ledger. Saves go through a temp file and rename so a crash
// can never leave a truncated state file behind.
package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// positionColumns is the CSV schema. The schema is additive-only: new
// columns are appended at the end, and readers index columns by header
// name so unknown trailing columns from newer writers are ignored.
var positionColumns = []string{
	"symbol", "strategy", "side", "quantity",
	"entry_price", "entry_date", "current_price",
	"stop_loss", "exit_rule", "max_holding_days",
	"trailing_pct", "trailing_stop", "high_water_mark", "trailing_created",
	"last_updated",
}

// PositionStore persists one portfolio's open positions under dir as
// positions.csv plus a positions.json mirror.
type PositionStore struct {
	dir    string
	logger *slog.Logger
}

// NewPositionStore creates a PositionStore rooted at dir, creating the
// directory if needed.
func NewPositionStore(dir string, logger *slog.Logger) (*PositionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create store dir %s: %w", dir, err)
	}
	return &PositionStore{
		dir:    dir,
		logger: logger.With(slog.String("component", "file_position_store")),
	}, nil
}

func (s *PositionStore) csvPath() string  { return filepath.Join(s.dir, "positions.csv") }
func (s *PositionStore) jsonPath() string { return filepath.Join(s.dir, "positions.json") }

// Load reads the persisted positions. It fails soft: a missing file
// yields an empty set, and malformed rows are skipped with a warning so
// one corrupt row cannot take down the whole portfolio. When the CSV is
// missing or unparseable the JSON mirror is tried.
func (s *PositionStore) Load(_ context.Context) ([]domain.Position, error) {
	f, err := os.Open(s.csvPath())
	if os.IsNotExist(err) {
		return s.loadMirror()
	}
	if err != nil {
		s.logger.Warn("could not open positions file, starting empty",
			slog.String("path", s.csvPath()),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		s.logger.Warn("could not parse positions file, trying mirror",
			slog.String("path", s.csvPath()),
			slog.String("error", err.Error()),
		)
		return s.loadMirror()
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[name] = i
	}

	var positions []domain.Position
	for i, row := range records[1:] {
		p, err := parsePositionRow(col, row)
		if err != nil {
			s.logger.Warn("skipping malformed position row",
				slog.Int("row", i+2),
				slog.String("error", err.Error()),
			)
			continue
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func (s *PositionStore) loadMirror() ([]domain.Position, error) {
	data, err := os.ReadFile(s.jsonPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("could not read positions mirror, starting empty",
			slog.String("path", s.jsonPath()),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	var positions []domain.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		s.logger.Warn("could not parse positions mirror, starting empty",
			slog.String("path", s.jsonPath()),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	s.logger.Info("positions recovered from JSON mirror",
		slog.Int("count", len(positions)),
	)
	return positions, nil
}

// Save writes the full position set atomically: both the CSV table and
// the JSON mirror go through a temp file and rename, so a crash mid-save
// leaves the previous durable state intact. CSV write failures are fatal
// for the save; a mirror failure is logged but does not fail the save,
// since the CSV is the source of truth.
func (s *PositionStore) Save(_ context.Context, positions []domain.Position) error {
	rows := make([][]string, 0, len(positions)+1)
	rows = append(rows, positionColumns)
	for i := range positions {
		rows = append(rows, positionRow(&positions[i]))
	}

	if err := writeFileAtomic(s.csvPath(), func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.WriteAll(rows); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	}); err != nil {
		return fmt.Errorf("file: save positions: %w", err)
	}

	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		s.logger.Error("could not encode positions mirror", slog.String("error", err.Error()))
		return nil
	}
	if err := writeFileAtomic(s.jsonPath(), func(f *os.File) error {
		_, werr := f.Write(data)
		return werr
	}); err != nil {
		s.logger.Error("could not write positions mirror", slog.String("error", err.Error()))
	}
	return nil
}

// writeFileAtomic writes through a temp file in the same directory, syncs,
// and renames over the target.
func writeFileAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func positionRow(p *domain.Position) []string {
	stopLoss := ""
	if p.StopLoss != nil {
		stopLoss = formatFloat(*p.StopLoss)
	}
	exitRule := ""
	if p.Exit != nil {
		exitRule = p.Exit.String()
	}
	trailingPct, trailingStop, hwm, trailingCreated := "", "", "", ""
	if p.Trailing != nil {
		trailingPct = formatFloat(p.Trailing.TrailingPct)
		trailingStop = formatFloat(p.Trailing.StopPrice)
		hwm = formatFloat(p.Trailing.HighWaterMark)
		trailingCreated = p.Trailing.CreatedDate.UTC().Format(time.RFC3339)
	}
	return []string{
		p.Symbol, p.Strategy, string(p.Side), formatFloat(p.Quantity),
		formatFloat(p.EntryPrice), p.EntryDate.UTC().Format(time.RFC3339), formatFloat(p.CurrentPrice),
		stopLoss, exitRule, strconv.Itoa(p.MaxHoldingDays),
		trailingPct, trailingStop, hwm, trailingCreated,
		p.LastUpdated.UTC().Format(time.RFC3339),
	}
}

func parsePositionRow(col map[string]int, row []string) (domain.Position, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	side, err := domain.ParseSide(get("side"))
	if err != nil {
		return domain.Position{}, err
	}
	qty, err := strconv.ParseFloat(get("quantity"), 64)
	if err != nil {
		return domain.Position{}, fmt.Errorf("quantity %q: %w", get("quantity"), err)
	}
	entryPrice, err := strconv.ParseFloat(get("entry_price"), 64)
	if err != nil {
		return domain.Position{}, fmt.Errorf("entry_price %q: %w", get("entry_price"), err)
	}
	entryDate, err := time.Parse(time.RFC3339, get("entry_date"))
	if err != nil {
		return domain.Position{}, fmt.Errorf("entry_date %q: %w", get("entry_date"), err)
	}
	if get("symbol") == "" || get("strategy") == "" {
		return domain.Position{}, fmt.Errorf("missing symbol or strategy")
	}

	p := domain.Position{
		Symbol:     get("symbol"),
		Strategy:   get("strategy"),
		Side:       side,
		Quantity:   qty,
		EntryPrice: entryPrice,
		EntryDate:  entryDate,
	}

	if v := get("current_price"); v != "" {
		p.CurrentPrice, _ = strconv.ParseFloat(v, 64)
	}
	if v := get("stop_loss"); v != "" {
		sl, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.Position{}, fmt.Errorf("stop_loss %q: %w", v, err)
		}
		p.StopLoss = &sl
	}
	if v := get("exit_rule"); v != "" {
		ec, err := domain.ParseExitCondition(v)
		if err != nil {
			return domain.Position{}, fmt.Errorf("exit_rule: %w", err)
		}
		p.Exit = &ec
	}
	if v := get("max_holding_days"); v != "" {
		p.MaxHoldingDays, _ = strconv.Atoi(v)
	}
	if v := get("trailing_pct"); v != "" {
		ts := domain.TrailingStop{}
		ts.TrailingPct, _ = strconv.ParseFloat(v, 64)
		ts.StopPrice, _ = strconv.ParseFloat(get("trailing_stop"), 64)
		ts.HighWaterMark, _ = strconv.ParseFloat(get("high_water_mark"), 64)
		if created := get("trailing_created"); created != "" {
			ts.CreatedDate, _ = time.Parse(time.RFC3339, created)
		}
		p.Trailing = &ts
	}
	if v := get("last_updated"); v != "" {
		p.LastUpdated, _ = time.Parse(time.RFC3339, v)
	}

	// Rebuild the derived fields so a loaded set is internally consistent
	// even when the file predates newer derived columns.
	if p.CurrentPrice > 0 {
		lastUpdated := p.LastUpdated
		p.Revalue(p.CurrentPrice, lastUpdated)
	}
	return p, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
