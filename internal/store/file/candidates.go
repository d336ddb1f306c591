package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// CandidateSource reads the ranked candidate list one screener run drops
// per strategy as candidates_<strategy>.csv under dir. Row order is rank;
// the source never re-sorts.
type CandidateSource struct {
	dir    string
	logger *slog.Logger
}

// NewCandidateSource creates a CandidateSource rooted at dir.
func NewCandidateSource(dir string, logger *slog.Logger) *CandidateSource {
	return &CandidateSource{
		dir:    dir,
		logger: logger.With(slog.String("component", "file_candidates")),
	}
}

// Candidates returns the ranked list for a strategy. A missing file is an
// error: the orchestrator treats it as that strategy's feed being down
// and skips the strategy for the cycle.
func (s *CandidateSource) Candidates(_ context.Context, strategy string) ([]domain.Candidate, error) {
	path := filepath.Join(s.dir, "candidates_"+strategy+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file: open candidates for %s: %w", strategy, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("file: read candidates for %s: %w", strategy, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[name] = i
	}

	var out []domain.Candidate
	for i, row := range records[1:] {
		get := func(name string) string {
			idx, ok := col[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return row[idx]
		}
		symbol := get("symbol")
		price, perr := strconv.ParseFloat(get("price"), 64)
		if symbol == "" || perr != nil {
			s.logger.Warn("skipping malformed candidate row",
				slog.String("strategy", strategy),
				slog.Int("row", i+2),
			)
			continue
		}
		c := domain.Candidate{Symbol: symbol, Price: price}
		c.Score, _ = strconv.ParseFloat(get("score"), 64)
		c.Volatility, _ = strconv.ParseFloat(get("volatility"), 64)
		out = append(out, c)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.CandidateSource = (*CandidateSource)(nil)
