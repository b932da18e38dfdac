// Package report provides formatters for scan result output.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/0x6d61/wavs/internal/store"
)

// ErrScanNotFound is returned by Load for an unknown scan id.
var ErrScanNotFound = errors.New("report: scan not found")

// Reporter generates output in a specific format.
type Reporter interface {
	// Format returns the format name (e.g., "text", "json").
	Format() string

	// Generate writes the formatted snapshot to w.
	Generate(ctx context.Context, snap *Snapshot, w io.Writer) error
}

// New creates a reporter by format name ("text" or "json").
// The format name is case-insensitive.
func New(format string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "text":
		return &TextReporter{}, nil
	case "json":
		return &JSONReporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}

// Source is the read side of the result store a snapshot is built from.
type Source interface {
	Scan(ctx context.Context, id int64) (*store.Scan, error)
	Findings(ctx context.Context, scanID int64) ([]store.Finding, error)
	Counts(ctx context.Context, scanID int64) (map[string]int, error)
}

// Snapshot is a read-only view of one finished scan.
type Snapshot struct {
	Scan store.Scan
	// Findings groups findings by category. Categories without findings
	// are absent.
	Findings map[string][]store.Finding
	// Counts holds discovery totals keyed by output name.
	Counts map[string]int
}

// Load builds the snapshot of scanID.
func Load(ctx context.Context, src Source, scanID int64) (*Snapshot, error) {
	scan, err := src.Scan(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("report: load scan: %w", err)
	}
	if scan == nil {
		return nil, fmt.Errorf("%w: %d", ErrScanNotFound, scanID)
	}
	findings, err := src.Findings(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("report: load findings: %w", err)
	}
	counts, err := src.Counts(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("report: load counts: %w", err)
	}

	snap := &Snapshot{Scan: *scan, Findings: make(map[string][]store.Finding), Counts: counts}
	for _, f := range findings {
		snap.Findings[f.Category] = append(snap.Findings[f.Category], f)
	}
	return snap, nil
}

// Total returns the number of findings across all categories.
func (s *Snapshot) Total() int {
	n := 0
	for _, fs := range s.Findings {
		n += len(fs)
	}
	return n
}

// Categories returns the categories that have findings, in report order.
func (s *Snapshot) Categories() []string {
	var out []string
	for _, c := range store.Categories() {
		if len(s.Findings[c]) > 0 {
			out = append(out, c)
		}
	}
	return out
}
