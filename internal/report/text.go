package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/0x6d61/wavs/internal/store"
)

const (
	doubleLine = "\u2550" // ═
	singleLine = "\u2500" // ─
	lineWidth  = 50
)

// TextReporter outputs plain terminal text.
type TextReporter struct {
	// Verbose adds descriptions and mitigations to each category.
	Verbose bool
}

// Format returns "text".
func (r *TextReporter) Format() string {
	return "text"
}

// Generate writes the snapshot as text to w.
func (r *TextReporter) Generate(ctx context.Context, snap *Snapshot, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}
	doubleBar := strings.Repeat(doubleLine, lineWidth)
	singleBar := strings.Repeat(singleLine, lineWidth)

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintln(b, "WAVS Vulnerability Report")
	fmt.Fprintln(b, doubleBar)

	fmt.Fprintf(b, "Scan:    #%d\n", snap.Scan.ID)
	fmt.Fprintf(b, "Target:  %s (port %d)\n", snap.Scan.Host, snap.Scan.Port)
	fmt.Fprintf(b, "Started: %s\n", snap.Scan.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(b, "Found:   %d directories, %d files, %d pages, %d injection points\n",
		snap.Counts[store.OutputDirectories], snap.Counts[store.OutputFiles],
		snap.Counts[store.OutputPages], snap.Counts[store.OutputParameters])

	cats := snap.Categories()
	if len(cats) == 0 {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "No vulnerabilities found.")
	}
	for _, c := range cats {
		info := Category(c)
		fmt.Fprintln(b, singleBar)
		fmt.Fprintf(b, "[%s] %s (%d)\n", info.Severity, info.Title, len(snap.Findings[c]))
		if r.Verbose {
			fmt.Fprintf(b, "  %s\n", info.Description)
			for _, m := range info.Mitigation {
				fmt.Fprintf(b, "  - %s\n", m)
			}
			if info.Reference != "" {
				fmt.Fprintf(b, "  See: %s\n", info.Reference)
			}
		}
		for _, f := range snap.Findings[c] {
			fmt.Fprintln(b)
			fmt.Fprintf(b, "  Page:       %s\n", f.Page)
			fmt.Fprintf(b, "  Method:     %s\n", f.Method)
			if f.Parameter != "" {
				fmt.Fprintf(b, "  Parameters: %s\n", f.Parameter)
			}
			if f.Payload != "" {
				fmt.Fprintf(b, "  Payload:    %s\n", f.Payload)
			}
		}
	}

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "Summary: %d vulnerabilities in %d categories\n", snap.Total(), len(cats))
	fmt.Fprintln(b, doubleBar)

	_, err := io.WriteString(w, b.String())
	return err
}
