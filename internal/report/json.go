package report

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// JSONReporter outputs structured JSON.
type JSONReporter struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONReporter) Format() string {
	return "json"
}

// jsonOutput is the top-level JSON structure.
type jsonOutput struct {
	SchemaVersion string         `json:"schema_version"`
	Tool          string         `json:"tool"`
	Scan          jsonScan       `json:"scan"`
	Discovery     map[string]int `json:"discovery"`
	Categories    []jsonCategory `json:"categories"`
	Summary       jsonSummary    `json:"summary"`
}

type jsonScan struct {
	ID        int64     `json:"id"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// jsonCategory is one finding category with its findings.
type jsonCategory struct {
	Name        string        `json:"name"`
	Title       string        `json:"title"`
	Severity    string        `json:"severity"`
	Description string        `json:"description"`
	Mitigation  []string      `json:"mitigation"`
	Reference   string        `json:"reference,omitempty"`
	Findings    []jsonFinding `json:"findings"`
}

type jsonFinding struct {
	Method    string `json:"method"`
	Page      string `json:"page"`
	Parameter string `json:"parameter,omitempty"`
	Payload   string `json:"payload,omitempty"`
}

type jsonSummary struct {
	TotalFindings int            `json:"total_findings"`
	BySeverity    map[string]int `json:"by_severity"`
}

// Generate writes the snapshot as JSON to w.
func (r *JSONReporter) Generate(ctx context.Context, snap *Snapshot, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	output := jsonOutput{
		SchemaVersion: "1.0",
		Tool:          "wavs",
		Scan: jsonScan{
			ID:        snap.Scan.ID,
			Host:      snap.Scan.Host,
			Port:      snap.Scan.Port,
			StartedAt: snap.Scan.StartedAt,
		},
		Discovery:  snap.Counts,
		Categories: make([]jsonCategory, 0, len(snap.Findings)),
		Summary: jsonSummary{
			TotalFindings: snap.Total(),
			BySeverity:    make(map[string]int),
		},
	}
	if output.Discovery == nil {
		output.Discovery = map[string]int{}
	}

	for _, c := range snap.Categories() {
		info := Category(c)
		jc := jsonCategory{
			Name:        c,
			Title:       info.Title,
			Severity:    info.Severity.String(),
			Description: info.Description,
			Mitigation:  info.Mitigation,
			Reference:   info.Reference,
			Findings:    make([]jsonFinding, 0, len(snap.Findings[c])),
		}
		for _, f := range snap.Findings[c] {
			jc.Findings = append(jc.Findings, jsonFinding{
				Method:    f.Method,
				Page:      f.Page,
				Parameter: f.Parameter,
				Payload:   f.Payload,
			})
		}
		output.Categories = append(output.Categories, jc)
		output.Summary.BySeverity[jc.Severity] += len(jc.Findings)
	}

	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(output)
}
