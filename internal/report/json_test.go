package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/0x6d61/wavs/internal/store"
)

func TestJSONReporter_Format(t *testing.T) {
	r := &JSONReporter{}
	if got := r.Format(); got != "json" {
		t.Errorf("Format() = %q, want %q", got, "json")
	}
}

func TestJSONReporter_Generate(t *testing.T) {
	r := &JSONReporter{}
	var buf bytes.Buffer
	if err := r.Generate(context.Background(), newTestSnapshot(), &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	var output jsonOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput:\n%s", err, buf.String())
	}
	if output.SchemaVersion != "1.0" || output.Tool != "wavs" {
		t.Errorf("header = %q %q", output.SchemaVersion, output.Tool)
	}
	if output.Scan.ID != 7 || output.Scan.Port != 8080 {
		t.Errorf("scan = %+v", output.Scan)
	}
	if output.Discovery[store.OutputPages] != 9 {
		t.Errorf("discovery = %v", output.Discovery)
	}
	if len(output.Categories) != 2 {
		t.Fatalf("categories = %+v", output.Categories)
	}
	sqli := output.Categories[0]
	if sqli.Name != store.CategorySQLInjection || sqli.Severity != "CRITICAL" || len(sqli.Mitigation) == 0 {
		t.Errorf("sql_injection category = %+v", sqli)
	}
	if len(sqli.Findings) != 1 || sqli.Findings[0].Parameter != "id" || sqli.Findings[0].Payload != "'" {
		t.Errorf("sql_injection findings = %+v", sqli.Findings)
	}
	if output.Summary.TotalFindings != 2 {
		t.Errorf("total = %d, want 2", output.Summary.TotalFindings)
	}
	if output.Summary.BySeverity["CRITICAL"] != 1 || output.Summary.BySeverity["MEDIUM"] != 1 {
		t.Errorf("by severity = %v", output.Summary.BySeverity)
	}
}

func TestJSONReporter_Generate_OmitsEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONReporter{Compact: true}).Generate(context.Background(), newTestSnapshot(), &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "\n") {
		t.Error("compact output should be a single line")
	}
	if strings.Contains(out, `"payload":""`) {
		t.Error("empty payload should be omitted")
	}
}

func TestJSONReporter_Generate_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	snap := &Snapshot{Scan: store.Scan{ID: 1}}
	if err := (&JSONReporter{}).Generate(context.Background(), snap, &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if cats, ok := raw["categories"].([]any); !ok || len(cats) != 0 {
		t.Errorf("categories = %#v, want empty array", raw["categories"])
	}
}
