// Package store persists scan sessions, discovery output and findings.
// Every row is scoped by scan id and written with insert-or-ignore
// semantics, so re-running a stage against the same scan is idempotent.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"
)

// Output names identify the persisted result of a discovery stage.
const (
	OutputDirectories = "directories"
	OutputFiles       = "files"
	OutputPages       = "crawler"
	OutputParameters  = "parser"
)

// Finding categories. Each has its own table.
const (
	CategorySQLInjection      = "sql_injection"
	CategorySQLInjectionBlind = "sql_injection_blind"
	CategoryLFI               = "lfi"
	CategoryXSSReflected      = "xss_reflected"
	CategoryXSSStored         = "xss_stored"
	CategoryCSRF              = "csrf"
	CategoryOSInjection       = "os_injection"
	CategoryInfoDisclosure    = "info_disclosure"
)

// Categories returns every finding category in report order.
func Categories() []string {
	return []string{
		CategorySQLInjection,
		CategorySQLInjectionBlind,
		CategoryLFI,
		CategoryXSSReflected,
		CategoryXSSStored,
		CategoryCSRF,
		CategoryOSInjection,
		CategoryInfoDisclosure,
	}
}

// ErrUnknownOutput is returned when a stage or category name has no table.
var ErrUnknownOutput = errors.New("store: unknown output")

// Scan is one end-to-end run against a target.
type Scan struct {
	ID        int64     `json:"id"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// InjectionPoint is a discovered (method, action, parameters) tuple.
type InjectionPoint struct {
	Method     string   `json:"method"`
	Action     string   `json:"action"`
	Parameters []string `json:"parameters"`
}

// Key identifies a point by action, method and parameter set; parameter
// order does not matter.
func (p InjectionPoint) Key() string {
	return p.Action + "|" + p.Method + "|" + paramKey(p.Parameters)
}

// paramKey and encodeParams use JSON so a field name containing a comma
// stays one parameter.
func paramKey(params []string) string {
	sorted := slices.Clone(params)
	slices.Sort(sorted)
	return encodeParams(sorted)
}

func encodeParams(params []string) string {
	if params == nil {
		params = []string{}
	}
	b, _ := json.Marshal(params)
	return string(b)
}

func decodeParams(s string) ([]string, error) {
	var params []string
	if err := json.Unmarshal([]byte(s), &params); err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

// Finding is a confirmed, deduplicated probe result.
type Finding struct {
	ScanID    int64  `json:"scan_id"`
	Category  string `json:"category"`
	Method    string `json:"method"`
	Page      string `json:"page"`
	Parameter string `json:"parameter"`
	Payload   string `json:"payload"`
}

// Store persists scan state.
type Store interface {
	NewScan(ctx context.Context, host string, port int) (*Scan, error)
	Scan(ctx context.Context, id int64) (*Scan, error)
	LatestScan(ctx context.Context) (*Scan, error)
	Scans(ctx context.Context) ([]Scan, error)

	// RecordItems stores the flat string output of a discovery stage.
	RecordItems(ctx context.Context, scanID int64, output string, items []string) (int, error)
	RecordInjectionPoints(ctx context.Context, scanID int64, points []InjectionPoint) (int, error)
	// RecordFindings inserts findings, ignoring rows whose
	// (scan_id, page, parameter) already exists, and returns the ones that
	// were new.
	RecordFindings(ctx context.Context, scanID int64, category string, findings []Finding) ([]Finding, error)

	// ReadPriorOutput returns the flattened output of an earlier stage, or
	// an empty slice when that stage never ran.
	ReadPriorOutput(ctx context.Context, scanID int64, output string) ([]string, error)
	InjectionPoints(ctx context.Context, scanID int64) ([]InjectionPoint, error)
	Findings(ctx context.Context, scanID int64) ([]Finding, error)
	Counts(ctx context.Context, scanID int64) (map[string]int, error)

	// ResetScans deletes every scan and everything scoped by one.
	ResetScans(ctx context.Context) error
	Close() error
}
