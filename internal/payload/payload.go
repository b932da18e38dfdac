// Package payload manages the ranked attack strings and word lists the
// scanner draws from. Rankings are self-reinforcing: every string that
// produces a finding gains one success, and higher counts are tried first
// in later scans.
package payload

import "context"

// Word list and payload categories. Finding categories that share a payload
// source (reflected and stored XSS) map onto a single list.
const (
	ListSQLInjection      = "sql_injection"
	ListSQLInjectionBlind = "sql_injection_blind"
	ListXSS               = "xss"
	ListLFI               = "lfi"
	ListOSInjection       = "os_injection"

	ListDirectory      = "directory"
	ListFile           = "file"
	ListInfoDisclosure = "info_disclosure"
	ListCSRF           = "csrf"
)

// Payload is a ranked string in a category.
type Payload struct {
	ID       int64
	Category string
	Value    string
	Count    int
	// Staged marks a generated candidate that has not been proven yet.
	Staged bool
}

// Generator produces new candidate strings for a category from proven seeds.
// Implementations are opaque to the engine; their output is only ever staged.
type Generator interface {
	Generate(ctx context.Context, category string, seeds []string) ([]string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, category string, seeds []string) ([]string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, category string, seeds []string) ([]string, error) {
	return f(ctx, category, seeds)
}

// Values returns the payload strings in order.
func Values(payloads []Payload) []string {
	out := make([]string, len(payloads))
	for i, p := range payloads {
		out[i] = p.Value
	}
	return out
}
