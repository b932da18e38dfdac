// Package engine runs payload probes against discovered injection points.
// Workers only send requests and judge responses; the caller owns every
// store write.
package engine

import (
	"cmp"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/transport"
)

// Placeholder is the inert value sent in every parameter not under test.
const Placeholder = "test"

// DefaultThreshold is the blind-injection delay used when a strategy sets none.
const DefaultThreshold = 5 * time.Second

// Mode selects how a probe decides a payload worked.
type Mode int

const (
	// ModeContent looks for a signature in the response to the payload.
	ModeContent Mode = iota
	// ModeTiming compares the payload round trip with a placeholder baseline.
	ModeTiming
	// ModeStored writes the payload followed by a unique marker, then
	// looks for the marked payload on a payload-free read of the same page.
	// Signatures are not consulted.
	ModeStored
)

// String returns the mode name.
func (m Mode) String() string {
	names := [...]string{"content", "timing", "stored"}
	if int(m) < len(names) {
		return names[m]
	}
	return "unknown"
}

// ProbeStrategy describes how one vulnerability category is tested.
type ProbeStrategy struct {
	Category string
	Mode     Mode

	// Signatures are response substrings that prove the payload worked.
	Signatures []string

	// ReflectPayload makes the payload itself a signature.
	ReflectPayload bool

	// Payloads are tried in order; the first success ends the job.
	Payloads []string

	// Threshold is the minimum extra delay for ModeTiming.
	Threshold time.Duration
}

// Engine runs probes on a bounded worker pool.
type Engine struct {
	client  transport.Client
	workers int
	log     zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of concurrent probe jobs.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine that sends requests through client.
func New(client transport.Client, opts ...Option) *Engine {
	e := &Engine{
		client:  client,
		workers: 1,
		log:     log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = 1
	}
	return e
}

// Dedup keeps the first finding for every (page, parameter) pair.
func Dedup(findings []store.Finding) []store.Finding {
	seen := make(map[[2]string]bool, len(findings))
	out := make([]store.Finding, 0, len(findings))
	for _, f := range findings {
		k := [2]string{f.Page, f.Parameter}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}

// sortFindings orders findings by page and parameter so Dedup keeps a
// deterministic winner regardless of worker scheduling.
func sortFindings(findings []store.Finding) {
	slices.SortStableFunc(findings, func(a, b store.Finding) int {
		return cmp.Or(
			cmp.Compare(a.Page, b.Page),
			cmp.Compare(a.Parameter, b.Parameter),
			cmp.Compare(a.Method, b.Method),
			cmp.Compare(a.Payload, b.Payload),
		)
	})
}
