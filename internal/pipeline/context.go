package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/0x6d61/wavs/internal/engine"
	"github.com/0x6d61/wavs/internal/metrics"
	"github.com/0x6d61/wavs/internal/payload"
	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/target"
)

// ScanContext is the read-only state shared by every stage of one run.
type ScanContext struct {
	Scan   store.Scan
	Target *target.Target

	// Manual runs the intercepting proxy before the automatic crawl.
	Manual    bool
	ProxyAddr string
}

// Output is a stage's handle on persistent state. Storage failures are
// logged and swallowed: a stage sees an empty result rather than an error.
type Output struct {
	stage    string
	scanID   int64
	store    store.Store
	payloads *payload.Manager
	metrics  *metrics.Collector
	log      zerolog.Logger
}

// Prior returns the flattened output of an earlier stage.
func (o *Output) Prior(ctx context.Context, output string) []string {
	items, err := o.store.ReadPriorOutput(ctx, o.scanID, output)
	if err != nil {
		o.log.Warn().Err(err).Str("output", output).Msg("reading prior output")
		return []string{}
	}
	return items
}

// InjectionPoints returns the points recorded by the parser.
func (o *Output) InjectionPoints(ctx context.Context) []store.InjectionPoint {
	points, err := o.store.InjectionPoints(ctx, o.scanID)
	if err != nil {
		o.log.Warn().Err(err).Msg("reading injection points")
		return nil
	}
	return points
}

// RecordItems stores discovered paths under output.
func (o *Output) RecordItems(ctx context.Context, output string, items []string) int {
	if len(items) == 0 {
		return 0
	}
	n, err := o.store.RecordItems(ctx, o.scanID, output, items)
	if err != nil {
		o.log.Error().Err(err).Str("output", output).Msg("recording items")
		return 0
	}
	o.metrics.AddDiscovered(output, n)
	o.log.Info().Str("output", output).Int("new", n).Int("total", len(items)).Msg("recorded")
	return n
}

// RecordPoints stores injection points.
func (o *Output) RecordPoints(ctx context.Context, points []store.InjectionPoint) int {
	if len(points) == 0 {
		return 0
	}
	n, err := o.store.RecordInjectionPoints(ctx, o.scanID, points)
	if err != nil {
		o.log.Error().Err(err).Msg("recording injection points")
		return 0
	}
	o.metrics.AddDiscovered(store.OutputParameters, n)
	o.log.Info().Int("new", n).Int("total", len(points)).Msg("recorded injection points")
	return n
}

// RecordFindings deduplicates findings on (page, parameter), stores them
// under category and credits the payload of each newly stored one in list.
// An empty list skips the crediting.
func (o *Output) RecordFindings(ctx context.Context, category, list string, findings []store.Finding) int {
	findings = engine.Dedup(findings)
	if len(findings) == 0 {
		return 0
	}
	for i := range findings {
		findings[i].ScanID = o.scanID
		findings[i].Category = category
	}

	added, err := o.store.RecordFindings(ctx, o.scanID, category, findings)
	if err != nil {
		o.log.Error().Err(err).Str("category", category).Msg("recording findings")
	}
	o.metrics.AddFindings(category, len(added))
	for _, f := range added {
		o.log.Warn().Str("category", category).Str("method", f.Method).Str("page", f.Page).
			Str("parameter", f.Parameter).Str("payload", f.Payload).Msg("finding")
	}

	if list != "" {
		credited := make([]string, 0, len(added))
		for _, f := range added {
			if f.Payload != "" {
				credited = append(credited, f.Payload)
			}
		}
		o.Credit(ctx, list, credited)
	}
	return len(added)
}

// Credit records one success for each value in list.
func (o *Output) Credit(ctx context.Context, list string, values []string) {
	for _, v := range values {
		if err := o.payloads.RecordSuccess(ctx, list, v); err != nil {
			o.log.Warn().Err(err).Str("list", list).Str("value", v).Msg("recording success")
		}
	}
}
