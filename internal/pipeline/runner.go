package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0x6d61/wavs/internal/discovery"
	"github.com/0x6d61/wavs/internal/engine"
	"github.com/0x6d61/wavs/internal/metrics"
	"github.com/0x6d61/wavs/internal/payload"
	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
)

// InterruptFunc derives a context that is cancelled when the operator
// interrupts. It bounds the manual proxy phase.
type InterruptFunc func(ctx context.Context) (context.Context, context.CancelFunc)

// Options configures a Runner.
type Options struct {
	// ScanTypes maps scan type names to stage lists.
	ScanTypes map[string][]string

	// Generator, when set, stages candidates for every probe list in the
	// plan before the first stage runs.
	Generator payload.Generator
	SeedLimit int

	// CSRFTokens extends the csrf word list.
	CSRFTokens []string

	// Visited backs the crawler. Nil means in-memory.
	Visited  discovery.VisitedSet
	MaxPages int

	Metrics   *metrics.Collector
	Interrupt InterruptFunc
}

// Request describes one scan run.
type Request struct {
	ScanType  string
	Target    *target.Target
	Manual    bool
	ProxyAddr string
}

// Runner executes scan plans.
type Runner struct {
	store    store.Store
	payloads *payload.Manager
	client   transport.Client
	engine   *engine.Engine
	registry *Registry
	opts     Options
	log      zerolog.Logger
}

// NewRunner creates a Runner with every built-in stage registered.
func NewRunner(st store.Store, pm *payload.Manager, client transport.Client, opts Options) *Runner {
	if opts.Interrupt == nil {
		opts.Interrupt = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		}
	}
	if opts.Visited == nil {
		opts.Visited = discovery.NewMemoryVisited()
	}
	r := &Runner{
		store:    st,
		payloads: pm,
		client:   client,
		registry: NewRegistry(),
		opts:     opts,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
	r.registerStages()
	return r
}

// Registry exposes the stage registry, for adding custom stages.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Plan validates scanType without touching the network.
func (r *Runner) Plan(scanType string) ([]Stage, error) {
	return r.registry.Plan(r.opts.ScanTypes, scanType)
}

// Run plans req.ScanType, opens a new scan session and runs every stage in
// order. Target misbehaviour and cancellation stop the run; other stage
// errors are logged and the next stage runs. Staged payload candidates are
// purged however the run ends.
func (r *Runner) Run(ctx context.Context, req Request) (*store.Scan, error) {
	plan, err := r.Plan(req.ScanType)
	if err != nil {
		return nil, err
	}
	t := req.Target

	if len(t.Cookies) > 0 {
		cookies := make([]*http.Cookie, 0, len(t.Cookies))
		for name, value := range t.Cookies {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
		}
		r.client.Jar().SetCookies(t.Base, cookies)
	}

	r.engine = engine.New(r.client, engine.WithWorkers(t.Threads), engine.WithLogger(r.log))

	scan, err := r.store.NewScan(ctx, t.Base.String(), t.Port)
	if err != nil {
		return nil, fmt.Errorf("pipeline: new scan: %w", err)
	}
	defer func() {
		if err := r.payloads.PurgeStaged(context.Background()); err != nil {
			r.log.Error().Err(err).Msg("purging staged payloads")
		}
	}()

	logger := r.log.With().Int64("scan_id", scan.ID).Logger()
	logger.Info().Str("target", t.Base.String()).Str("type", req.ScanType).Int("stages", len(plan)).Msg("scan started")

	if r.opts.Generator != nil {
		r.generate(ctx, plan, logger)
	}

	sc := &ScanContext{Scan: *scan, Target: t, Manual: req.Manual, ProxyAddr: req.ProxyAddr}
	for _, s := range plan {
		if err := ctx.Err(); err != nil {
			return scan, err
		}

		out := &Output{
			stage:    s.Name,
			scanID:   scan.ID,
			store:    r.store,
			payloads: r.payloads,
			metrics:  r.opts.Metrics,
			log:      logger.With().Str("stage", s.Name).Logger(),
		}

		before := r.client.Stats().TotalRequests
		start := time.Now()
		out.log.Info().Msg("stage started")
		err := s.Run(ctx, sc, out)
		elapsed := time.Since(start)
		r.opts.Metrics.ObserveStage(s.Name, elapsed)
		r.opts.Metrics.AddRequests(s.Name, r.client.Stats().TotalRequests-before)

		switch {
		case err == nil:
			out.log.Info().Dur("elapsed", elapsed).Msg("stage finished")
		case isFatal(err) || ctx.Err() != nil:
			out.log.Error().Err(err).Msg("stage aborted the scan")
			return scan, err
		default:
			out.log.Error().Err(err).Msg("stage failed")
		}
	}

	logger.Info().Msg("scan finished")
	return scan, nil
}

func isFatal(err error) bool {
	return errors.Is(err, discovery.ErrTargetUnreachable) ||
		errors.Is(err, discovery.ErrTargetMisconfigured) ||
		errors.Is(err, context.Canceled)
}

// generate stages generator output for every probe list the plan uses.
func (r *Runner) generate(ctx context.Context, plan []Stage, logger zerolog.Logger) {
	done := make(map[string]bool)
	for _, s := range plan {
		p, ok := probeFor(s.Name)
		if !ok || done[p.list] {
			continue
		}
		done[p.list] = true

		n, err := r.payloads.Generate(ctx, r.opts.Generator, p.list, r.opts.SeedLimit)
		if err != nil {
			logger.Warn().Err(err).Str("list", p.list).Msg("generating candidates")
			continue
		}
		logger.Info().Str("list", p.list).Int("staged", n).Msg("generated candidates")
	}
}
