package pipeline

import (
	"context"
	"slices"
	"sync"

	"github.com/0x6d61/wavs/internal/discovery"
	"github.com/0x6d61/wavs/internal/engine"
	"github.com/0x6d61/wavs/internal/payload"
	"github.com/0x6d61/wavs/internal/proxy"
	"github.com/0x6d61/wavs/internal/store"
)

// probe binds a finding category to its payload list and detection.
type probe struct {
	category   string
	list       string
	signatures string // detect list, empty for none
	mode       engine.Mode
	reflect    bool
}

var probes = []probe{
	{store.CategorySQLInjection, payload.ListSQLInjection, payload.ListSQLInjection, engine.ModeContent, false},
	{store.CategorySQLInjectionBlind, payload.ListSQLInjectionBlind, "", engine.ModeTiming, false},
	{store.CategoryLFI, payload.ListLFI, payload.ListLFI, engine.ModeContent, false},
	{store.CategoryXSSReflected, payload.ListXSS, "", engine.ModeContent, true},
	{store.CategoryXSSStored, payload.ListXSS, "", engine.ModeStored, true},
	{store.CategoryOSInjection, payload.ListOSInjection, payload.ListOSInjection, engine.ModeContent, false},
}

func probeFor(stage string) (probe, bool) {
	for _, p := range probes {
		if p.category == stage {
			return p, true
		}
	}
	return probe{}, false
}

func (r *Runner) registerStages() {
	r.registry.Register(Stage{Name: StageInitial, Run: r.runInitial})
	r.registry.Register(Stage{Name: StageDirectories, Run: r.runDirectories})
	r.registry.Register(Stage{Name: StageFiles, Requires: []string{StageDirectories}, Run: r.runFiles})
	r.registry.Register(Stage{Name: StageCrawler, Requires: []string{StageFiles}, Run: r.runCrawler})
	r.registry.Register(Stage{Name: StageParser, Requires: []string{StageFiles, StageCrawler}, Run: r.runParser})

	for _, p := range probes {
		r.registry.Register(Stage{Name: p.category, Requires: []string{StageParser}, Run: r.probeStage(p)})
	}
	r.registry.Register(Stage{Name: store.CategoryCSRF, Requires: []string{StageParser}, Run: r.runCSRF})
	r.registry.Register(Stage{Name: store.CategoryInfoDisclosure, Requires: []string{StageDirectories}, Run: r.runDisclosure})
}

func (r *Runner) runInitial(ctx context.Context, sc *ScanContext, out *Output) error {
	res, err := discovery.Initial(ctx, r.client, sc.Target)
	if err != nil {
		return err
	}
	out.RecordItems(ctx, store.OutputDirectories, res.Directories)
	out.RecordItems(ctx, store.OutputFiles, res.Files)
	return nil
}

func (r *Runner) runDirectories(ctx context.Context, sc *ScanContext, out *Output) error {
	words, err := r.payloads.Words(ctx, payload.ListDirectory)
	if err != nil {
		return err
	}
	hits := discovery.NewEnumerator(r.client, sc.Target).Directories(ctx, words)
	out.RecordItems(ctx, store.OutputDirectories, discovery.Paths(hits))
	out.Credit(ctx, payload.ListDirectory, hitWords(hits))
	return nil
}

func (r *Runner) runFiles(ctx context.Context, sc *ScanContext, out *Output) error {
	words, err := r.payloads.Words(ctx, payload.ListFile)
	if err != nil {
		return err
	}
	dirs := out.Prior(ctx, store.OutputDirectories)
	hits := discovery.NewEnumerator(r.client, sc.Target).Files(ctx, dirs, words, sc.Target.FileExtensions)
	out.RecordItems(ctx, store.OutputFiles, discovery.Paths(hits))
	out.Credit(ctx, payload.ListFile, hitWords(hits))
	return nil
}

func (r *Runner) runCrawler(ctx context.Context, sc *ScanContext, out *Output) error {
	seeds := out.Prior(ctx, store.OutputFiles)

	if sc.Manual {
		manual, err := r.interceptPages(ctx, sc, out)
		if err != nil {
			return err
		}
		out.RecordItems(ctx, store.OutputPages, manual)
		seeds = append(seeds, manual...)
	}

	if err := r.opts.Visited.Reset(ctx); err != nil {
		return err
	}
	pages, err := discovery.NewCrawler(r.client, sc.Target, discovery.CrawlerOptions{
		Visited:  r.opts.Visited,
		MaxPages: r.opts.MaxPages,
	}).Crawl(ctx, seeds)
	if err != nil {
		return err
	}
	out.RecordItems(ctx, store.OutputPages, pages)
	return nil
}

// interceptPages runs the proxy until the operator interrupts and returns
// the accepted pages it saw.
func (r *Runner) interceptPages(ctx context.Context, sc *ScanContext, out *Output) ([]string, error) {
	var mu sync.Mutex
	var pages []string
	sink := func(page string) {
		mu.Lock()
		defer mu.Unlock()
		if !slices.Contains(pages, page) {
			pages = append(pages, page)
		}
	}

	pctx, stop := r.opts.Interrupt(ctx)
	defer stop()

	out.log.Info().Str("addr", sc.ProxyAddr).Msg("browse the target through the proxy; interrupt to continue")
	if err := proxy.New(r.client, sc.Target, sink).Run(pctx, sc.ProxyAddr); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	slices.Sort(pages)
	return pages, nil
}

func (r *Runner) runParser(ctx context.Context, sc *ScanContext, out *Output) error {
	pages := out.Prior(ctx, store.OutputPages)
	for _, f := range out.Prior(ctx, store.OutputFiles) {
		if !slices.Contains(pages, f) {
			pages = append(pages, f)
		}
	}
	points := discovery.ParsePages(ctx, r.client, sc.Target, pages)
	out.RecordPoints(ctx, points)
	return nil
}

func (r *Runner) probeStage(p probe) StageFunc {
	return func(ctx context.Context, sc *ScanContext, out *Output) error {
		points := out.InjectionPoints(ctx)
		if len(points) == 0 {
			out.log.Info().Msg("no injection points")
			return nil
		}

		ranked, err := r.payloads.Ranked(ctx, p.list)
		if err != nil {
			return err
		}
		var sigs []string
		if p.signatures != "" {
			if sigs, err = r.payloads.Signatures(ctx, p.signatures); err != nil {
				return err
			}
		}

		findings := r.engine.Probe(ctx, sc.Target, engine.ProbeStrategy{
			Category:       p.category,
			Mode:           p.mode,
			Signatures:     sigs,
			ReflectPayload: p.reflect,
			Payloads:       payload.Values(ranked),
			Threshold:      sc.Target.BlindThreshold,
		}, points)
		out.RecordFindings(ctx, p.category, p.list, findings)
		return ctx.Err()
	}
}

func (r *Runner) runCSRF(ctx context.Context, _ *ScanContext, out *Output) error {
	tokens, err := r.payloads.Words(ctx, payload.ListCSRF)
	if err != nil {
		return err
	}
	tokens = append(tokens, r.opts.CSRFTokens...)
	findings := engine.CheckCSRF(out.InjectionPoints(ctx), tokens)
	out.RecordFindings(ctx, store.CategoryCSRF, "", findings)
	return nil
}

func (r *Runner) runDisclosure(ctx context.Context, sc *ScanContext, out *Output) error {
	words, err := r.payloads.Words(ctx, payload.ListInfoDisclosure)
	if err != nil {
		return err
	}
	dirs := out.Prior(ctx, store.OutputDirectories)
	findings := r.engine.Disclosure(ctx, sc.Target, dirs, words)
	out.RecordFindings(ctx, store.CategoryInfoDisclosure, payload.ListInfoDisclosure, findings)
	return nil
}

func hitWords(hits []discovery.Hit) []string {
	words := make([]string, 0, len(hits))
	for _, h := range hits {
		words = append(words, h.Word)
	}
	return words
}
