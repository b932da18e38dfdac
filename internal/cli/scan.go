package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/0x6d61/wavs/internal/discovery"
	"github.com/0x6d61/wavs/internal/metrics"
	"github.com/0x6d61/wavs/internal/payload"
	"github.com/0x6d61/wavs/internal/pipeline"
	"github.com/0x6d61/wavs/internal/report"
	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
)

type scanFlags struct {
	port           int
	cookies        string
	scanType       string
	restrict       []string
	manual         bool
	baseDir        string
	threads        int
	rps            float64
	addCodes       []int
	removeCodes    []int
	generate       bool
	tampers        []string
	metricsAddr    string
	reportFormat   string
	upstreamProxy  string
	proxyPort      int
	blindThreshold time.Duration
}

func newScanCmd(a *app) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan <host>",
		Short: "Discover and probe a target web application",
		Long: `Scan runs the stages of a scan type against <host>, which must include
the scheme (http:// or https://). Every run opens a new scan session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.port, "port", "p", 0, "Target port (default 80/443 by scheme)")
	fl.StringVarP(&f.cookies, "cookies", "c", "", `Session cookies ("a=1,b=2")`)
	fl.StringVarP(&f.scanType, "type", "t", "default", "Scan type")
	fl.StringSliceVar(&f.restrict, "restrict", nil, "Paths never to request (comma-separated)")
	fl.BoolVar(&f.manual, "manual", false, "Browse through the intercepting proxy before crawling")
	fl.StringVar(&f.baseDir, "base-dir", "", "Path prefix of the application on the target")
	fl.IntVar(&f.threads, "threads", 0, "Worker count (default from config)")
	fl.Float64Var(&f.rps, "rps", -1, "Request rate limit, 0 for none (default from config)")
	fl.IntSliceVar(&f.addCodes, "success-codes", nil, "Extra status codes that mean found")
	fl.IntSliceVar(&f.removeCodes, "remove-success-codes", nil, "Status codes that no longer mean found")
	fl.BoolVar(&f.generate, "generate", false, "Stage mutated payload candidates before probing")
	fl.StringSliceVar(&f.tampers, "tamper", nil, "Mutation chain for --generate (default from config)")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fl.StringVar(&f.reportFormat, "report", "", "Print a report when done (text, json)")
	fl.StringVar(&f.upstreamProxy, "proxy", "", "Upstream proxy URL (http://host:port or socks5://host:port)")
	fl.IntVar(&f.proxyPort, "proxy-port", 0, "Listen port of the manual-mode proxy (default from config)")
	fl.DurationVar(&f.blindThreshold, "blind-threshold", 0, "Delay that flags a timing probe (default from config)")
	return cmd
}

func (a *app) runScan(cmd *cobra.Command, f *scanFlags, host string) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "[!] Legal disclaimer: Usage of wavs for attacking targets without prior mutual consent is illegal.")
	cfg := a.cfg

	if f.threads > 0 {
		cfg.Scan.Threads = f.threads
	}
	if f.rps >= 0 {
		cfg.HTTP.RPS = f.rps
	}
	if f.upstreamProxy != "" {
		cfg.HTTP.Proxy = f.upstreamProxy
	}
	if f.proxyPort > 0 {
		cfg.Proxy.Port = f.proxyPort
	}
	if f.blindThreshold > 0 {
		cfg.Scan.BlindThreshold = f.blindThreshold
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if len(f.tampers) > 0 {
		cfg.Payload.Tampers = f.tampers
	}

	var reporter report.Reporter
	if f.reportFormat != "" {
		r, err := report.New(f.reportFormat)
		if err != nil {
			return err
		}
		reporter = r
	}

	t, err := target.New(target.Options{
		Host:            host,
		Port:            f.port,
		BaseDir:         f.baseDir,
		Cookies:         parseCookies(f.cookies),
		SuccessCodes:    cfg.Scan.AdjustSuccessCodes(f.addCodes, f.removeCodes),
		FileExtensions:  cfg.Scan.FileExtensions,
		CrawlExtensions: cfg.Crawl.Extensions,
		Restricted:      f.restrict,
		Threads:         cfg.Scan.Threads,
		BlindThreshold:  cfg.Scan.BlindThreshold,
	})
	if err != nil {
		return err
	}

	client, err := transport.NewClient(transport.ClientOptions{
		Timeout:            cfg.HTTP.Timeout,
		ProxyURL:           cfg.HTTP.Proxy,
		FollowRedirects:    true,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		RandomUserAgent:    cfg.HTTP.RandomUserAgent,
		MaxRPS:             cfg.HTTP.RPS,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	// The manual proxy phase owns Ctrl+C; the runner installs its own
	// handler for it.
	ctx := context.Background()
	if !f.manual {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(ctx, os.Interrupt)
		defer cancel()
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	pm, err := payload.Open(cfg.Payload.Path)
	if err != nil {
		return err
	}
	defer pm.Close()

	opts := pipeline.Options{
		ScanTypes:  cfg.ScanTypes,
		SeedLimit:  cfg.Payload.SeedLimit,
		CSRFTokens: cfg.Scan.CSRFTokens,
		MaxPages:   cfg.Crawl.MaxPages,
	}

	if cfg.Crawl.RedisURL != "" {
		rdb, err := discovery.DialRedis(ctx, cfg.Crawl.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts.Visited = discovery.NewRedisVisited(rdb, cfg.Crawl.RedisKey)
	}

	if f.generate {
		gen, err := payload.NewMutationGenerator(cfg.Payload.Tampers...)
		if err != nil {
			return err
		}
		opts.Generator = gen
	}

	if cfg.Metrics.Addr != "" {
		opts.Metrics = metrics.New()
		mctx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := opts.Metrics.Serve(mctx, cfg.Metrics.Addr); err != nil {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	runner := pipeline.NewRunner(st, pm, client, opts)
	scan, err := runner.Run(ctx, pipeline.Request{
		ScanType:  f.scanType,
		Target:    t,
		Manual:    f.manual,
		ProxyAddr: cfg.Proxy.Addr(),
	})
	if err != nil {
		if scan != nil {
			return fmt.Errorf("scan #%d: %w", scan.ID, err)
		}
		return err
	}

	stats := client.Stats()
	log.Info().Int64("scan_id", scan.ID).Int64("requests", stats.TotalRequests).
		Int64("errors", stats.TotalErrors).Dur("avg", stats.AvgDuration).Msg("scan complete")

	if reporter == nil {
		return nil
	}
	snap, err := report.Load(ctx, st, scan.ID)
	if err != nil {
		return err
	}
	return reporter.Generate(ctx, snap, cmd.OutOrStdout())
}

// parseCookies parses "a=1,b=2" (or "a=1; b=2") into name/value pairs.
func parseCookies(raw string) map[string]string {
	cookies := make(map[string]string)
	for _, pair := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }) {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && strings.TrimSpace(name) != "" {
			cookies[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	return cookies
}
