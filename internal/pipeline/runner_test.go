package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/wavs/internal/metrics"
	"github.com/0x6d61/wavs/internal/payload"
	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
)

type fixture struct {
	store    *store.SQLiteStore
	payloads *payload.Manager
	client   *transport.DefaultClient
	target   *target.Target
}

func newFixture(t *testing.T, h http.Handler) *fixture {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pm, err := payload.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { pm.Close() })

	client, err := transport.NewClient(transport.ClientOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)

	tg, err := target.New(target.Options{
		Host:            srv.URL,
		Cookies:         map[string]string{"session": "abc"},
		SuccessCodes:    []int{200},
		FileExtensions:  []string{".php"},
		CrawlExtensions: []string{"", ".php"},
		Threads:         2,
	})
	require.NoError(t, err)
	return &fixture{store: st, payloads: pm, client: client, target: tg}
}

// site serves an index linking to a search form that reflects q.
func site() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="search.php?q=x">search</a>`)
	})
	mux.HandleFunc("/search.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<p>"+r.URL.Query().Get("q")+"</p>")
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, c.Value)
	})
	return mux
}

func TestRunner_RunRecordsStageOutput(t *testing.T) {
	f := newFixture(t, site())
	m := metrics.New()
	r := NewRunner(f.store, f.payloads, f.client, Options{
		ScanTypes: map[string][]string{"xss": {StageCrawler, StageParser, store.CategoryXSSReflected}},
		Metrics:   m,
	})

	scan, err := r.Run(context.Background(), Request{ScanType: "xss", Target: f.target})
	require.NoError(t, err)

	ctx := context.Background()
	pages, err := f.store.ReadPriorOutput(ctx, scan.ID, store.OutputPages)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "search.php"}, pages)

	points, err := f.store.InjectionPoints(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "search.php", points[0].Action)

	findings, err := f.store.Findings(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, store.CategoryXSSReflected, findings[0].Category)
	assert.Equal(t, "q", findings[0].Parameter)

	ranked, err := f.payloads.Ranked(ctx, payload.ListXSS)
	require.NoError(t, err)
	assert.Equal(t, findings[0].Payload, ranked[0].Value)
	assert.Equal(t, 1, ranked[0].Count)
}

func TestRunner_RepeatedStageCreditsOnce(t *testing.T) {
	f := newFixture(t, site())
	r := NewRunner(f.store, f.payloads, f.client, Options{
		ScanTypes: map[string][]string{"xss": {
			StageCrawler, StageParser, store.CategoryXSSReflected, store.CategoryXSSReflected,
		}},
	})

	scan, err := r.Run(context.Background(), Request{ScanType: "xss", Target: f.target})
	require.NoError(t, err)

	ctx := context.Background()
	findings, err := f.store.Findings(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	ranked, err := f.payloads.Ranked(ctx, payload.ListXSS)
	require.NoError(t, err)
	assert.Equal(t, findings[0].Payload, ranked[0].Value)
	assert.Equal(t, 1, ranked[0].Count, "a finding already stored is not credited again")
}

func TestRunner_SeedsOperatorCookies(t *testing.T) {
	f := newFixture(t, site())
	var seen string
	r := NewRunner(f.store, f.payloads, f.client, Options{
		ScanTypes: map[string][]string{"whoami": {"whoami"}},
	})
	r.Registry().Register(Stage{Name: "whoami", Run: func(ctx context.Context, sc *ScanContext, _ *Output) error {
		if resp := transport.Get(ctx, f.client, sc.Target.URL("whoami")); resp != nil {
			seen = resp.BodyString()
		}
		return nil
	}})

	_, err := r.Run(context.Background(), Request{ScanType: "whoami", Target: f.target})
	require.NoError(t, err)
	assert.Equal(t, "abc", seen)
}

func TestRunner_StageErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, site())
	var ran []string
	r := NewRunner(f.store, f.payloads, f.client, Options{
		ScanTypes: map[string][]string{"t": {"broken", "after"}},
	})
	r.Registry().Register(Stage{Name: "broken", Run: func(context.Context, *ScanContext, *Output) error {
		ran = append(ran, "broken")
		return errors.New("boom")
	}})
	r.Registry().Register(Stage{Name: "after", Run: func(context.Context, *ScanContext, *Output) error {
		ran = append(ran, "after")
		return nil
	}})

	_, err := r.Run(context.Background(), Request{ScanType: "t", Target: f.target})
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "after"}, ran)
}

func TestRunner_CancellationStopsTheRun(t *testing.T) {
	f := newFixture(t, site())
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	r := NewRunner(f.store, f.payloads, f.client, Options{
		ScanTypes: map[string][]string{"t": {"cancel", "after"}},
	})
	r.Registry().Register(Stage{Name: "cancel", Run: func(context.Context, *ScanContext, *Output) error {
		cancel()
		return nil
	}})
	r.Registry().Register(Stage{Name: "after", Run: func(context.Context, *ScanContext, *Output) error {
		ran = true
		return nil
	}})

	scan, err := r.Run(ctx, Request{ScanType: "t", Target: f.target})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, scan)
	assert.False(t, ran)
}

func TestRunner_PlanErrorSendsNothing(t *testing.T) {
	f := newFixture(t, site())
	r := NewRunner(f.store, f.payloads, f.client, Options{ScanTypes: map[string][]string{}})

	_, err := r.Run(context.Background(), Request{ScanType: "default", Target: f.target})
	assert.ErrorIs(t, err, ErrUnknownScanType)
	assert.Zero(t, f.client.Stats().TotalRequests)

	scans, err := f.store.Scans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, scans)
}

func TestRunner_ManualModeContinuesAfterInterrupt(t *testing.T) {
	f := newFixture(t, site())
	interrupted := false
	r := NewRunner(f.store, f.payloads, f.client, Options{
		ScanTypes: map[string][]string{"crawl": {StageCrawler}},
		Interrupt: func(ctx context.Context) (context.Context, context.CancelFunc) {
			interrupted = true
			ctx, cancel := context.WithCancel(ctx)
			cancel()
			return ctx, cancel
		},
	})

	scan, err := r.Run(context.Background(), Request{
		ScanType:  "crawl",
		Target:    f.target,
		Manual:    true,
		ProxyAddr: "127.0.0.1:0",
	})
	require.NoError(t, err)
	assert.True(t, interrupted)

	pages, err := f.store.ReadPriorOutput(context.Background(), scan.ID, store.OutputPages)
	require.NoError(t, err)
	assert.Contains(t, pages, "search.php")
}

func TestRunner_GeneratorStagesAndPurges(t *testing.T) {
	f := newFixture(t, site())
	var lists []string
	gen := payload.GeneratorFunc(func(_ context.Context, list string, seeds []string) ([]string, error) {
		lists = append(lists, list)
		return []string{"<b>generated-" + list + "</b>"}, nil
	})
	r := NewRunner(f.store, f.payloads, f.client, Options{
		ScanTypes: map[string][]string{"xss": {StageCrawler, StageParser, store.CategoryXSSReflected, store.CategoryXSSStored}},
		Generator: gen,
		SeedLimit: 2,
	})

	scan, err := r.Run(context.Background(), Request{ScanType: "xss", Target: f.target})
	require.NoError(t, err)
	assert.Equal(t, []string{payload.ListXSS}, lists, "each list is generated once")

	findings, err := f.store.Findings(context.Background(), scan.ID)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.Equal(t, "<b>generated-xss</b>", findings[0].Payload, "staged candidates are tried first")

	ranked, err := f.payloads.Ranked(context.Background(), payload.ListXSS)
	require.NoError(t, err)
	for _, p := range ranked {
		assert.False(t, p.Staged)
	}
	assert.Equal(t, "<b>generated-xss</b>", ranked[0].Value, "a successful candidate is kept")
}
