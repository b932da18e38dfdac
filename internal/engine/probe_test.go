package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
)

const sqlError = "You have an error in your SQL syntax"

func newTestEngine(t *testing.T, srvURL string) (*Engine, *target.Target) {
	t.Helper()
	client, err := transport.NewClient(transport.ClientOptions{})
	require.NoError(t, err)
	tg, err := target.New(target.Options{
		Host:           srvURL,
		SuccessCodes:   []int{200},
		FileExtensions: []string{".php"},
		Threads:        4,
	})
	require.NoError(t, err)
	return New(client, WithWorkers(4)), tg
}

func TestProbe_ContentStopsAtFirstSuccess(t *testing.T) {
	var requests atomic.Int32
	var placeholderSeen atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("name") == Placeholder {
			placeholderSeen.Store(true)
		}
		if strings.Contains(r.URL.Query().Get("id"), "'") {
			fmt.Fprint(w, sqlError)
			return
		}
		fmt.Fprint(w, "item")
	}))
	defer srv.Close()

	e, tg := newTestEngine(t, srv.URL)
	point := store.InjectionPoint{Method: "GET", Action: "item.php", Parameters: []string{"id"}}
	got := e.Probe(context.Background(), tg, ProbeStrategy{
		Category:   store.CategorySQLInjection,
		Signatures: []string{sqlError},
		Payloads:   []string{"1", "'", "\""},
	}, []store.InjectionPoint{point})

	require.Len(t, got, 1)
	assert.Equal(t, "'", got[0].Payload)
	assert.Equal(t, "id", got[0].Parameter)
	assert.Equal(t, "item.php", got[0].Page)
	assert.EqualValues(t, 2, requests.Load(), "payloads after the first success are not sent")

	requests.Store(0)
	point.Parameters = []string{"id", "name"}
	got = e.Probe(context.Background(), tg, ProbeStrategy{
		Category:   store.CategorySQLInjection,
		Signatures: []string{sqlError},
		Payloads:   []string{"'"},
	}, []store.InjectionPoint{point})
	require.Len(t, got, 1)
	assert.Equal(t, "id", got[0].Parameter)
	assert.True(t, placeholderSeen.Load(), "parameters not under test carry the placeholder")
}

func TestProbe_ReflectedPOST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			fmt.Fprint(w, "form")
			return
		}
		fmt.Fprintf(w, "<p>Hello %s</p>", r.FormValue("name"))
	}))
	defer srv.Close()

	e, tg := newTestEngine(t, srv.URL)
	got := e.Probe(context.Background(), tg, ProbeStrategy{
		Category:       store.CategoryXSSReflected,
		ReflectPayload: true,
		Payloads:       []string{"<script>alert(1)</script>"},
	}, []store.InjectionPoint{{Method: "POST", Action: "hello.php", Parameters: []string{"name"}}})

	require.Len(t, got, 1)
	assert.Equal(t, "POST", got[0].Method)
}

func TestProbe_Timing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("id"), "SLEEP") {
			time.Sleep(400 * time.Millisecond)
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	e, tg := newTestEngine(t, srv.URL)
	strategy := ProbeStrategy{
		Category:  store.CategorySQLInjectionBlind,
		Mode:      ModeTiming,
		Payloads:  []string{"1 AND SLEEP(5)"},
		Threshold: 250 * time.Millisecond,
	}
	points := []store.InjectionPoint{{Method: "GET", Action: "item.php", Parameters: []string{"id", "sort"}}}

	got := e.Probe(context.Background(), tg, strategy, points)
	require.Len(t, got, 1)
	assert.Equal(t, "id", got[0].Parameter)

	strategy.Threshold = 2 * time.Second
	assert.Empty(t, e.Probe(context.Background(), tg, strategy, points))
}

func TestProbe_Stored(t *testing.T) {
	var mu sync.Mutex
	var entries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodPost {
			entries = append(entries, r.FormValue("comment"))
			fmt.Fprint(w, "saved")
			return
		}
		fmt.Fprint(w, strings.Join(entries, "<br>"))
	}))
	defer srv.Close()

	e, tg := newTestEngine(t, srv.URL)
	got := e.Probe(context.Background(), tg, ProbeStrategy{
		Category:       store.CategoryXSSStored,
		Mode:           ModeStored,
		ReflectPayload: true,
		Payloads:       []string{"<svg onload=alert(7)>"},
	}, []store.InjectionPoint{{Method: "POST", Action: "guestbook.php", Parameters: []string{"comment"}}})

	require.Len(t, got, 1)
	assert.Equal(t, "comment", got[0].Parameter)
	assert.Equal(t, "<svg onload=alert(7)>", got[0].Payload, "the finding carries the unmarked payload")
}

func TestProbe_StoredSiblingFieldNotFlagged(t *testing.T) {
	var mu sync.Mutex
	var entries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodPost {
			entries = append(entries, r.FormValue("comment"))
			fmt.Fprint(w, "saved")
			return
		}
		fmt.Fprint(w, strings.Join(entries, "<br>"))
	}))
	defer srv.Close()

	client, err := transport.NewClient(transport.ClientOptions{})
	require.NoError(t, err)
	_, tg := newTestEngine(t, srv.URL)
	e := New(client, WithWorkers(1))

	got := e.Probe(context.Background(), tg, ProbeStrategy{
		Category:       store.CategoryXSSStored,
		Mode:           ModeStored,
		ReflectPayload: true,
		Payloads:       []string{"<svg onload=alert(7)>", "<img src=x onerror=alert(1)>"},
	}, []store.InjectionPoint{{Method: "POST", Action: "guestbook.php", Parameters: []string{"comment", "name"}}})

	require.Len(t, got, 1, "name is never stored even though the page shows earlier payloads")
	assert.Equal(t, "comment", got[0].Parameter)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, entries)
	assert.True(t, strings.HasPrefix(entries[0], "<svg onload=alert(7)>wavs"), "stored write = %q", entries[0])
}

func TestProbe_NoResponseIsNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, tg := newTestEngine(t, url)
	got := e.Probe(context.Background(), tg, ProbeStrategy{
		Category:   store.CategorySQLInjection,
		Signatures: []string{sqlError},
		Payloads:   []string{"'"},
	}, []store.InjectionPoint{{Method: "GET", Action: "x.php", Parameters: []string{"id"}}})
	assert.Empty(t, got)
}

func TestProbe_DedupAcrossMethods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.FormValue("id"), "'") {
			fmt.Fprint(w, sqlError)
		}
	}))
	defer srv.Close()

	e, tg := newTestEngine(t, srv.URL)
	got := e.Probe(context.Background(), tg, ProbeStrategy{
		Category:   store.CategorySQLInjection,
		Signatures: []string{sqlError},
		Payloads:   []string{"'"},
	}, []store.InjectionPoint{
		{Method: "POST", Action: "item.php", Parameters: []string{"id"}},
		{Method: "GET", Action: "item.php", Parameters: []string{"id"}},
	})

	require.Len(t, got, 1, "one finding per (page, parameter)")
	assert.Equal(t, "GET", got[0].Method)
}

func TestEngine_Disclosure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/phpinfo.php", "/admin/backup":
			fmt.Fprint(w, "secret")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e, tg := newTestEngine(t, srv.URL)
	got := e.Disclosure(context.Background(), tg, []string{"admin"}, []string{"phpinfo", "backup"})

	require.Len(t, got, 2)
	assert.Equal(t, "admin/backup", got[0].Page)
	assert.Equal(t, "backup", got[0].Payload)
	assert.Equal(t, "phpinfo.php", got[1].Page)
	assert.Equal(t, store.CategoryInfoDisclosure, got[1].Category)
}
