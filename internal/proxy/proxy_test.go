package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
)

type pageRecorder struct {
	mu    sync.Mutex
	pages []string
}

func (r *pageRecorder) sink(page string) {
	r.mu.Lock()
	r.pages = append(r.pages, page)
	r.mu.Unlock()
}

func (r *pageRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pages...)
}

func upstream() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "a", Value: "1"})
		http.SetCookie(w, &http.Cookie{Name: "b", Value: "2"})
		fmt.Fprint(w, "home")
	})
	mux.HandleFunc("/login.php", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "method=%s body=%s cookie=%s", r.Method, body, r.Header.Get("Cookie"))
	})
	mux.HandleFunc("/moved.php", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login.php", http.StatusFound)
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "PNG")
	})
	return httptest.NewServer(mux)
}

func setup(t *testing.T, targetURL string) (*httptest.Server, *pageRecorder, transport.Client) {
	t.Helper()
	tg, err := target.New(target.Options{
		Host:            targetURL,
		SuccessCodes:    []int{200, 301, 302},
		CrawlExtensions: []string{"", ".php"},
	})
	require.NoError(t, err)
	client, err := transport.NewClient(transport.ClientOptions{})
	require.NoError(t, err)

	rec := &pageRecorder{}
	srv := httptest.NewServer(New(client, tg, rec.sink))
	t.Cleanup(srv.Close)
	return srv, rec, client
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func TestProxy_RelaysResponseAndCookies(t *testing.T) {
	up := upstream()
	defer up.Close()
	px, rec, _ := setup(t, up.URL)

	resp, err := noRedirectClient().Get(px.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "home", string(body))
	assert.Len(t, resp.Header.Values("Set-Cookie"), 2, "each Set-Cookie is relayed on its own")
	assert.Equal(t, []string{"/"}, rec.seen())
}

func TestProxy_ForwardsPostAndMergesCookies(t *testing.T) {
	up := upstream()
	defer up.Close()
	px, rec, client := setup(t, up.URL)

	req, _ := http.NewRequest(http.MethodPost, px.URL+"/login.php", strings.NewReader("user=admin&pass=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", "sid=abc")
	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, "method=POST body=user=admin&pass=x cookie=sid=abc", string(body))
	assert.Equal(t, []string{"login.php"}, rec.seen())

	u, _ := url.Parse(up.URL)
	cookies := client.Jar().Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
}

func TestProxy_MergedCookiesApplySiteWide(t *testing.T) {
	up := upstream()
	defer up.Close()
	px, _, client := setup(t, up.URL)

	req, _ := http.NewRequest(http.MethodGet, px.URL+"/app/admin/panel.php", nil)
	req.Header.Set("Cookie", "PHPSESSID=operator")
	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	for _, path := range []string{"/", "/search.php", "/app/admin/other.php"} {
		u, _ := url.Parse(up.URL + path)
		cookies := client.Jar().Cookies(u)
		require.Len(t, cookies, 1, path)
		assert.Equal(t, "PHPSESSID", cookies[0].Name, path)
		assert.Equal(t, "operator", cookies[0].Value, path)
	}
}

func TestProxy_DoesNotFollowRedirects(t *testing.T) {
	up := upstream()
	defer up.Close()
	px, _, _ := setup(t, up.URL)

	resp, err := noRedirectClient().Get(px.URL + "/moved.php")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login.php", resp.Header.Get("Location"))
}

func TestProxy_AcceptanceRule(t *testing.T) {
	up := upstream()
	defer up.Close()
	px, rec, _ := setup(t, up.URL)

	for _, p := range []string{"/logo.png", "/missing.php", "/login.php?x=1"} {
		resp, err := noRedirectClient().Get(px.URL + p)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, []string{"login.php"}, rec.seen())
}

func TestProxy_RejectsOtherMethods(t *testing.T) {
	up := upstream()
	defer up.Close()
	px, _, _ := setup(t, up.URL)

	req, _ := http.NewRequest(http.MethodPut, px.URL+"/login.php", nil)
	resp, err := noRedirectClient().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestProxy_BadGatewayWhenTargetDown(t *testing.T) {
	up := upstream()
	addr := up.URL
	up.Close()
	px, rec, _ := setup(t, addr)

	resp, err := noRedirectClient().Get(px.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Empty(t, rec.seen())
}

func TestProxy_ServeStopsOnCancel(t *testing.T) {
	tg, err := target.New(target.Options{Host: "http://127.0.0.1:1"})
	require.NoError(t, err)
	client, err := transport.NewClient(transport.ClientOptions{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- New(client, tg, nil).Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestForwardHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Cookie", "a=1")
	h.Set("Connection", "keep-alive")
	h.Set("Accept-Encoding", "gzip")
	h.Add("Accept", "text/html")
	h.Add("Accept", "*/*")
	h.Set("User-Agent", "browser")

	got := forwardHeaders(h)
	assert.Equal(t, map[string]string{"Accept": "text/html, */*", "User-Agent": "browser"}, got)
}
