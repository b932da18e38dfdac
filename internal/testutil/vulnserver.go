// Package testutil provides a deliberately vulnerable web application for
// exercising discovery and probing end to end.
//
// SECURITY NOTE: This package is for testing only. Several handlers
// intentionally reflect or store raw user input; everything else is
// HTML-escaped via html/template.
package testutil

import (
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultSleepCap is the longest simulated database delay.
const DefaultSleepCap = time.Second

// passwdContent is served for any path-traversal request naming etc/passwd.
const passwdContent = "root:x:0:0:root:/root:/bin/bash\ndaemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin\n"

// sleepPattern extracts the seconds from SLEEP(n), PG_SLEEP(n) or
// WAITFOR DELAY '0:0:n'.
var sleepPattern = regexp.MustCompile(`(?i)(?:PG_)?SLEEP\((\d+)\)|WAITFOR\s+DELAY\s+'\d+:\d+:(\d+)'`)

// shellSeparators start a second command in a naive shell invocation.
var shellSeparators = []string{";", "&&", "||", "|", "`", "$("}

var tmplMap = template.Must(template.New("").Parse(`
{{define "index"}}<html><body><h1>Acme Shop</h1>
<a href="products.php?id=1">Products</a>
<a href="search.php?q=shoes">Search</a>
<a href="view.php?file=intro.txt">About</a>
<a href="ping.php?host=127.0.0.1">Status</a>
<a href="guestbook.php">Guestbook</a>
<a href="transfer.php">Transfer</a>
<a href="profile.php">Profile</a>
<a href="admin/">Admin</a>
<a href="https://partner.example/shop">Partner</a>
<a href="#top">Top</a>
</body></html>{{end}}
{{define "product"}}<html><body><h1>Product</h1><p>Widget (ID: {{.}})</p></body></html>{{end}}
{{define "sql-error"}}<html><body><h1>Error</h1><p>You have an error in your SQL syntax; check the manual that corresponds to your MySQL server version for the right syntax to use near '{{.}}'</p></body></html>{{end}}
{{define "view"}}<html><body><h1>Document</h1><p>{{.}} not found</p></body></html>{{end}}
{{define "ping"}}<html><body><h1>Ping</h1><pre>PING {{.}}: 56 data bytes</pre></body></html>{{end}}
{{define "transfer"}}<html><body><h1>Transfer</h1>
<form action="transfer.php" method="post"><input name="to"><input name="amount"><input type="submit" value="Send"></form>
</body></html>{{end}}
{{define "profile"}}<html><body><h1>Profile</h1>
<form method="POST"><input name="display_name"><input type="hidden" name="csrf_token" value="{{.}}"><input type="submit"></form>
</body></html>{{end}}
{{define "admin"}}<html><body><h1>Admin</h1><a href="login.php">Log in</a><a href="../index.php">Home</a></body></html>{{end}}
{{define "login"}}<html><body><form action="login.php" method="post"><input name="user"><input type="password" name="pass"></form></body></html>{{end}}
{{define "plain"}}<html><body><p>{{.}}</p></body></html>{{end}}
`))

// VulnServerOptions tunes the vulnerable application.
type VulnServerOptions struct {
	// SleepCap bounds the simulated SLEEP delay. Zero means DefaultSleepCap.
	SleepCap time.Duration
}

// VulnApp is the vulnerable application. Paths are matched exactly, so
// unknown paths are 404 and directories never redirect.
type VulnApp struct {
	opts   VulnServerOptions
	routes map[string]http.HandlerFunc

	mu        sync.Mutex
	guestbook []string
}

// NewVulnServer starts the vulnerable application with default options.
// The returned *httptest.Server should be closed after use.
func NewVulnServer() *httptest.Server {
	return httptest.NewServer(NewVulnApp(VulnServerOptions{}))
}

// NewVulnServerWith starts the vulnerable application with opts.
func NewVulnServerWith(opts VulnServerOptions) *httptest.Server {
	return httptest.NewServer(NewVulnApp(opts))
}

// NewVulnServerFromApp starts a server for an existing app so tests can
// inspect its state.
func NewVulnServerFromApp(a *VulnApp) *httptest.Server {
	return httptest.NewServer(a)
}

// NewCatchAll returns a handler that answers 200 to every path, the way a
// misconfigured catch-all route does.
func NewCatchAll() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		execTemplate(w, "plain", "welcome")
	})
}

// NewVulnApp builds the handler without starting a server.
func NewVulnApp(opts VulnServerOptions) *VulnApp {
	if opts.SleepCap <= 0 {
		opts.SleepCap = DefaultSleepCap
	}
	a := &VulnApp{opts: opts}
	a.routes = map[string]http.HandlerFunc{
		"/":                a.handleIndex,
		"/index.php":       a.handleIndex,
		"/robots.txt":      handleRobots,
		"/products.php":    a.handleProducts,
		"/search.php":      handleSearch,
		"/view.php":        handleView,
		"/ping.php":        handlePing,
		"/guestbook.php":   a.handleGuestbook,
		"/transfer.php":    handleTransfer,
		"/profile.php":     handleProfile,
		"/admin/":          staticTemplate("admin", nil),
		"/admin/login.php": staticTemplate("login", nil),
		"/backup/":         staticTemplate("plain", "backups"),
		"/secret.php":      staticTemplate("plain", "top secret"),
		"/phpinfo.php":     staticTemplate("plain", "phpinfo() PHP Version 8.1.2"),
	}
	return a
}

func (a *VulnApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h, ok := a.routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

// execTemplate renders a named template with optional data to the ResponseWriter.
func execTemplate(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	tmplMap.ExecuteTemplate(w, name, data) //nolint:errcheck
}

func staticTemplate(name string, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		execTemplate(w, name, data)
	}
}

// writeRaw writes body without escaping. Only the intentionally
// vulnerable handlers use it.
func writeRaw(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, body)
}

func (a *VulnApp) handleIndex(w http.ResponseWriter, _ *http.Request) {
	execTemplate(w, "index", nil)
}

func handleRobots(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "User-agent: *\nDisallow: /backup/\nDisallow: /secret.php\n")
}

// handleProducts simulates a MySQL-backed lookup.
//
// GET /products.php?id=X
//   - X contains SLEEP(n), PG_SLEEP(n) or WAITFOR DELAY: sleeps min(n, cap)
//   - X contains "'" or '"': returns a MySQL syntax error
//   - otherwise: returns the product page
func (a *VulnApp) handleProducts(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	if n, ok := sleepSeconds(id); ok {
		d := time.Duration(n) * time.Second
		if d > a.opts.SleepCap {
			d = a.opts.SleepCap
		}
		time.Sleep(d)
		execTemplate(w, "product", id)
		return
	}
	if strings.ContainsAny(id, `'"`) {
		execTemplate(w, "sql-error", id)
		return
	}
	execTemplate(w, "product", id)
}

// handleSearch reflects q without escaping.
//
// GET /search.php?q=X
func handleSearch(w http.ResponseWriter, r *http.Request) {
	writeRaw(w, "<html><body><h1>Search</h1><p>Results for "+r.URL.Query().Get("q")+"</p></body></html>")
}

// handleView includes a file by name.
//
// GET /view.php?file=X
//   - X names etc/passwd: returns its content
//   - X names win.ini: returns its content
//   - otherwise: returns a not-found page
func handleView(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	switch {
	case strings.Contains(file, "etc/passwd"):
		writeRaw(w, passwdContent)
	case strings.Contains(strings.ToLower(file), "win.ini"):
		writeRaw(w, "; for 16-bit app support\n[fonts]\n[extensions]\n")
	default:
		execTemplate(w, "view", file)
	}
}

// handlePing passes host to a simulated shell.
//
// GET /ping.php?host=X
//   - X chains "echo <word>" after a shell separator: the word is printed
//   - otherwise: returns the ping banner
func handlePing(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	for _, sep := range shellSeparators {
		i := strings.Index(host, sep)
		if i < 0 {
			continue
		}
		rest := strings.TrimLeft(host[i+len(sep):], " ")
		if word, ok := strings.CutPrefix(rest, "echo "); ok {
			word = strings.TrimRight(word, "`)")
			execTemplate(w, "ping", host[:i])
			fmt.Fprint(w, word)
			return
		}
	}
	execTemplate(w, "ping", host)
}

// handleGuestbook stores comments and renders them without escaping.
//
// GET  /guestbook.php            entries plus the form
// POST /guestbook.php name, comment → 303 to the GET page
func (a *VulnApp) handleGuestbook(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		a.mu.Lock()
		a.guestbook = append(a.guestbook, r.FormValue("name")+": "+r.FormValue("comment"))
		a.mu.Unlock()
		http.Redirect(w, r, "guestbook.php", http.StatusSeeOther)
		return
	}

	a.mu.Lock()
	entries := strings.Join(a.guestbook, "</li><li>")
	a.mu.Unlock()
	writeRaw(w, `<html><body><h1>Guestbook</h1><ul><li>`+entries+`</li></ul>
<form action="guestbook.php" method="post"><input name="name"><textarea name="comment"></textarea></form>
</body></html>`)
}

// handleTransfer has a POST form without an anti-CSRF token.
func handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		execTemplate(w, "plain", "transfer queued")
		return
	}
	execTemplate(w, "transfer", nil)
}

// handleProfile has a POST form protected by csrf_token.
func handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		execTemplate(w, "plain", "profile saved")
		return
	}
	execTemplate(w, "profile", "5f2b9c")
}

// GuestbookEntries returns a copy of the stored entries.
func (a *VulnApp) GuestbookEntries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.guestbook...)
}

// sleepSeconds returns the delay a payload asks the database for.
func sleepSeconds(payload string) (int, bool) {
	m := sleepPattern.FindStringSubmatch(payload)
	if m == nil {
		return 0, false
	}
	s := m[1]
	if s == "" {
		s = m[2]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
