package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// pathServer answers 200 for the listed paths and 404 otherwise, recording
// every requested path.
type pathServer struct {
	mu        sync.Mutex
	requested []string
	exists    map[string]string
}

func (s *pathServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requested = append(s.requested, r.URL.Path)
	s.mu.Unlock()

	body, ok := s.exists[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, body)
}

func (s *pathServer) wasRequested(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requested {
		if r == p {
			return true
		}
	}
	return false
}

func TestEnumerator_Directories(t *testing.T) {
	ps := &pathServer{exists: map[string]string{
		"/":        "home",
		"/admin/":  "admin",
		"/images/": "images",
		"/secret/": "secret",
	}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	e := NewEnumerator(newClient(t), newTarget(t, srv.URL, "secret"))
	hits := e.Directories(context.Background(), []string{"admin", "missing", "images", "secret", ""})

	assert.Equal(t, []Hit{{Path: "admin", Word: "admin"}, {Path: "images", Word: "images"}}, hits)
	assert.False(t, ps.wasRequested("/secret/"), "restricted path must not be requested")
}

func TestEnumerator_Files(t *testing.T) {
	ps := &pathServer{exists: map[string]string{
		"/index.php":        "index",
		"/admin/login.php":  "login",
		"/admin/index.html": "admin index",
	}}
	srv := httptest.NewServer(ps)
	defer srv.Close()

	e := NewEnumerator(newClient(t), newTarget(t, srv.URL))
	hits := e.Files(context.Background(), []string{"admin"}, []string{"index", "login"}, []string{".html", ".php"})

	assert.Equal(t, []string{"admin/index.html", "admin/login.php", "index.php"}, Paths(hits))
	assert.Equal(t, "login", hits[1].Word)
	assert.True(t, ps.wasRequested("/login.html"), "base directory is always enumerated")
}

func TestEnumerator_FailedRequestIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := NewEnumerator(newClient(t), newTarget(t, url))
	assert.Empty(t, e.Directories(context.Background(), []string{"admin"}))
}
