package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/wavs/internal/transport"
)

func newClient(t *testing.T) transport.Client {
	t.Helper()
	c, err := transport.NewClient(transport.ClientOptions{})
	require.NoError(t, err)
	return c
}

func TestInitial_ParsesRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, "<html>home</html>")
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /backup/\nDisallow: /private/\nAllow: /notes.txt\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg := newTarget(t, srv.URL, "private")
	res, err := Initial(context.Background(), newClient(t), tg)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup"}, res.Directories)
	assert.Equal(t, []string{"notes.txt"}, res.Files)
}

func TestInitial_NoRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, "ok")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res, err := Initial(context.Background(), newClient(t), newTarget(t, srv.URL))
	require.NoError(t, err)
	assert.Empty(t, res.Directories)
	assert.Empty(t, res.Files)
}

func TestInitial_SuccessForEveryPathAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "everything exists")
	}))
	defer srv.Close()

	_, err := Initial(context.Background(), newClient(t), newTarget(t, srv.URL))
	assert.ErrorIs(t, err, ErrTargetMisconfigured)
}

func TestInitial_RedirectForUnknownPathIsNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			fmt.Fprint(w, "home")
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}))
	defer srv.Close()

	tg := newTarget(t, srv.URL)
	tg.SuccessCodes = []int{200}
	_, err := Initial(context.Background(), newClient(t), tg)
	assert.NoError(t, err, "302 to the home page must not count as 200")
}

func TestInitial_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Initial(context.Background(), newClient(t), newTarget(t, url))
	assert.ErrorIs(t, err, ErrTargetUnreachable)
}
