package discovery

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/wavs/internal/store"
)

func TestExtractInjectionPoints(t *testing.T) {
	tg := newTarget(t, "http://127.0.0.1:8080")
	body := []byte(`
		<a href="view.php?id=1&amp;lang=en">view</a>
		<a href="view.php?lang=fr&id=2">same set</a>
		<a href="?page=2">next</a>
		<a href="plain.php">no query</a>
		<a href="http://other.example/x.php?q=1">off site</a>
		<form action="../login.php" method="post">
			<input name="user"><input type="password" name="pass">
			<input type="submit" value="go">
		</form>
		<form>
			<textarea name="comment"></textarea>
			<select name="rating"><option>1</option></select>
		</form>
		<form method="put" action="api.php"><input name="x"></form>
		<form action="empty.php"><input type="submit"></form>
		<form action="https://other.example/login" method="post"><input name="user"></form>
	`)

	got := ExtractInjectionPoints(tg, "blog/index.php", body)
	want := []store.InjectionPoint{
		{Method: "GET", Action: "blog/view.php", Parameters: []string{"id", "lang"}},
		{Method: "GET", Action: "blog/index.php", Parameters: []string{"page"}},
		{Method: "POST", Action: "login.php", Parameters: []string{"user", "pass"}},
		{Method: "GET", Action: "blog/index.php", Parameters: []string{"comment", "rating"}},
	}
	assert.Equal(t, want, got)
}

func TestParsePages(t *testing.T) {
	srv := httptest.NewServer(&pathServer{exists: map[string]string{
		"/":          `<a href="search.php?q=x">search</a>`,
		"/about.php": `<a href="search.php?q=y">search</a><form method="POST"><input name="msg"></form>`,
	}})
	defer srv.Close()

	points := ParsePages(context.Background(), newClient(t), newTarget(t, srv.URL),
		[]string{RootPage, "about.php", "missing.php"})
	require.Len(t, points, 2)
	assert.Equal(t, store.InjectionPoint{Method: "POST", Action: "about.php", Parameters: []string{"msg"}}, points[0])
	assert.Equal(t, store.InjectionPoint{Method: "GET", Action: "search.php", Parameters: []string{"q"}}, points[1])
}
