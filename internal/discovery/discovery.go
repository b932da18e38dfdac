// Package discovery maps the attack surface of a target: it checks the
// host behaves sanely, enumerates directories and files from word lists,
// crawls pages and extracts injection points from their HTML.
//
// Every path handled here is relative to the target base directory. The
// site root itself is RootPage.
package discovery

import (
	"errors"
	"strings"

	"github.com/0x6d61/wavs/internal/target"
)

// RootPage names the base directory itself.
const RootPage = "/"

var (
	// ErrTargetUnreachable means the host gave no response to the liveness request.
	ErrTargetUnreachable = errors.New("discovery: target gave no response")

	// ErrTargetMisconfigured means the host answers unregistered paths with a
	// success code, which would turn every enumerated word into a false hit.
	ErrTargetMisconfigured = errors.New("discovery: target returns a success code for unregistered paths")
)

// ResolvePath resolves link against the directory of page. "." segments
// are dropped and ".." pops one segment, clamping at the root. A trailing
// slash on link is preserved.
//
//	ResolvePath("a/b/c.php", "../d.php")    == "a/d.php"
//	ResolvePath("a/b/c.php", "../../e.php") == "e.php"
func ResolvePath(page, link string) string {
	var segs []string
	dir := page
	if !strings.HasSuffix(dir, "/") {
		if i := strings.LastIndexByte(dir, '/'); i >= 0 {
			dir = dir[:i]
		} else {
			dir = ""
		}
	}
	for _, s := range strings.Split(dir, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}

	for _, s := range strings.Split(link, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, s)
		}
	}

	out := strings.Join(segs, "/")
	if out != "" && strings.HasSuffix(link, "/") {
		out += "/"
	}
	return out
}

var droppedSchemes = []string{"mailto:", "javascript:", "tel:", "data:"}

// resolveLink maps an href found on page to a base-relative path and its
// raw query. ok is false for empty, fragment-only, query-only, off-origin
// and non-HTTP links.
func resolveLink(t *target.Target, page, href string) (p, query string, ok bool) {
	href = strings.TrimSpace(href)
	if href == "" || href[0] == '?' || href[0] == '#' {
		return "", "", false
	}
	lower := strings.ToLower(href)
	for _, s := range droppedSchemes {
		if strings.HasPrefix(lower, s) {
			return "", "", false
		}
	}

	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	raw := href
	if i := strings.IndexByte(href, '?'); i >= 0 {
		raw, query = href[:i], href[i+1:]
	}

	switch {
	case strings.HasPrefix(raw, "//"):
		p, ok = t.Relative(t.Base.Scheme + ":" + raw)
	case strings.Contains(raw, "://"):
		p, ok = t.Relative(raw)
	case strings.HasPrefix(raw, "/"):
		p, ok = t.RootRelative(raw)
	default:
		p, ok = ResolvePath(page, raw), true
	}
	if !ok {
		return "", "", false
	}
	return normalizePage(p), query, true
}

// normalizePage collapses dot segments and names the root RootPage.
func normalizePage(p string) string {
	p = ResolvePath("", p)
	if p == "" {
		return RootPage
	}
	return p
}

// PagePath maps the path of a request URL to a base-relative page. ok is
// false for paths outside the base directory.
func PagePath(t *target.Target, urlPath string) (string, bool) {
	p, ok := t.RootRelative(urlPath)
	if !ok {
		return "", false
	}
	return normalizePage(p), true
}

// PageURL is the absolute URL of a base-relative page.
func PageURL(t *target.Target, page string) string {
	if page == RootPage {
		return t.URL("")
	}
	return t.URL(page)
}
