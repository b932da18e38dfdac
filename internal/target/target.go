// Package target describes the host under test: where requests go, which
// statuses mean "found", and which paths are off limits. A Target is built
// once per scan and never mutated, so it is safe to share across workers.
package target

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Target is the immutable scan context handed to every stage.
type Target struct {
	// Base is scheme://host:port plus the optional base directory, without
	// a trailing slash.
	Base *url.URL

	Host string
	Port int

	// Cookies are operator-supplied session cookies sent with every request.
	Cookies map[string]string

	SuccessCodes    []int
	FileExtensions  []string
	CrawlExtensions []string
	Restricted      []string

	Threads        int
	BlindThreshold time.Duration
}

// Options carries the raw operator input used to build a Target.
type Options struct {
	Host            string
	Port            int
	BaseDir         string
	Cookies         map[string]string
	SuccessCodes    []int
	FileExtensions  []string
	CrawlExtensions []string
	Restricted      []string
	Threads         int
	BlindThreshold  time.Duration
}

// New validates opts and returns a Target. Host must include the scheme.
// A zero Port picks 80 or 443 from the scheme.
func New(opts Options) (*Target, error) {
	u, err := url.Parse(opts.Host)
	if err != nil {
		return nil, fmt.Errorf("target: parse host: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("target: host %q must start with http:// or https://", opts.Host)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("target: host %q has no hostname", opts.Host)
	}

	port := opts.Port
	if port == 0 && u.Port() != "" {
		port, _ = strconv.Atoi(u.Port())
	}
	if port == 0 {
		port = 80
		if u.Scheme == "https" {
			port = 443
		}
	}

	baseDir := strings.Trim(opts.BaseDir, "/")
	if baseDir == "" {
		baseDir = strings.Trim(u.Path, "/")
	}
	base := &url.URL{
		Scheme: u.Scheme,
		Host:   fmt.Sprintf("%s:%d", u.Hostname(), port),
	}
	if baseDir != "" {
		base.Path = "/" + baseDir
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = 1
	}
	restricted := make([]string, 0, len(opts.Restricted))
	for _, r := range opts.Restricted {
		if r = strings.Trim(strings.TrimSpace(r), "/"); r != "" {
			restricted = append(restricted, r)
		}
	}

	return &Target{
		Base:            base,
		Host:            u.Hostname(),
		Port:            port,
		Cookies:         opts.Cookies,
		SuccessCodes:    slices.Clone(opts.SuccessCodes),
		FileExtensions:  slices.Clone(opts.FileExtensions),
		CrawlExtensions: slices.Clone(opts.CrawlExtensions),
		Restricted:      restricted,
		Threads:         threads,
		BlindThreshold:  opts.BlindThreshold,
	}, nil
}

// URL returns the absolute URL for a path relative to the base directory.
// A trailing slash on p is preserved.
func (t *Target) URL(p string) string {
	u := *t.Base
	u.Path = strings.TrimSuffix(t.Base.Path, "/") + "/" + strings.TrimLeft(p, "/")
	return u.String()
}

// Origin is scheme://host:port.
func (t *Target) Origin() string {
	return t.Base.Scheme + "://" + t.Base.Host
}

// Relative maps an absolute URL back to a base-relative path. ok is false
// for other origins or for paths outside the base directory.
func (t *Target) Relative(raw string) (p string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Host != "" {
		if !strings.EqualFold(u.Scheme, t.Base.Scheme) || !t.sameHost(u) {
			return "", false
		}
	}
	return t.trimBase(u.Path)
}

// trimBase strips the base directory from a root-relative path.
func (t *Target) trimBase(p string) (string, bool) {
	p = strings.TrimPrefix(p, "/")
	baseDir := strings.Trim(t.Base.Path, "/")
	if baseDir == "" {
		return p, true
	}
	if p == baseDir || p == baseDir+"/" {
		return "", true
	}
	rest, found := strings.CutPrefix(p, baseDir+"/")
	return rest, found
}

// RootRelative maps a path beginning with "/" to a base-relative path.
func (t *Target) RootRelative(p string) (string, bool) {
	return t.trimBase(p)
}

func (t *Target) sameHost(u *url.URL) bool {
	port := u.Port()
	if port == "" {
		port = "80"
		if strings.EqualFold(u.Scheme, "https") {
			port = "443"
		}
	}
	return strings.EqualFold(u.Hostname(), t.Host) && port == strconv.Itoa(t.Port)
}

// IsSuccess reports whether status means the resource exists.
func (t *Target) IsSuccess(status int) bool {
	return slices.Contains(t.SuccessCodes, status)
}

// IsRestricted reports whether p is, or lies under, a restricted path.
func (t *Target) IsRestricted(p string) bool {
	p = strings.Trim(p, "/")
	for _, r := range t.Restricted {
		if p == r || strings.HasPrefix(p, r+"/") {
			return true
		}
	}
	return false
}

// CrawlableExtension reports whether the extension of p is on the crawl
// allowlist. An empty allowlist entry admits extensionless paths.
func (t *Target) CrawlableExtension(p string) bool {
	ext := ""
	if !strings.HasSuffix(p, "/") {
		ext = strings.ToLower(path.Ext(p))
	}
	return slices.Contains(t.CrawlExtensions, ext)
}

// AcceptPage is the page-acceptance rule shared by the crawler and the
// intercepting proxy.
func (t *Target) AcceptPage(p string, status int) bool {
	return t.IsSuccess(status) && !t.IsRestricted(p) && t.CrawlableExtension(p)
}
