package discovery

import (
	"bufio"
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
)

// InitialResult holds what the initial checks learned from robots.txt.
type InitialResult struct {
	Directories []string
	Files       []string
}

// Initial checks the target is alive and does not answer every path with a
// success code, then harvests robots.txt. The two sentinel errors abort
// the scan; everything else about the target is best effort.
func Initial(ctx context.Context, client transport.Client, t *target.Target) (*InitialResult, error) {
	logger := log.With().Str("stage", "initial").Logger()

	if transport.Get(ctx, client, t.URL("")) == nil {
		return nil, ErrTargetUnreachable
	}

	noFollow := false
	probe := uuid.NewString()
	resp := transport.Send(ctx, client, &transport.Request{
		Method:          http.MethodGet,
		URL:             t.URL(probe),
		FollowRedirects: &noFollow,
	})
	if resp != nil && t.IsSuccess(resp.StatusCode) {
		logger.Warn().Str("path", probe).Int("status", resp.StatusCode).
			Msg("unregistered path returned a success code; consider removing it from the success codes")
		return nil, ErrTargetMisconfigured
	}

	result := &InitialResult{}
	robots := transport.Get(ctx, client, t.URL("robots.txt"))
	if robots == nil || !t.IsSuccess(robots.StatusCode) {
		return result, nil
	}
	logger.Info().Msg("robots.txt found")

	dirs, files := ParseRobots(robots.BodyString())
	for _, d := range dirs {
		if !t.IsRestricted(d) {
			result.Directories = append(result.Directories, d)
		}
	}
	for _, f := range files {
		if !t.IsRestricted(f) {
			result.Files = append(result.Files, f)
		}
	}
	return result, nil
}

// ParseRobots extracts Allow and Disallow paths from a robots.txt body.
// Paths ending in "/" are directories and are returned without slashes;
// the rest are files. Wildcard patterns cannot be requested and are skipped.
func ParseRobots(body string) (dirs, files []string) {
	seen := make(map[string]bool)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "allow" && key != "disallow" {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" || strings.ContainsAny(value, "*$") {
			continue
		}

		isDir := strings.HasSuffix(value, "/")
		p := ResolvePath("", strings.Trim(value, "/"))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if isDir {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}
	return dirs, files
}
