package discovery

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
	"github.com/0x6d61/wavs/internal/workerpool"
)

// Hit is an enumerated path that answered with a success code, along with
// the word list entry that produced it.
type Hit struct {
	Path string
	Word string
}

// Enumerator requests word list candidates against the target.
type Enumerator struct {
	client transport.Client
	target *target.Target
	log    zerolog.Logger
}

// NewEnumerator creates an Enumerator.
func NewEnumerator(client transport.Client, t *target.Target) *Enumerator {
	return &Enumerator{
		client: client,
		target: t,
		log:    log.With().Str("component", "enumerator").Logger(),
	}
}

type candidate struct {
	path string // base-relative path recorded on success
	req  string // path actually requested
	word string
}

// Directories requests base/word/ for every word.
func (e *Enumerator) Directories(ctx context.Context, words []string) []Hit {
	cands := make([]candidate, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "/")
		if w == "" {
			continue
		}
		cands = append(cands, candidate{path: w, req: w + "/", word: w})
	}
	return e.run(ctx, cands)
}

// Files requests base/dir/word+ext for every combination. The empty
// directory stands for the base itself and is always included.
func (e *Enumerator) Files(ctx context.Context, dirs, words, exts []string) []Hit {
	if len(exts) == 0 {
		exts = []string{""}
	}
	allDirs := append([]string{""}, dirs...)

	seen := make(map[string]bool)
	var cands []candidate
	for _, d := range allDirs {
		d = strings.Trim(d, "/")
		for _, w := range words {
			w = strings.Trim(w, "/")
			if w == "" {
				continue
			}
			for _, ext := range exts {
				p := w + ext
				if d != "" {
					p = d + "/" + p
				}
				if seen[p] {
					continue
				}
				seen[p] = true
				cands = append(cands, candidate{path: p, req: p, word: w})
			}
		}
	}
	return e.run(ctx, cands)
}

func (e *Enumerator) run(ctx context.Context, cands []candidate) []Hit {
	var allowed []candidate
	for _, c := range cands {
		if e.target.IsRestricted(c.path) {
			continue
		}
		allowed = append(allowed, c)
	}

	hits := workerpool.Map(ctx, e.target.Threads, allowed, func(ctx context.Context, c candidate) (Hit, bool) {
		resp := transport.Get(ctx, e.client, e.target.URL(c.req))
		if resp == nil || !e.target.IsSuccess(resp.StatusCode) {
			return Hit{}, false
		}
		e.log.Debug().Str("path", c.path).Int("status", resp.StatusCode).Msg("found")
		return Hit{Path: c.path, Word: c.word}, true
	})

	slices.SortFunc(hits, func(a, b Hit) int { return strings.Compare(a.Path, b.Path) })
	return hits
}

// Paths returns the Path of every hit.
func Paths(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Path
	}
	return out
}
