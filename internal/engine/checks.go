package engine

import (
	"context"
	"net/http"
	"strings"

	"github.com/0x6d61/wavs/internal/discovery"
	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/target"
)

// CheckCSRF flags every POST point whose parameters include none of the
// anti-CSRF token names. Names compare case-insensitively. No request is
// sent; the finding's Parameter lists the form fields.
func CheckCSRF(points []store.InjectionPoint, tokens []string) []store.Finding {
	var out []store.Finding
	for _, p := range points {
		if !strings.EqualFold(p.Method, http.MethodPost) || hasToken(p.Parameters, tokens) {
			continue
		}
		out = append(out, store.Finding{
			Category:  store.CategoryCSRF,
			Method:    http.MethodPost,
			Page:      p.Action,
			Parameter: strings.Join(p.Parameters, ","),
		})
	}
	sortFindings(out)
	return Dedup(out)
}

func hasToken(params, tokens []string) bool {
	for _, p := range params {
		for _, tok := range tokens {
			if strings.EqualFold(p, tok) {
				return true
			}
		}
	}
	return false
}

// Disclosure requests (dir ∪ "") × word × extension and reports every path
// that answers with a success code. The extensionless form of each word is
// always tried. The finding's Payload is the word that hit.
func (e *Engine) Disclosure(ctx context.Context, t *target.Target, dirs, words []string) []store.Finding {
	exts := append([]string{""}, t.FileExtensions...)
	hits := discovery.NewEnumerator(e.client, t).Files(ctx, dirs, words, exts)

	out := make([]store.Finding, 0, len(hits))
	for _, h := range hits {
		out = append(out, store.Finding{
			Category: store.CategoryInfoDisclosure,
			Method:   http.MethodGet,
			Page:     h.Path,
			Payload:  h.Word,
		})
	}
	return Dedup(out)
}
