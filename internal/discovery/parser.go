package discovery

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/0x6d61/wavs/internal/store"
	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
	"github.com/0x6d61/wavs/internal/workerpool"
)

// ParsePages fetches every page and extracts its injection points. The
// result is deduplicated on the injection point key and sorted by action.
func ParsePages(ctx context.Context, client transport.Client, t *target.Target, pages []string) []store.InjectionPoint {
	logger := log.With().Str("stage", "parser").Logger()

	perPage := workerpool.Map(ctx, t.Threads, pages, func(ctx context.Context, page string) ([]store.InjectionPoint, bool) {
		page = normalizePage(page)
		resp := transport.Get(ctx, client, PageURL(t, page))
		if resp == nil || !t.IsSuccess(resp.StatusCode) {
			return nil, false
		}
		points := ExtractInjectionPoints(t, page, resp.Body)
		logger.Debug().Str("page", page).Int("points", len(points)).Msg("parsed")
		return points, len(points) > 0
	})

	seen := make(map[string]bool)
	var out []store.InjectionPoint
	for _, points := range perPage {
		for _, p := range points {
			if k := p.Key(); !seen[k] {
				seen[k] = true
				out = append(out, p)
			}
		}
	}
	slices.SortFunc(out, func(a, b store.InjectionPoint) int {
		if c := strings.Compare(a.Action, b.Action); c != 0 {
			return c
		}
		if c := strings.Compare(a.Method, b.Method); c != 0 {
			return c
		}
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}

// ExtractInjectionPoints finds parameterised anchors and forms in body.
//
// An anchor yields a GET point when its same-origin href carries a query;
// the query keys become the parameters. A form yields a point with the
// names of its input, textarea and select fields; the action defaults to
// the page itself and the method to GET. Points without parameters are
// dropped.
func ExtractInjectionPoints(t *target.Target, page string, body []byte) []store.InjectionPoint {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	page = normalizePage(page)

	seen := make(map[string]bool)
	var out []store.InjectionPoint
	add := func(p store.InjectionPoint) {
		if len(p.Parameters) == 0 {
			return
		}
		if k := p.Key(); !seen[k] {
			seen[k] = true
			out = append(out, p)
		}
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)

		var action, query string
		if strings.HasPrefix(href, "?") {
			action, query = page, href[1:]
		} else {
			p, q, ok := resolveLink(t, page, href)
			if !ok {
				return
			}
			action, query = p, q
		}
		if query == "" {
			return
		}
		add(store.InjectionPoint{
			Method:     http.MethodGet,
			Action:     action,
			Parameters: queryKeys(query),
		})
	})

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", "")))
		switch method {
		case "":
			method = http.MethodGet
		case http.MethodGet, http.MethodPost:
		default:
			return
		}

		action := page
		if raw := strings.TrimSpace(form.AttrOr("action", "")); raw != "" && raw != "#" {
			p, _, ok := resolveLink(t, page, raw)
			if !ok {
				return
			}
			action = p
		}

		var params []string
		form.Find("input, textarea, select").Each(func(_ int, field *goquery.Selection) {
			name := strings.TrimSpace(field.AttrOr("name", ""))
			if name != "" && !slices.Contains(params, name) {
				params = append(params, name)
			}
		})
		add(store.InjectionPoint{Method: method, Action: action, Parameters: params})
	})

	return out
}

// queryKeys returns the distinct parameter names of a raw query in order.
func queryKeys(raw string) []string {
	var keys []string
	for _, pair := range strings.Split(raw, "&") {
		k, _, _ := strings.Cut(pair, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}
		if k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}
