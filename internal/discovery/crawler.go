package discovery

import (
	"bytes"
	"context"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
	"github.com/0x6d61/wavs/internal/workerpool"
)

// DefaultMaxPages bounds a crawl when CrawlerOptions.MaxPages is zero.
const DefaultMaxPages = 500

// CrawlerOptions configures a Crawler.
type CrawlerOptions struct {
	// Visited tracks queued pages. Nil means a fresh MemoryVisited.
	Visited VisitedSet

	// MaxPages stops the crawl once this many pages were accepted.
	MaxPages int
}

// Crawler walks same-origin links breadth first, one level at a time.
type Crawler struct {
	client   transport.Client
	target   *target.Target
	visited  VisitedSet
	maxPages int
	log      zerolog.Logger
}

// NewCrawler creates a Crawler.
func NewCrawler(client transport.Client, t *target.Target, opts CrawlerOptions) *Crawler {
	if opts.Visited == nil {
		opts.Visited = NewMemoryVisited()
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	return &Crawler{
		client:   client,
		target:   t,
		visited:  opts.Visited,
		maxPages: opts.MaxPages,
		log:      log.With().Str("stage", "crawler").Logger(),
	}
}

type crawled struct {
	page  string
	links []string
}

// Crawl fetches seeds and everything reachable from them, returning the
// accepted pages in sorted order. The site root is always a seed.
func (c *Crawler) Crawl(ctx context.Context, seeds []string) ([]string, error) {
	var frontier []string
	for _, s := range append([]string{RootPage}, seeds...) {
		p := normalizePage(s)
		added, err := c.visited.Add(ctx, p)
		if err != nil {
			return nil, err
		}
		if added {
			frontier = append(frontier, p)
		}
	}

	var pages []string
	for len(frontier) > 0 && len(pages) < c.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results := workerpool.Map(ctx, c.target.Threads, frontier, c.fetch)
		slices.SortFunc(results, func(a, b crawled) int { return strings.Compare(a.page, b.page) })

		var next []string
		for _, r := range results {
			if len(pages) >= c.maxPages {
				c.log.Warn().Int("max_pages", c.maxPages).Msg("page limit reached")
				break
			}
			pages = append(pages, r.page)
			for _, l := range r.links {
				added, err := c.visited.Add(ctx, l)
				if err != nil {
					return nil, err
				}
				if added {
					next = append(next, l)
				}
			}
		}
		frontier = next
	}

	slices.Sort(pages)
	return pages, nil
}

// fetch requests page and returns its outgoing links when the page passes
// the acceptance rule.
func (c *Crawler) fetch(ctx context.Context, page string) (crawled, bool) {
	if c.target.IsRestricted(page) {
		return crawled{}, false
	}
	resp := transport.Get(ctx, c.client, PageURL(c.target, page))
	if resp == nil || !c.target.AcceptPage(page, resp.StatusCode) {
		return crawled{}, false
	}
	c.log.Debug().Str("page", page).Msg("found page")
	return crawled{page: page, links: ExtractLinks(c.target, page, resp.Body)}, true
}

// ExtractLinks returns the distinct same-origin anchor and form targets in
// body, resolved relative to page with queries and fragments removed.
func ExtractLinks(t *target.Target, page string, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(href string) {
		p, _, ok := resolveLink(t, page, href)
		if !ok || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})
	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		action, _ := s.Attr("action")
		add(action)
	})
	return out
}
