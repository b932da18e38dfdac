package payload

import "strings"

// Boundary is a prefix/suffix pair that closes the SQL context a parameter
// is embedded in.
type Boundary struct {
	Prefix string
	Suffix string
}

// quotePrefixes are the string and parenthesis contexts an injected value
// may need to break out of, ordered by how common they are.
var quotePrefixes = []string{"'", "\"", "')", "\")", "'))", ")"}

// commentSuffixes terminate the rest of the original statement.
var commentSuffixes = []string{"-- -", "#", "/*"}

// CommonBoundaries returns every prefix/suffix combination.
func CommonBoundaries() []Boundary {
	out := make([]Boundary, 0, len(quotePrefixes)*len(commentSuffixes))
	for _, p := range quotePrefixes {
		for _, s := range commentSuffixes {
			out = append(out, Boundary{Prefix: p, Suffix: s})
		}
	}
	return out
}

// splitBoundary separates a SQL payload into its leading context breaker,
// its core and its trailing comment. Payloads without a recognised prefix
// or suffix return empty strings for those parts.
func splitBoundary(s string) (prefix, core, suffix string) {
	core = s
	for _, p := range longestFirst(quotePrefixes) {
		if strings.HasPrefix(core, p) {
			prefix, core = p, core[len(p):]
			break
		}
	}
	for _, sfx := range commentSuffixes {
		if strings.HasSuffix(core, sfx) {
			suffix, core = sfx, core[:len(core)-len(sfx)]
			break
		}
	}
	return prefix, core, suffix
}

// Rebound re-wraps a SQL payload in every other boundary that shares its
// shape: a quoted payload is tried with the other quote contexts, and a
// commented payload with the other comment styles.
func Rebound(s string) []string {
	prefix, core, suffix := splitBoundary(s)
	if prefix == "" && suffix == "" {
		return nil
	}

	var out []string
	for _, b := range CommonBoundaries() {
		if (prefix == "") != (b.Prefix == "") || (suffix == "") != (b.Suffix == "") {
			continue
		}
		p, sfx := b.Prefix, b.Suffix
		if prefix == "" {
			p = ""
		}
		if suffix == "" {
			sfx = ""
		}
		if v := p + core + sfx; v != s && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func longestFirst(in []string) []string {
	out := append([]string(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
