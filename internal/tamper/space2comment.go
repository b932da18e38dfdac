package tamper

import "strings"

// space2commentTamper replaces each space with an inline comment, for
// filters that reject whitespace inside SQL payloads.
//
//	"' OR 1=1-- -" → "'/**/OR/**/1=1--/**/-"
type space2commentTamper struct{}

func (space2commentTamper) Name() string { return "space2comment" }

func (space2commentTamper) Apply(s string) string {
	return strings.ReplaceAll(s, " ", "/**/")
}
