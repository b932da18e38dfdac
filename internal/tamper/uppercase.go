package tamper

import (
	"regexp"
	"strings"
)

// keywords are SQL keywords and HTML tag/handler names that blacklist
// filters commonly match in lowercase only. Longest first so alternation
// prefers whole words.
var keywords = []string{
	"INFORMATION_SCHEMA", "CURRENT_USER", "SUBSTRING", "WAITFOR",
	"CONVERT", "ONERROR", "PG_SLEEP", "CONCAT", "SELECT", "INSERT",
	"UPDATE", "DELETE", "SCRIPT", "ONLOAD", "IFRAME", "UNION", "WHERE",
	"ORDER", "GROUP", "SLEEP", "DELAY", "ALERT", "FROM", "NULL", "BODY",
	"AND", "NOT", "SVG", "IMG", "OR", "BY",
}

var keywordPattern = buildKeywordPattern(keywords)

func buildKeywordPattern(words []string) *regexp.Regexp {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(parts, "|") + `)\b`)
}

// uppercaseTamper upper-cases known keywords, leaving everything else alone.
//
//	"<script>alert(1)</script>" → "<SCRIPT>ALERT(1)</SCRIPT>"
//	"' or sleep(5)-- -"         → "' OR SLEEP(5)-- -"
type uppercaseTamper struct{}

func (uppercaseTamper) Name() string { return "uppercase" }

func (uppercaseTamper) Apply(s string) string {
	return keywordPattern.ReplaceAllStringFunc(s, strings.ToUpper)
}
