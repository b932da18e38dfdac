package tamper

import (
	"fmt"
	"strings"
)

// charEncodeTamper percent-encodes every byte outside the RFC 3986
// unreserved set. The encoded form is sent as the literal parameter value,
// so the target sees it after one decode pass.
//
//	"../etc/passwd" → "..%2Fetc%2Fpasswd"
type charEncodeTamper struct{}

func (charEncodeTamper) Name() string { return "charencode" }

func (charEncodeTamper) Apply(s string) string {
	return percentEncode(s)
}

func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
