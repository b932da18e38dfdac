// Package tamper provides string mutations used to derive new payload
// candidates from proven ones. Each Tamper rewrites a raw payload so it may
// slip past input filters that block the original form: comment-separated
// SQL, re-cased keywords and tags, percent-encoded or nested traversal
// sequences.
//
// Usage:
//
//	chain, err := tamper.BuildChain("space2comment", "uppercase")
package tamper

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Tamper transforms a raw payload string.
type Tamper interface {
	// Name returns the tamper's short identifier (e.g. "space2comment").
	Name() string
	// Apply transforms the payload string and returns the modified version.
	Apply(s string) string
}

// Chain is an ordered list of tampers.
type Chain []Tamper

// Apply runs each tamper in order and returns the fully-transformed string.
func (c Chain) Apply(s string) string {
	for _, t := range c {
		s = t.Apply(s)
	}
	return s
}

// Names returns the tamper names in chain order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, t := range c {
		names[i] = t.Name()
	}
	return names
}

var registry = map[string]func() Tamper{
	"space2comment": func() Tamper { return space2commentTamper{} },
	"uppercase":     func() Tamper { return uppercaseTamper{} },
	"charencode":    func() Tamper { return charEncodeTamper{} },
	"doubleencode":  func() Tamper { return doubleEncodeTamper{} },
	"nesteddots":    func() Tamper { return nestedDotsTamper{} },
}

// Lookup returns the Tamper for the given name, or nil if not found.
func Lookup(name string) Tamper {
	fn, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil
	}
	return fn()
}

// Available returns all registered tamper names in alphabetical order.
func Available() []string {
	return slices.Sorted(maps.Keys(registry))
}

// BuildChain constructs a Chain from the given tamper names. Unknown names
// are an error so a typo in configuration is caught before scanning.
func BuildChain(names ...string) (Chain, error) {
	chain := make(Chain, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t := Lookup(name)
		if t == nil {
			return nil, fmt.Errorf("tamper: unknown tamper %q (available: %s)", name, strings.Join(Available(), ", "))
		}
		chain = append(chain, t)
	}
	return chain, nil
}
