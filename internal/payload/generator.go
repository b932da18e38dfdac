package payload

import (
	"context"

	"github.com/0x6d61/wavs/internal/tamper"
)

// MutationGenerator derives candidates from proven seeds by running each
// seed through every tamper of Chain on its own. SQL injection seeds are
// also re-wrapped in the other quote and comment contexts.
type MutationGenerator struct {
	Chain tamper.Chain
}

// NewMutationGenerator builds a generator from tamper names.
func NewMutationGenerator(tampers ...string) (*MutationGenerator, error) {
	chain, err := tamper.BuildChain(tampers...)
	if err != nil {
		return nil, err
	}
	return &MutationGenerator{Chain: chain}, nil
}

// Generate implements Generator. Candidates identical to a seed are dropped
// and the result holds each value once.
func (g *MutationGenerator) Generate(ctx context.Context, category string, seeds []string) ([]string, error) {
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seen[s] = true
	}

	var out []string
	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if category == ListSQLInjection || category == ListSQLInjectionBlind {
			for _, v := range Rebound(seed) {
				add(v)
			}
		}
		for _, t := range g.Chain {
			add(t.Apply(seed))
		}
	}
	return out, nil
}
