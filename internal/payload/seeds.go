package payload

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

var errNoSeeds = errors.New("payload: seed document has no word lists")

// Seeds is the initial content of a fresh payload database.
type Seeds struct {
	Wordlists map[string][]string `yaml:"wordlists"`
	Detect    map[string][]string `yaml:"detect"`
}

// DefaultSeeds parses the embedded seed file.
func DefaultSeeds() (*Seeds, error) {
	return ParseSeeds(seedYAML)
}

// ParseSeeds decodes a seed document.
func ParseSeeds(data []byte) (*Seeds, error) {
	var s Seeds
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("payload: parse seeds: %w", err)
	}
	if len(s.Wordlists) == 0 {
		return nil, errNoSeeds
	}
	return &s, nil
}

// listNames returns the word list names in a stable order so seeded ids,
// and therefore tie-breaks in Ranked, are reproducible.
func (s *Seeds) listNames() []string {
	return slices.Sorted(maps.Keys(s.Wordlists))
}

func (s *Seeds) detectNames() []string {
	return slices.Sorted(maps.Keys(s.Detect))
}
