package corpus

import (
	"fmt"
	"os"
	"path"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// Selection narrows the corpus to a subset of test IDs. Patterns use
// path.Match syntax over "group/subgroup/test". An empty include list selects
// everything; exclude always wins.
type Selection struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// LoadSelection reads a selection file.
func LoadSelection(file string) (*Selection, error) {
	log.Debug("Reading selection file", "path", file)

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading selection file: %w", err)
	}

	var sel Selection
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("parsing selection file: %w", err)
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	return &sel, nil
}

// Validate checks every pattern is well formed.
func (s *Selection) Validate() error {
	for _, patterns := range [][]string{s.Include, s.Exclude} {
		for _, p := range patterns {
			if _, err := path.Match(p, ""); err != nil {
				return fmt.Errorf("invalid selection pattern %q: %w", p, err)
			}
		}
	}
	return nil
}

// Selected reports whether the test ID passes the selection. A nil selection
// selects everything.
func (s *Selection) Selected(id string) bool {
	if s == nil {
		return true
	}
	if matchAny(s.Exclude, id) {
		return false
	}
	return len(s.Include) == 0 || matchAny(s.Include, id)
}

func matchAny(patterns []string, id string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, id); ok {
			return true
		}
	}
	return false
}
