package expand

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSynonyms reads a token -> synonyms mapping from a YAML file:
//
//	error: [failure, fault]
//	task: [job]
//
// A missing file is not an error; expansion degrades to stemming-only.
// A present but malformed file is an error so misconfiguration is visible.
func LoadSynonyms(path string) (map[string][]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read synonyms %s: %w", path, err)
	}

	var m map[string][]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse synonyms %s: %w", path, err)
	}
	return m, nil
}
