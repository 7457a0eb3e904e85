package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
)

// FixtureFile is the YAML shape of a catalog fixture.
type FixtureFile struct {
	Items []content.Item `yaml:"items"`
}

// LoadFixtures reads and validates a fixture file.
func LoadFixtures(path string) ([]content.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes fixture YAML. Duplicate (kind, id) pairs are rejected.
func ParseFixtures(data []byte) ([]content.Item, error) {
	var f FixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Items))
	for i, item := range f.Items {
		if err := ValidateItem(item); err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
		key := string(item.Kind) + "/" + item.ID
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("fixture %d: %w: duplicate %s", i, ErrInvalid, key)
		}
		seen[key] = struct{}{}
	}
	return f.Items, nil
}
