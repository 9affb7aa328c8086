package configwatch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads and parses the YAML document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configwatch: reading %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("configwatch: parsing %s: %w", path, err)
	}
	return &doc, nil
}
