package puzzle

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type document struct {
	Puzzles []Record `yaml:"puzzles"`
}

// Parse decodes a YAML catalog document and validates it. Unknown keys are
// rejected so that typos in a hand-written catalog surface early.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return New(nil)
		}
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return New(doc.Puzzles)
}

// LoadFile reads and parses the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in five-puzzle heist catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}
