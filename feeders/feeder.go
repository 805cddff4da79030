// Package feeders provides configuration feeders for reading data from
// YAML, TOML and JSON files and from environment variables.
package feeders

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Feeder populates a target structure. It matches the golobby/config
// feeder contract.
type Feeder interface {
	Feed(structure any) error
}

// ComplexFeeder can also populate a single top-level key of a document.
type ComplexFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

// ForFile returns the file feeder matching the extension of path.
func ForFile(path string) (ComplexFeeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// feedKey is a common helper function for extracting specific keys from config files
func feedKey(
	feeder Feeder,
	key string,
	target any,
	marshalFunc func(any) ([]byte, error),
	unmarshalFunc func([]byte, any) error,
	fileType string,
) error {
	var allData map[string]any

	if err := feeder.Feed(&allData); err != nil {
		return fmt.Errorf("failed to read %s: %w", fileType, err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	// Remarshal and unmarshal to handle type conversions
	valueBytes, err := marshalFunc(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data: %w", fileType, err)
	}
	if err = unmarshalFunc(valueBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s data: %w", fileType, err)
	}
	return nil
}
