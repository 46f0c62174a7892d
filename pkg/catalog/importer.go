package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a catalog import.
type File struct {
	Courses []Course `yaml:"courses"`
}

// ReadFile decodes a YAML catalog file.
func ReadFile(path string) ([]Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog file: %w", err)
	}
	return f.Courses, nil
}

// Import reads path and upserts every course it declares.
func (r *Repository) Import(ctx context.Context, path string) (UpsertSummary, error) {
	courses, err := ReadFile(path)
	if err != nil {
		return UpsertSummary{}, err
	}
	return r.Upsert(ctx, courses...)
}
