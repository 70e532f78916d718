// Package suggest reads categorization suggestions produced outside the
// engine and writes templates for a categorizer to fill in.
//
// A suggestions file is YAML (JSON is accepted as a YAML subset):
//
//	suggestions:
//	  - path: scan001.pdf
//	    category: Finance
//	    suggested_name: tax-return-2024
//	    confidence: 0.92
//	    reasoning: W-2 form header
//
// Relative paths are resolved against the directory being organized.
package suggest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/tidy/internal/models"
	"gopkg.in/yaml.v3"
)

// Entry is one suggestion as it appears in a file
type Entry struct {
	Path          string  `yaml:"path" json:"path"`
	Category      string  `yaml:"category" json:"category"`
	SuggestedName string  `yaml:"suggested_name,omitempty" json:"suggested_name,omitempty"`
	Confidence    float64 `yaml:"confidence" json:"confidence"`
	Reasoning     string  `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
}

// File is the document layout
type File struct {
	Suggestions []Entry `yaml:"suggestions" json:"suggestions"`
}

// LoadFile reads suggestions from path. See Parse.
func LoadFile(path, baseDir string) (map[string]models.Suggestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suggestions: %w", err)
	}
	return Parse(data, baseDir)
}

// Parse decodes a suggestions document keyed by absolute, cleaned path.
// Unknown fields, empty paths, duplicate paths and confidences outside
// [0, 1] are rejected. Entries with neither a category nor a suggested name
// are left unfilled and carry no suggestion.
func Parse(data []byte, baseDir string) (map[string]models.Suggestion, error) {
	var doc File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]models.Suggestion{}, nil
		}
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	out := make(map[string]models.Suggestion, len(doc.Suggestions))
	seen := make(map[string]struct{}, len(doc.Suggestions))
	for i, e := range doc.Suggestions {
		if e.Path == "" {
			return nil, fmt.Errorf("suggestion %d: path is required", i+1)
		}
		if math.IsNaN(e.Confidence) || e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("suggestion %d (%s): confidence %v is outside [0, 1]", i+1, e.Path, e.Confidence)
		}
		path := filepath.FromSlash(e.Path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		path = filepath.Clean(path)
		if _, dup := seen[path]; dup {
			return nil, fmt.Errorf("suggestion %d: duplicate path %s", i+1, e.Path)
		}
		seen[path] = struct{}{}
		if strings.TrimSpace(e.Category) == "" && strings.TrimSpace(e.SuggestedName) == "" {
			continue
		}
		out[path] = models.Suggestion{
			Category:      e.Category,
			SuggestedName: e.SuggestedName,
			Confidence:    e.Confidence,
			Reasoning:     e.Reasoning,
		}
	}
	return out, nil
}

// WriteTemplate writes an entry per file with empty categorization fields,
// paths relative to baseDir where possible.
func WriteTemplate(w io.Writer, files []models.FileInfo, baseDir string) error {
	doc := File{Suggestions: make([]Entry, 0, len(files))}
	for _, f := range files {
		path := f.Path
		if rel, err := filepath.Rel(baseDir, f.Path); err == nil && filepath.IsLocal(rel) {
			path = rel
		}
		doc.Suggestions = append(doc.Suggestions, Entry{Path: filepath.ToSlash(path)})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	return enc.Close()
}
