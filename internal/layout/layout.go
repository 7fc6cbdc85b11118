// Package layout derives the on-disk directory layout of a cross-validation run.
package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Category is the leading path segment that separates artifact kinds.
type Category string

const (
	CategoryModels  Category = "models"
	CategoryMetrics Category = "metrics"
	CategoryTime    Category = "time"
)

// Roots maps each category to the directory that holds it.
type Roots struct {
	Models  string `yaml:"models" mapstructure:"models"`
	Metrics string `yaml:"metrics" mapstructure:"metrics"`
	Time    string `yaml:"time" mapstructure:"time"`
}

// DefaultRoots places every category directly under the working directory.
func DefaultRoots() Roots {
	return Roots{
		Models:  string(CategoryModels),
		Metrics: string(CategoryMetrics),
		Time:    string(CategoryTime),
	}
}

// For returns the root of category c. Empty roots fall back to the category name.
func (r Roots) For(c Category) string {
	var root string
	switch c {
	case CategoryModels:
		root = r.Models
	case CategoryMetrics:
		root = r.Metrics
	case CategoryTime:
		root = r.Time
	}
	if root == "" {
		root = string(c)
	}
	return root
}

// RunPath identifies the output location of a single fold.
type RunPath struct {
	Technique    string
	Corpus       string
	Architecture string
	Metric       string
	Folds        int
	Fold         int
}

// Segments returns the path segments below the category directory.
func (p RunPath) Segments() []string {
	return []string{
		p.Technique,
		p.Corpus,
		p.Architecture,
		p.Metric,
		fmt.Sprintf("%dfolds", p.Folds),
		fmt.Sprintf("fold%d", p.Fold),
	}
}

// Dir returns the directory of category c without creating it.
func (p RunPath) Dir(roots Roots, c Category) string {
	return filepath.Join(append([]string{roots.For(c)}, p.Segments()...)...)
}

// Ensure creates the directory of category c when missing and returns it.
func (p RunPath) Ensure(roots Roots, c Category) (string, error) {
	return EnsureDir(p.Dir(roots, c))
}

// CorpusDir returns the fold directory that holds train.txt, dev.txt and test.txt.
func CorpusDir(root, corpus string, folds, fold int) string {
	return filepath.Join(root, corpus, "labeled", fmt.Sprintf("%dfolds", folds), fmt.Sprintf("fold%d", fold))
}

// EnsureDir creates dir and any missing parents. An existing directory is not an error.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "layout: create directory %s", dir)
	}
	return dir, nil
}
