package chain

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Source resolves a chain name to its rule text.
// Open must wrap ErrSourceNotFound when the name has no backing source.
type Source interface {
	Open(name string) (io.ReadCloser, error)
}

// Lister is a Source that can enumerate every chain it holds.
type Lister interface {
	Source
	List() ([]string, error)
}

// RuleFileExt is appended to chain names that carry no extension.
const RuleFileExt = ".txt"

// DirSource reads rule files from a directory.
type DirSource struct {
	Dir string
}

// Path returns the file backing a chain name.
func (d DirSource) Path(name string) string {
	if filepath.Ext(name) == "" {
		name += RuleFileExt
	}
	return filepath.Join(d.Dir, name)
}

// Open implements Source.
func (d DirSource) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(d.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", d.Path(name), ErrSourceNotFound)
		}
		return nil, err
	}
	return f, nil
}

// List returns the chain names of every rule file in the directory, sorted.
func (d DirSource) List() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("list rule files: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != RuleFileExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), RuleFileExt))
	}
	slices.Sort(names)
	return names, nil
}

// Canonicalizer is implemented by sources that accept more than one
// spelling of a chain name.
type Canonicalizer interface {
	// Canonical returns the name List reports for the source name opens.
	Canonical(name string) string
}

// Canonical implements Canonicalizer: "common.txt" and "common" open the
// same file.
func (d DirSource) Canonical(name string) string {
	return strings.TrimSuffix(name, RuleFileExt)
}

// MapSource serves rule text from memory, keyed by chain name.
type MapSource map[string]string

// Open implements Source.
func (m MapSource) Open(name string) (io.ReadCloser, error) {
	text, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrSourceNotFound)
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

// List implements Lister.
func (m MapSource) List() ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
