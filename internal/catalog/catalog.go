// Package catalog maps public test ids to the payload each test is loaded from.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrTestNotFound is returned for an id the catalog does not list.
var ErrTestNotFound = errors.New("test not found")

// Entry is one listed test.
type Entry struct {
	ID      string `yaml:"-" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Subject string `yaml:"subject" json:"subject,omitempty"`
	// Source is a path relative to the data directory or an http(s) URL.
	Source string `yaml:"source" json:"-"`
}

// IsRemote reports whether the source must be fetched over HTTP.
func (e Entry) IsRemote() bool {
	return strings.HasPrefix(e.Source, "http://") || strings.HasPrefix(e.Source, "https://")
}

type file struct {
	Tests map[string]Entry `yaml:"tests"`
}

// Catalog is an immutable test listing.
type Catalog struct {
	entries map[string]Entry
	ids     []string
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML:
//
//	tests:
//	  math_vvi:
//	    title: Maths VVI
//	    subject: mathematics
//	    source: most_save.json
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{entries: make(map[string]Entry, len(f.Tests))}
	for id, e := range f.Tests {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.New("parse catalog: empty test id")
		}
		if strings.TrimSpace(e.Source) == "" {
			return nil, fmt.Errorf("parse catalog: test %q has no source", id)
		}
		e.ID = id
		if e.Title == "" {
			e.Title = id
		}
		c.entries[id] = e
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)
	return c, nil
}

// New builds a catalog from entries, keyed by their ID.
func New(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, dup := c.entries[e.ID]; !dup {
			c.ids = append(c.ids, e.ID)
		}
		c.entries[e.ID] = e
	}
	sort.Strings(c.ids)
	return c
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id string) (Entry, error) {
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrTestNotFound, id)
	}
	return e, nil
}

// List returns all entries ordered by id.
func (c *Catalog) List() []Entry {
	out := make([]Entry, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.entries[id])
	}
	return out
}
