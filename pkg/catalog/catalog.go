// Package catalog describes the functions a formula may call and validates
// formula text against it.
//
// Validation parses and analyzes but never evaluates, so it is safe to run
// on every keystroke of a formula editor.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Version identifies the revision of the default catalog. It changes
// whenever an entry is added, removed or changes signature.
const Version = "2026.10.2"

// Arg describes one parameter of a function.
type Arg struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Entry describes one function.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Signature   string `json:"signature"`
	Args        []Arg  `json:"args,omitempty"`
	// MinArgs and MaxArgs bound the argument count. A nil MaxArgs means
	// no upper bound.
	MinArgs int  `json:"minArgs"`
	MaxArgs *int `json:"maxArgs"`
	// Remote marks functions answered by the host application.
	Remote bool `json:"remote,omitempty"`
}

// Arity checks argc against the entry's bounds and returns the problem,
// or "" when argc is accepted.
func (e Entry) Arity(argc int) string {
	if argc < e.MinArgs {
		return fmt.Sprintf("%s requires at least %d argument%s, got %d", e.Name, e.MinArgs, plural(e.MinArgs), argc)
	}
	if e.MaxArgs != nil && argc > *e.MaxArgs {
		return fmt.Sprintf("%s accepts at most %d argument%s, got %d", e.Name, *e.MaxArgs, plural(*e.MaxArgs), argc)
	}
	return ""
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Catalog is an ordered, immutable set of function entries.
type Catalog struct {
	version string
	entries []Entry
	byName  map[string]int
}

// New builds a catalog from entries. Later entries replace earlier ones of
// the same name, keeping the position of the first.
func New(version string, entries ...Entry) *Catalog {
	c := &Catalog{version: version, byName: make(map[string]int, len(entries))}
	for _, e := range entries {
		key := strings.ToUpper(e.Name)
		if i, ok := c.byName[key]; ok {
			c.entries[i] = e
			continue
		}
		c.byName[key] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// Version returns the catalog revision.
func (c *Catalog) Version() string { return c.version }

// Entries returns a copy of the entries in catalog order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Lookup finds an entry by name, ignoring case.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	i, ok := c.byName[strings.ToUpper(name)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Has reports whether the catalog knows name.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// With returns a new catalog with extra entries appended.
func (c *Catalog) With(entries ...Entry) *Catalog {
	return New(c.version, append(c.Entries(), entries...)...)
}

// Complete returns the entries whose name starts with prefix, ignoring
// case, sorted by name. An empty prefix returns every entry.
func (c *Catalog) Complete(prefix string) []Entry {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	var out []Entry
	for _, e := range c.entries {
		if strings.HasPrefix(strings.ToUpper(e.Name), p) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
