package symptom

import (
	"fmt"
	"sort"
)

// Name identifies a symptom. Names are case-sensitive and drawn from the
// closed vocabulary held by a Catalog.
type Name string

// Entry is one catalog symptom and the diseases whose rule tables weight it.
type Entry struct {
	Name     Name     `json:"name"`
	Diseases []string `json:"diseases"`
}

// Catalog is the closed set of recognized symptoms. It is built once at
// startup and only read afterwards.
type Catalog struct {
	order    []Name
	diseases map[Name][]string
}

// Reference links a disease to the symptoms it weights, in declaration order.
type Reference struct {
	Disease  string
	Symptoms []Name
}

// NewCatalog builds the catalog from the disease references. A symptom named
// by several diseases is registered once; a disease listing the same symptom
// twice is rejected.
func NewCatalog(refs []Reference) (*Catalog, error) {
	c := &Catalog{diseases: make(map[Name][]string)}
	for _, ref := range refs {
		seen := make(map[Name]bool, len(ref.Symptoms))
		for _, s := range ref.Symptoms {
			if s == "" {
				return nil, fmt.Errorf("disease %q: empty symptom name", ref.Disease)
			}
			if seen[s] {
				return nil, fmt.Errorf("disease %q: symptom %q listed twice", ref.Disease, s)
			}
			seen[s] = true
			if _, ok := c.diseases[s]; !ok {
				c.order = append(c.order, s)
			}
			c.diseases[s] = append(c.diseases[s], ref.Disease)
		}
	}
	return c, nil
}

// Has reports whether name belongs to the vocabulary.
func (c *Catalog) Has(name Name) bool {
	_, ok := c.diseases[name]
	return ok
}

// Names returns the vocabulary in first-declaration order.
func (c *Catalog) Names() []Name {
	out := make([]Name, len(c.order))
	copy(out, c.order)
	return out
}

// Diseases returns the diseases referencing name.
func (c *Catalog) Diseases(name Name) []string {
	ds := c.diseases[name]
	out := make([]string, len(ds))
	copy(out, ds)
	return out
}

// Entries lists every symptom with its diseases, sorted by name for display.
func (c *Catalog) Entries() []Entry {
	entries := make([]Entry, 0, len(c.order))
	for _, n := range c.order {
		entries = append(entries, Entry{Name: n, Diseases: c.Diseases(n)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Unknown returns the index of the first name not in the vocabulary.
func (c *Catalog) Unknown(names []Name) (int, bool) {
	for i, n := range names {
		if !c.Has(n) {
			return i, true
		}
	}
	return -1, false
}
