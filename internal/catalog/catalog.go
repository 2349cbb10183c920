// Package catalog holds the static registry of watched product categories.
package catalog

import "fmt"

// Category is an immutable watch target: a keyword list searched on every source,
// the collector price ceiling and the absolute floor used by the detector.
type Category struct {
	Key                string   `json:"key"`
	DisplayName        string   `json:"display_name"`
	Glyph              string   `json:"glyph"`
	Keywords           []string `json:"keywords"`
	MaxPrice           float64  `json:"max_price"`
	AbsoluteFloorPrice float64  `json:"absolute_floor_price"`
}

// Registry is an ordered, read-only set of categories.
type Registry struct {
	order []string
	byKey map[string]Category
}

// New builds a Registry preserving the given order. Keys must be unique and non-empty.
func New(categories ...Category) (*Registry, error) {
	r := &Registry{
		order: make([]string, 0, len(categories)),
		byKey: make(map[string]Category, len(categories)),
	}
	for _, c := range categories {
		if c.Key == "" {
			return nil, fmt.Errorf("category key is required")
		}
		if _, dup := r.byKey[c.Key]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.Key)
		}
		if c.MaxPrice < 0 || c.AbsoluteFloorPrice < 0 {
			return nil, fmt.Errorf("category %q: prices must be >= 0", c.Key)
		}
		r.order = append(r.order, c.Key)
		r.byKey[c.Key] = clone(c)
	}
	return r, nil
}

// All returns the categories in registry order.
func (r *Registry) All() []Category {
	out := make([]Category, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, clone(r.byKey[key]))
	}
	return out
}

// Get returns the category for key.
func (r *Registry) Get(key string) (Category, bool) {
	c, ok := r.byKey[key]
	if !ok {
		return Category{}, false
	}
	return clone(c), true
}

// Len returns the number of categories.
func (r *Registry) Len() int {
	return len(r.order)
}

func clone(c Category) Category {
	cp := c
	cp.Keywords = append([]string(nil), c.Keywords...)
	return cp
}
