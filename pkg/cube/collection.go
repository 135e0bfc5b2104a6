package cube

import (
	"sort"
	"sync"
)

// Collection maps a dataset name, usually the file base name, to the
// ordered cubes read from it.
type Collection struct {
	mu       sync.RWMutex
	datasets map[string][]*Cube
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{datasets: make(map[string][]*Cube)}
}

// Add appends cubes to the named dataset.
func (c *Collection) Add(dataset string, cubes ...*Cube) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datasets[dataset] = append(c.datasets[dataset], cubes...)
}

// Get returns the cubes of a dataset in insertion order.
func (c *Collection) Get(dataset string) ([]*Cube, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cubes, ok := c.datasets[dataset]
	return append([]*Cube(nil), cubes...), ok
}

// Find returns the first cube with the given name across all datasets.
func (c *Collection) Find(name string) (*Cube, bool) {
	for _, cb := range c.All() {
		if cb.Name() == name {
			return cb, true
		}
	}
	return nil, false
}

// Names returns the dataset names in sorted order.
func (c *Collection) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.datasets))
	for name := range c.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every cube, datasets in sorted order.
func (c *Collection) All() []*Cube {
	var all []*Cube
	for _, name := range c.Names() {
		cubes, _ := c.Get(name)
		all = append(all, cubes...)
	}
	return all
}
