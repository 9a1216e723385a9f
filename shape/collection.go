package shape

import "sync"

// Collection is the ordered set of shapes on one canvas. Insertion order is
// paint order, so later shapes occlude earlier ones.
type Collection struct {
	shapes []Shape
	index  map[string]int
	mu     sync.RWMutex
}

// NewCollection creates a collection holding shapes in the given order.
func NewCollection(shapes ...Shape) *Collection {
	c := &Collection{index: make(map[string]int)}
	for _, s := range shapes {
		c.upsert(s)
	}
	return c
}

// Add appends a shape. A shape whose id is already present replaces the
// earlier one in place, so the collection never holds two shapes with the
// same id.
func (c *Collection) Add(s Shape) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsert(s)
}

// Upsert reports whether an existing shape was replaced.
func (c *Collection) Upsert(s Shape) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsert(s)
}

func (c *Collection) upsert(s Shape) bool {
	if s == nil {
		return false
	}
	if i, ok := c.index[s.ShapeID()]; ok {
		c.shapes[i] = s
		return true
	}
	c.index[s.ShapeID()] = len(c.shapes)
	c.shapes = append(c.shapes, s)
	return false
}

// Remove deletes the shape with the given id and reports whether it existed.
func (c *Collection) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.shapes = append(c.shapes[:i], c.shapes[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.shapes); j++ {
		c.index[c.shapes[j].ShapeID()] = j
	}
	return true
}

// Clear empties the collection.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shapes = nil
	c.index = make(map[string]int)
}

// Replace swaps the whole contents for shapes, keeping their order.
func (c *Collection) Replace(shapes []Shape) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shapes = nil
	c.index = make(map[string]int, len(shapes))
	for _, s := range shapes {
		c.upsert(s)
	}
}

// Shapes returns a copy of all shapes in paint order.
func (c *Collection) Shapes() []Shape {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Shape, len(c.shapes))
	copy(out, c.shapes)
	return out
}

// Len returns the number of shapes.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.shapes)
}

// Contains reports whether a shape with id is present.
func (c *Collection) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

// Get returns the shape with the given id.
func (c *Collection) Get(id string) (Shape, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.shapes[i], true
}

// TopmostAt returns the last painted shape that contains p.
func (c *Collection) TopmostAt(p Point, tol float64) (Shape, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.shapes) - 1; i >= 0; i-- {
		if c.shapes[i].Contains(p, tol) {
			return c.shapes[i], true
		}
	}
	return nil, false
}
