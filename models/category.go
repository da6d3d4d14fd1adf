package models

import (
	"errors"
	"fmt"
)

// Category is a node in the generic classification tree. Parent is nil for
// roots. Cycles are forbidden by construction: Link walks ancestors before
// attaching, so no runtime cycle detection is needed elsewhere.
type Category struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	ParentID *int    `json:"parent_id,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// CategoryTree is an arena of category nodes addressed by integer id
type CategoryTree struct {
	nodes  map[int]*Category
	nextID int
}

// NewCategoryTree creates an empty category arena
func NewCategoryTree() *CategoryTree {
	return &CategoryTree{nodes: make(map[int]*Category), nextID: 1}
}

// Add inserts a node with no parent and returns its id
func (t *CategoryTree) Add(name string) (int, error) {
	if name == "" {
		return 0, errors.New("category name must not be empty")
	}
	id := t.nextID
	t.nextID++
	t.nodes[id] = &Category{ID: id, Name: name}
	return id, nil
}

// Get returns the node with the given id, or nil
func (t *CategoryTree) Get(id int) *Category {
	return t.nodes[id]
}

// Link sets parentID as the parent of id. It refuses links that would
// create a cycle by walking the ancestor chain of the proposed parent.
func (t *CategoryTree) Link(id, parentID int) error {
	if t.nodes[id] == nil {
		return fmt.Errorf("category %d does not exist", id)
	}
	if t.nodes[parentID] == nil {
		return fmt.Errorf("parent category %d does not exist", parentID)
	}
	if id == parentID {
		return fmt.Errorf("category %d cannot be its own parent", id)
	}
	for cur := t.nodes[parentID]; cur != nil && cur.ParentID != nil; cur = t.nodes[*cur.ParentID] {
		if *cur.ParentID == id {
			return fmt.Errorf("linking category %d under %d would create a cycle", id, parentID)
		}
	}
	pid := parentID
	t.nodes[id].ParentID = &pid
	return nil
}

// Children returns the ids of the direct children of id, in id order
func (t *CategoryTree) Children(id int) []int {
	var out []int
	for i := 1; i < t.nextID; i++ {
		n := t.nodes[i]
		if n != nil && n.ParentID != nil && *n.ParentID == id {
			out = append(out, i)
		}
	}
	return out
}
