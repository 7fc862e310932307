// Package tree rebuilds a forest from a flat list of entities that carry
// parent references.
package tree

import "sort"

// Node is one entity in the forest. Parent is a back-reference; top-level
// nodes have the root sentinel as parent.
type Node[T any] struct {
	Index    int // position among siblings
	Parent   *Node[T]
	Entity   T
	Children []*Node[T]

	present bool
	root    bool
}

// IsRoot reports whether n is the root sentinel.
func (n *Node[T]) IsRoot() bool {
	return n != nil && n.root
}

// Options tells Treeify how to read entities.
type Options[T any] struct {
	// ID returns the entity's identifier.
	ID func(T) string
	// Parent returns the identifier of the entity's parent, "" for top level.
	Parent func(T) string
	// Compare orders siblings. When nil, children keep input order.
	Compare func(a, b T) int
	// Linear ignores parents and returns a flat list.
	Linear bool
}

// Treeify builds the forest in one pass over entities. A parent may appear
// after its children; a placeholder stands in until it does. Entities whose
// parent never appears, or that sit on a parent cycle, are left out of the
// forest.
func Treeify[T any](entities []T, opts Options[T]) []*Node[T] {
	root := &Node[T]{root: true, present: true}
	nodes := map[string]*Node[T]{"": root}

	ensure := func(key string) *Node[T] {
		n, ok := nodes[key]
		if !ok {
			n = &Node[T]{}
			nodes[key] = n
		}
		return n
	}

	for _, e := range entities {
		key := opts.ID(e)
		if key == "" {
			continue
		}
		node := ensure(key)
		if node.present {
			// Duplicate entity: keep the first placement.
			continue
		}
		node.Entity = e
		node.present = true

		parentKey := ""
		if !opts.Linear && opts.Parent != nil {
			parentKey = opts.Parent(e)
		}
		if parentKey == key {
			parentKey = ""
		}
		parent := ensure(parentKey)
		node.Parent = parent
		node.Index = len(parent.Children)
		parent.Children = append(parent.Children, node)
	}

	if opts.Compare != nil {
		order(root, opts.Compare)
	}
	return root.Children
}

// order sorts every sibling list below n and recomputes indices.
func order[T any](n *Node[T], compare func(a, b T) int) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		return compare(n.Children[i].Entity, n.Children[j].Entity) < 0
	})
	for i, c := range n.Children {
		c.Index = i
		order(c, compare)
	}
}

// Walk visits every node depth first, passing its depth.
func Walk[T any](forest []*Node[T], fn func(n *Node[T], depth int)) {
	var visit func(nodes []*Node[T], depth int)
	visit = func(nodes []*Node[T], depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(forest, 0)
}
