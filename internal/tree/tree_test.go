package tree

import (
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/dyluth/streams/internal/ordering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id     string
	parent string
	index  ordering.Index
}

func options(compare bool) Options[item] {
	opts := Options[item]{
		ID:     func(i item) string { return i.id },
		Parent: func(i item) string { return i.parent },
	}
	if compare {
		opts.Compare = func(a, b item) int {
			return ordering.CompareWithID(a.index, a.id, b.index, b.id)
		}
	}
	return opts
}

// shape renders a forest as "id(child,child)" for structural comparison.
func shape(forest []*Node[item]) string {
	parts := make([]string, 0, len(forest))
	for _, n := range forest {
		s := n.Entity.id
		if len(n.Children) > 0 {
			s += "(" + shape(n.Children) + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

// edges lists parent/child pairs, sorted, ignoring sibling order.
func edges(forest []*Node[item]) []string {
	var out []string
	Walk(forest, func(n *Node[item], depth int) {
		parent := ""
		if !n.Parent.IsRoot() {
			parent = n.Parent.Entity.id
		}
		out = append(out, parent+">"+n.Entity.id)
	})
	sort.Strings(out)
	return out
}

func TestTreeify(t *testing.T) {
	items := []item{
		{id: "a"},
		{id: "b", parent: "a"},
		{id: "c", parent: "a"},
		{id: "d", parent: "c"},
		{id: "e"},
	}

	forest := Treeify(items, options(false))
	assert.Equal(t, "a(b,c(d)),e", shape(forest))

	t.Run("parents and indices", func(t *testing.T) {
		a := forest[0]
		assert.True(t, a.Parent.IsRoot())
		assert.Equal(t, 0, a.Index)
		assert.Equal(t, 1, forest[1].Index)

		c := a.Children[1]
		assert.Equal(t, "c", c.Entity.id)
		assert.Equal(t, 1, c.Index)
		assert.Same(t, a, c.Parent)
		assert.Same(t, c, c.Children[0].Parent)
		assert.False(t, a.IsRoot())
	})

	t.Run("parents after children", func(t *testing.T) {
		reversed := []item{items[3], items[2], items[1], items[0], items[4]}
		assert.Equal(t, "a(c(d),b),e", shape(Treeify(reversed, options(false))))
	})

	t.Run("linear ignores parents", func(t *testing.T) {
		opts := options(false)
		opts.Linear = true
		assert.Equal(t, "a,b,c,d,e", shape(Treeify(items, opts)))
	})

	t.Run("orphans are dropped", func(t *testing.T) {
		withOrphan := append([]item{{id: "x", parent: "missing"}}, items...)
		assert.Equal(t, "a(b,c(d)),e", shape(Treeify(withOrphan, options(false))))
	})

	t.Run("cycles are dropped", func(t *testing.T) {
		cyclic := []item{{id: "p", parent: "q"}, {id: "q", parent: "p"}, {id: "r"}}
		assert.Equal(t, "r", shape(Treeify(cyclic, options(false))))
	})

	t.Run("duplicates keep first placement", func(t *testing.T) {
		dup := append(append([]item{}, items...), item{id: "b", parent: "e"})
		assert.Equal(t, "a(b,c(d)),e", shape(Treeify(dup, options(false))))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Treeify(nil, options(false)))
	})
}

func TestTreeifyCompare(t *testing.T) {
	items := []item{
		{id: "b", index: ordering.Of("b")},
		{id: "a", index: ordering.Of("a")},
		{id: "c2", parent: "a", index: ordering.Of("z")},
		{id: "c1", parent: "a", index: ordering.Of("y")},
	}

	forest := Treeify(items, options(true))
	assert.Equal(t, "a(c1,c2),b", shape(forest))
	assert.Equal(t, 0, forest[0].Children[0].Index)
	assert.Equal(t, 1, forest[0].Children[1].Index)
	assert.Equal(t, 1, forest[1].Index)
}

func TestTreeifyIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	var items []item
	for i := 0; i < 60; i++ {
		id := string(rune('A'+i%26)) + string(rune('a'+i/26))
		parent := ""
		if i > 0 && rng.Intn(3) > 0 {
			parent = items[rng.Intn(len(items))].id
		}
		items = append(items, item{id: id, parent: parent, index: ordering.Of(id)})
	}

	baseline := Treeify(items, options(true))
	baselineEdges := edges(baseline)
	require.Len(t, baselineEdges, len(items))

	for round := 0; round < 10; round++ {
		shuffled := append([]item{}, items...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		assert.Equal(t, shape(baseline), shape(Treeify(shuffled, options(true))))
		assert.Equal(t, baselineEdges, edges(Treeify(shuffled, options(false))))
	}
}

func TestEndToEnd(t *testing.T) {
	a := item{id: "a", index: ordering.Of("a")}
	b := item{id: "b", parent: "a", index: ordering.Of("b")}
	c := item{id: "c", index: ordering.Between("c", a.index, b.index)}

	assert.Negative(t, ordering.Compare(a.index, c.index))
	assert.Negative(t, ordering.Compare(c.index, b.index))

	forest := Treeify([]item{a, b, c}, options(true))
	require.Len(t, forest, 2)
	assert.Equal(t, "a(b),c", shape(forest))
	assert.Equal(t, "c", forest[1].Entity.id)
}
