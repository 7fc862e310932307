package streams

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/streams/internal/secure"
	"github.com/dyluth/streams/internal/tree"
)

// MessageNode is a message in a stream's display forest.
type MessageNode = tree.Node[*secure.Entity]

// Intent is a compound move staged as an ordered list of field writes.
//
// The store has no transactions: a commit that stops half way leaves a
// message with a new parent and an old index, or the reverse. The next read
// orders it by whatever index it holds, so the view stays consistent and the
// move can simply be repeated.
type Intent struct {
	Name   string
	writes []secure.Put
	writer *secure.Writer
}

// Steps describes the staged writes in commit order.
func (in *Intent) Steps() []string {
	steps := make([]string, len(in.writes))
	for i, p := range in.writes {
		target, _ := p.Address()
		steps[i] = fmt.Sprintf("%s.%s = %s", target, p.Key, p.Value)
	}
	return steps
}

// Commit applies the staged writes in order and stops at the first failure.
func (in *Intent) Commit(ctx context.Context) error {
	for i, p := range in.writes {
		if err := in.writer.Put(ctx, p); err != nil {
			log.Printf("[Streams] %s committed %d/%d writes: %v", in.Name, i, len(in.writes), err)
			return fmt.Errorf("%s: write %d/%d: %w", in.Name, i+1, len(in.writes), err)
		}
	}
	return nil
}

func (s *Service) intent(name string, writes ...secure.Put) *Intent {
	return &Intent{Name: name, writes: writes, writer: s.writer}
}

func siblings(node *MessageNode) []*MessageNode {
	if node == nil || node.Parent == nil {
		return nil
	}
	return node.Parent.Children
}

func sibling(node *MessageNode, offset int) *MessageNode {
	list := siblings(node)
	i := node.Index + offset
	if i < 0 || i >= len(list) {
		return nil
	}
	return list[i]
}

func entityOf(node *MessageNode) *secure.Entity {
	if node == nil {
		return nil
	}
	return node.Entity
}

// Indent stages making node the last child of its previous sibling.
func (s *Service) Indent(stream *secure.Entity, node *MessageNode) (*Intent, error) {
	prev := sibling(node, -1)
	if prev == nil {
		return nil, fmt.Errorf("%w: no previous sibling", ErrNoMove)
	}
	id := secure.ID(node.Entity)

	appendWrite, err := s.stageAppend(stream, id, secure.ID(prev.Entity))
	if err != nil {
		return nil, err
	}
	writes := []secure.Put{appendWrite}

	if n := len(prev.Children); n > 0 {
		moveWrite, err := s.stageMove(stream, id, prev.Children[n-1].Entity, nil)
		if err != nil {
			return nil, err
		}
		writes = append(writes, moveWrite)
	}
	return s.intent("indent", writes...), nil
}

// Outdent stages making node the sibling that follows its parent.
func (s *Service) Outdent(stream *secure.Entity, node *MessageNode) (*Intent, error) {
	if node == nil || node.Parent == nil || node.Parent.IsRoot() {
		return nil, fmt.Errorf("%w: already at top level", ErrNoMove)
	}
	parent := node.Parent
	grandparent := parent.Parent
	id := secure.ID(node.Entity)

	grandparentID := ""
	if !grandparent.IsRoot() {
		grandparentID = secure.ID(grandparent.Entity)
	}
	appendWrite, err := s.stageAppend(stream, id, grandparentID)
	if err != nil {
		return nil, err
	}
	moveWrite, err := s.stageMove(stream, id, parent.Entity, entityOf(sibling(parent, 1)))
	if err != nil {
		return nil, err
	}
	return s.intent("outdent", appendWrite, moveWrite), nil
}

// MoveUp stages swapping node with its previous sibling.
func (s *Service) MoveUp(stream *secure.Entity, node *MessageNode) (*Intent, error) {
	prev := sibling(node, -1)
	if prev == nil {
		return nil, fmt.Errorf("%w: already first", ErrNoMove)
	}
	moveWrite, err := s.stageMove(stream, secure.ID(node.Entity), entityOf(sibling(node, -2)), prev.Entity)
	if err != nil {
		return nil, err
	}
	return s.intent("move up", moveWrite), nil
}

// MoveDown stages swapping node with its next sibling.
func (s *Service) MoveDown(stream *secure.Entity, node *MessageNode) (*Intent, error) {
	next := sibling(node, 1)
	if next == nil {
		return nil, fmt.Errorf("%w: already last", ErrNoMove)
	}
	moveWrite, err := s.stageMove(stream, secure.ID(node.Entity), next.Entity, entityOf(sibling(node, 2)))
	if err != nil {
		return nil, err
	}
	return s.intent("move down", moveWrite), nil
}
