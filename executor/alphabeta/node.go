package alphabeta

import "github.com/brensch/checkers/game"

// NodeID addresses a node inside the Tree that created it.
type NodeID int32

// Root is the ID of the first node of every tree.
const Root NodeID = 0

// Node represents a position in the search tree.
//
// Piece and Destination record the move that produced the node from its
// parent; HasMove is false only at the root. Score is valid once Scored is
// set; children that a cutoff skipped stay unscored.
type Node[S any] struct {
	State       S
	Piece       game.Cell
	Destination game.Destination
	HasMove     bool

	// AiTurn is true when the AI is the side to move at this node.
	// Maximising plies are exactly the AI plies.
	AiTurn bool
	// Depth is the number of plies left below this node.
	Depth int

	Score  int
	Scored bool

	Children []NodeID
}

// Tree owns every node of one search. Nodes live in a single slice and
// reference their children by ID, so the whole tree is released at once.
type Tree[S any] struct {
	nodes []Node[S]
}

// NewTree creates a tree whose root holds state.
func NewTree[S any](state S, aiTurn bool, depth int) *Tree[S] {
	t := &Tree[S]{nodes: make([]Node[S], 0, 64)}
	t.nodes = append(t.nodes, Node[S]{
		State:  state,
		AiTurn: aiTurn,
		Depth:  depth,
	})
	return t
}

// Node returns the node with the given ID. The pointer is invalidated by the
// next AddChild call.
func (t *Tree[S]) Node(id NodeID) *Node[S] {
	return &t.nodes[id]
}

// Len is the number of nodes generated so far.
func (t *Tree[S]) Len() int { return len(t.nodes) }

// AddChild appends the position reached by playing piece to dst from parent.
// The child's turn flag is the negation of the parent's and its depth is one less.
func (t *Tree[S]) AddChild(parent NodeID, piece game.Cell, dst game.Destination, state S) NodeID {
	p := t.nodes[parent]
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, Node[S]{
		State:       state,
		Piece:       piece,
		Destination: dst,
		HasMove:     true,
		AiTurn:      !p.AiTurn,
		Depth:       p.Depth - 1,
	})
	t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	return id
}

// setScore records the evaluation of a node.
func (t *Tree[S]) setScore(id NodeID, score int) {
	n := &t.nodes[id]
	n.Score = score
	n.Scored = true
}

// Walk visits every node depth-first in generation order, parents first.
func (t *Tree[S]) Walk(fn func(id NodeID, n *Node[S]) bool) {
	var visit func(id NodeID) bool
	visit = func(id NodeID) bool {
		if !fn(id, &t.nodes[id]) {
			return false
		}
		for _, c := range t.nodes[id].Children {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	if len(t.nodes) > 0 {
		visit(Root)
	}
}
