package grounding

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NodeHandle is a handle of a node of a ground formula. Positive handles
// address nodes, negative handles their negation. Equal handles represent
// semantically equivalent sub-formulas.
type NodeHandle int

// Sentinel handles recognized by identity.
const (
	// TrueNode is the identity for conjunction.
	TrueNode NodeHandle = 0
	// FalseNode is the identity for disjunction and absorbing for conjunction.
	FalseNode NodeHandle = math.MinInt
)

// FormulaTarget accumulates the ground AND/OR/NOT formula produced by the
// engine. Implementations must deduplicate structurally equal nodes.
type FormulaTarget interface {
	// AddAtom adds a weighted atom. It is idempotent per identifier.
	AddAtom(identifier string, probability Term, group string, name Term) NodeHandle
	// AddAnd adds a conjunction of the given nodes.
	AddAnd(children []NodeHandle) NodeHandle
	// AddOr adds a disjunction of the given nodes. A read-only disjunction
	// may be simplified and shared; a mutable one accepts later disjuncts.
	AddOr(children []NodeHandle, readonly bool) NodeHandle
	// AddNot adds the negation of the given node.
	AddNot(child NodeHandle) NodeHandle
	// AddDisjunct adds a disjunct to a mutable OR node in place.
	AddDisjunct(or NodeHandle, child NodeHandle) error
}

// FormulaNode is a node of a ground formula.
type FormulaNode interface {
	nodeLabel() string
}

// AtomNode is a weighted atom of a ground formula.
type AtomNode struct {
	Identifier  string
	Probability Term
	Group       string
	Name        Term
}

func (n *AtomNode) nodeLabel() string { return "atom " + n.Identifier }

// AndNode is a conjunction of formula nodes.
type AndNode struct {
	Children []NodeHandle
}

func (n *AndNode) nodeLabel() string { return "and" }

// OrNode is a disjunction of formula nodes. A mutable OR node accepts
// further disjuncts after construction; its handle stays stable.
type OrNode struct {
	Children []NodeHandle
	ReadOnly bool
}

func (n *OrNode) nodeLabel() string { return "or" }

// Formula is an in-memory formula target with structural sharing.
type Formula struct {
	nodes []FormulaNode
	index map[string]NodeHandle
	atoms map[string]NodeHandle
}

// NewFormula creates an empty formula.
func NewFormula() *Formula {
	return &Formula{
		index: make(map[string]NodeHandle),
		atoms: make(map[string]NodeHandle),
	}
}

// Len returns the number of nodes in the formula.
func (f *Formula) Len() int { return len(f.nodes) }

// Node returns the node addressed by a handle. Negated handles return the
// underlying node; sentinel handles have no node.
func (f *Formula) Node(h NodeHandle) (FormulaNode, error) {
	if h == TrueNode || h == FalseNode {
		return nil, fmt.Errorf("sentinel handle %d has no node", h)
	}
	if h < 0 {
		h = -h
	}
	if int(h) > len(f.nodes) {
		return nil, fmt.Errorf("no node for handle %d", h)
	}
	return f.nodes[h-1], nil
}

// Atoms returns the handles of all atoms in insertion order.
func (f *Formula) Atoms() []NodeHandle {
	var hs []NodeHandle
	for i, n := range f.nodes {
		if _, ok := n.(*AtomNode); ok {
			hs = append(hs, NodeHandle(i+1))
		}
	}
	return hs
}

func (f *Formula) add(n FormulaNode) NodeHandle {
	f.nodes = append(f.nodes, n)
	return NodeHandle(len(f.nodes))
}

// AddAtom adds a weighted atom, reusing the existing node for an already
// known identifier.
func (f *Formula) AddAtom(identifier string, probability Term, group string, name Term) NodeHandle {
	if h, ok := f.atoms[identifier]; ok {
		return h
	}
	h := f.add(&AtomNode{Identifier: identifier, Probability: probability, Group: group, Name: name})
	f.atoms[identifier] = h
	return h
}

// AddAnd adds a conjunction of the given nodes.
func (f *Formula) AddAnd(children []NodeHandle) NodeHandle {
	var kept []NodeHandle
	for _, c := range children {
		switch c {
		case FalseNode:
			return FalseNode
		case TrueNode:
		default:
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return TrueNode
	case 1:
		return kept[0]
	}
	key := handlesKey('A', kept)
	if h, ok := f.index[key]; ok {
		return h
	}
	h := f.add(&AndNode{Children: kept})
	f.index[key] = h
	return h
}

// AddOr adds a disjunction of the given nodes. Only read-only disjunctions
// are simplified and shared; a mutable disjunction must keep a stable handle
// of its own because later disjuncts mutate it in place.
func (f *Formula) AddOr(children []NodeHandle, readonly bool) NodeHandle {
	var kept []NodeHandle
	for _, c := range children {
		switch c {
		case TrueNode:
			if readonly {
				return TrueNode
			}
			kept = append(kept, c)
		case FalseNode:
		default:
			kept = append(kept, c)
		}
	}
	if readonly {
		switch len(kept) {
		case 0:
			return FalseNode
		case 1:
			return kept[0]
		}
		key := handlesKey('O', kept)
		if h, ok := f.index[key]; ok {
			return h
		}
		h := f.add(&OrNode{Children: kept, ReadOnly: true})
		f.index[key] = h
		return h
	}
	return f.add(&OrNode{Children: kept})
}

// AddNot adds the negation of the given node.
func (f *Formula) AddNot(child NodeHandle) NodeHandle {
	switch child {
	case TrueNode:
		return FalseNode
	case FalseNode:
		return TrueNode
	default:
		return -child
	}
}

// AddDisjunct adds a disjunct to a mutable OR node.
func (f *Formula) AddDisjunct(or NodeHandle, child NodeHandle) error {
	n, err := f.Node(or)
	if err != nil {
		return err
	}
	o, ok := n.(*OrNode)
	if !ok {
		return fmt.Errorf("cannot add disjunct to %s node %d", n.nodeLabel(), or)
	}
	if o.ReadOnly {
		return ErrReadOnlyNode
	}
	if child == FalseNode {
		return nil
	}
	for _, c := range o.Children {
		if c == child {
			return nil
		}
	}
	o.Children = append(o.Children, child)
	return nil
}

func handlesKey(kind rune, hs []NodeHandle) string {
	var sb strings.Builder
	sb.WriteRune(kind)
	for _, h := range hs {
		sb.WriteRune(' ')
		sb.WriteString(strconv.Itoa(int(h)))
	}
	return sb.String()
}
