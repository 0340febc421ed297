package grounding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormulaAtoms(t *testing.T) {
	req := require.New(t)

	f := NewFormula()
	h1 := f.AddAtom("a1", Float(0.5), "", Atom("a"))
	h2 := f.AddAtom("a2", Float(0.3), "", Atom("b"))
	req.NotEqual(h1, h2)

	// AddAtom is idempotent per identifier.
	req.Equal(h1, f.AddAtom("a1", Float(0.5), "", Atom("a")))
	req.Equal(2, f.Len())

	n, err := f.Node(h1)
	req.NoError(err)
	atom, ok := n.(*AtomNode)
	req.True(ok)
	req.Equal("a1", atom.Identifier)
	req.Equal([]NodeHandle{h1, h2}, f.Atoms())
}

func TestFormulaAndSimplification(t *testing.T) {
	req := require.New(t)

	f := NewFormula()
	h1 := f.AddAtom("a1", Float(0.5), "", Atom("a"))
	h2 := f.AddAtom("a2", Float(0.3), "", Atom("b"))

	req.Equal(TrueNode, f.AddAnd(nil))
	req.Equal(TrueNode, f.AddAnd([]NodeHandle{TrueNode, TrueNode}))
	req.Equal(h1, f.AddAnd([]NodeHandle{h1, TrueNode}))
	req.Equal(FalseNode, f.AddAnd([]NodeHandle{h1, FalseNode, h2}))

	and := f.AddAnd([]NodeHandle{h1, h2})
	req.NotEqual(h1, and)
	// Structurally equal conjunctions share a node.
	req.Equal(and, f.AddAnd([]NodeHandle{h1, h2}))
}

func TestFormulaOrReadOnly(t *testing.T) {
	req := require.New(t)

	f := NewFormula()
	h1 := f.AddAtom("a1", Float(0.5), "", Atom("a"))
	h2 := f.AddAtom("a2", Float(0.3), "", Atom("b"))

	req.Equal(FalseNode, f.AddOr(nil, true))
	req.Equal(h1, f.AddOr([]NodeHandle{h1, FalseNode}, true))
	req.Equal(TrueNode, f.AddOr([]NodeHandle{h1, TrueNode}, true))

	or := f.AddOr([]NodeHandle{h1, h2}, true)
	req.Equal(or, f.AddOr([]NodeHandle{h1, h2}, true))

	req.ErrorIs(f.AddDisjunct(or, h2), ErrReadOnlyNode)
}

func TestFormulaOrMutable(t *testing.T) {
	req := require.New(t)

	f := NewFormula()
	h1 := f.AddAtom("a1", Float(0.5), "", Atom("a"))
	h2 := f.AddAtom("a2", Float(0.3), "", Atom("b"))

	// A mutable OR keeps a stable handle of its own, never simplified away.
	or := f.AddOr([]NodeHandle{h1}, false)
	req.NotEqual(h1, or)
	or2 := f.AddOr([]NodeHandle{h1}, false)
	req.NotEqual(or, or2)

	req.NoError(f.AddDisjunct(or, h2))
	req.NoError(f.AddDisjunct(or, h2))
	req.NoError(f.AddDisjunct(or, FalseNode))
	n, err := f.Node(or)
	req.NoError(err)
	req.Equal([]NodeHandle{h1, h2}, n.(*OrNode).Children)

	req.Error(f.AddDisjunct(h1, h2))
}

func TestFormulaNot(t *testing.T) {
	req := require.New(t)

	f := NewFormula()
	h := f.AddAtom("a1", Float(0.5), "", Atom("a"))

	req.Equal(FalseNode, f.AddNot(TrueNode))
	req.Equal(TrueNode, f.AddNot(FalseNode))
	req.Equal(-h, f.AddNot(h))
	req.Equal(h, f.AddNot(f.AddNot(h)))

	// A negated handle resolves to the underlying node.
	n, err := f.Node(-h)
	req.NoError(err)
	req.IsType(&AtomNode{}, n)
}

func TestFormulaSentinelHandles(t *testing.T) {
	req := require.New(t)

	f := NewFormula()
	_, err := f.Node(TrueNode)
	req.Error(err)
	_, err = f.Node(FalseNode)
	req.Error(err)
	_, err = f.Node(NodeHandle(42))
	req.Error(err)
}
