package grounding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSExpr(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	err := db.LoadSExpr(`
		((parent alice bob))
		((parent bob carol))
		((ancestor X Y) (parent X Y))
		((ancestor X Y) (parent X Z) (ancestor Z Y))
	`)
	req.NoError(err)

	e := NewEngine(db, NewFormula())
	r, err := e.Execute(context.Background(), &CompoundTerm{Functor: "ancestor", Args: []Term{Atom("alice"), Variable(0)}})
	req.NoError(err)
	req.Len(r, 2)
	req.Equal(Atom("bob"), r[0].Args[1])
	req.Equal(Atom("carol"), r[1].Args[1])
}

func TestLoadSExprWeighted(t *testing.T) {
	req := require.New(t)

	f := NewFormula()
	db := NewClauseDB()
	err := db.LoadSExpr(`
		(:: "3/10" (burglary))
		(:: "0.2" (earthquake))
		((alarm) (burglary))
		((alarm) (earthquake))
	`)
	req.NoError(err)

	e := NewEngine(db, f)
	r, err := e.Execute(context.Background(), Atom("alarm"))
	req.NoError(err)
	req.Len(r, 1)
	req.Len(f.Atoms(), 2)

	w, err := NewEvaluator(f, MaxTimesSemiring{}).Evaluate(r[0].Node)
	req.NoError(err)
	req.InDelta(0.3, w, 1e-9)
}

func TestLoadSExprErrors(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	req.Error(db.LoadSExpr(`(())`))
	req.Error(db.LoadSExpr(`(:: "nope" (p))`))
	req.Error(db.LoadSExpr(`(:: "1/0" (p))`))
	req.Error(db.LoadSExpr(`(42)`))
}

func TestLoadSExprIntegers(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	err := db.LoadSExpr(`((edge 1 2))`)
	req.NoError(err)

	children, _ := db.lookupChildren(Signature{Functor: "edge", Arity: 2})
	fact := db.nodes[children[0]].(*factNode)
	req.Equal([]Term{Integer(1), Integer(2)}, fact.args)
}
