package grounding

import (
	"context"
	"testing"

	"github.com/phomola/textkit"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTrueFail(t *testing.T) {
	req := require.New(t)

	e := NewEngine(NewClauseDB(), NewFormula())

	r, err := e.Execute(context.Background(), Atom("true"))
	req.NoError(err)
	req.Len(r, 1)
	req.Equal(TrueNode, r[0].Node)

	r, err = e.Execute(context.Background(), Atom("fail"))
	req.NoError(err)
	req.Empty(r)

	r, err = e.Execute(context.Background(), Atom("false"))
	req.NoError(err)
	req.Empty(r)
}

func TestBuiltinUnify(t *testing.T) {
	req := require.New(t)

	e := NewEngine(NewClauseDB(), NewFormula())

	r, err := e.Execute(context.Background(), &CompoundTerm{Functor: "=", Args: []Term{Variable(0), Atom("a")}})
	req.NoError(err)
	req.Len(r, 1)
	req.Equal(Binding{Atom("a"), Atom("a")}, r[0].Args)

	r, err = e.Execute(context.Background(), &CompoundTerm{Functor: "=", Args: []Term{Atom("a"), Atom("b")}})
	req.NoError(err)
	req.Empty(r)

	// Unification descends into compound terms.
	r, err = e.Execute(context.Background(), &CompoundTerm{Functor: "=", Args: []Term{
		&CompoundTerm{Functor: "f", Args: []Term{Variable(0), Integer(2)}},
		&CompoundTerm{Functor: "f", Args: []Term{Integer(1), Variable(1)}},
	}})
	req.NoError(err)
	req.Len(r, 1)
	req.Equal("f(1, 2)", r[0].Args[0].String())
}

func TestBuiltinIs(t *testing.T) {
	req := require.New(t)

	e := NewEngine(NewClauseDB(), NewFormula())

	r, err := e.Execute(context.Background(), &CompoundTerm{Functor: "is", Args: []Term{
		Variable(0),
		&CompoundTerm{Functor: "+", Args: []Term{Integer(1), &CompoundTerm{Functor: "*", Args: []Term{Integer(2), Integer(3)}}}},
	}})
	req.NoError(err)
	req.Len(r, 1)
	req.Equal(Integer(7), r[0].Args[0])

	// Mixed integer and float arithmetic yields a float.
	r, err = e.Execute(context.Background(), &CompoundTerm{Functor: "is", Args: []Term{
		Variable(0),
		&CompoundTerm{Functor: "+", Args: []Term{Integer(1), Float(0.5)}},
	}})
	req.NoError(err)
	req.Len(r, 1)
	req.Equal(Float(1.5), r[0].Args[0])

	// A mismatched left side fails silently.
	r, err = e.Execute(context.Background(), &CompoundTerm{Functor: "is", Args: []Term{
		Integer(3),
		&CompoundTerm{Functor: "+", Args: []Term{Integer(1), Integer(1)}},
	}})
	req.NoError(err)
	req.Empty(r)
}

func TestBuiltinIsFunctions(t *testing.T) {
	req := require.New(t)

	e := NewEngine(NewClauseDB(), NewFormula())
	cases := []struct {
		expr Term
		want Term
	}{
		{&CompoundTerm{Functor: "mod", Args: []Term{Integer(7), Integer(3)}}, Integer(1)},
		{&CompoundTerm{Functor: "abs", Args: []Term{Integer(-4)}}, Integer(4)},
		{&CompoundTerm{Functor: "min", Args: []Term{Integer(2), Integer(5)}}, Integer(2)},
		{&CompoundTerm{Functor: "max", Args: []Term{Integer(2), Float(5)}}, Float(5)},
	}
	for _, c := range cases {
		r, err := e.Execute(context.Background(), &CompoundTerm{Functor: "is", Args: []Term{Variable(0), c.expr}})
		req.NoError(err)
		req.Len(r, 1)
		req.Equal(c.want, r[0].Args[0], c.expr.String())
	}
}

func TestBuiltinIsErrors(t *testing.T) {
	req := require.New(t)

	e := NewEngine(NewClauseDB(), NewFormula())

	_, err := e.Execute(context.Background(), &CompoundTerm{Functor: "is", Args: []Term{
		Variable(0),
		&CompoundTerm{Functor: "+", Args: []Term{Integer(1), Variable(1)}},
	}})
	var arithErr *ArithmeticError
	req.ErrorAs(err, &arithErr)

	_, err = e.Execute(context.Background(), &CompoundTerm{Functor: "is", Args: []Term{
		Variable(0),
		&CompoundTerm{Functor: "/", Args: []Term{Integer(1), Integer(0)}},
	}})
	req.ErrorAs(err, &arithErr)
}

func TestBuiltinComparisons(t *testing.T) {
	req := require.New(t)

	e := NewEngine(NewClauseDB(), NewFormula())
	cases := []struct {
		op   string
		a, b Term
		ok   bool
	}{
		{"<", Integer(1), Integer(2), true},
		{"<", Integer(2), Integer(2), false},
		{">", Integer(3), Integer(2), true},
		{"=<", Integer(2), Integer(2), true},
		{">=", Integer(1), Integer(2), false},
		{"=:=", Integer(2), Float(2), true},
		{`=\=`, Integer(2), Integer(3), true},
		{`=\=`, Integer(2), Integer(2), false},
	}
	for _, c := range cases {
		r, err := e.Execute(context.Background(), &CompoundTerm{Functor: c.op, Args: []Term{c.a, c.b}})
		req.NoError(err)
		if c.ok {
			req.Len(r, 1, "%s %s %s", c.a, c.op, c.b)
		} else {
			req.Empty(r, "%s %s %s", c.a, c.op, c.b)
		}
	}
}

func TestBuiltinOverriddenByDefine(t *testing.T) {
	req := require.New(t)

	// A predicate definition takes precedence over a builtin of the same
	// signature.
	db := loadDB(t, `true :- fail.`)
	e := NewEngine(db, NewFormula())
	r, err := e.Execute(context.Background(), Atom("true"))
	req.NoError(err)
	req.Empty(r)
}

func TestRegisterBuiltin(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	db.RegisterBuiltin(Signature{Functor: "answer", Arity: 1}, func(e *Engine, call *CompoundTerm, _ textkit.Location) ([]BuiltinResult, error) {
		return []BuiltinResult{{Args: []Term{Integer(42)}, Node: TrueNode}}, nil
	})
	e := NewEngine(db, NewFormula())
	r, err := e.Execute(context.Background(), &CompoundTerm{Functor: "answer", Args: []Term{Variable(0)}})
	req.NoError(err)
	req.Len(r, 1)
	req.Equal(Integer(42), r[0].Args[0])
}
