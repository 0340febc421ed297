package grounding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFactsAndRules(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	queries, err := db.LoadString(`
		% a weighted knowledge base
		3/10 :: edge(1, 2).
		edge(2, 3).
		path(X, Y) :- edge(X, Y).
		path(X, Y) :- edge(X, Z), path(Z, Y).
	`)
	req.NoError(err)
	req.Empty(queries)

	children, ok := db.lookupChildren(Signature{Functor: "edge", Arity: 2})
	req.True(ok)
	req.Len(children, 2)
	children, ok = db.lookupChildren(Signature{Functor: "path", Arity: 2})
	req.True(ok)
	req.Len(children, 2)
	_, ok = db.lookupChildren(Signature{Functor: "missing", Arity: 1})
	req.False(ok)
}

func TestParseProbabilities(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	_, err := db.LoadString(`
		3/10 :: burglary.
		1 :: certain.
		1/2 :: heads(c).
	`)
	req.NoError(err)

	children, _ := db.lookupChildren(Signature{Functor: "burglary", Arity: 0})
	fact := db.nodes[children[0]].(*factNode)
	req.Equal(Float(0.3), fact.probability)

	children, _ = db.lookupChildren(Signature{Functor: "certain", Arity: 0})
	fact = db.nodes[children[0]].(*factNode)
	req.Equal(Float(1), fact.probability)
}

func TestParseVariableNumbering(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	_, err := db.LoadString(`p(X, Y, X, _, _).`)
	req.NoError(err)

	children, _ := db.lookupChildren(Signature{Functor: "p", Arity: 5})
	fact := db.nodes[children[0]].(*factNode)
	// X, Y plus one slot per occurrence of '_'.
	req.Equal(4, fact.varCount)
	req.Equal(fact.args[0], fact.args[2])
	req.NotEqual(fact.args[3], fact.args[4])
}

func TestParseQueries(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	queries, err := db.LoadString(`
		edge(1, 2).
		?- edge(X, Y).
		?- edge(1, 2).
	`)
	req.NoError(err)
	req.Len(queries, 2)
	req.Equal("edge(X0, X1)", queries[0].String())
	req.Equal("edge(1, 2)", queries[1].String())
}

func TestParseLists(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	_, err := db.LoadString(`
		l1([]).
		l2([1, 2, 3]).
		l3([H | T]).
	`)
	req.NoError(err)

	children, _ := db.lookupChildren(Signature{Functor: "l2", Arity: 1})
	fact := db.nodes[children[0]].(*factNode)
	req.Equal("[1|[2|[3|[]]]]", fact.args[0].String())

	children, _ = db.lookupChildren(Signature{Functor: "l3", Arity: 1})
	fact = db.nodes[children[0]].(*factNode)
	req.Equal(2, fact.varCount)
}

func TestParseBodyOperators(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	_, err := db.LoadString(`
		b.
		c.
		a :- b, \+ c.
		d :- b ; c.
		e(X, Y) :- Y is X + 1, Y > 0.
	`)
	req.NoError(err)

	children, _ := db.lookupChildren(Signature{Functor: "a", Arity: 0})
	clause := db.nodes[children[0]].(*clauseNode)
	_, ok := db.nodes[clause.body].(*conjNode)
	req.True(ok)

	children, _ = db.lookupChildren(Signature{Functor: "d", Arity: 0})
	clause = db.nodes[children[0]].(*clauseNode)
	disj, ok := db.nodes[clause.body].(*disjNode)
	req.True(ok)
	req.Len(disj.children, 2)
}

func TestParseStrings(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	_, err := db.LoadString(`name(u1, "Alice").`)
	req.NoError(err)

	children, _ := db.lookupChildren(Signature{Functor: "name", Arity: 2})
	fact := db.nodes[children[0]].(*factNode)
	req.Equal(String("Alice"), fact.args[1])
}

func TestParseFullSyntax(t *testing.T) {
	req := require.New(t)

	// One statement per construct the grammar accepts; a failure here means
	// the grammar tables no longer build or a production was lost.
	db := NewClauseDB()
	queries, err := db.LoadString(`
		3/10 :: edge(1, 2).
		1/2 :: jump :- edge(1, 2).
		deep(f(g(X), [1, -2, "s" | T])).
		a. b. c.
		d :- a, (b ; c), \+ edge(2, 1).
		e(X, Y) :- Y is (X + 1) * -2 - min(X, 3), Y =< 0, Y =\= 1.
		u(X, Y) :- X = f(Y).
		?- d.
		?- e(1, Y).
	`)
	req.NoError(err)
	req.Len(queries, 2)

	children, ok := db.lookupChildren(Signature{Functor: "e", Arity: 2})
	req.True(ok)
	req.Len(children, 1)
	children, ok = db.lookupChildren(Signature{Functor: "jump", Arity: 0})
	req.True(ok)
	req.Len(children, 1)
}

func TestParseNegativeIntegers(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	_, err := db.LoadString(`p(-1, f(-2)).`)
	req.NoError(err)

	children, _ := db.lookupChildren(Signature{Functor: "p", Arity: 2})
	fact := db.nodes[children[0]].(*factNode)
	req.Equal(Integer(-1), fact.args[0])
	req.Equal("f(-2)", fact.args[1].String())
}

func TestParseLocations(t *testing.T) {
	req := require.New(t)

	tree, err := parseCode("\n\np :- q.")
	req.NoError(err)
	stmts := tree.([]AST)
	req.Len(stmts, 1)
	rule := stmts[0].(*ASTRule)
	req.Equal(3, rule.Loc.Line)
	req.Equal(3, rule.Head.Loc.Line)
}

func TestParseError(t *testing.T) {
	req := require.New(t)

	db := NewClauseDB()
	_, err := db.LoadString(`p(1`)
	req.Error(err)
}
