package grounding

import (
	"context"
	"fmt"
)

func ExampleEngine_Execute() {
	db := NewClauseDB()
	_, err := db.LoadString(`
		3/10 :: edge(1, 2).
		2/5 :: edge(2, 3).
		1/10 :: edge(1, 3).
		path(X, Y) :- edge(X, Y).
		path(X, Y) :- edge(X, Z), path(Z, Y).
	`)
	if err != nil {
		panic(err)
	}
	f := NewFormula()
	e := NewEngine(db, f)
	results, err := e.Execute(context.Background(), &CompoundTerm{Functor: "path", Args: []Term{Integer(1), Integer(3)}})
	if err != nil {
		panic(err)
	}
	ev := NewEvaluator(f, ProbabilitySemiring{})
	for _, r := range results {
		w, err := ev.Evaluate(r.Node)
		if err != nil {
			panic(err)
		}
		fmt.Printf("path%s: %.2f\n", r.Args, w)
	}
	// Output:
	// path(1, 3): 0.22
}

func ExampleEngine_Execute_queries() {
	db := NewClauseDB()
	queries, err := db.LoadString(`
		parent(alice, bob).
		parent(bob, carol).
		ancestor(X, Y) :- parent(X, Y).
		ancestor(X, Y) :- parent(X, Z), ancestor(Z, Y).
		?- ancestor(alice, X).
	`)
	if err != nil {
		panic(err)
	}
	e := NewEngine(db, NewFormula())
	for _, q := range queries {
		results, err := e.Execute(context.Background(), q)
		if err != nil {
			panic(err)
		}
		for _, r := range results {
			fmt.Println(r.Args)
		}
	}
	// Output:
	// (alice, bob)
	// (alice, carol)
}
