//go:build dbtest
// +build dbtest

package grounding

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	// import PG
	_ "github.com/lib/pq"
)

func TestFetchFacts(t *testing.T) {
	req := require.New(t)

	db, err := sql.Open("postgres", os.Getenv("DB_DSN"))
	req.NoError(err)
	defer db.Close()

	_, err = db.Exec(`DROP TABLE IF EXISTS dummy_relation`)
	req.NoError(err)
	_, err = db.Exec(`CREATE TABLE dummy_relation (name TEXT, age INTEGER, height REAL)`)
	req.NoError(err)
	_, err = db.Exec(`INSERT INTO dummy_relation (name, age, height) VALUES ('name1', 18, 1.6)`)
	req.NoError(err)
	_, err = db.Exec(`INSERT INTO dummy_relation (name, age, height) VALUES ('name2', 19, 1.7)`)
	req.NoError(err)

	cdb := NewClauseDB()
	RegisterDBBuiltins(cdb)
	e := NewEngine(cdb, NewFormula())
	e.DB = db

	cols := ListFromSlice([]Term{
		&CompoundTerm{Functor: "col", Args: []Term{String("name"), Atom("string")}},
		&CompoundTerm{Functor: "col", Args: []Term{String("age"), Atom("int")}},
		&CompoundTerm{Functor: "col", Args: []Term{String("height"), Atom("float")}},
	}, Nil)

	r, err := e.Execute(context.Background(), &CompoundTerm{Functor: "fetchFacts", Args: []Term{
		String("dummy_relation"),
		cols,
		ListFromSlice([]Term{Variable(0), Variable(1), Variable(2)}, Nil),
	}})
	req.NoError(err)
	req.Len(r, 2)

	// A ground value becomes an equality filter.
	r, err = e.Execute(context.Background(), &CompoundTerm{Functor: "fetchFacts", Args: []Term{
		String("dummy_relation"),
		cols,
		ListFromSlice([]Term{Variable(0), Integer(19), Variable(1)}, Nil),
	}})
	req.NoError(err)
	req.Len(r, 1)
	vals, err := ListToSlice(r[0].Args[2])
	req.NoError(err)
	req.Equal(String("name2"), vals[0])
	req.Equal(Float(1.7), vals[2])
}

func TestFetchWeightedFacts(t *testing.T) {
	req := require.New(t)

	db, err := sql.Open("postgres", os.Getenv("DB_DSN"))
	req.NoError(err)
	defer db.Close()

	_, err = db.Exec(`DROP TABLE IF EXISTS weighted_relation`)
	req.NoError(err)
	_, err = db.Exec(`CREATE TABLE weighted_relation (id UUID PRIMARY KEY, prob REAL, name TEXT)`)
	req.NoError(err)
	_, err = db.Exec(`INSERT INTO weighted_relation (id, prob, name) VALUES (gen_random_uuid(), 0.3, 'name1')`)
	req.NoError(err)
	_, err = db.Exec(`INSERT INTO weighted_relation (id, prob, name) VALUES (gen_random_uuid(), 0.6, 'name2')`)
	req.NoError(err)

	cdb := NewClauseDB()
	RegisterDBBuiltins(cdb)
	f := NewFormula()
	e := NewEngine(cdb, f)
	e.DB = db

	r, err := e.Execute(context.Background(), &CompoundTerm{Functor: "fetchWeightedFacts", Args: []Term{
		String("weighted_relation"),
		ListFromSlice([]Term{&CompoundTerm{Functor: "col", Args: []Term{String("name"), Atom("string")}}}, Nil),
		ListFromSlice([]Term{Variable(0)}, Nil),
	}})
	req.NoError(err)
	req.Len(r, 2)
	req.Len(f.Atoms(), 2)
	for _, res := range r {
		req.Positive(int(res.Node))
		n, err := f.Node(res.Node)
		req.NoError(err)
		req.IsType(&AtomNode{}, n)
	}
}
