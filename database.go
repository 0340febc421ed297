package grounding

import (
	"fmt"
	"io"

	"github.com/phomola/textkit"
	"gopkg.in/yaml.v3"
)

// Signature represents the signature of a predicate.
type Signature struct {
	Functor string
	Arity   int
}

func (s Signature) String() string { return fmt.Sprintf("%s/%d", s.Functor, s.Arity) }

// A program compiles to numbered construct nodes. The engine dispatches on
// the node type when an evaluate action is popped.
type dbNode interface {
	construct() string
}

// factNode is a single unification attempt against stored head arguments.
type factNode struct {
	functor     string
	args        []Term
	varCount    int
	probability Term
	loc         textkit.Location
}

func (*factNode) construct() string { return "fact" }

// clauseNode unifies call arguments against the clause head and evaluates
// the body with the extended binding. A probability annotation turns every
// ground instance of the clause into a choice atom conjoined with the body.
type clauseNode struct {
	functor     string
	head        []Term
	body        int
	varCount    int
	probability Term
	loc         textkit.Location
}

func (*clauseNode) construct() string { return "clause" }

// conjNode is a two-child conjunction; n-ary conjunctions are right-nested.
type conjNode struct {
	left, right int
}

func (*conjNode) construct() string { return "conj" }

// disjNode is an n-child disjunction.
type disjNode struct {
	children []int
}

func (*disjNode) construct() string { return "disj" }

// negNode is a negation-as-failure of its child.
type negNode struct {
	child int
	loc   textkit.Location
}

func (*negNode) construct() string { return "neg" }

// callNode calls a predicate, renaming arguments between the caller's and
// the callee's variable spaces.
type callNode struct {
	functor string
	args    []Term
	loc     textkit.Location
}

func (*callNode) construct() string { return "call" }

// defineNode is a tabled predicate definition listing the facts and clauses
// of one signature in program order.
type defineNode struct {
	signature Signature
	children  []int
}

func (*defineNode) construct() string { return "define" }

// ClauseDB is a clause database compiled to construct nodes with an indexed
// define lookup per predicate signature.
type ClauseDB struct {
	nodes    []dbNode
	index    map[Signature]int
	builtins map[Signature]Builtin
}

// NewClauseDB creates an empty clause database with the standard builtins
// registered.
func NewClauseDB() *ClauseDB {
	db := &ClauseDB{
		index:    make(map[Signature]int),
		builtins: make(map[Signature]Builtin),
	}
	registerStandardBuiltins(db)
	return db
}

func (db *ClauseDB) addNode(n dbNode) int {
	db.nodes = append(db.nodes, n)
	return len(db.nodes) - 1
}

func (db *ClauseDB) node(id int) (dbNode, error) {
	if id < 0 || id >= len(db.nodes) {
		return nil, fmt.Errorf("%w: no database node %d", ErrInvalidEngineState, id)
	}
	return db.nodes[id], nil
}

// define returns the define node for a signature, creating it on first use.
func (db *ClauseDB) define(sig Signature) (int, *defineNode) {
	if id, ok := db.index[sig]; ok {
		return id, db.nodes[id].(*defineNode)
	}
	n := &defineNode{signature: sig}
	id := db.addNode(n)
	db.index[sig] = id
	return id, n
}

// lookupChildren returns the clause node ids matching a goal signature in
// program order.
func (db *ClauseDB) lookupChildren(sig Signature) ([]int, bool) {
	id, ok := db.index[sig]
	if !ok {
		return nil, false
	}
	return db.nodes[id].(*defineNode).children, true
}

// RegisterBuiltin registers a builtin predicate under a signature. A define
// for the same signature takes precedence.
func (db *ClauseDB) RegisterBuiltin(sig Signature, f Builtin) {
	db.builtins[sig] = f
}

// AddFact adds a fact. The arguments may contain clause-space variables
// (indices below varCount); probability may be nil for a deterministic fact.
func (db *ClauseDB) AddFact(functor string, args []Term, varCount int, probability Term, loc textkit.Location) int {
	id := db.addNode(&factNode{
		functor:     functor,
		args:        args,
		varCount:    varCount,
		probability: probability,
		loc:         loc,
	})
	_, def := db.define(Signature{Functor: functor, Arity: len(args)})
	def.children = append(def.children, id)
	return id
}

// AddClause adds a clause with the given head arguments and body term. Body
// conjunctions are the compound term ','/2 (right-nested), disjunctions
// ';'/2, negation '\+'/1; anything else is a call.
func (db *ClauseDB) AddClause(functor string, head []Term, body Term, varCount int, probability Term, loc textkit.Location) (int, error) {
	bodyID, err := db.compileBody(body, loc)
	if err != nil {
		return 0, err
	}
	id := db.addNode(&clauseNode{
		functor:     functor,
		head:        head,
		body:        bodyID,
		varCount:    varCount,
		probability: probability,
		loc:         loc,
	})
	_, def := db.define(Signature{Functor: functor, Arity: len(head)})
	def.children = append(def.children, id)
	return id, nil
}

func (db *ClauseDB) compileBody(t Term, loc textkit.Location) (int, error) {
	switch x := t.(type) {
	case Atom:
		return db.addNode(&callNode{functor: string(x), loc: loc}), nil
	case *CompoundTerm:
		switch {
		case x.Functor == "," && len(x.Args) == 2:
			left, err := db.compileBody(x.Args[0], loc)
			if err != nil {
				return 0, err
			}
			right, err := db.compileBody(x.Args[1], loc)
			if err != nil {
				return 0, err
			}
			return db.addNode(&conjNode{left: left, right: right}), nil
		case x.Functor == ";":
			var children []int
			for _, alt := range disjuncts(x) {
				id, err := db.compileBody(alt, loc)
				if err != nil {
					return 0, err
				}
				children = append(children, id)
			}
			return db.addNode(&disjNode{children: children}), nil
		case x.Functor == `\+` && len(x.Args) == 1:
			child, err := db.compileBody(x.Args[0], loc)
			if err != nil {
				return 0, err
			}
			return db.addNode(&negNode{child: child, loc: loc}), nil
		default:
			return db.addNode(&callNode{functor: x.Functor, args: x.Args, loc: loc}), nil
		}
	default:
		return 0, fmt.Errorf("%w: invalid body term '%s'", ErrIllFormed, t)
	}
}

func disjuncts(t Term) []Term {
	if c, ok := t.(*CompoundTerm); ok && c.Functor == ";" && len(c.Args) == 2 {
		return append(disjuncts(c.Args[0]), disjuncts(c.Args[1])...)
	}
	return []Term{t}
}

type source struct {
	Predicates []predicate `yaml:"predicates"`
}

type predicate struct {
	Functor     string   `yaml:"functor"`
	Args        []string `yaml:"args"`
	Probability *float64 `yaml:"probability"`
}

// LoadYAML loads a set of facts, optionally weighted, from a YAML reader.
func (db *ClauseDB) LoadYAML(r io.Reader) error {
	var source source
	if err := yaml.NewDecoder(r).Decode(&source); err != nil {
		return err
	}
	for _, pred := range source.Predicates {
		vals := make([]Term, len(pred.Args))
		for i, arg := range pred.Args {
			vals[i] = String(arg)
		}
		var probability Term
		if pred.Probability != nil {
			probability = Float(*pred.Probability)
		}
		db.AddFact(pred.Functor, vals, 0, probability, textkit.Location{})
	}
	return nil
}
