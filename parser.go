package grounding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/phomola/lrparser"
	"github.com/phomola/textkit"
)

// The parser has no lookahead: a state may contain at most one completed
// item, and shifting always wins over reducing. Every operand shape must
// therefore funnel through the single Prim chain; a second nonterminal
// deriving the same tokens makes the grammar builder panic.
var grammar = lrparser.NewGrammar(lrparser.MustBuildRules([]*lrparser.SynSem{
	{Syn: `Init -> Stmts`, Sem: func(args []any) any { return args[0] }},
	{Syn: `Stmts -> Stmts Stmt`, Sem: func(args []any) any { return append(args[0].([]AST), args[1].(AST)) }},
	{Syn: `Stmts -> Stmt`, Sem: func(args []any) any { return []AST{args[0].(AST)} }},
	{Syn: `Stmt -> Rule`, Sem: func(args []any) any { return args[0] }},
	{Syn: `Stmt -> "?-" Term "."`, Sem: func(args []any) any {
		return &ASTQuery{Goal: args[1].(*ASTTerm)}
	}},
	{Syn: `Rule -> Term "."`, Sem: func(args []any) any { return &ASTRule{Head: args[0].(*ASTTerm)} }},
	{Syn: `Rule -> Term ":-" Body "."`, Sem: func(args []any) any {
		return &ASTRule{Head: args[0].(*ASTTerm), Body: args[2].(ASTExpr)}
	}},
	{Syn: `Rule -> Prob "::" Term "."`, Sem: func(args []any) any {
		return &ASTRule{Prob: args[0].(*ASTProb), Head: args[2].(*ASTTerm)}
	}},
	{Syn: `Rule -> Prob "::" Term ":-" Body "."`, Sem: func(args []any) any {
		return &ASTRule{Prob: args[0].(*ASTProb), Head: args[2].(*ASTTerm), Body: args[4].(ASTExpr)}
	}},
	{Syn: `Prob -> integer "/" integer`, Sem: func(args []any) any {
		return &ASTProb{Num: args[0].(int), Den: args[2].(int)}
	}},
	{Syn: `Prob -> integer`, Sem: func(args []any) any {
		return &ASTProb{Num: args[0].(int), Den: 1}
	}},
	{Syn: `Term -> ident`, Sem: func(args []any) any { return &ASTTerm{Functor: args[0].(string)} }},
	{Syn: `Term -> ident "(" Args ")"`, Sem: func(args []any) any {
		return &ASTTerm{Functor: args[0].(string), Args: args[2].([]ASTExpr)}
	}},
	{Syn: `Body -> Body ";" Conj`, Sem: func(args []any) any {
		return &ASTTerm{Functor: ";", Args: []ASTExpr{args[0].(ASTExpr), args[2].(ASTExpr)}}
	}},
	{Syn: `Body -> Conj`, Sem: func(args []any) any { return args[0] }},
	{Syn: `Conj -> Conj "," Lit`, Sem: func(args []any) any {
		return &ASTTerm{Functor: ",", Args: []ASTExpr{args[0].(ASTExpr), args[2].(ASTExpr)}}
	}},
	{Syn: `Conj -> Lit`, Sem: func(args []any) any { return args[0] }},
	{Syn: `Lit -> "\+" Lit`, Sem: func(args []any) any {
		return &ASTTerm{Functor: `\+`, Args: []ASTExpr{args[1].(ASTExpr)}}
	}},
	{Syn: `Lit -> Cmp`, Sem: func(args []any) any { return args[0] }},
	{Syn: `Cmp -> Sum`, Sem: func(args []any) any { return args[0] }},
	{Syn: `Cmp -> Sum "is" Sum`, Sem: infixSem("is")},
	{Syn: `Cmp -> Sum "=" Sum`, Sem: infixSem("=")},
	{Syn: `Cmp -> Sum "<" Sum`, Sem: infixSem("<")},
	{Syn: `Cmp -> Sum ">" Sum`, Sem: infixSem(">")},
	{Syn: `Cmp -> Sum "=<" Sum`, Sem: infixSem("=<")},
	{Syn: `Cmp -> Sum ">=" Sum`, Sem: infixSem(">=")},
	{Syn: `Cmp -> Sum "=:=" Sum`, Sem: infixSem("=:=")},
	{Syn: `Cmp -> Sum "=\=" Sum`, Sem: infixSem(`=\=`)},
	{Syn: `Sum -> Sum "+" Prod`, Sem: infixSem("+")},
	{Syn: `Sum -> Sum "-" Prod`, Sem: infixSem("-")},
	{Syn: `Sum -> Prod`, Sem: func(args []any) any { return args[0] }},
	{Syn: `Prod -> Prod "*" Prim`, Sem: infixSem("*")},
	{Syn: `Prod -> Prod "/" Prim`, Sem: infixSem("/")},
	{Syn: `Prod -> Prim`, Sem: func(args []any) any { return args[0] }},
	{Syn: `Prim -> ident`, Sem: func(args []any) any { return &ASTTerm{Functor: args[0].(string)} }},
	{Syn: `Prim -> ident "(" Args ")"`, Sem: func(args []any) any {
		return &ASTTerm{Functor: args[0].(string), Args: args[2].([]ASTExpr)}
	}},
	{Syn: `Prim -> integer`, Sem: func(args []any) any { return &ASTInteger{Value: args[0].(int)} }},
	{Syn: `Prim -> string`, Sem: func(args []any) any { return &ASTString{Value: args[0].(string)} }},
	{Syn: `Prim -> "-" Prim`, Sem: func(args []any) any {
		if n, ok := args[1].(*ASTInteger); ok {
			return &ASTInteger{Value: -n.Value, Loc: n.Loc}
		}
		return &ASTTerm{Functor: "-", Args: []ASTExpr{&ASTInteger{}, args[1].(ASTExpr)}}
	}},
	{Syn: `Prim -> "(" Body ")"`, Sem: func(args []any) any { return args[1] }},
	{Syn: `Prim -> "[" "]"`, Sem: func(args []any) any { return &ASTTerm{Functor: "[]"} }},
	{Syn: `Prim -> "[" Args "]"`, Sem: func(args []any) any {
		return listFromExprs(args[1].([]ASTExpr), &ASTTerm{Functor: "[]"})
	}},
	{Syn: `Prim -> "[" Args "|" Expr "]"`, Sem: func(args []any) any {
		return listFromExprs(args[1].([]ASTExpr), args[3].(ASTExpr))
	}},
	{Syn: `Args -> Args "," Expr`, Sem: func(args []any) any {
		return append(args[0].([]ASTExpr), args[2].(ASTExpr))
	}},
	{Syn: `Args -> Expr`, Sem: func(args []any) any { return []ASTExpr{args[0].(ASTExpr)} }},
	{Syn: `Expr -> Sum`, Sem: func(args []any) any { return args[0] }},
}))

func infixSem(op string) func([]any) any {
	return func(args []any) any {
		return &ASTTerm{Functor: op, Args: []ASTExpr{args[0].(ASTExpr), args[2].(ASTExpr)}}
	}
}

func listFromExprs(elems []ASTExpr, tail ASTExpr) ASTExpr {
	for i := len(elems) - 1; i >= 0; i-- {
		tail = &ASTTerm{Functor: ".", Args: []ASTExpr{elems[i], tail}}
	}
	return tail
}

// AST is an abstract syntax tree.
type AST interface {
	fmt.Stringer
}

// ASTExpr is an expression node.
type ASTExpr interface {
	AST
}

// ASTRule is a fact or a clause, optionally weighted.
type ASTRule struct {
	Prob *ASTProb
	Head *ASTTerm
	Body ASTExpr
	Loc  textkit.Location
}

// Location returns the node's location.
func (r *ASTRule) Location() textkit.Location { return r.Loc }

// SetLocation sets the node's location.
func (r *ASTRule) SetLocation(loc textkit.Location) { r.Loc = loc }

func (r *ASTRule) String() string {
	var sb strings.Builder
	if r.Prob != nil {
		sb.WriteString(r.Prob.String())
		sb.WriteString(" :: ")
	}
	sb.WriteString(r.Head.String())
	if r.Body != nil {
		sb.WriteString(" :- ")
		sb.WriteString(r.Body.String())
	}
	sb.WriteRune('.')
	return sb.String()
}

// ASTQuery is a query statement.
type ASTQuery struct {
	Goal *ASTTerm
	Loc  textkit.Location
}

// Location returns the node's location.
func (q *ASTQuery) Location() textkit.Location { return q.Loc }

// SetLocation sets the node's location.
func (q *ASTQuery) SetLocation(loc textkit.Location) { q.Loc = loc }

func (q *ASTQuery) String() string { return "?- " + q.Goal.String() + "." }

// ASTProb is a rational probability annotation.
type ASTProb struct {
	Num, Den int
	Loc      textkit.Location
}

// Location returns the node's location.
func (p *ASTProb) Location() textkit.Location { return p.Loc }

// SetLocation sets the node's location.
func (p *ASTProb) SetLocation(loc textkit.Location) { p.Loc = loc }

func (p *ASTProb) String() string {
	if p.Den == 1 {
		return strconv.Itoa(p.Num)
	}
	return fmt.Sprintf("%d/%d", p.Num, p.Den)
}

// Value returns the probability as a float term.
func (p *ASTProb) Value() Term { return Float(float64(p.Num) / float64(p.Den)) }

// ASTTerm is a compound term node. Conjunction, disjunction, negation and
// the infix literals are represented as terms with the operator as functor.
type ASTTerm struct {
	Functor string
	Args    []ASTExpr
	Loc     textkit.Location
}

// Location returns the node's location.
func (t *ASTTerm) Location() textkit.Location { return t.Loc }

// SetLocation sets the node's location.
func (t *ASTTerm) SetLocation(loc textkit.Location) { t.Loc = loc }

func (t *ASTTerm) String() string {
	var sb strings.Builder
	if t.Functor == "." && len(t.Args) == 2 {
		sb.WriteRune('[')
		sb.WriteString(t.Args[0].String())
		sb.WriteRune('|')
		sb.WriteString(t.Args[1].String())
		sb.WriteRune(']')
	} else {
		sb.WriteString(t.Functor)
		if len(t.Args) > 0 {
			sb.WriteRune('(')
			for i, arg := range t.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(arg.String())
			}
			sb.WriteRune(')')
		}
	}
	return sb.String()
}

// ASTString is a string node.
type ASTString struct {
	Value string
	Loc   textkit.Location
}

// Location returns the node's location.
func (s *ASTString) Location() textkit.Location { return s.Loc }

// SetLocation sets the node's location.
func (s *ASTString) SetLocation(loc textkit.Location) { s.Loc = loc }

func (s *ASTString) String() string { return strconv.Quote(s.Value) }

// ASTInteger is an integer node.
type ASTInteger struct {
	Value int
	Loc   textkit.Location
}

// Location returns the node's location.
func (i *ASTInteger) Location() textkit.Location { return i.Loc }

// SetLocation sets the node's location.
func (i *ASTInteger) SetLocation(loc textkit.Location) { i.Loc = loc }

func (i *ASTInteger) String() string { return strconv.Itoa(i.Value) }

func parseCode(code string) (any, error) {
	tok := textkit.Tokeniser{
		CommentPrefix: "%",
		StringRune:    '"',
		IdentChars:    "_'",
	}
	tokens := tok.Tokenise(code, "")
	tokens = lrparser.CoalesceSymbols(tokens, []string{":-", "::", "?-", `\+`, "=<", ">=", "=:=", `=\=`})
	return grammar.Parse(tokens)
}

func identIsVariable(name string) bool {
	return name[:1] == strings.ToUpper(name[:1]) && name[:1] != strings.ToLower(name[:1]) || name[0] == '_'
}

// ruleVars numbers the variables of one rule: named variables get one slot
// per name, every occurrence of '_' gets a slot of its own.
type ruleVars struct {
	names map[string]Variable
	count int
}

func newRuleVars() *ruleVars { return &ruleVars{names: make(map[string]Variable)} }

func (v *ruleVars) variable(name string) Variable {
	if name == "_" {
		slot := Variable(v.count)
		v.count++
		return slot
	}
	if slot, ok := v.names[name]; ok {
		return slot
	}
	slot := Variable(v.count)
	v.count++
	v.names[name] = slot
	return slot
}

func (v *ruleVars) exprTerm(e ASTExpr) (Term, error) {
	switch x := e.(type) {
	case *ASTString:
		return String(x.Value), nil
	case *ASTInteger:
		return Integer(x.Value), nil
	case *ASTTerm:
		if len(x.Args) == 0 {
			if identIsVariable(x.Functor) {
				return v.variable(x.Functor), nil
			}
			return Atom(x.Functor), nil
		}
		args := make([]Term, len(x.Args))
		for i, arg := range x.Args {
			t, err := v.exprTerm(arg)
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		return &CompoundTerm{Functor: x.Functor, Args: args}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected expression '%s'", ErrIllFormed, e)
	}
}

func (v *ruleVars) headArgs(t *ASTTerm) ([]Term, error) {
	args := make([]Term, len(t.Args))
	for i, arg := range t.Args {
		a, err := v.exprTerm(arg)
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return args, nil
}

// LoadString parses program text and adds its facts and clauses to the
// database. Any queries in the text are returned as goal terms, with
// variables numbered from zero.
func (db *ClauseDB) LoadString(code string) ([]Term, error) {
	tree, err := parseCode(code)
	if err != nil {
		return nil, err
	}
	var queries []Term
	for _, stmt := range tree.([]AST) {
		switch stmt := stmt.(type) {
		case *ASTRule:
			if err := db.addRule(stmt); err != nil {
				return nil, err
			}
		case *ASTQuery:
			vars := newRuleVars()
			goal, err := vars.exprTerm(stmt.Goal)
			if err != nil {
				return nil, err
			}
			queries = append(queries, goal)
		default:
			return nil, fmt.Errorf("%w: unexpected statement '%s'", ErrIllFormed, stmt)
		}
	}
	return queries, nil
}

func (db *ClauseDB) addRule(rule *ASTRule) error {
	vars := newRuleVars()
	head, err := vars.headArgs(rule.Head)
	if err != nil {
		return err
	}
	var probability Term
	if rule.Prob != nil {
		probability = rule.Prob.Value()
	}
	if rule.Body == nil {
		db.AddFact(rule.Head.Functor, head, vars.count, probability, rule.Loc)
		return nil
	}
	body, err := vars.exprTerm(rule.Body)
	if err != nil {
		return err
	}
	_, err = db.AddClause(rule.Head.Functor, head, body, vars.count, probability, rule.Loc)
	return err
}
