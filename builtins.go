package grounding

import (
	"fmt"

	"github.com/phomola/textkit"
)

// Builtin is an in-built predicate. It receives the call with the caller's
// context already substituted in and returns all its results eagerly; a
// builtin never suspends and never participates in cycles. A define for the
// same signature takes precedence over a builtin.
type Builtin func(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error)

// BuiltinResult is one result of a builtin: an instantiation of the call
// arguments plus the ground node of the proof, TRUE for purely logical
// builtins.
type BuiltinResult struct {
	Args []Term
	Node NodeHandle
}

func registerStandardBuiltins(db *ClauseDB) {
	db.RegisterBuiltin(Signature{Functor: "true", Arity: 0}, BuiltinTrue)
	db.RegisterBuiltin(Signature{Functor: "fail", Arity: 0}, BuiltinFail)
	db.RegisterBuiltin(Signature{Functor: "false", Arity: 0}, BuiltinFail)
	db.RegisterBuiltin(Signature{Functor: "=", Arity: 2}, BuiltinUnify)
	db.RegisterBuiltin(Signature{Functor: "is", Arity: 2}, BuiltinIs)
	db.RegisterBuiltin(Signature{Functor: "writeln", Arity: 1}, BuiltinWriteln)
	for _, op := range []string{"<", ">", "=<", ">=", "=:=", `=\=`} {
		db.RegisterBuiltin(Signature{Functor: op, Arity: 2}, BuiltinCompare)
	}
}

// BuiltinTrue is an in-built predicate which always succeeds.
func BuiltinTrue(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error) {
	return []BuiltinResult{{Args: call.Args, Node: TrueNode}}, nil
}

// BuiltinFail is an in-built predicate which always fails.
func BuiltinFail(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error) {
	return nil, nil
}

// BuiltinUnify is an in-built predicate for unifying two terms.
func BuiltinUnify(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error) {
	u := newUnifier(0, &e.varCounter)
	if !u.unifyCall(call.Args[0], call.Args[1]) {
		return nil, nil
	}
	r := u.resolve(call.Args[0])
	return []BuiltinResult{{Args: []Term{r, r}, Node: TrueNode}}, nil
}

// BuiltinIs is an in-built predicate for arithmetic evaluation. The right
// argument must be a ground arithmetic expression.
func BuiltinIs(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error) {
	v, err := evalArith(call.Args[1], loc)
	if err != nil {
		return nil, err
	}
	u := newUnifier(0, &e.varCounter)
	if !u.unifyCall(call.Args[0], v) {
		return nil, nil
	}
	return []BuiltinResult{{Args: []Term{v, call.Args[1]}, Node: TrueNode}}, nil
}

// BuiltinCompare is an in-built predicate for the arithmetic comparison
// operators. Both arguments must be ground arithmetic expressions.
func BuiltinCompare(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error) {
	a, err := evalArith(call.Args[0], loc)
	if err != nil {
		return nil, err
	}
	b, err := evalArith(call.Args[1], loc)
	if err != nil {
		return nil, err
	}
	x, y := numValue(a), numValue(b)
	var ok bool
	switch call.Functor {
	case "<":
		ok = x < y
	case ">":
		ok = x > y
	case "=<":
		ok = x <= y
	case ">=":
		ok = x >= y
	case "=:=":
		ok = x == y
	case `=\=`:
		ok = x != y
	default:
		return nil, &ArithmeticError{Message: "unknown comparison operator", Term: call, Location: loc}
	}
	if !ok {
		return nil, nil
	}
	return []BuiltinResult{{Args: call.Args, Node: TrueNode}}, nil
}

// BuiltinWriteln is an in-built predicate for writing to the standard output.
func BuiltinWriteln(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error) {
	fmt.Println(call.Args[0])
	return []BuiltinResult{{Args: call.Args, Node: TrueNode}}, nil
}

// evalArith evaluates a ground arithmetic expression to an Integer or a
// Float. Division of two integers stays integral.
func evalArith(t Term, loc textkit.Location) (Term, error) {
	switch x := t.(type) {
	case Integer, Float:
		return x, nil
	case Variable:
		return nil, &ArithmeticError{Message: "unbound variable in arithmetic expression", Term: t, Location: loc}
	case Atom:
		return nil, &ArithmeticError{Message: "atom in arithmetic expression", Term: t, Location: loc}
	case *CompoundTerm:
		if x.Functor == "abs" && len(x.Args) == 1 {
			a, err := evalArith(x.Args[0], loc)
			if err != nil {
				return nil, err
			}
			if i, ok := a.(Integer); ok {
				if i < 0 {
					return -i, nil
				}
				return i, nil
			}
			f := numValue(a)
			if f < 0 {
				return Float(-f), nil
			}
			return Float(f), nil
		}
		if len(x.Args) != 2 {
			return nil, &ArithmeticError{Message: "unknown arithmetic operator", Term: t, Location: loc}
		}
		a, err := evalArith(x.Args[0], loc)
		if err != nil {
			return nil, err
		}
		b, err := evalArith(x.Args[1], loc)
		if err != nil {
			return nil, err
		}
		ia, aInt := a.(Integer)
		ib, bInt := b.(Integer)
		if aInt && bInt {
			switch x.Functor {
			case "+":
				return ia + ib, nil
			case "-":
				return ia - ib, nil
			case "*":
				return ia * ib, nil
			case "/":
				if ib == 0 {
					return nil, &ArithmeticError{Message: "division by zero", Term: t, Location: loc}
				}
				return ia / ib, nil
			case "mod":
				if ib == 0 {
					return nil, &ArithmeticError{Message: "division by zero", Term: t, Location: loc}
				}
				return ia % ib, nil
			case "min":
				if ib < ia {
					return ib, nil
				}
				return ia, nil
			case "max":
				if ib > ia {
					return ib, nil
				}
				return ia, nil
			}
			return nil, &ArithmeticError{Message: "unknown arithmetic operator", Term: t, Location: loc}
		}
		fa, fb := numValue(a), numValue(b)
		switch x.Functor {
		case "+":
			return Float(fa + fb), nil
		case "-":
			return Float(fa - fb), nil
		case "*":
			return Float(fa * fb), nil
		case "/":
			if fb == 0 {
				return nil, &ArithmeticError{Message: "division by zero", Term: t, Location: loc}
			}
			return Float(fa / fb), nil
		case "min":
			if fb < fa {
				return Float(fb), nil
			}
			return Float(fa), nil
		case "max":
			if fb > fa {
				return Float(fb), nil
			}
			return Float(fa), nil
		}
		return nil, &ArithmeticError{Message: "unknown arithmetic operator", Term: t, Location: loc}
	default:
		return nil, &ArithmeticError{Message: "invalid arithmetic expression", Term: t, Location: loc}
	}
}

func numValue(t Term) float64 {
	switch x := t.(type) {
	case Integer:
		return float64(x)
	case Float:
		return float64(x)
	default:
		return 0
	}
}
