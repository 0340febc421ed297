package grounding

import (
	"fmt"
	"strconv"
	"strings"
)

// Term is a value used by the grounding engine.
type Term interface {
	fmt.Stringer
	// IsGround reports whether the term contains no variables.
	IsGround() bool
}

// Binding is an ordered tuple of argument values for a goal. Slots hold
// call-space terms: constants, compound terms and fresh (negative) variables.
// A binding never contains a nil slot once a clause has been entered.
type Binding []Term

// IsGround reports whether all slots of the binding are ground.
func (b Binding) IsGround() bool {
	for _, t := range b {
		if t != nil && !t.IsGround() {
			return false
		}
	}
	return true
}

func (b Binding) String() string {
	var sb strings.Builder
	sb.WriteRune('(')
	for i, t := range b {
		if i > 0 {
			sb.WriteString(", ")
		}
		if t == nil {
			sb.WriteRune('_')
		} else {
			sb.WriteString(t.String())
		}
	}
	sb.WriteRune(')')
	return sb.String()
}

// Atom is an atomic value.
type Atom string

func (a Atom) String() string { return string(a) }

// IsGround reports whether the atom is ground, which it always is.
func (a Atom) IsGround() bool { return true }

// String is a string value.
type String string

func (s String) String() string { return strconv.Quote(string(s)) }

// IsGround reports whether the string is ground, which it always is.
func (s String) IsGround() bool { return true }

// Integer is an integer value.
type Integer int

func (i Integer) String() string { return strconv.Itoa(int(i)) }

// IsGround reports whether the integer is ground, which it always is.
func (i Integer) IsGround() bool { return true }

// Float is a float value.
type Float float64

func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// IsGround reports whether the float is ground, which it always is.
func (f Float) IsGround() bool { return true }

// Variable is a variable identified by its index. Indices >= 0 address
// clause-local slots of a binding; negative indices identify fresh variables
// minted by the engine (monotonically decreasing, so a fresh variable is
// always below every variable already in scope).
type Variable int

func (v Variable) String() string {
	if v < 0 {
		return "_" + strconv.Itoa(int(-v))
	}
	return "X" + strconv.Itoa(int(v))
}

// IsGround reports whether the variable is ground, which it never is.
func (v Variable) IsGround() bool { return false }

// CompoundTerm is a compound term.
type CompoundTerm struct {
	Functor string
	Args    []Term
}

func (t *CompoundTerm) String() string {
	var sb strings.Builder
	if t.Functor == "." && len(t.Args) == 2 {
		sb.WriteRune('[')
		sb.WriteString(t.Args[0].String())
		sb.WriteRune('|')
		sb.WriteString(t.Args[1].String())
		sb.WriteRune(']')
		return sb.String()
	}
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
	return sb.String()
}

// IsGround reports whether all arguments of the term are ground.
func (t *CompoundTerm) IsGround() bool {
	for _, arg := range t.Args {
		if !arg.IsGround() {
			return false
		}
	}
	return true
}

// Signature returns the signature of the term.
func (t *CompoundTerm) Signature() Signature {
	return Signature{Functor: t.Functor, Arity: len(t.Args)}
}

// Nil is the empty list.
var Nil Term = Atom("[]")

// ListFromSlice builds a cons-list term from a slice of terms.
func ListFromSlice(vals []Term, tail Term) Term {
	if len(vals) == 0 {
		return tail
	}
	return &CompoundTerm{Functor: ".", Args: []Term{vals[0], ListFromSlice(vals[1:], tail)}}
}

// ListToSlice deconstructs a cons-list term into a slice of terms.
func ListToSlice(t Term) ([]Term, error) {
	var list []Term
	for {
		switch x := t.(type) {
		case *CompoundTerm:
			if x.Functor == "." && len(x.Args) == 2 {
				list = append(list, x.Args[0])
				t = x.Args[1]
			} else {
				return nil, fmt.Errorf("invalid list value (bad functor or arity): %s", x)
			}
		case Atom:
			if x == "[]" {
				return list, nil
			}
			return nil, fmt.Errorf("invalid list value (bad tail): %s", x)
		default:
			return nil, fmt.Errorf("invalid list value (bad type): %s", t)
		}
	}
}

// substitute replaces clause-local variables of a term by their values in
// the binding. Fresh (negative) variables are left in place.
func substitute(t Term, ctx Binding) Term {
	switch x := t.(type) {
	case Variable:
		if x >= 0 && int(x) < len(ctx) && ctx[x] != nil {
			return ctx[x]
		}
		return x
	case *CompoundTerm:
		args := make([]Term, len(x.Args))
		for i, arg := range x.Args {
			args[i] = substitute(arg, ctx)
		}
		return &CompoundTerm{Functor: x.Functor, Args: args}
	default:
		return t
	}
}

// substituteAll applies substitute to a list of terms.
func substituteAll(ts []Term, ctx Binding) []Term {
	r := make([]Term, len(ts))
	for i, t := range ts {
		r[i] = substitute(t, ctx)
	}
	return r
}

func equalConstants(a, b Term) bool {
	switch x := a.(type) {
	case Atom:
		y, ok := b.(Atom)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Integer:
		y, ok := b.(Integer)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && x == y
	default:
		return false
	}
}

// unifier unifies call arguments against clause-head arguments. The call side
// holds call-space terms (constants, compounds, fresh variables); the head
// side holds clause-space terms (constants, compounds, slot variables).
type unifier struct {
	local   Binding
	fresh   map[Variable]Term
	counter *int
}

func newUnifier(varCount int, counter *int) *unifier {
	return &unifier{
		local:   make(Binding, varCount),
		fresh:   make(map[Variable]Term),
		counter: counter,
	}
}

// nextFresh mints a fresh variable below every index currently in scope.
func (u *unifier) nextFresh() Variable {
	*u.counter--
	return Variable(*u.counter)
}

// walk resolves a call-space term through the fresh-variable bindings.
func (u *unifier) walk(t Term) Term {
	for {
		v, ok := t.(Variable)
		if !ok {
			return t
		}
		b, ok := u.fresh[v]
		if !ok {
			return v
		}
		t = b
	}
}

// resolve applies the fresh-variable bindings throughout a call-space term.
func (u *unifier) resolve(t Term) Term {
	t = u.walk(t)
	if c, ok := t.(*CompoundTerm); ok {
		args := make([]Term, len(c.Args))
		for i, arg := range c.Args {
			args[i] = u.resolve(arg)
		}
		return &CompoundTerm{Functor: c.Functor, Args: args}
	}
	return t
}

// instantiate turns a clause-space term into a call-space term, minting
// fresh variables for unbound slots.
func (u *unifier) instantiate(t Term) Term {
	switch x := t.(type) {
	case Variable:
		if u.local[x] == nil {
			u.local[x] = u.nextFresh()
		}
		return u.walk(u.local[x])
	case *CompoundTerm:
		args := make([]Term, len(x.Args))
		for i, arg := range x.Args {
			args[i] = u.instantiate(arg)
		}
		return &CompoundTerm{Functor: x.Functor, Args: args}
	default:
		return t
	}
}

// unifyMixed unifies a call-space term with a clause-space term.
func (u *unifier) unifyMixed(call, head Term) bool {
	switch h := head.(type) {
	case Variable:
		if u.local[h] == nil {
			u.local[h] = call
			return true
		}
		return u.unifyCall(call, u.local[h])
	case *CompoundTerm:
		switch c := call.(type) {
		case Variable:
			r := u.walk(c)
			if v, ok := r.(Variable); ok {
				u.fresh[v] = u.instantiate(h)
				return true
			}
			return u.unifyMixed(r, h)
		case *CompoundTerm:
			if c.Functor != h.Functor || len(c.Args) != len(h.Args) {
				return false
			}
			for i := range c.Args {
				if !u.unifyMixed(c.Args[i], h.Args[i]) {
					return false
				}
			}
			return true
		default:
			return false
		}
	default:
		r := u.walk(call)
		if v, ok := r.(Variable); ok {
			u.fresh[v] = h
			return true
		}
		return equalConstants(r, h)
	}
}

// unifyCall unifies two call-space terms.
func (u *unifier) unifyCall(a, b Term) bool {
	a, b = u.walk(a), u.walk(b)
	if va, ok := a.(Variable); ok {
		if vb, ok := b.(Variable); ok && va == vb {
			return true
		}
		u.fresh[va] = b
		return true
	}
	if vb, ok := b.(Variable); ok {
		u.fresh[vb] = a
		return true
	}
	ca, aok := a.(*CompoundTerm)
	cb, bok := b.(*CompoundTerm)
	if aok && bok {
		if ca.Functor != cb.Functor || len(ca.Args) != len(cb.Args) {
			return false
		}
		for i := range ca.Args {
			if !u.unifyCall(ca.Args[i], cb.Args[i]) {
				return false
			}
		}
		return true
	}
	if aok || bok {
		return false
	}
	return equalConstants(a, b)
}

// unifyHead unifies call arguments against clause-head arguments and returns
// the clause-local binding. Unbound slots are filled with freshly minted
// variables so the binding contains no holes.
func unifyHead(callArgs, headArgs []Term, varCount int, counter *int) (Binding, bool) {
	if len(callArgs) != len(headArgs) {
		return nil, false
	}
	u := newUnifier(varCount, counter)
	for i := range callArgs {
		if !u.unifyMixed(callArgs[i], headArgs[i]) {
			return nil, false
		}
	}
	for j := range u.local {
		if u.local[j] == nil {
			u.local[j] = u.nextFresh()
		} else {
			u.local[j] = u.resolve(u.local[j])
		}
	}
	return u.local, true
}

// unifyCallReturn unifies the arguments returned by a callee against the
// original call arguments and returns the substitution for the caller's
// fresh variables. Failure drops the result; it is not an error.
func unifyCallReturn(resultArgs, callArgs []Term, counter *int) (map[Variable]Term, bool) {
	if len(resultArgs) != len(callArgs) {
		return nil, false
	}
	u := newUnifier(0, counter)
	for i := range resultArgs {
		if !u.unifyCall(resultArgs[i], callArgs[i]) {
			return nil, false
		}
	}
	return u.fresh, true
}

// applyVars applies a fresh-variable substitution throughout a term.
func applyVars(t Term, m map[Variable]Term) Term {
	switch x := t.(type) {
	case Variable:
		if b, ok := m[x]; ok {
			return applyVars(b, m)
		}
		return x
	case *CompoundTerm:
		args := make([]Term, len(x.Args))
		for i, arg := range x.Args {
			args[i] = applyVars(arg, m)
		}
		return &CompoundTerm{Functor: x.Functor, Args: args}
	default:
		return t
	}
}

// applyVarsAll applies a fresh-variable substitution throughout a binding.
func applyVarsAll(b Binding, m map[Variable]Term) Binding {
	r := make(Binding, len(b))
	for i, t := range b {
		r[i] = applyVars(t, m)
	}
	return r
}

// termListKey returns a canonical cache key for a list of terms. Variables
// are renumbered by first occurrence, so structurally equal bindings share a
// key across fresh-variable renamings. Ground bindings contain no variables
// and therefore key exactly.
func termListKey(ts []Term) string {
	var sb strings.Builder
	vars := make(map[Variable]int)
	for i, t := range ts {
		if i > 0 {
			sb.WriteRune(':')
		}
		writeCanonical(&sb, t, vars)
	}
	return sb.String()
}

func writeCanonical(sb *strings.Builder, t Term, vars map[Variable]int) {
	switch x := t.(type) {
	case nil:
		sb.WriteRune('_')
	case Variable:
		n, ok := vars[x]
		if !ok {
			n = len(vars)
			vars[x] = n
		}
		sb.WriteRune('_')
		sb.WriteString(strconv.Itoa(n))
	case Atom:
		sb.WriteRune('a')
		sb.WriteString(string(x))
	case String:
		sb.WriteString(strconv.Quote(string(x)))
	case Integer:
		sb.WriteRune('i')
		sb.WriteString(strconv.Itoa(int(x)))
	case Float:
		sb.WriteRune('f')
		sb.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 64))
	case *CompoundTerm:
		sb.WriteString(x.Functor)
		sb.WriteRune('(')
		for i, arg := range x.Args {
			if i > 0 {
				sb.WriteRune(',')
			}
			writeCanonical(sb, arg, vars)
		}
		sb.WriteRune(')')
	default:
		sb.WriteString(t.String())
	}
}
