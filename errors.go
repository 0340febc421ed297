package grounding

import (
	"errors"
	"fmt"

	"github.com/phomola/textkit"
)

// ErrIllFormed signifies a parse error.
var ErrIllFormed = errors.New("parse error")

// ErrInvalidEngineState signifies an internal invariant violation.
// It is a defect, not a recoverable condition: when it surfaces, the whole
// execution is aborted and no partial results are returned, because the
// produced formula cannot be trusted.
var ErrInvalidEngineState = errors.New("invalid engine state")

// ErrReadOnlyNode signifies an attempt to add a disjunct to a read-only OR node.
var ErrReadOnlyNode = errors.New("node is read-only")

// UnknownClauseError is returned when a goal refers to a predicate with
// neither a definition nor a builtin and the engine is configured to raise.
type UnknownClauseError struct {
	Signature Signature
	Location  textkit.Location
}

func (e *UnknownClauseError) Error() string {
	return fmt.Sprintf("no clauses found for '%s' at %s", e.Signature.String(), locString(e.Location))
}

// NegativeCycleError is returned when negation is reached through an
// unresolved recursive cycle. Negation through recursion has no well-defined
// semantics and must be rejected rather than silently evaluated.
type NegativeCycleError struct {
	Location textkit.Location
}

func (e *NegativeCycleError) Error() string {
	return fmt.Sprintf("negative cycle detected at %s", locString(e.Location))
}

// IndirectCallCycleError is returned when a cycle is detected whose shape
// cannot be expressed with the direct-call cycle algorithm.
type IndirectCallCycleError struct {
	Location textkit.Location
}

func (e *IndirectCallCycleError) Error() string {
	return fmt.Sprintf("cycle through indirect call at %s", locString(e.Location))
}

// NonGroundResultError is returned when a negated goal produces a result
// that is not fully ground at negation time.
type NonGroundResultError struct {
	Term     Term
	Location textkit.Location
}

func (e *NonGroundResultError) Error() string {
	return fmt.Sprintf("non-ground result '%s' under negation at %s", e.Term, locString(e.Location))
}

// ArithmeticError is returned when arithmetic evaluation inside a builtin
// fails. It carries the offending call term and its source location.
type ArithmeticError struct {
	Message  string
	Term     Term
	Location textkit.Location
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic error: %s in '%s' at %s", e.Message, e.Term, locString(e.Location))
}

func locString(loc textkit.Location) string {
	return fmt.Sprintf("%v", loc)
}
