package grounding

import "fmt"

// Semiring assigns weights to ground formulas. Plus combines alternative
// derivations, Times combines joint conditions.
type Semiring interface {
	// One is the weight of TRUE and the identity of Times.
	One() float64
	// Zero is the weight of FALSE and the identity of Plus.
	Zero() float64
	// Plus combines the weights of two alternatives.
	Plus(a, b float64) float64
	// Times combines the weights of two conjuncts.
	Times(a, b float64) float64
	// PosValue is the weight of a positive atom occurrence.
	PosValue(probability Term) float64
	// NegValue is the weight of a negated atom occurrence.
	NegValue(probability Term) float64
}

// ProbabilitySemiring computes probabilities by weighted model counting. The
// result is exact when the alternatives of every disjunction are mutually
// exclusive; overlapping proofs need knowledge compilation first.
type ProbabilitySemiring struct{}

// One returns the probability of TRUE.
func (ProbabilitySemiring) One() float64 { return 1 }

// Zero returns the probability of FALSE.
func (ProbabilitySemiring) Zero() float64 { return 0 }

// Plus adds the probabilities of two alternatives.
func (ProbabilitySemiring) Plus(a, b float64) float64 { return a + b }

// Times multiplies the probabilities of two conjuncts.
func (ProbabilitySemiring) Times(a, b float64) float64 { return a * b }

// PosValue returns the probability of an atom.
func (ProbabilitySemiring) PosValue(probability Term) float64 { return probValue(probability) }

// NegValue returns the probability of an atom's negation.
func (ProbabilitySemiring) NegValue(probability Term) float64 { return 1 - probValue(probability) }

// MaxTimesSemiring computes the weight of the most probable proof.
type MaxTimesSemiring struct{}

// One returns the weight of TRUE.
func (MaxTimesSemiring) One() float64 { return 1 }

// Zero returns the weight of FALSE.
func (MaxTimesSemiring) Zero() float64 { return 0 }

// Plus keeps the weight of the better alternative.
func (MaxTimesSemiring) Plus(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Times multiplies the weights of two conjuncts.
func (MaxTimesSemiring) Times(a, b float64) float64 { return a * b }

// PosValue returns the weight of an atom.
func (MaxTimesSemiring) PosValue(probability Term) float64 { return probValue(probability) }

// NegValue returns the weight of an atom's negation.
func (MaxTimesSemiring) NegValue(probability Term) float64 { return 1 - probValue(probability) }

func probValue(t Term) float64 {
	switch x := t.(type) {
	case Float:
		return float64(x)
	case Integer:
		return float64(x)
	default:
		return 1
	}
}

// Evaluator computes semiring weights of formula nodes bottom-up, memoizing
// per handle. Negated compound nodes evaluate by De Morgan duality.
type Evaluator struct {
	formula  *Formula
	semiring Semiring
	memo     map[NodeHandle]float64
}

// NewEvaluator creates an evaluator for a formula under a semiring.
func NewEvaluator(f *Formula, s Semiring) *Evaluator {
	return &Evaluator{formula: f, semiring: s, memo: make(map[NodeHandle]float64)}
}

// Evaluate computes the weight of the formula rooted at a handle.
func (ev *Evaluator) Evaluate(h NodeHandle) (float64, error) {
	switch h {
	case TrueNode:
		return ev.semiring.One(), nil
	case FalseNode:
		return ev.semiring.Zero(), nil
	}
	if w, ok := ev.memo[h]; ok {
		return w, nil
	}
	node, err := ev.formula.Node(h)
	if err != nil {
		return 0, err
	}
	var w float64
	switch node := node.(type) {
	case *AtomNode:
		if node.Probability == nil {
			if h > 0 {
				w = ev.semiring.One()
			} else {
				w = ev.semiring.Zero()
			}
		} else if h > 0 {
			w = ev.semiring.PosValue(node.Probability)
		} else {
			w = ev.semiring.NegValue(node.Probability)
		}
	case *AndNode:
		if h > 0 {
			w, err = ev.fold(node.Children, ev.semiring.One(), ev.semiring.Times, 1)
		} else {
			w, err = ev.fold(node.Children, ev.semiring.Zero(), ev.semiring.Plus, -1)
		}
	case *OrNode:
		if h > 0 {
			w, err = ev.fold(node.Children, ev.semiring.Zero(), ev.semiring.Plus, 1)
		} else {
			w, err = ev.fold(node.Children, ev.semiring.One(), ev.semiring.Times, -1)
		}
	default:
		return 0, fmt.Errorf("cannot evaluate %s node %d", node.nodeLabel(), h)
	}
	if err != nil {
		return 0, err
	}
	ev.memo[h] = w
	return w, nil
}

func (ev *Evaluator) fold(children []NodeHandle, acc float64, op func(a, b float64) float64, sign NodeHandle) (float64, error) {
	for _, c := range children {
		w, err := ev.Evaluate(sign * c)
		if err != nil {
			return 0, err
		}
		acc = op(acc, w)
	}
	return acc, nil
}
