package grounding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mailstepcz/sexpr"
	"github.com/phomola/textkit"
)

// LoadSExpr loads a program from a symbolic expression. Each top-level
// element is one rule: a list of the head term followed by the body
// literals, e.g.
//
//	((ancestor X Y) (parent X Y))
//
// A rule starting with the identifier '::' is weighted; the probability
// follows as a quoted string, either a rational like "3/10" or a decimal:
//
//	(:: "3/10" (burglary))
//
// A bare decimal identifier in first position works too:
//
//	(0.3 (burglary))
func (db *ClauseDB) LoadSExpr(code string) error {
	expr, err := sexpr.Parse(code)
	if err != nil {
		return err
	}
	for _, rule := range expr {
		rule, ok := rule.([]interface{})
		if !ok || len(rule) == 0 {
			return ErrIllFormed
		}
		var probability Term
		if id, ok := rule[0].(sexpr.Identifier); ok {
			switch {
			case id == "::" && len(rule) >= 3:
				s, ok := rule[1].(sexpr.QuotedString)
				if !ok {
					return ErrIllFormed
				}
				p, err := parseProbability(string(s))
				if err != nil {
					return err
				}
				probability = p
				rule = rule[2:]
			case len(rule) >= 2:
				p, err := parseProbability(string(id))
				if err != nil {
					return err
				}
				probability = p
				rule = rule[1:]
			default:
				return ErrIllFormed
			}
		}
		head, ok := rule[0].([]interface{})
		if !ok {
			return ErrIllFormed
		}
		vars := newRuleVars()
		functor, headArgs, err := exprToGoal(head, vars)
		if err != nil {
			return err
		}
		var body Term
		for i := len(rule) - 1; i >= 1; i-- {
			lit, ok := rule[i].([]interface{})
			if !ok {
				return ErrIllFormed
			}
			f, args, err := exprToGoal(lit, vars)
			if err != nil {
				return err
			}
			var t Term
			if len(args) == 0 {
				t = Atom(f)
			} else {
				t = &CompoundTerm{Functor: f, Args: args}
			}
			if body == nil {
				body = t
			} else {
				body = &CompoundTerm{Functor: ",", Args: []Term{t, body}}
			}
		}
		if body == nil {
			db.AddFact(functor, headArgs, vars.count, probability, textkit.Location{})
			continue
		}
		if _, err := db.AddClause(functor, headArgs, body, vars.count, probability, textkit.Location{}); err != nil {
			return err
		}
	}
	return nil
}

func exprToGoal(expr []interface{}, vars *ruleVars) (string, []Term, error) {
	if len(expr) == 0 {
		return "", nil, ErrIllFormed
	}
	functor, ok := expr[0].(sexpr.Identifier)
	if !ok {
		return "", nil, ErrIllFormed
	}
	args := make([]Term, 0, len(expr)-1)
	for _, arg := range expr[1:] {
		t, err := exprToTerm(arg, vars)
		if err != nil {
			return "", nil, err
		}
		args = append(args, t)
	}
	return string(functor), args, nil
}

func exprToTerm(arg interface{}, vars *ruleVars) (Term, error) {
	switch x := arg.(type) {
	case sexpr.Identifier:
		s := string(x)
		if n, err := strconv.Atoi(s); err == nil {
			return Integer(n), nil
		}
		if identIsVariable(s) {
			return vars.variable(s), nil
		}
		return Atom(s), nil
	case sexpr.QuotedString:
		return String(x), nil
	case []interface{}:
		functor, args, err := exprToGoal(x, vars)
		if err != nil {
			return nil, err
		}
		return &CompoundTerm{Functor: functor, Args: args}, nil
	default:
		return nil, ErrIllFormed
	}
}

func parseProbability(s string) (Term, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid probability '%s'", ErrIllFormed, s)
		}
		d, err := strconv.Atoi(den)
		if err != nil || d == 0 {
			return nil, fmt.Errorf("%w: invalid probability '%s'", ErrIllFormed, s)
		}
		return Float(float64(n) / float64(d)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid probability '%s'", ErrIllFormed, s)
	}
	return Float(f), nil
}
