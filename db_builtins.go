package grounding

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mailstepcz/slice"
	"github.com/phomola/textkit"
)

// RegisterDBBuiltins registers the database-backed builtins. They require
// the engine's DB handle to be set.
func RegisterDBBuiltins(db *ClauseDB) {
	db.RegisterBuiltin(Signature{Functor: "fetchFacts", Arity: 3}, BuiltinFetchFacts)
	db.RegisterBuiltin(Signature{Functor: "fetchWeightedFacts", Arity: 3}, BuiltinFetchWeightedFacts)
}

// BuiltinFetchFacts is an in-built predicate fetching deterministic facts
// from a database table: fetchFacts(table, columns, values). The columns are
// a list of col(name, type) terms with type one of string, int and float;
// ground elements of the value list become equality filters.
func BuiltinFetchFacts(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error) {
	q, err := buildFetch(e, call)
	if err != nil {
		return nil, err
	}
	rows, err := e.DB.QueryContext(e.Context(), q.sql, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []BuiltinResult
	for rows.Next() {
		vals, err := q.scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, BuiltinResult{
			Args: []Term{call.Args[0], call.Args[1], ListFromSlice(vals, Nil)},
			Node: TrueNode,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// BuiltinFetchWeightedFacts is an in-built predicate fetching weighted facts
// from a database table: fetchWeightedFacts(table, columns, values). The
// table must carry a uuid 'id' column and a float 'prob' column; each row
// becomes a weighted atom of the ground formula, keyed by its row id.
func BuiltinFetchWeightedFacts(e *Engine, call *CompoundTerm, loc textkit.Location) ([]BuiltinResult, error) {
	q, err := buildFetch(e, call)
	if err != nil {
		return nil, err
	}
	sel := `SELECT "id", "prob", ` + strings.TrimPrefix(q.sql, "SELECT ")
	rows, err := e.DB.QueryContext(e.Context(), sel, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []BuiltinResult
	for rows.Next() {
		var (
			id   uuid.UUID
			prob float64
		)
		vals, err := q.scanExtra(rows, &id, &prob)
		if err != nil {
			return nil, err
		}
		name := &CompoundTerm{Functor: string(q.table), Args: vals}
		atom := e.Target.AddAtom("db:"+string(q.table)+":"+id.String(), Float(prob), "", name)
		results = append(results, BuiltinResult{
			Args: []Term{call.Args[0], call.Args[1], ListFromSlice(vals, Nil)},
			Node: atom,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type fetchQuery struct {
	table String
	types []string
	sql   string
	args  []any
}

func buildFetch(e *Engine, call *CompoundTerm) (*fetchQuery, error) {
	if e.DB == nil {
		return nil, fmt.Errorf("%w: no associated database in call of '%s'", ErrIllFormed, call.Functor)
	}
	table, ok := call.Args[0].(String)
	if !ok {
		return nil, fmt.Errorf("%w: no ground table name in call of '%s'", ErrIllFormed, call.Functor)
	}
	cols, err := ListToSlice(call.Args[1])
	if err != nil {
		return nil, err
	}
	names, types := make([]string, len(cols)), make([]string, len(cols))
	for i, c := range cols {
		col, ok := c.(*CompoundTerm)
		if !ok || col.Functor != "col" || len(col.Args) != 2 {
			return nil, fmt.Errorf("%w: invalid column spec '%s'", ErrIllFormed, c)
		}
		name, ok := col.Args[0].(String)
		if !ok {
			return nil, fmt.Errorf("%w: no ground column name in '%s'", ErrIllFormed, c)
		}
		typ, ok := col.Args[1].(Atom)
		if !ok {
			return nil, fmt.Errorf("%w: no ground column type in '%s'", ErrIllFormed, c)
		}
		names[i], types[i] = string(name), string(typ)
	}
	vals, err := ListToSlice(call.Args[2])
	if err != nil {
		return nil, err
	}
	if len(vals) != len(cols) {
		return nil, fmt.Errorf("%w: incompatible number of columns and values in call of '%s'", ErrIllFormed, call.Functor)
	}
	var (
		whereTail string
		queryArgs []any
	)
	for i, v := range vals {
		if !v.IsGround() {
			continue
		}
		arg, err := driverValue(v)
		if err != nil {
			return nil, err
		}
		if whereTail == "" {
			whereTail += " WHERE "
		} else {
			whereTail += " AND "
		}
		queryArgs = append(queryArgs, arg)
		whereTail += fmt.Sprintf("%q = $%d", names[i], len(queryArgs))
	}
	q := `SELECT ` +
		strings.Join(slice.Fmap(func(name string) string {
			return strconv.Quote(name)
		}, names), ", ") +
		` FROM ` + strconv.Quote(string(table)) + whereTail
	return &fetchQuery{table: table, types: types, sql: q, args: queryArgs}, nil
}

func driverValue(t Term) (any, error) {
	switch x := t.(type) {
	case String:
		return string(x), nil
	case Atom:
		return string(x), nil
	case Integer:
		return int(x), nil
	case Float:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("%w: invalid filter value '%s'", ErrIllFormed, t)
	}
}

func (q *fetchQuery) scan(rows *sql.Rows) ([]Term, error) {
	return q.scanExtra(rows)
}

func (q *fetchQuery) scanExtra(rows *sql.Rows, extra ...any) ([]Term, error) {
	r := make([]any, len(q.types))
	for i, typ := range q.types {
		switch typ {
		case "string":
			r[i] = new(sql.Null[string])
		case "int":
			r[i] = new(sql.Null[int])
		case "float":
			r[i] = new(sql.Null[float64])
		default:
			return nil, fmt.Errorf("%w: unknown column type '%s'", ErrIllFormed, typ)
		}
	}
	if err := rows.Scan(append(append([]any{}, extra...), r...)...); err != nil {
		return nil, err
	}
	vals := slice.Fmap(func(x any) Term {
		switch x := x.(type) {
		case *sql.Null[string]:
			if !x.Valid {
				return Nil
			}
			return String(x.V)
		case *sql.Null[int]:
			if !x.Valid {
				return Nil
			}
			return Integer(x.V)
		case *sql.Null[float64]:
			if !x.Valid {
				return Nil
			}
			return Float(x.V)
		}
		return Nil
	}, r)
	return vals, nil
}
