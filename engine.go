// Package grounding provides a grounding engine for probabilistic logic
// programs. It takes a set of logic-program clauses plus a query and
// produces a finite propositional representation of all ways the query can
// be proven: a ground AND/OR/NOT formula over weighted atoms.
//
// # Proof search
//
// The engine emulates SLD-style proof search on an explicit, heap-allocated
// stack of evaluation nodes driven by an action queue (a trampoline). Proof
// search depth is program-dependent, so the native call stack is never used
// for recursion; suspension is expressed by returning pending actions.
//
// # Cycles
//
// Recursive and mutually recursive predicate definitions, including cyclic
// ones such as
//
//	p :- q.
//	q :- p.
//
// terminate: a call back into an in-progress goal registers a cycle child
// that mirrors the results of the goal it cycled back to, and the cycle is
// closed once no further actions reference its root. Negation reached
// through an unresolved cycle is rejected as a modelling error.
//
// # Tabling
//
// Completed goal evaluations are memoized in a goal cache shared across
// sequential executions on the same engine, so repeated subgoals are never
// re-derived and no two ground nodes are ever minted for the same goal
// instance.
package grounding

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fealsamh/go-utils/dbutils"
)

// UnknownAction selects how the engine treats a call to a predicate with
// neither a definition nor a builtin. It is an engine-wide setting.
type UnknownAction int

const (
	// UnknownError raises an UnknownClauseError.
	UnknownError UnknownAction = iota
	// UnknownFail treats the goal as a silent proof failure.
	UnknownFail
)

// Result is one answer of an execution: an instantiation of the query
// arguments together with the handle of its ground proof formula.
type Result struct {
	Args Binding
	Node NodeHandle
}

const (
	rootPointer      = -1
	initialStackSize = 64
)

type actionKind int

const (
	actEvaluate actionKind = iota
	actResult
	actComplete
)

// action is one unit of trampoline work: evaluate a database node, or
// deliver a result or a completion to the evaluation node at a stack
// pointer. The identifier is an opaque token assigned by the parent at
// evaluate time and echoed back in every message the child sends.
type action struct {
	kind       actionKind
	target     int
	node       int
	context    Binding
	args       Binding
	result     NodeHandle
	isLast     bool
	identifier any
}

func evaluateAction(node int, context Binding, parent int, identifier any) action {
	return action{kind: actEvaluate, node: node, context: context, target: parent, identifier: identifier}
}

func resultAction(target int, args Binding, node NodeHandle, identifier any, isLast bool) action {
	return action{kind: actResult, target: target, args: args, result: node, identifier: identifier, isLast: isLast}
}

func completeAction(target int, identifier any) action {
	return action{kind: actComplete, target: target, identifier: identifier}
}

// Engine evaluates goals against a clause database, accumulating the ground
// formula in its target. One engine owns its stack, queue, goal cache and
// target exclusively; everything is mutated only from within the single
// trampoline loop, so an engine must not be shared between goroutines.
type Engine struct {
	// Database is the clause database to evaluate against.
	Database *ClauseDB
	// Target accumulates the ground formula.
	Target FormulaTarget
	// DB is the database handle used by query-backed builtins.
	DB interface {
		dbutils.Querier
		dbutils.Txer
	}
	// Unknown selects the treatment of undefined predicates.
	Unknown UnknownAction

	ctx        context.Context
	stack      []evalNode
	pointer    int
	queue      []action
	cycleRoot  *evalDefine
	cache      *goalCache
	varCounter int
	depth      int
}

// NewEngine creates an engine for the given database and formula target.
func NewEngine(db *ClauseDB, target FormulaTarget) *Engine {
	return &Engine{
		Database: db,
		Target:   target,
		stack:    make([]evalNode, initialStackSize),
		cache:    newGoalCache(),
	}
}

// Context returns the context of the execution in progress.
func (e *Engine) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// Execute evaluates a query goal and returns all its results. The goal is an
// atom or a compound term; its variables are renamed apart from everything
// already in scope. On a fatal error no partial results are returned.
func (e *Engine) Execute(ctx context.Context, goal Term) ([]Result, error) {
	functor, qargs, err := normalizeQuery(goal, &e.varCounter)
	if err != nil {
		return nil, err
	}
	slots := make([]Term, len(qargs))
	for i := range slots {
		slots[i] = Variable(i)
	}
	// The query call node is transient: it is dispatched directly and never
	// stored in the database, so repeated queries leave it unchanged.
	query := &callNode{functor: functor, args: slots}
	return e.executeQuery(ctx, query, Binding(qargs))
}

func (e *Engine) executeQuery(ctx context.Context, query *callNode, context Binding) ([]Result, error) {
	e.depth++
	defer func() { e.depth-- }()
	topLevel := e.depth == 1
	if topLevel {
		e.ctx = ctx
	}
	mark := len(e.queue)
	acts, err := e.evalCallNode(action{kind: actEvaluate, target: rootPointer, context: context}, query)
	if err != nil {
		e.reset()
		return nil, err
	}
	e.pushBlock(acts)
	results, err := e.run(mark)
	if err != nil {
		e.reset()
		return nil, err
	}
	if topLevel {
		if n := e.occupied(); n != 0 {
			e.reset()
			return nil, fmt.Errorf("%w: %d nodes left on the stack after execution", ErrInvalidEngineState, n)
		}
		e.shrink()
		e.ctx = nil
	}
	return results, nil
}

// run is the trampoline loop. It pops one action at a time, dispatches it
// and pushes whatever new actions that produced, until the queue is drained
// back to the caller's mark.
func (e *Engine) run(mark int) ([]Result, error) {
	var out []Result
	for len(e.queue) > mark {
		if e.ctx != nil {
			select {
			case <-e.ctx.Done():
				return nil, e.ctx.Err()
			default:
			}
		}
		a := e.queue[len(e.queue)-1]
		e.queue = e.queue[:len(e.queue)-1]
		switch {
		case a.target == rootPointer && a.kind != actEvaluate:
			// Results addressed to the root sentinel are collected;
			// completion at the root lets the loop drain out.
			if a.kind == actResult && a.result != FalseNode {
				out = append(out, Result{Args: a.args, Node: a.result})
			}
		case a.kind == actEvaluate:
			if e.cycleRoot != nil && a.target != rootPointer && a.target < e.cycleRoot.pointer {
				// The node would be created before the active cycle root
				// in call order: close the cycle first, then retry.
				e.pushBlock(append(e.closeActiveCycle(), a))
				continue
			}
			acts, err := e.dispatchEvaluate(a)
			if err != nil {
				return nil, err
			}
			e.pushBlock(acts)
		default:
			if a.target < 0 || a.target >= len(e.stack) || e.stack[a.target] == nil {
				return nil, fmt.Errorf("%w: message to missing stack slot %d", ErrInvalidEngineState, a.target)
			}
			n := e.stack[a.target]
			var (
				cleanup bool
				acts    []action
				err     error
			)
			if a.kind == actResult {
				cleanup, acts, err = n.newResult(a.args, a.result, a.identifier, a.isLast)
			} else {
				cleanup, acts, err = n.complete()
			}
			if err != nil {
				return nil, err
			}
			e.pushBlock(acts)
			if cleanup {
				e.cleanupSlot(a.target)
			}
		}
		if len(e.queue) == mark && e.cycleRoot != nil {
			// No more external actions will arrive: force-close the cycle.
			e.pushBlock(e.closeActiveCycle())
		}
	}
	return out, nil
}

// pushBlock pushes a block of actions in reverse, so the block pops in its
// original left-to-right order.
func (e *Engine) pushBlock(acts []action) {
	for i := len(acts) - 1; i >= 0; i-- {
		e.queue = append(e.queue, acts[i])
	}
}

func (e *Engine) push(n evalNode) int {
	if e.pointer == len(e.stack) {
		grown := make([]evalNode, 2*len(e.stack))
		copy(grown, e.stack)
		e.stack = grown
	}
	ptr := e.pointer
	e.stack[ptr] = n
	n.base().pointer = ptr
	e.pointer++
	return ptr
}

func (e *Engine) cleanupSlot(ptr int) {
	e.stack[ptr] = nil
	for e.pointer > 0 && e.stack[e.pointer-1] == nil {
		e.pointer--
	}
}

func (e *Engine) occupied() int {
	n := 0
	for _, s := range e.stack[:e.pointer] {
		if s != nil {
			n++
		}
	}
	return n
}

func (e *Engine) shrink() {
	if len(e.stack) > initialStackSize {
		e.stack = make([]evalNode, initialStackSize)
	}
}

func (e *Engine) reset() {
	e.stack = make([]evalNode, initialStackSize)
	e.pointer = 0
	e.queue = nil
	e.cycleRoot = nil
	e.cache.active = make(map[string]*evalDefine)
	e.ctx = nil
}

func (e *Engine) newBase(a action) baseNode {
	return baseNode{engine: e, parent: a.target, identifier: a.identifier, context: a.context}
}

// dispatchEvaluate creates the evaluation node for a database construct node
// and returns its initial actions. Facts and builtins evaluate eagerly and
// never occupy a stack slot.
func (e *Engine) dispatchEvaluate(a action) ([]action, error) {
	n, err := e.Database.node(a.node)
	if err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case *factNode:
		return e.evalFact(a, n)
	case *clauseNode:
		return e.evalClauseNode(a, n)
	case *conjNode:
		node := &evalConj{baseNode: e.newBase(a), right: n.right, toComplete: 1}
		ptr := e.push(node)
		return []action{evaluateAction(n.left, a.context, ptr, nil)}, nil
	case *disjNode:
		if len(n.children) == 0 {
			return []action{completeAction(a.target, a.identifier)}, nil
		}
		node := &evalDisj{baseNode: e.newBase(a), results: NewResultSet(), toComplete: len(n.children)}
		ptr := e.push(node)
		acts := make([]action, len(n.children))
		for i, c := range n.children {
			acts[i] = evaluateAction(c, a.context, ptr, nil)
		}
		return acts, nil
	case *negNode:
		node := &evalNeg{baseNode: e.newBase(a), loc: n.loc}
		ptr := e.push(node)
		return []action{evaluateAction(n.child, a.context, ptr, nil)}, nil
	case *callNode:
		return e.evalCallNode(a, n)
	case *defineNode:
		return e.evalDefineNode(a, n)
	default:
		return nil, fmt.Errorf("%w: unknown construct '%s'", ErrInvalidEngineState, n.construct())
	}
}

// evalFact attempts a single unification against the stored fact arguments,
// emitting at most one result.
func (e *Engine) evalFact(a action, n *factNode) ([]action, error) {
	local, ok := unifyHead(a.context, n.args, n.varCount, &e.varCounter)
	if !ok {
		return []action{completeAction(a.target, a.identifier)}, nil
	}
	resultArgs := Binding(substituteAll(n.args, local))
	h := TrueNode
	if n.probability != nil {
		name := Term(Atom(n.functor))
		if len(resultArgs) > 0 {
			name = &CompoundTerm{Functor: n.functor, Args: resultArgs}
		}
		h = e.Target.AddAtom(factIdentifier(a.node, resultArgs), n.probability, "", name)
	}
	return []action{resultAction(a.target, resultArgs, h, a.identifier, true)}, nil
}

// evalClauseNode unifies the call arguments against the clause head. On
// failure the clause completes with zero results; on success the body is
// evaluated with the extended binding.
func (e *Engine) evalClauseNode(a action, n *clauseNode) ([]action, error) {
	local, ok := unifyHead(a.context, n.head, n.varCount, &e.varCounter)
	if !ok {
		return []action{completeAction(a.target, a.identifier)}, nil
	}
	node := &evalClause{baseNode: e.newBase(a), clause: n, clauseID: a.node}
	ptr := e.push(node)
	return []action{evaluateAction(n.body, local, ptr, nil)}, nil
}

// evalCallNode resolves a call to a defined predicate or a builtin,
// substituting the caller's context into the call arguments first.
func (e *Engine) evalCallNode(a action, n *callNode) ([]action, error) {
	callArgs := substituteAll(n.args, a.context)
	sig := Signature{Functor: n.functor, Arity: len(n.args)}
	if defID, ok := e.Database.index[sig]; ok {
		node := &evalCall{baseNode: e.newBase(a), callArgs: callArgs, loc: n.loc}
		ptr := e.push(node)
		return []action{evaluateAction(defID, Binding(callArgs), ptr, nil)}, nil
	}
	if f, ok := e.Database.builtins[sig]; ok {
		return e.evalBuiltin(a, n, f, callArgs)
	}
	if e.Unknown == UnknownFail {
		return []action{completeAction(a.target, a.identifier)}, nil
	}
	return nil, &UnknownClauseError{Signature: sig, Location: n.loc}
}

// evalBuiltin runs a builtin eagerly and translates its results back into
// the caller's variable space.
func (e *Engine) evalBuiltin(a action, n *callNode, f Builtin, callArgs []Term) ([]action, error) {
	call := &CompoundTerm{Functor: n.functor, Args: callArgs}
	results, err := f(e, call, n.loc)
	if err != nil {
		return nil, err
	}
	var acts []action
	for _, r := range results {
		m, ok := unifyCallReturn(r.Args, callArgs, &e.varCounter)
		if !ok {
			continue
		}
		acts = append(acts, resultAction(a.target, applyVarsAll(a.context, m), r.Node, a.identifier, false))
	}
	if len(acts) == 0 {
		return []action{completeAction(a.target, a.identifier)}, nil
	}
	acts[len(acts)-1].isLast = true
	return acts, nil
}

// evalDefineNode evaluates a tabled predicate definition: cached goals
// replay their results, active goals indicate a cycle, anything else gets a
// fresh define node gathering one evaluation per clause child.
func (e *Engine) evalDefineNode(a action, n *defineNode) ([]action, error) {
	args := Binding(a.context)
	functor := n.signature.Functor
	if rs, ok := e.cache.lookup(functor, args); ok {
		return e.cachedActions(rs, a), nil
	}
	if active, ok := e.cache.activeNode(functor, args); ok {
		return e.cycleDetected(a, active)
	}
	if len(n.children) == 0 {
		return []action{completeAction(a.target, a.identifier)}, nil
	}
	node := &evalDefine{
		baseNode:   e.newBase(a),
		functor:    functor,
		args:       args,
		results:    NewResultSet(),
		toComplete: len(n.children),
	}
	ptr := e.push(node)
	e.cache.activate(functor, args, node)
	acts := make([]action, len(n.children))
	for i, c := range n.children {
		acts[i] = evaluateAction(c, args, ptr, nil)
	}
	return acts, nil
}

// cachedActions replays a completed result set to a caller, renaming any
// fresh variables apart so independent callers never share them.
func (e *Engine) cachedActions(rs *ResultSet, a action) []action {
	entries := rs.Entries()
	if len(entries) == 0 {
		return []action{completeAction(a.target, a.identifier)}
	}
	acts := make([]action, 0, len(entries))
	for i, entry := range entries {
		acts = append(acts, resultAction(a.target, e.renameApart(entry.Args), entry.Node, a.identifier, i == len(entries)-1))
	}
	return acts
}

func (e *Engine) renameApart(b Binding) Binding {
	m := make(map[Variable]Term)
	var collect func(t Term)
	collect = func(t Term) {
		switch x := t.(type) {
		case Variable:
			if _, ok := m[x]; !ok {
				e.varCounter--
				m[x] = Variable(e.varCounter)
			}
		case *CompoundTerm:
			for _, arg := range x.Args {
				collect(arg)
			}
		}
	}
	for _, t := range b {
		collect(t)
	}
	if len(m) == 0 {
		return b
	}
	return applyVarsAll(b, m)
}

// cycleDetected handles a call back into a goal that is still in progress.
func (e *Engine) cycleDetected(a action, active *evalDefine) ([]action, error) {
	if Binding(a.context).IsGround() && active.results.Len() > 0 {
		// The goal is ground and already has results: this is not a true
		// cycle, just an early close of a tabled call. The path from the
		// caller to the active node still must not pass through negation.
		if err := e.checkCycle(a.target, active.pointer); err != nil {
			return nil, err
		}
		acts := active.flushBuffer()
		entries := active.results.Entries()
		for i, entry := range entries {
			acts = append(acts, resultAction(a.target, entry.Args, entry.Node, a.identifier, i == len(entries)-1))
		}
		return acts, nil
	}
	if e.cycleRoot == nil {
		active.isCycleRoot = true
		e.cycleRoot = active
	} else if active.pointer < e.cycleRoot.pointer {
		// The node cycled back to sits earlier in call order than the
		// current root: swap roots, transferring the pending close set.
		old := e.cycleRoot
		old.isCycleRoot = false
		for _, p := range old.cycleClose {
			active.cycleCloseAdd(p)
		}
		old.cycleClose = nil
		old.closeSeen = nil
		active.isCycleRoot = true
		e.cycleRoot = active
	}
	// Sweep the frames between the caller and the active node before the
	// new child registers, so flushed buffers do not double-deliver.
	acts, err := e.notifyCycle(a.target, active.pointer)
	if err != nil {
		return nil, err
	}
	child := &evalDefine{
		baseNode:     e.newBase(a),
		functor:      active.functor,
		args:         Binding(a.context),
		results:      NewResultSet(),
		isCycleChild: true,
	}
	ptr := e.push(child)
	e.cycleRoot.cycleCloseAdd(ptr)
	active.cycleChildren = append(active.cycleChildren, ptr)
	for _, entry := range active.results.Entries() {
		acts = append(acts, resultAction(ptr, entry.Args, entry.Node, nil, false))
	}
	return acts, nil
}

// notifyCycle walks the stack from a calling frame up to the node cycled
// back to, marking every intermediate frame as on-cycle and flushing its
// buffered results upward. Walking past the bottom of the stack means the
// cycle runs through an indirect call boundary, which is unsupported.
func (e *Engine) notifyCycle(from, to int) ([]action, error) {
	var acts []action
	p := from
	for p != to {
		if p == rootPointer {
			return nil, &IndirectCallCycleError{}
		}
		if p < 0 || p >= len(e.stack) || e.stack[p] == nil {
			return nil, fmt.Errorf("%w: cycle sweep through missing stack slot %d", ErrInvalidEngineState, p)
		}
		n := e.stack[p]
		if !n.base().onCycle {
			more, err := n.notifyCycle()
			if err != nil {
				return nil, err
			}
			acts = append(acts, more...)
		}
		p = n.base().parent
	}
	n := e.stack[to]
	if n != nil && !n.base().onCycle {
		more, err := n.notifyCycle()
		if err != nil {
			return nil, err
		}
		acts = append(acts, more...)
	}
	return acts, nil
}

// checkCycle verifies that the path from a calling frame up to an active
// node does not run through a negation, which would make the recursive
// goal's semantics undefined.
func (e *Engine) checkCycle(from, to int) error {
	p := from
	for p != to {
		if p == rootPointer {
			return &IndirectCallCycleError{}
		}
		if p < 0 || p >= len(e.stack) || e.stack[p] == nil {
			return fmt.Errorf("%w: cycle check through missing stack slot %d", ErrInvalidEngineState, p)
		}
		n := e.stack[p]
		if neg, ok := n.(*evalNeg); ok {
			return &NegativeCycleError{Location: neg.loc}
		}
		p = n.base().parent
	}
	return nil
}

// closeActiveCycle synthesizes a completion for every node recorded in the
// cycle root's close set and clears the engine's cycle bookkeeping.
func (e *Engine) closeActiveCycle() []action {
	root := e.cycleRoot
	if root == nil {
		return nil
	}
	e.cycleRoot = nil
	acts := make([]action, 0, len(root.cycleClose))
	for _, p := range root.cycleClose {
		acts = append(acts, completeAction(p, nil))
	}
	root.cycleClose = nil
	root.closeSeen = nil
	for _, d := range e.cache.active {
		d.cycleChildren = nil
	}
	return acts
}

func factIdentifier(node int, args []Term) string {
	return strconv.Itoa(node) + ":" + termListKey(args)
}

func choiceIdentifier(node int, args []Term) string {
	return "c" + strconv.Itoa(node) + ":" + termListKey(args)
}

// normalizeQuery splits a query goal into its functor and arguments,
// renaming every variable to a fresh one below everything in scope.
func normalizeQuery(goal Term, counter *int) (string, []Term, error) {
	switch g := goal.(type) {
	case Atom:
		return string(g), nil, nil
	case *CompoundTerm:
		m := make(map[Variable]Term)
		var collect func(t Term)
		collect = func(t Term) {
			switch x := t.(type) {
			case Variable:
				if _, ok := m[x]; !ok {
					*counter--
					m[x] = Variable(*counter)
				}
			case *CompoundTerm:
				for _, arg := range x.Args {
					collect(arg)
				}
			}
		}
		for _, arg := range g.Args {
			collect(arg)
		}
		return g.Functor, applyVarsAll(g.Args, m), nil
	default:
		return "", nil, fmt.Errorf("%w: invalid query goal '%s'", ErrIllFormed, goal)
	}
}
