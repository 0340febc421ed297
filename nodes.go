package grounding

import (
	"errors"

	"github.com/phomola/textkit"
)

// evalNode is an in-flight evaluation of a program construct. Each node is a
// small state machine consuming result and completion messages from its
// children and emitting the same upward. Nodes are owned by the engine's
// explicit stack and refer to each other only by stack pointer.
type evalNode interface {
	base() *baseNode
	// newResult delivers a result produced by a child. It returns whether
	// the node may be removed from the stack and the actions to push.
	newResult(args Binding, node NodeHandle, identifier any, isLast bool) (bool, []action, error)
	// complete delivers a completion signal from a child.
	complete() (bool, []action, error)
	// notifyCycle marks the node as part of an active cycle and flushes any
	// buffered results upward.
	notifyCycle() ([]action, error)
}

type baseNode struct {
	engine     *Engine
	pointer    int
	parent     int
	identifier any
	context    Binding
	onCycle    bool
}

func (b *baseNode) base() *baseNode { return b }

// emitResult builds the result actions for the parent, dropping failed
// proofs. A FALSE handle is no proof at all: it is skipped and, if it was
// the last message, converted into a bare completion.
func (b *baseNode) emitResult(args Binding, node NodeHandle, isLast bool) []action {
	if node == FalseNode {
		if isLast {
			return []action{completeAction(b.parent, b.identifier)}
		}
		return nil
	}
	return []action{resultAction(b.parent, args, node, b.identifier, isLast)}
}

func (b *baseNode) emitComplete() []action {
	return []action{completeAction(b.parent, b.identifier)}
}

func (b *baseNode) notifyCycle() ([]action, error) {
	b.onCycle = true
	return nil, nil
}

// evalConj evaluates a two-child conjunction: the left child first, then one
// right evaluation per left result, with the left result's binding as
// context. The left node handle travels as the identifier of the spawned
// right evaluation and is conjoined with each right handle.
type evalConj struct {
	baseNode
	right      int
	toComplete int
}

func (n *evalConj) newResult(args Binding, node NodeHandle, identifier any, isLast bool) (bool, []action, error) {
	if identifier == nil {
		// A result of the left child spawns a right evaluation.
		if isLast {
			n.toComplete--
		}
		if node == FalseNode {
			if n.toComplete == 0 {
				return true, n.emitComplete(), nil
			}
			return false, nil, nil
		}
		n.toComplete++
		return false, []action{evaluateAction(n.right, args, n.pointer, node)}, nil
	}
	left := identifier.(NodeHandle)
	if isLast {
		n.toComplete--
	}
	conj := n.engine.Target.AddAnd([]NodeHandle{left, node})
	last := n.toComplete == 0
	return last, n.emitResult(args, conj, last), nil
}

func (n *evalConj) complete() (bool, []action, error) {
	n.toComplete--
	if n.toComplete == 0 {
		return true, n.emitComplete(), nil
	}
	return false, nil, nil
}

// evalDisj evaluates an n-child disjunction, collecting a result set across
// all children and collapsing it on completion. On a cycle the buffer is
// flushed early and further results stream upward through mutable OR nodes.
type evalDisj struct {
	baseNode
	results    *ResultSet
	toComplete int
}

func (n *evalDisj) newResult(args Binding, node NodeHandle, identifier any, isLast bool) (bool, []action, error) {
	if isLast {
		n.toComplete--
	}
	var acts []action
	if n.results.Collapsed() {
		if existing, ok := n.results.Get(args); ok {
			if err := n.engine.Target.AddDisjunct(existing, node); err != nil {
				return false, nil, err
			}
		} else if node != FalseNode {
			or := n.engine.Target.AddOr([]NodeHandle{node}, false)
			n.results.Put(args, or)
			acts = n.emitResult(args, or, false)
		}
	} else if node != FalseNode {
		if err := n.results.Add(args, node); err != nil {
			return false, nil, err
		}
	}
	if n.toComplete == 0 {
		done, more, err := n.finish()
		return done, append(acts, more...), err
	}
	return false, acts, nil
}

func (n *evalDisj) complete() (bool, []action, error) {
	n.toComplete--
	if n.toComplete == 0 {
		return n.finish()
	}
	return false, nil, nil
}

func (n *evalDisj) finish() (bool, []action, error) {
	if n.results.Collapsed() {
		// Results were already streamed while on a cycle.
		return true, n.emitComplete(), nil
	}
	n.results.Collapse(func(_ Binding, hs []NodeHandle) NodeHandle {
		return n.engine.Target.AddOr(hs, !n.onCycle)
	})
	var acts []action
	entries := n.results.Entries()
	if len(entries) == 0 {
		return true, n.emitComplete(), nil
	}
	for i, entry := range entries {
		acts = append(acts, n.emitResult(entry.Args, entry.Node, i == len(entries)-1)...)
	}
	return true, acts, nil
}

func (n *evalDisj) notifyCycle() ([]action, error) {
	n.onCycle = true
	if n.results.Collapsed() {
		return nil, nil
	}
	n.results.Collapse(func(_ Binding, hs []NodeHandle) NodeHandle {
		return n.engine.Target.AddOr(hs, false)
	})
	var acts []action
	for _, entry := range n.results.Entries() {
		acts = append(acts, n.emitResult(entry.Args, entry.Node, false)...)
	}
	return acts, nil
}

// evalNeg evaluates negation as failure. It collects the ground handles its
// child produces and, on completion, builds NOT(OR(handles)). A result that
// is not fully ground at negation time is a modelling error, as is reaching
// the negation through an unresolved cycle.
type evalNeg struct {
	baseNode
	handles []NodeHandle
	loc     textkit.Location
}

func (n *evalNeg) newResult(args Binding, node NodeHandle, identifier any, isLast bool) (bool, []action, error) {
	if !args.IsGround() {
		return false, nil, &NonGroundResultError{Term: ListFromSlice(args, Nil), Location: n.loc}
	}
	if node != FalseNode {
		n.handles = append(n.handles, node)
	}
	if isLast {
		return n.complete()
	}
	return false, nil, nil
}

func (n *evalNeg) complete() (bool, []action, error) {
	if len(n.handles) == 0 {
		return true, n.emitResult(n.context, TrueNode, true), nil
	}
	or := n.engine.Target.AddOr(n.handles, true)
	return true, n.emitResult(n.context, n.engine.Target.AddNot(or), true), nil
}

func (n *evalNeg) notifyCycle() ([]action, error) {
	return nil, &NegativeCycleError{Location: n.loc}
}

// evalCall evaluates a predicate call. The call arguments were rewritten
// into the callee's variable space by the dispatcher; each returned result
// is unified back against the original call arguments, rebinding the
// caller's variables. A result that does not unify is dropped.
type evalCall struct {
	baseNode
	callArgs []Term
	loc      textkit.Location
}

func (n *evalCall) newResult(args Binding, node NodeHandle, identifier any, isLast bool) (bool, []action, error) {
	m, ok := unifyCallReturn(args, n.callArgs, &n.engine.varCounter)
	if !ok {
		if isLast {
			return true, n.emitComplete(), nil
		}
		return false, nil, nil
	}
	return isLast, n.emitResult(applyVarsAll(n.context, m), node, isLast), nil
}

func (n *evalCall) complete() (bool, []action, error) {
	return true, n.emitComplete(), nil
}

// evalClause holds one clause whose head has already unified with the call
// arguments. Body results arrive as clause-local bindings and are translated
// back into callee result arguments. A probability annotation conjoins a
// choice atom, one per ground instance of the clause head.
type evalClause struct {
	baseNode
	clause   *clauseNode
	clauseID int
}

func (n *evalClause) newResult(args Binding, node NodeHandle, identifier any, isLast bool) (bool, []action, error) {
	resultArgs := substituteAll(n.clause.head, args)
	if n.clause.probability != nil {
		id := choiceIdentifier(n.clauseID, resultArgs)
		name := &CompoundTerm{Functor: n.clause.functor, Args: resultArgs}
		choice := n.engine.Target.AddAtom(id, n.clause.probability, "", name)
		node = n.engine.Target.AddAnd([]NodeHandle{node, choice})
	}
	return isLast, n.emitResult(resultArgs, node, isLast), nil
}

func (n *evalClause) complete() (bool, []action, error) {
	return true, n.emitComplete(), nil
}

// evalDefine evaluates a tabled predicate definition. It gathers the results
// of its clause children into a result set, collapses and commits them to
// the goal cache on completion, and switches to incremental streaming when a
// cycle is detected. A cycle child never caches on its own: it mirrors the
// results of the node it cycled back to and forwards them to its parent.
type evalDefine struct {
	baseNode
	functor       string
	args          Binding
	toComplete    int
	results       *ResultSet
	isCycleRoot   bool
	isCycleChild  bool
	cycleChildren []int
	cycleClose    []int
	closeSeen     map[int]struct{}
}

func (n *evalDefine) newResult(args Binding, node NodeHandle, identifier any, isLast bool) (bool, []action, error) {
	if n.isCycleChild {
		// Mirror the root's results; completion arrives at cycle close.
		return false, n.emitResult(args, node, false), nil
	}
	if isLast {
		n.toComplete--
	}
	var acts []action
	var err error
	if n.results.Collapsed() {
		acts, err = n.streamResult(args, node)
		if err != nil {
			return false, nil, err
		}
	} else if node != FalseNode {
		if err := n.results.Add(args, node); err != nil {
			return false, nil, err
		}
	}
	if n.toComplete == 0 {
		done, more, err := n.finish()
		return done, append(acts, more...), err
	}
	return false, acts, nil
}

// streamResult propagates a single result while the node is on a cycle. A
// define node never mints two ground nodes for the same (functor, binding)
// pair: it reuses the binding's own OR node or a fully cached node first.
func (n *evalDefine) streamResult(args Binding, node NodeHandle) ([]action, error) {
	if existing, ok := n.results.Get(args); ok {
		if err := n.engine.Target.AddDisjunct(existing, node); err != nil {
			// A read-only node here is one reused from the completed
			// cache; its derivations are already complete.
			if errors.Is(err, ErrReadOnlyNode) {
				return nil, nil
			}
			return nil, err
		}
		return nil, nil
	}
	if node == FalseNode {
		return nil, nil
	}
	var res NodeHandle
	if rs, ok := n.engine.cache.lookup(n.functor, args); ok {
		if cached, ok := rs.Get(args); ok {
			res = cached
		} else {
			res = n.engine.Target.AddOr([]NodeHandle{node}, false)
		}
	} else {
		res = n.engine.Target.AddOr([]NodeHandle{node}, false)
	}
	n.results.Put(args, res)
	acts := n.emitResult(args, res, false)
	if n.engine.cycleRoot != nil {
		for _, cc := range n.cycleChildren {
			acts = append(acts, resultAction(cc, args, res, nil, false))
		}
	}
	return acts, nil
}

func (n *evalDefine) complete() (bool, []action, error) {
	if n.isCycleChild {
		return true, n.emitComplete(), nil
	}
	n.toComplete--
	if n.toComplete == 0 {
		return n.finish()
	}
	return false, nil, nil
}

func (n *evalDefine) finish() (bool, []action, error) {
	streamed := n.results.Collapsed()
	if !streamed {
		n.results.Collapse(func(_ Binding, hs []NodeHandle) NodeHandle {
			return n.engine.Target.AddOr(hs, true)
		})
	}
	n.engine.cache.store(n.functor, n.args, n.results)
	n.engine.cache.deactivate(n.functor, n.args)
	var acts []action
	if streamed {
		// Results were forwarded incrementally; only completion remains.
		acts = n.emitComplete()
	} else {
		entries := n.results.Entries()
		if len(entries) == 0 {
			acts = n.emitComplete()
		}
		for i, entry := range entries {
			acts = append(acts, n.emitResult(entry.Args, entry.Node, i == len(entries)-1)...)
		}
	}
	if n.isCycleRoot && n.engine.cycleRoot == n {
		acts = append(acts, n.engine.closeActiveCycle()...)
	}
	return true, acts, nil
}

func (n *evalDefine) notifyCycle() ([]action, error) {
	n.onCycle = true
	return n.flushBuffer(), nil
}

// flushBuffer collapses the gathered results into mutable OR nodes and
// emits them upward. Flushed results remain open to later disjuncts.
func (n *evalDefine) flushBuffer() []action {
	if n.results.Collapsed() {
		return nil
	}
	n.results.Collapse(func(_ Binding, hs []NodeHandle) NodeHandle {
		return n.engine.Target.AddOr(hs, false)
	})
	var acts []action
	for _, entry := range n.results.Entries() {
		acts = append(acts, n.emitResult(entry.Args, entry.Node, false)...)
		for _, cc := range n.cycleChildren {
			acts = append(acts, resultAction(cc, entry.Args, entry.Node, nil, false))
		}
	}
	return acts
}

func (n *evalDefine) cycleCloseAdd(ptr int) {
	if n.closeSeen == nil {
		n.closeSeen = make(map[int]struct{})
	}
	if _, ok := n.closeSeen[ptr]; ok {
		return
	}
	n.closeSeen[ptr] = struct{}{}
	n.cycleClose = append(n.cycleClose, ptr)
}
