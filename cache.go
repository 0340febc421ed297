package grounding

import "fmt"

// ResultEntry is one (binding, ground node) pair of a result set.
type ResultEntry struct {
	Args Binding
	Node NodeHandle
}

// ResultSet is an append-only, deduplicating collection of the results of a
// goal evaluation. Before collapse a binding may accumulate several handles,
// one per alternative derivation; collapse merges them into a single node
// per binding and is one-directional.
type ResultSet struct {
	order     []string
	bindings  map[string]Binding
	raw       map[string][]NodeHandle
	nodes     map[string]NodeHandle
	collapsed bool
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{
		bindings: make(map[string]Binding),
		raw:      make(map[string][]NodeHandle),
		nodes:    make(map[string]NodeHandle),
	}
}

// Len returns the number of distinct bindings.
func (rs *ResultSet) Len() int { return len(rs.order) }

// Collapsed reports whether the set has been collapsed.
func (rs *ResultSet) Collapsed() bool { return rs.collapsed }

// Add accumulates an alternative derivation for a binding. Adding to a
// collapsed set is a defect.
func (rs *ResultSet) Add(args Binding, node NodeHandle) error {
	if rs.collapsed {
		return fmt.Errorf("%w: add to collapsed result set", ErrInvalidEngineState)
	}
	key := termListKey(args)
	if _, ok := rs.bindings[key]; !ok {
		rs.order = append(rs.order, key)
		rs.bindings[key] = args
	}
	rs.raw[key] = append(rs.raw[key], node)
	return nil
}

// Put records the collapsed node for a binding directly. It is used by
// on-cycle nodes that stream results before the total count is known.
func (rs *ResultSet) Put(args Binding, node NodeHandle) {
	key := termListKey(args)
	if _, ok := rs.bindings[key]; !ok {
		rs.order = append(rs.order, key)
		rs.bindings[key] = args
	}
	rs.nodes[key] = node
	rs.collapsed = true
}

// Get returns the collapsed node for a binding.
func (rs *ResultSet) Get(args Binding) (NodeHandle, bool) {
	h, ok := rs.nodes[termListKey(args)]
	return h, ok
}

// Collapse merges the accumulated alternatives of every binding into a
// single node, in first-seen binding order.
func (rs *ResultSet) Collapse(fn func(Binding, []NodeHandle) NodeHandle) {
	if rs.collapsed && len(rs.raw) == 0 {
		return
	}
	for _, key := range rs.order {
		if _, done := rs.nodes[key]; done {
			continue
		}
		rs.nodes[key] = fn(rs.bindings[key], rs.raw[key])
	}
	rs.raw = make(map[string][]NodeHandle)
	rs.collapsed = true
}

// Entries returns the collapsed results in first-seen binding order.
func (rs *ResultSet) Entries() []ResultEntry {
	entries := make([]ResultEntry, 0, len(rs.order))
	for _, key := range rs.order {
		entries = append(entries, ResultEntry{Args: rs.bindings[key], Node: rs.nodes[key]})
	}
	return entries
}

// goalCache is the two-level tabling store: completed result sets per goal
// key and currently active define nodes per goal key. The active level
// serves cycle detection; the completed level serves memoization. Keys are
// canonical, so ground goals key exactly and non-ground goals match by
// structure across fresh-variable renamings.
type goalCache struct {
	complete map[string]*ResultSet
	active   map[string]*evalDefine
}

func newGoalCache() *goalCache {
	return &goalCache{
		complete: make(map[string]*ResultSet),
		active:   make(map[string]*evalDefine),
	}
}

func goalKey(functor string, args []Term) string {
	return functor + "/" + termListKey(args)
}

func (c *goalCache) lookup(functor string, args []Term) (*ResultSet, bool) {
	rs, ok := c.complete[goalKey(functor, args)]
	return rs, ok
}

func (c *goalCache) store(functor string, args []Term, rs *ResultSet) {
	c.complete[goalKey(functor, args)] = rs
}

func (c *goalCache) activeNode(functor string, args []Term) (*evalDefine, bool) {
	n, ok := c.active[goalKey(functor, args)]
	return n, ok
}

func (c *goalCache) activate(functor string, args []Term, n *evalDefine) {
	c.active[goalKey(functor, args)] = n
}

func (c *goalCache) deactivate(functor string, args []Term) {
	delete(c.active, goalKey(functor, args))
}
