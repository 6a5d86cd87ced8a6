// Package hostapi implements the host-facing callback object plugins
// receive: read-only todo queries, incremental command emission, and
// plugin-scoped metadata access. Each instance is parameterized by a
// single plugin name and project context, coupling metadata namespacing
// and command attribution to that one plugin.
package hostapi

import (
	"sort"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/metadata"
	"github.com/todoplug/hostrt/internal/todomodel"
)

// API is the concrete abi.Host implementation passed into
// execute_with_host. It is constructed fresh per call so Drain's pending
// buffer never leaks between invocations.
type API struct {
	agg    *todomodel.Aggregate
	meta   *metadata.Store
	plugin string

	pending []abi.Command
}

// New creates a Host API instance scoped to plugin, backed by agg and meta.
func New(agg *todomodel.Aggregate, meta *metadata.Store, plugin string) *API {
	return &API{agg: agg, meta: meta, plugin: plugin}
}

var _ abi.Host = (*API)(nil)

// Query returns immutable snapshots of todos per opts.
func (a *API) Query(opts abi.QueryOptions) []abi.Todo {
	live := a.agg.All(opts.IncludeDeleted)
	items := make([]*abi.Todo, len(live))
	for i, t := range live {
		cp := *t
		items[i] = &cp
	}

	if opts.MetadataFilter != "" {
		filtered := items[:0:0]
		for _, t := range items {
			obj := a.meta.Get(t.ID, a.plugin)
			if v, ok := obj[opts.MetadataFilter]; ok && metadataEquals(v, opts.MetadataValue) {
				filtered = append(filtered, t)
			}
		}
		items = filtered
	}

	if opts.Tree {
		items = buildTree(items)
	}

	out := make([]abi.Todo, len(items))
	for i, t := range items {
		out[i] = *t
	}
	return out
}

func metadataEquals(a, b any) bool {
	return a == b
}

// buildTree re-parents children under their parents and assigns
// sequential positions within the resulting order, implementing the
// tree-query mode. Root items (no parent, or a parent absent from the slice) come
// first in creation order; each item's children follow depth-first,
// immediately after their parent, preserving sibling creation order.
func buildTree(items []*abi.Todo) []*abi.Todo {
	byParent := make(map[string][]*abi.Todo)
	present := make(map[string]bool, len(items))
	for _, t := range items {
		present[t.ID] = true
	}
	var roots []*abi.Todo
	for _, t := range items {
		if t.ParentID == "" || !present[t.ParentID] {
			roots = append(roots, t)
		} else {
			byParent[t.ParentID] = append(byParent[t.ParentID], t)
		}
	}

	out := make([]*abi.Todo, 0, len(items))
	var walk func(t *abi.Todo)
	walk = func(t *abi.Todo) {
		out = append(out, t)
		for _, child := range byParent[t.ID] {
			walk(child)
		}
	}
	for _, r := range roots {
		walk(r)
	}

	for i, t := range out {
		t.Position = uint32(i)
	}
	return out
}

// Emit enqueues a command for application after the current
// execute_with_host call returns; see Drain.
func (a *API) Emit(cmd abi.Command) {
	a.pending = append(a.pending, cmd)
}

// Drain returns and clears the commands accumulated via Emit during this
// call, for the caller to append to whatever batch the plugin method
// itself returned.
func (a *API) Drain() []abi.Command {
	out := a.pending
	a.pending = nil
	return out
}

// GetMetadata reads the plugin's metadata object for entityID. A
// non-existent scope returns an empty object, never an error.
func (a *API) GetMetadata(entityID string) (map[string]any, error) {
	return a.meta.Get(entityID, a.plugin), nil
}

// SetMetadata writes or merges the plugin's metadata object for entityID.
func (a *API) SetMetadata(entityID string, values map[string]any, merge bool) error {
	return a.meta.Set(entityID, a.plugin, values, merge)
}

// sortByPosition is a small helper kept for callers that query without
// tree mode but still want a stable, position-ordered view.
func sortByPosition(items []*abi.Todo) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
}
