// Package runtime wires the command executor, event dispatcher, and
// keybinding registry into the host's two live data-flow paths: an
// interactive mutation fires the matching lifecycle event after it
// applies, and a resolved keybinding action invokes the owning plugin's
// execute_with_host, threading whatever commands it returns back through
// the executor exactly as for any other interactive action.
package runtime

import (
	"context"
	"fmt"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/apperr"
	"github.com/todoplug/hostrt/internal/dispatcher"
	"github.com/todoplug/hostrt/internal/executor"
	"github.com/todoplug/hostrt/internal/hostapi"
	"github.com/todoplug/hostrt/internal/keybinding"
	"github.com/todoplug/hostrt/internal/loader"
	"github.com/todoplug/hostrt/internal/metadata"
	"github.com/todoplug/hostrt/internal/todomodel"
)

// Runtime binds one project+date aggregate to the executor, dispatcher,
// and keybinding registry operating on it, and tracks which loaded
// plugin backs each registered action.
type Runtime struct {
	agg  *todomodel.Aggregate
	meta *metadata.Store
	ex   *executor.Executor
	disp *dispatcher.Dispatcher
	keys *keybinding.Registry

	plugins map[string]*loader.LoadedPlugin // by plugin name
}

// New creates a Runtime over agg, with ex and disp already constructed
// against the same aggregate and metadata store.
func New(agg *todomodel.Aggregate, meta *metadata.Store, ex *executor.Executor, disp *dispatcher.Dispatcher, keys *keybinding.Registry) *Runtime {
	return &Runtime{
		agg:     agg,
		meta:    meta,
		ex:      ex,
		disp:    disp,
		keys:    keys,
		plugins: make(map[string]*loader.LoadedPlugin),
	}
}

// RegisterPlugin makes lp reachable from DispatchAction for any action
// registered under its name in the keybinding registry.
func (rt *Runtime) RegisterPlugin(lp *loader.LoadedPlugin) {
	rt.plugins[lp.Name] = lp
}

// ApplyInteractive applies cmds as an interactive batch and, for each
// command that took effect, fires the lifecycle event a mutation site
// would compute for it. Create commands without a caller-supplied TempID
// still produce an OnAdd event: ApplyInteractive assigns a throwaway one
// internally so the new item's id can be recovered from the executor's
// id map.
func (rt *Runtime) ApplyInteractive(plugin string, cmds []abi.Command) (executor.IDMap, error) {
	tagged := make([]abi.Command, len(cmds))
	copy(tagged, cmds)
	for i := range tagged {
		if tagged[i].Kind == abi.CommandCreateTodo && tagged[i].TempID == "" {
			tagged[i].TempID = fmt.Sprintf("__runtime_evt_%d", i)
		}
	}

	ids, err := rt.ex.Apply(plugin, abi.OriginInteractive, tagged)
	if err != nil {
		return ids, err
	}

	for _, cmd := range tagged {
		if ev, ok := rt.eventFor(plugin, cmd, ids); ok {
			snap := *ev.Item
			ev.Item = &snap
			rt.disp.Fire(ev)
		}
	}
	return ids, nil
}

// resolvedID mirrors the executor's own temp-id-then-host-id resolution so
// event construction can recover the same target the command actually hit.
func (rt *Runtime) resolvedID(ref string, ids executor.IDMap) (string, bool) {
	if ref == "" {
		return "", false
	}
	if hostID, ok := ids[ref]; ok {
		return hostID, true
	}
	if rt.agg.Exists(ref) {
		return ref, true
	}
	return "", false
}

// eventFor computes the lifecycle event cmd's application should fire, if
// any. Delete fires with the item's full payload because soft delete never
// erases it, so reading the aggregate after Apply still sees the
// pre-removal snapshot intact.
func (rt *Runtime) eventFor(plugin string, cmd abi.Command, ids executor.IDMap) (abi.Event, bool) {
	source := abi.SourceManual
	if plugin != "" {
		source = abi.SourcePlugin
	}

	switch cmd.Kind {
	case abi.CommandCreateTodo:
		id, ok := rt.resolvedID(cmd.TempID, ids)
		if !ok {
			return abi.Event{}, false
		}
		item := rt.agg.Get(id, true)
		if item == nil {
			return abi.Event{}, false
		}
		return abi.Event{Kind: abi.EventOnAdd, Item: item, Source: source}, true

	case abi.CommandUpdateTodo:
		id, ok := rt.resolvedID(cmd.TargetRef, ids)
		if !ok {
			return abi.Event{}, false
		}
		item := rt.agg.Get(id, true)
		if item == nil {
			return abi.Event{}, false
		}
		if cmd.SetState && cmd.NewState == abi.StateDone {
			return abi.Event{Kind: abi.EventOnComplete, Item: item, Source: source}, true
		}
		field, changed := modifiedField(cmd)
		if !changed {
			return abi.Event{}, false
		}
		return abi.Event{Kind: abi.EventOnModify, Item: item, Source: source, Field: field}, true

	case abi.CommandDeleteTodo:
		id, ok := rt.resolvedID(cmd.TargetRef, ids)
		if !ok {
			return abi.Event{}, false
		}
		item := rt.agg.Get(id, true)
		if item == nil {
			return abi.Event{}, false
		}
		return abi.Event{Kind: abi.EventOnDelete, Item: item, Source: source}, true

	default:
		return abi.Event{}, false
	}
}

// modifiedField reports the single changed field an update command
// touched, or ModifyMultiple when more than one was set in the same
// command.
func modifiedField(cmd abi.Command) (abi.ModifyField, bool) {
	var field abi.ModifyField
	count := 0
	mark := func(set bool, f abi.ModifyField) {
		if set {
			count++
			field = f
		}
	}
	mark(cmd.SetContent, abi.ModifyContent)
	mark(cmd.SetState, abi.ModifyState)
	mark(cmd.SetDueDate, abi.ModifyDue)
	mark(cmd.SetPriority, abi.ModifyPriority)
	mark(cmd.SetDescription, abi.ModifyDescription)
	mark(cmd.SetIndent, abi.ModifyIndent)
	mark(cmd.SetParent, abi.ModifyParent)

	switch count {
	case 0:
		return 0, false
	case 1:
		return field, true
	default:
		return abi.ModifyMultiple, true
	}
}

// DispatchAction resolves a key press through the host's own bindings
// first via hostResolve, falling back to the plugin keybinding registry.
// When the key belongs to a plugin action, it invokes that plugin's
// execute_with_host with the given selection and applies whatever
// commands come back (including ones the plugin Emitted through its Host
// API) through the same interactive path as any other action.
func (rt *Runtime) DispatchAction(key, selectionID string, hostResolve func(key string) bool) (executor.IDMap, error) {
	if hostResolve != nil && hostResolve(key) {
		// The host's own binding claimed the key; the plugin registry is
		// never consulted per the host-always-wins routing order.
		return nil, nil
	}

	qualified, bound := rt.keys.Resolve(key)
	if !bound {
		return nil, nil
	}
	action, ok := rt.keys.Action(qualified)
	if !ok {
		return nil, fmt.Errorf("resolved key %q to unknown action %q", key, qualified)
	}

	lp, ok := rt.plugins[action.Plugin]
	if !ok {
		return nil, fmt.Errorf("action %q: plugin %q not loaded", qualified, action.Plugin)
	}
	if lp.Disabled() {
		return nil, apperr.SessionDisabled(action.Plugin)
	}

	host := hostapi.New(rt.agg, rt.meta, action.Plugin)
	hctx := abi.HostContext{ActionName: action.Name, SelectionID: selectionID}

	var cmds []abi.Command
	err := lp.Call(func() error {
		var callErr error
		cmds, callErr = lp.Handler().ExecuteWithHost(context.Background(), host, hctx)
		return callErr
	})
	if err != nil {
		lp.RecordFailure()
		return nil, err
	}
	lp.RecordSuccess()

	cmds = append(cmds, host.Drain()...)
	return rt.ApplyInteractive(action.Plugin, cmds)
}
