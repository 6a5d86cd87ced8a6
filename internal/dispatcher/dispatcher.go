// Package dispatcher implements the event dispatcher: caching
// per-plugin subscriptions, firing lifecycle events in load order, gating
// hook calls behind a per-plugin watchdog timeout, tracking consecutive
// failures toward session-disable, and suppressing event cascades while
// applying hook-returned commands.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/apperr"
	"github.com/todoplug/hostrt/internal/executor"
	"github.com/todoplug/hostrt/internal/loader"
	"github.com/todoplug/hostrt/internal/logger"
)

// entry pairs a loaded plugin with its cached subscription set and
// manifest-declared timeout.
type entry struct {
	plugin  *loader.LoadedPlugin
	events  map[abi.EventKind]bool
	timeout time.Duration
}

// Result is a hook outcome queued for the UI tick to apply or surface,
// mirroring a non-blocking UI channel.
type Result struct {
	Plugin   string
	Commands []abi.Command
	Err      error
}

// Dispatcher fires lifecycle events to subscribed plugins in load order.
type Dispatcher struct {
	mu      sync.Mutex
	entries []*entry // load order

	// inHookApply is the process-wide cascade-prevention flag: set while
	// applying commands returned by a hook, causing Fire to no-op.
	inHookApply atomic.Bool

	resultsMu sync.Mutex
	results   []Result // unbounded queue, drained by DrainResults
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a plugin to the dispatch list in load order and caches its
// subscribed event set by calling SubscribedEvents once. A plugin
// subscribing to nothing is recorded but never dispatched to.
func (d *Dispatcher) Register(plugin *loader.LoadedPlugin, timeoutSecs int) error {
	var kinds []abi.EventKind
	err := plugin.Call(func() error {
		kinds = plugin.Handler().SubscribedEvents()
		return nil
	})
	if err != nil {
		return err
	}
	plugin.RecordSuccess()

	set := make(map[abi.EventKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, &entry{
		plugin:  plugin,
		events:  set,
		timeout: time.Duration(timeoutSecs) * time.Second,
	})
	return nil
}

// InHookApply reports whether the cascade-prevention flag is currently set.
func (d *Dispatcher) InHookApply() bool {
	return d.inHookApply.Load()
}

// Fire dispatches ev to every subscribed, non-disabled plugin in load
// order, sequentially. If the cascade-prevention flag is set, Fire is a
// complete no-op — no plugin is called at all.
func (d *Dispatcher) Fire(ev abi.Event) {
	if d.InHookApply() {
		return
	}

	d.mu.Lock()
	entries := make([]*entry, len(d.entries))
	copy(entries, d.entries)
	d.mu.Unlock()

	for _, e := range entries {
		if !e.events[ev.Kind] {
			continue
		}
		if e.plugin.Disabled() {
			continue
		}
		d.dispatchOne(e, ev)
	}
}

type callResult struct {
	resp abi.HookResponse
	err  error
}

// dispatchOne runs e's OnEvent under a watchdog timeout. The plugin call
// itself is never forcibly aborted on timeout — the goroutine is allowed
// to run to completion in the background and its late result is discarded;
// only the reported outcome is a Timeout error.
func (d *Dispatcher) dispatchOne(e *entry, ev abi.Event) {
	log := logger.Dispatcher()
	resultCh := make(chan callResult, 1)

	go func() {
		var cr callResult
		cr.err = e.plugin.Call(func() error {
			resp, err := e.plugin.Handler().OnEvent(context.Background(), ev)
			cr.resp = resp
			return err
		})
		resultCh <- cr
	}()

	var cr callResult
	select {
	case cr = <-resultCh:
	case <-time.After(e.timeout):
		cr.err = apperr.Timeout(e.plugin.Name, int(e.timeout.Seconds()))
	}

	if cr.err != nil {
		disabledNow := e.plugin.RecordFailure()
		log.Warn().Str("plugin", e.plugin.Name).Str("event", ev.Kind.String()).Err(cr.err).
			Bool("session_disabled", disabledNow).Msg("hook dispatch failed")
		d.pushResult(Result{Plugin: e.plugin.Name, Err: cr.err})
		return
	}

	e.plugin.RecordSuccess()
	if cr.resp.Err != "" {
		d.pushResult(Result{Plugin: e.plugin.Name, Err: &hookError{cr.resp.Err}})
		return
	}
	if len(cr.resp.Commands) > 0 {
		d.pushResult(Result{Plugin: e.plugin.Name, Commands: cr.resp.Commands})
	}
}

type hookError struct{ msg string }

func (h *hookError) Error() string { return h.msg }

func (d *Dispatcher) pushResult(r Result) {
	d.resultsMu.Lock()
	defer d.resultsMu.Unlock()
	d.results = append(d.results, r)
}

// DrainResults removes and returns every queued result, in dispatch order.
// Called from the UI tick; this whole-slice drain stands in for a
// non-blocking channel receive, since Go's channels have no true
// unbounded variant, but the observable semantics (FIFO, never blocks the
// caller) are the same.
func (d *Dispatcher) DrainResults() []Result {
	d.resultsMu.Lock()
	defer d.resultsMu.Unlock()
	out := d.results
	d.results = nil
	return out
}

// ApplyHookResult applies a successful Result's commands through ex with
// the cascade-prevention flag held: hook-returned commands never snapshot
// undo and never trigger further event firing while they apply.
func (d *Dispatcher) ApplyHookResult(ex *executor.Executor, r Result) (executor.IDMap, error) {
	d.inHookApply.Store(true)
	defer d.inHookApply.Store(false)
	return ex.Apply(r.Plugin, abi.OriginHook, r.Commands)
}
