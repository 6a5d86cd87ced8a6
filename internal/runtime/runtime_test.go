package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/dispatcher"
	"github.com/todoplug/hostrt/internal/executor"
	"github.com/todoplug/hostrt/internal/keybinding"
	"github.com/todoplug/hostrt/internal/loader"
	"github.com/todoplug/hostrt/internal/metadata"
	"github.com/todoplug/hostrt/internal/todomodel"
)

// priorityBotPlugin reacts to OnComplete by bumping Beta's priority,
// mirroring a real subscribed hook rather than a hand-built Result.
type priorityBotPlugin struct{}

func (priorityBotPlugin) Name() string                               { return "priority-bot" }
func (priorityBotPlugin) Init(ctx context.Context, cfg abi.Config) error { return nil }
func (priorityBotPlugin) Generate(ctx context.Context, hctx abi.HostContext) ([]abi.Command, error) {
	return nil, nil
}
func (priorityBotPlugin) ExecuteWithHost(ctx context.Context, host abi.Host, hctx abi.HostContext) ([]abi.Command, error) {
	return nil, nil
}
func (priorityBotPlugin) ConfigSchema() []abi.ConfigField { return nil }
func (priorityBotPlugin) SubscribedEvents() []abi.EventKind {
	return []abi.EventKind{abi.EventOnComplete}
}
func (priorityBotPlugin) OnEvent(ctx context.Context, ev abi.Event) (abi.HookResponse, error) {
	return abi.HookResponse{Commands: []abi.Command{
		{Kind: abi.CommandUpdateTodo, TargetRef: "beta", SetPriority: true, NewPriority: abi.PriorityP0},
	}}, nil
}

// TestInteractiveCompletionFiresOnCompleteThroughRealDispatcher drives the
// toggle-to-done / priority-bump scenario end to end: a real Dispatcher.Fire
// call triggered by ApplyInteractive, not a hand-built dispatcher Result.
func TestInteractiveCompletionFiresOnCompleteThroughRealDispatcher(t *testing.T) {
	agg := todomodel.New("proj", "2026-07-30")
	agg.Insert(&abi.Todo{ID: "alpha", Content: "Alpha"})
	agg.Insert(&abi.Todo{ID: "beta", Content: "Beta", Priority: abi.PriorityP1})
	agg.Insert(&abi.Todo{ID: "gamma", Content: "Gamma", State: abi.StateDone, Priority: abi.PriorityP0})
	ts := int64(1)
	agg.Get("gamma", true).CompletedAt = &ts

	meta := metadata.New()
	ex := executor.New(agg, meta)
	disp := dispatcher.New()
	keys := keybinding.New(nil)
	rt := New(agg, meta, ex, disp, keys)

	lp := loader.NewForTesting("priority-bot", priorityBotPlugin{})
	require.NoError(t, disp.Register(lp, 5))

	_, err := rt.ApplyInteractive("", []abi.Command{
		{Kind: abi.CommandUpdateTodo, TargetRef: "alpha", SetState: true, NewState: abi.StateDone},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, agg.UndoDepth())
	assert.NotNil(t, agg.Get("alpha", false).CompletedAt)

	// ApplyInteractive's internal Fire call already ran priority-bot's
	// OnEvent synchronously; its result sits queued for the render tick.
	results := disp.DrainResults()
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	_, err = disp.ApplyHookResult(ex, results[0])
	require.NoError(t, err)

	assert.Equal(t, 1, agg.UndoDepth(), "expected the hook-origin batch not to push its own undo snapshot")
	assert.Equal(t, abi.PriorityP0, agg.Get("beta", false).Priority)

	require.True(t, agg.Undo())
	assert.Equal(t, abi.StateEmpty, agg.Get("alpha", false).State)
	assert.Equal(t, abi.PriorityP0, agg.Get("beta", false).Priority, "expected beta's hook-origin priority change to persist across the undo")
	assert.Equal(t, abi.StateDone, agg.Get("gamma", false).State, "expected gamma unaffected")
}

// outlinePlugin's execute_with_host always creates one todo naming the
// action that triggered it.
type outlinePlugin struct{}

func (outlinePlugin) Name() string                               { return "outline" }
func (outlinePlugin) Init(ctx context.Context, cfg abi.Config) error { return nil }
func (outlinePlugin) Generate(ctx context.Context, hctx abi.HostContext) ([]abi.Command, error) {
	return nil, nil
}
func (outlinePlugin) ExecuteWithHost(ctx context.Context, host abi.Host, hctx abi.HostContext) ([]abi.Command, error) {
	return []abi.Command{
		{Kind: abi.CommandCreateTodo, Content: "generated via " + hctx.ActionName},
	}, nil
}
func (outlinePlugin) ConfigSchema() []abi.ConfigField     { return nil }
func (outlinePlugin) SubscribedEvents() []abi.EventKind   { return nil }
func (outlinePlugin) OnEvent(ctx context.Context, ev abi.Event) (abi.HookResponse, error) {
	return abi.HookResponse{}, nil
}

func TestDispatchActionInvokesExecuteWithHostAndAppliesResult(t *testing.T) {
	agg := todomodel.New("proj", "d")
	meta := metadata.New()
	ex := executor.New(agg, meta)
	disp := dispatcher.New()
	keys := keybinding.New([]string{"q"}) // host owns "q", not "g"
	rt := New(agg, meta, ex, disp, keys)

	keys.Register("outline", "gen", "g", "generate a todo")
	lp := loader.NewForTesting("outline", outlinePlugin{})
	rt.RegisterPlugin(lp)

	ids, err := rt.DispatchAction("g", "", func(key string) bool { return key == "q" })
	require.NoError(t, err)
	require.Len(t, ids, 1)

	var created *abi.Todo
	for _, id := range ids {
		created = agg.Get(id, false)
	}
	require.NotNil(t, created)
	assert.Equal(t, "generated via gen", created.Content)
	assert.Equal(t, 1, agg.UndoDepth())
}

// TestDispatchActionHostKeyTakesPriority covers the host-always-wins
// routing order: when the host's own table claims the key, the plugin
// action bound to the same key (left unbound at registration time because
// of the conflict) is never invoked.
func TestDispatchActionHostKeyTakesPriority(t *testing.T) {
	agg := todomodel.New("proj", "d")
	meta := metadata.New()
	ex := executor.New(agg, meta)
	disp := dispatcher.New()
	keys := keybinding.New([]string{"g"}) // host claims "g" itself
	rt := New(agg, meta, ex, disp, keys)

	keys.Register("outline", "gen", "g", "generate a todo") // shadowed, left unbound
	lp := loader.NewForTesting("outline", outlinePlugin{})
	rt.RegisterPlugin(lp)

	var hostCalled bool
	ids, err := rt.DispatchAction("g", "", func(key string) bool {
		hostCalled = key == "g"
		return hostCalled
	})
	require.NoError(t, err)
	assert.True(t, hostCalled)
	assert.Nil(t, ids)
	assert.Equal(t, 0, agg.UndoDepth())
}
