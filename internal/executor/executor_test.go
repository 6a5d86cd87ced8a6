package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/metadata"
	"github.com/todoplug/hostrt/internal/todomodel"
)

func setup() (*Executor, *todomodel.Aggregate) {
	agg := todomodel.New("proj", "2026-07-30")
	agg.Insert(&abi.Todo{ID: "alpha", Content: "Alpha"})
	agg.Insert(&abi.Todo{ID: "beta", Content: "Beta", Priority: abi.PriorityP1})
	agg.Insert(&abi.Todo{ID: "gamma", Content: "Gamma", State: abi.StateDone, Priority: abi.PriorityP0})
	// gamma created done requires CompletedAt; set directly since this is
	// seed data, not executor output.
	ts := int64(1)
	agg.Get("gamma", true).CompletedAt = &ts

	meta := metadata.New()
	return New(agg, meta), agg
}

// TestHookOriginBatchSkipsUndoSnapshot exercises the executor's own
// Origin handling in isolation: an OriginHook batch applied directly
// (without going through a live dispatcher) must not push an undo
// snapshot, and an interactive undo from before it must not revert it.
// The full plugin-reacts-to-a-live-event flow, dispatched through a real
// Dispatcher.Fire rather than a hand-built batch, is covered end to end by
// internal/runtime's TestInteractiveCompletionFiresOnCompleteThroughRealDispatcher.
func TestHookOriginBatchSkipsUndoSnapshot(t *testing.T) {
	ex, agg := setup()

	// Interactive action: toggle Alpha to done.
	_, err := ex.Apply("", abi.OriginInteractive, []abi.Command{
		{Kind: abi.CommandUpdateTodo, TargetRef: "alpha", SetState: true, NewState: abi.StateDone},
	})
	require.NoError(t, err)
	require.Equal(t, 1, agg.UndoDepth())
	assert.NotNil(t, agg.Get("alpha", false).CompletedAt)

	// Hook-origin batch applied directly, standing in for what a live
	// dispatcher would have fed the executor after OnComplete fired.
	_, err = ex.Apply("priority-bot", abi.OriginHook, []abi.Command{
		{Kind: abi.CommandUpdateTodo, TargetRef: "beta", SetPriority: true, NewPriority: abi.PriorityP0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, agg.UndoDepth(), "expected hook-origin batch not to push an undo snapshot")
	require.Equal(t, abi.PriorityP0, agg.Get("beta", false).Priority)

	// Undo the interactive toggle.
	require.True(t, agg.Undo())
	assert.Equal(t, abi.StateEmpty, agg.Get("alpha", false).State)
	assert.Equal(t, abi.PriorityP0, agg.Get("beta", false).Priority, "expected beta's hook-origin priority change to persist across the undo")
	assert.Equal(t, abi.StateDone, agg.Get("gamma", false).State, "expected gamma unaffected")
}

// TestTempIDChainResolvesWithinBatch covers a batch that creates a parent
// and child via temp ids, then references the child's temp id again in a
// later command of the same batch.
func TestTempIDChainResolvesWithinBatch(t *testing.T) {
	ex, agg := setup()

	ids, err := ex.Apply("outline-plugin", abi.OriginInteractive, []abi.Command{
		{Kind: abi.CommandCreateTodo, Content: "parent", TempID: "t1", IndentLevel: 0},
		{Kind: abi.CommandCreateTodo, Content: "child", TempID: "t2", IndentLevel: 1, ParentRef: "t1"},
		{Kind: abi.CommandUpdateTodo, TargetRef: "t2", SetContent: true, Content: "renamed"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, agg.UndoDepth())

	parentID, ok := ids["t1"]
	require.True(t, ok, "expected t1 to resolve to a host id")
	childID, ok := ids["t2"]
	require.True(t, ok, "expected t2 to resolve to a host id")

	child := agg.Get(childID, false)
	require.NotNil(t, child)
	assert.Equal(t, parentID, child.ParentID)
	assert.Equal(t, "renamed", child.Content)
}

func TestUnknownTargetAbortsBatch(t *testing.T) {
	ex, agg := setup()

	_, err := ex.Apply("", abi.OriginInteractive, []abi.Command{
		{Kind: abi.CommandUpdateTodo, TargetRef: "alpha", SetContent: true, Content: "changed"},
		{Kind: abi.CommandUpdateTodo, TargetRef: "does-not-exist", SetContent: true, Content: "x"},
	})
	require.Error(t, err)
	assert.Equal(t, "changed", agg.Get("alpha", false).Content, "expected the already-applied first command to remain in effect (no rollback)")
}

func TestSoftDeleteExcludesFromDefaultView(t *testing.T) {
	ex, agg := setup()
	_, err := ex.Apply("", abi.OriginInteractive, []abi.Command{
		{Kind: abi.CommandDeleteTodo, TargetRef: "gamma"},
	})
	require.NoError(t, err)
	assert.Nil(t, agg.Get("gamma", false))
	assert.NotNil(t, agg.Get("gamma", true))
}

func TestSetMetadataReservedKeyRejected(t *testing.T) {
	ex, _ := setup()
	_, err := ex.Apply("pluginA", abi.OriginInteractive, []abi.Command{
		{Kind: abi.CommandSetMetadata, TargetRef: "alpha", MetadataValues: map[string]any{"_hidden": 1}},
	})
	assert.Error(t, err)
}

func TestHookBatchNeverSnapshotsUndo(t *testing.T) {
	ex, agg := setup()
	_, err := ex.Apply("bot", abi.OriginHook, []abi.Command{
		{Kind: abi.CommandUpdateTodo, TargetRef: "alpha", SetContent: true, Content: "hook-changed"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, agg.UndoDepth())
}
