package hostapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/metadata"
	"github.com/todoplug/hostrt/internal/todomodel"
)

func TestQueryExcludesDeletedByDefault(t *testing.T) {
	agg := todomodel.New("p", "d")
	agg.Insert(&abi.Todo{ID: "a", Content: "A"})
	agg.Insert(&abi.Todo{ID: "b", Content: "B"})
	agg.SoftDelete("b", 1)

	api := New(agg, metadata.New(), "plugin")
	got := api.Query(abi.QueryOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	gotAll := api.Query(abi.QueryOptions{IncludeDeleted: true})
	assert.Len(t, gotAll, 2)
}

// TestTreeModeIndentExceedsParent verifies that for every returned item in
// tree mode, indent_level strictly exceeds its parent's.
func TestTreeModeIndentExceedsParent(t *testing.T) {
	agg := todomodel.New("p", "d")
	agg.Insert(&abi.Todo{ID: "parent", Content: "P", IndentLevel: 0})
	agg.Insert(&abi.Todo{ID: "child", Content: "C", IndentLevel: 1, ParentID: "parent"})
	agg.Insert(&abi.Todo{ID: "grandchild", Content: "G", IndentLevel: 2, ParentID: "child"})

	api := New(agg, metadata.New(), "plugin")
	got := api.Query(abi.QueryOptions{Tree: true})

	byID := make(map[string]abi.Todo)
	for _, it := range got {
		byID[it.ID] = it
	}
	for _, it := range got {
		if it.ParentID == "" {
			continue
		}
		parent, ok := byID[it.ParentID]
		require.True(t, ok, "parent %s of %s not present in result set", it.ParentID, it.ID)
		assert.Greater(t, it.IndentLevel, parent.IndentLevel, "expected %s's indent to exceed parent %s's indent", it.ID, it.ParentID)
	}

	// Parent must precede its children (creation-order/tree-order stability).
	require.Len(t, got, 3)
	assert.Equal(t, []string{"parent", "child", "grandchild"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestMetadataRoundtripViaHostAPI(t *testing.T) {
	agg := todomodel.New("p", "d")
	meta := metadata.New()
	api := New(agg, meta, "pluginA")

	require.NoError(t, api.SetMetadata("todo1", map[string]any{"k": "v"}, false))
	obj, err := api.GetMetadata("todo1")
	require.NoError(t, err)
	assert.Equal(t, "v", obj["k"])
}

func TestEmitAccumulatesUntilDrain(t *testing.T) {
	agg := todomodel.New("p", "d")
	api := New(agg, metadata.New(), "plugin")

	api.Emit(abi.Command{Kind: abi.CommandCreateTodo, Content: "one"})
	api.Emit(abi.Command{Kind: abi.CommandCreateTodo, Content: "two"})

	drained := api.Drain()
	require.Len(t, drained, 2)
	assert.Empty(t, api.Drain(), "expected second drain to be empty")
}
