package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingScopeReturnsEmptyObject(t *testing.T) {
	s := New()
	obj := s.Get("todo1", "pluginA")
	assert.NotNil(t, obj)
	assert.Empty(t, obj)
}

func TestSetAndGetRoundtrip(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("todo1", "pluginA", map[string]any{"k": "v"}, false))
	obj := s.Get("todo1", "pluginA")
	assert.Equal(t, "v", obj["k"])
}

func TestMergeIsShallow(t *testing.T) {
	s := New()
	s.Set("todo1", "pluginA", map[string]any{"a": 1, "b": 2}, false)
	s.Set("todo1", "pluginA", map[string]any{"b": 3, "c": 4}, true)

	obj := s.Get("todo1", "pluginA")
	assert.Equal(t, 1, obj["a"])
	assert.Equal(t, 3, obj["b"])
	assert.Equal(t, 4, obj["c"])
}

func TestReplaceDropsOldKeys(t *testing.T) {
	s := New()
	s.Set("todo1", "pluginA", map[string]any{"a": 1}, false)
	s.Set("todo1", "pluginA", map[string]any{"b": 2}, false)

	obj := s.Get("todo1", "pluginA")
	assert.NotContains(t, obj, "a")
	assert.Equal(t, 2, obj["b"])
}

func TestReservedKeyRejected(t *testing.T) {
	s := New()
	err := s.Set("todo1", "pluginA", map[string]any{"_internal": 1}, false)
	require.Error(t, err)
	assert.Empty(t, s.Get("todo1", "pluginA"))
}

func TestMetadataIsolationBetweenPlugins(t *testing.T) {
	s := New()
	s.Set("todo1", "pluginA", map[string]any{"secret": "a-only"}, false)

	bView := s.Get("todo1", "pluginB")
	assert.Empty(t, bView)
}
