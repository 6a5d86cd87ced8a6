package keybinding

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostKeyTakesPriorityOverPluginDefault(t *testing.T) {
	r := New([]string{"d"}) // host's "delete" binding
	r.Register("timetrack", "start", "d", "start timer")

	_, bound := r.Resolve("d")
	assert.False(t, bound, "expected host key 'd' not to be claimable by a plugin default")
}

// TestFirstLoadedPluginWinsKeyConflict covers two plugins declaring the
// same default key; the earlier-registered one keeps it.
func TestFirstLoadedPluginWinsKeyConflict(t *testing.T) {
	r := New(nil)
	r.Register("alpha", "run", "g", "run alpha")
	r.Register("beta", "go", "g", "run beta")

	qualified, ok := r.Resolve("g")
	require.True(t, ok)
	assert.Equal(t, QualifiedName("alpha", "run"), qualified)
}

func TestApplyOverridesRebindsToUserKey(t *testing.T) {
	r := New(nil)
	r.Register("timetrack", "start", "t", "start timer")

	v := viper.New()
	v.Set("keybindings.plugins", map[string]any{
		"timetrack": map[string]any{"start": "shift+t"},
	})
	r.ApplyOverrides(v)

	_, bound := r.Resolve("t")
	assert.False(t, bound, "expected default key 't' to be released after override")

	qualified, ok := r.Resolve("shift+t")
	require.True(t, ok)
	assert.Equal(t, QualifiedName("timetrack", "start"), qualified)
}

func TestApplyOverridesIgnoresHostKey(t *testing.T) {
	r := New([]string{"q"})
	r.Register("timetrack", "start", "t", "start timer")

	v := viper.New()
	v.Set("keybindings.plugins", map[string]any{
		"timetrack": map[string]any{"start": "q"},
	})
	r.ApplyOverrides(v)

	qualified, bound := r.Resolve("q")
	assert.False(t, bound, "expected host key 'q' to remain unclaimed, got %q", qualified)
}

func TestUnregisterAllRemovesPluginActionsAndBindings(t *testing.T) {
	r := New(nil)
	r.Register("alpha", "run", "g", "run alpha")
	r.Register("beta", "go", "b", "run beta")

	r.UnregisterAll("alpha")

	require.Len(t, r.Actions(), 1)
	assert.Equal(t, "beta", r.Actions()[0].Plugin)

	_, bound := r.Resolve("g")
	assert.False(t, bound, "expected alpha's key binding to be released")
}
