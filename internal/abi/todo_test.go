package abi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodoValidate(t *testing.T) {
	completedAt := int64(100)

	valid := &Todo{ID: "t1", Content: "hello", State: StateDone, CompletedAt: &completedAt}
	require.NoError(t, valid.Validate())

	t.Run("empty id rejected", func(t *testing.T) {
		todo := &Todo{Content: "x"}
		assert.Error(t, todo.Validate())
	})

	t.Run("content over bound rejected", func(t *testing.T) {
		todo := &Todo{ID: "t1", Content: strings.Repeat("a", MaxContentBytes+1)}
		assert.Error(t, todo.Validate())
	})

	t.Run("invalid enum tag rejected", func(t *testing.T) {
		todo := &Todo{ID: "t1", Content: "x", State: State(200)}
		assert.Error(t, todo.Validate())
	})

	t.Run("completed_at without done state rejected", func(t *testing.T) {
		c := int64(5)
		todo := &Todo{ID: "t1", Content: "x", State: StateEmpty, CompletedAt: &c}
		assert.Error(t, todo.Validate())
	})

	t.Run("done without completed_at rejected", func(t *testing.T) {
		todo := &Todo{ID: "t1", Content: "x", State: StateDone}
		assert.Error(t, todo.Validate())
	})

	t.Run("malformed utf8 rejected", func(t *testing.T) {
		todo := &Todo{ID: "t1", Content: string([]byte{0xff, 0xfe})}
		assert.Error(t, todo.Validate())
	})
}
