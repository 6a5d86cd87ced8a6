// Package executor implements the command executor: applying a batch
// of plugin- or user-issued commands to the live todo aggregate, threading
// undo/redo, resolving plugin-chosen temporary identifiers to host-assigned
// ids, and namespacing metadata writes by the invoking plugin.
package executor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/apperr"
	"github.com/todoplug/hostrt/internal/logger"
	"github.com/todoplug/hostrt/internal/metadata"
	"github.com/todoplug/hostrt/internal/todomodel"
)

// Executor applies command batches to a single aggregate, carrying the
// metadata store every SetMetadata command is namespaced against.
type Executor struct {
	agg  *todomodel.Aggregate
	meta *metadata.Store

	// now is overridable for deterministic tests; defaults to time.Now.
	now func() time.Time
}

// New creates an Executor over agg and meta.
func New(agg *todomodel.Aggregate, meta *metadata.Store) *Executor {
	return &Executor{agg: agg, meta: meta, now: time.Now}
}

// IDMap is the per-batch mapping from plugin-chosen temp id to
// host-assigned id, returned so callers (e.g. the keybinding action path)
// can report which ids were created.
type IDMap map[string]string

// Apply applies cmds in order, attributed to plugin, under origin.
// Interactive batches snapshot the undo stack once before the first
// command; hook-originated batches never do. On the first command that
// fails validation (missing target, reserved metadata key), the batch
// aborts immediately — commands already applied are not rolled back.
func (e *Executor) Apply(plugin string, origin abi.Origin, cmds []abi.Command) (IDMap, error) {
	if len(cmds) == 0 {
		return IDMap{}, nil
	}

	if origin == abi.OriginInteractive {
		e.agg.PushUndo()
	}

	ids := make(IDMap)
	for i, cmd := range cmds {
		if err := e.applyOne(plugin, cmd, ids); err != nil {
			logger.Executor().Warn().
				Str("plugin", plugin).
				Int("command_index", i).
				Err(err).
				Msg("command batch aborted")
			return ids, err
		}
	}
	return ids, nil
}

func (e *Executor) applyOne(plugin string, cmd abi.Command, ids IDMap) error {
	switch cmd.Kind {
	case abi.CommandCreateTodo:
		return e.applyCreate(cmd, ids)
	case abi.CommandUpdateTodo:
		return e.applyUpdate(cmd, ids)
	case abi.CommandDeleteTodo:
		return e.applyDelete(cmd, ids)
	case abi.CommandSetMetadata:
		return e.applySetMetadata(plugin, cmd, ids)
	default:
		return apperr.CommandError(plugin, fmt.Sprintf("unknown command kind %d", cmd.Kind))
	}
}

// resolveRef resolves a command's target/parent reference: try the batch's
// temp-id map first, then fall back to treating ref as an existing host id.
func (e *Executor) resolveRef(ref string, ids IDMap) (string, error) {
	if ref == "" {
		return "", nil
	}
	if hostID, ok := ids[ref]; ok {
		return hostID, nil
	}
	if e.agg.Exists(ref) {
		return ref, nil
	}
	return "", fmt.Errorf("id %q does not refer to a temp id created in this batch or an existing todo", ref)
}

func (e *Executor) applyCreate(cmd abi.Command, ids IDMap) error {
	parentID, err := e.resolveRef(cmd.ParentRef, ids)
	if err != nil {
		return apperr.CommandError("", err.Error())
	}

	now := e.now().Unix()
	t := &abi.Todo{
		ID:          uuid.NewString(),
		Content:     cmd.Content,
		State:       abi.StateEmpty,
		Priority:    cmd.Priority,
		Description: cmd.Description,
		ParentID:    parentID,
		IndentLevel: cmd.IndentLevel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cmd.DueDate != nil {
		d := time.Unix(*cmd.DueDate, 0).UTC()
		t.DueDate = &d
	}

	if err := t.Validate(); err != nil {
		return apperr.CommandError("", err.Error())
	}

	e.agg.Insert(t)
	if cmd.TempID != "" {
		ids[cmd.TempID] = t.ID
	}
	return nil
}

func (e *Executor) applyUpdate(cmd abi.Command, ids IDMap) error {
	targetID, err := e.resolveRef(cmd.TargetRef, ids)
	if err != nil || targetID == "" {
		return apperr.CommandError("", fmt.Sprintf("update target %q not found", cmd.TargetRef))
	}
	t := e.agg.Get(targetID, true)
	if t == nil {
		return apperr.CommandError("", fmt.Sprintf("update target %q not found", cmd.TargetRef))
	}

	if cmd.SetContent {
		t.Content = cmd.Content
	}
	if cmd.SetState {
		wasDone := t.State == abi.StateDone
		t.State = cmd.NewState
		nowDone := t.State == abi.StateDone
		if nowDone && !wasDone {
			ts := e.now().Unix()
			t.CompletedAt = &ts
		} else if !nowDone && wasDone {
			t.CompletedAt = nil
		}
	}
	if cmd.SetPriority {
		t.Priority = cmd.NewPriority
	}
	if cmd.SetDueDate {
		if cmd.NewDueDate == nil {
			t.DueDate = nil
		} else {
			d := time.Unix(*cmd.NewDueDate, 0).UTC()
			t.DueDate = &d
		}
	}
	if cmd.SetDescription {
		t.Description = cmd.NewDescription
	}
	if cmd.SetIndent {
		t.IndentLevel = cmd.NewIndent
	}
	if cmd.SetParent {
		parentID, err := e.resolveRef(cmd.NewParentRef, ids)
		if err != nil {
			return apperr.CommandError("", err.Error())
		}
		t.ParentID = parentID
	}

	if err := t.Validate(); err != nil {
		return apperr.CommandError("", err.Error())
	}
	t.UpdatedAt = e.now().Unix()
	return nil
}

func (e *Executor) applyDelete(cmd abi.Command, ids IDMap) error {
	targetID, err := e.resolveRef(cmd.TargetRef, ids)
	if err != nil || targetID == "" {
		return apperr.CommandError("", fmt.Sprintf("delete target %q not found", cmd.TargetRef))
	}
	if !e.agg.SoftDelete(targetID, e.now().Unix()) {
		return apperr.CommandError("", fmt.Sprintf("delete target %q not found", cmd.TargetRef))
	}
	return nil
}

func (e *Executor) applySetMetadata(plugin string, cmd abi.Command, ids IDMap) error {
	targetID, err := e.resolveRef(cmd.TargetRef, ids)
	if err != nil || targetID == "" {
		return apperr.CommandError(plugin, fmt.Sprintf("metadata target %q not found", cmd.TargetRef))
	}
	if err := e.meta.Set(targetID, plugin, cmd.MetadataValues, cmd.MetadataMerge); err != nil {
		return apperr.CommandError(plugin, err.Error())
	}
	return nil
}
