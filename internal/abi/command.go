package abi

// CommandKind tags the variant of a Command.
type CommandKind uint8

const (
	CommandCreateTodo CommandKind = iota
	CommandUpdateTodo
	CommandDeleteTodo
	CommandSetMetadata
)

// Command is the tagged variant a plugin returns from generate,
// execute_with_host, or on_event. Only the fields relevant to Kind are
// read by the executor; the rest are the variant's zero value.
type Command struct {
	Kind CommandKind

	// CreateTodo fields. ParentRef may be a temp id minted earlier in the
	// same batch or an existing host id; empty means top-level.
	Content     string
	TempID      string // plugin-chosen id for this command's new todo, may be empty
	ParentRef   string
	DueDate     *int64 // epoch seconds, calendar date only
	IndentLevel uint32
	Priority    Priority
	Description string

	// UpdateTodo / DeleteTodo / SetMetadata target. May be a temp id or a
	// real host id; the executor resolves temp ids before real ones.
	TargetRef string

	// UpdateTodo: a field is only applied if its presence flag is set.
	SetContent     bool
	SetState       bool
	NewState       State
	SetPriority    bool
	NewPriority    Priority
	SetDueDate     bool
	NewDueDate     *int64
	SetDescription bool
	NewDescription string
	SetIndent      bool
	NewIndent      uint32
	SetParent      bool
	NewParentRef   string

	// SetMetadata fields. Values is the full key->value object being
	// written; MetadataMerge selects shallow-merge vs. whole-object
	// replace semantics.
	MetadataValues map[string]any
	MetadataMerge  bool
}

// HookResponse is the bounded result of a hook or action invocation: a list
// of commands (empty means no-op) or a short error string.
type HookResponse struct {
	Commands []Command
	Err      string
}

// Origin distinguishes interactive (user-triggered) command batches from
// hook-originated ones. Only OriginInteractive batches snapshot the undo
// stack.
type Origin uint8

const (
	OriginInteractive Origin = iota
	OriginHook
)
