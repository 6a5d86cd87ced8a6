package abi

import "context"

// InterfaceVersion is the host's own semver interface version, compared
// against each plugin's declared MinInterfaceVersion by the compatibility
// rule (Vp.major == Vh.major && Vh >= Vp).
const InterfaceVersion = "1.0.0"

// RootModule is the single fixed-layout value a plugin library exports by
// symbol name (see internal/loader). InterfaceVersion sits at a fixed
// offset so the host can check compatibility before ever calling New. The
// Reserved field is a last-prefix field: future host versions may add
// trailing fields here without invalidating plugins compiled
// against an older RootModule, because readers never read past the fields
// they know about.
type RootModule struct {
	InterfaceVersion string
	New              func() PluginHandler
	Reserved         [8]uintptr
}

// HostContext is passed into generate and execute_with_host calls. It
// carries the information a plugin call needs beyond the Host API itself:
// which action (if any) triggered the call, and the current selection.
type HostContext struct {
	ActionName  string // empty unless triggered by a keybinding
	SelectionID string // empty if nothing selected
}

// Host is the callback object passed to execute_with_host. Plugins
// never mutate todos directly; they read through Query and enqueue
// mutations through Emit, or return a batch from the call itself.
type Host interface {
	Query(opts QueryOptions) []Todo
	Emit(cmd Command)
	GetMetadata(entityID string) (map[string]any, error)
	SetMetadata(entityID string, values map[string]any, merge bool) error
}

// QueryOptions parameterizes Host.Query.
type QueryOptions struct {
	Tree            bool // re-parent children under parents, sequential positions
	MetadataFilter  string
	MetadataValue   any
	IncludeDeleted  bool // default false: soft-deleted items are excluded
}

// PluginHandler is the plugin trait object. Method order is the
// stable ABI contract: name, init, generate, execute_with_host,
// config_schema, subscribed_events, on_event. ConfigSchema and
// SubscribedEvents/OnEvent are last-prefix-field-eligible — a host may add
// further trailing methods in a later minor interface version without
// breaking plugins built against this set, which simply report no
// subscriptions for anything they don't know about.
type PluginHandler interface {
	Name() string
	Init(ctx context.Context, config Config) error
	Generate(ctx context.Context, hctx HostContext) ([]Command, error)
	ExecuteWithHost(ctx context.Context, host Host, hctx HostContext) ([]Command, error)
	ConfigSchema() []ConfigField
	SubscribedEvents() []EventKind
	OnEvent(ctx context.Context, ev Event) (HookResponse, error)
}
