package abi

// ActionDef is one entry of a manifest's [[actions]] list: a keybinding the
// plugin wants registered under plugin:<name>:<action>.
type ActionDef struct {
	Name        string
	DefaultKey  string
	Description string
}

// Manifest is the parsed contents of a plugin's plugin.toml. Unknown fields
// in the source document are accepted and ignored for forward compatibility;
// this struct only carries the fields the host understands.
type Manifest struct {
	Name                string
	Version             string // semver
	Description         string
	Author              string
	License             string
	Homepage            string
	Repository          string
	MinInterfaceVersion string // semver, optional; empty means no minimum
	HookTimeoutSecs     int    // default 5 when absent from the source document
	Actions             []ActionDef
}

// DefaultHookTimeoutSecs is used when a manifest omits hook_timeout_secs.
const DefaultHookTimeoutSecs = 5

// Info is a registry entry: a manifest plus discovery-time state. Error and
// AvailabilityReason are distinct — a malformed manifest sets Error; a
// manifest that parses but requires a newer host sets Available false
// with AvailabilityReason populated.
type Info struct {
	Manifest           Manifest
	Dir                string
	Enabled            bool
	Available          bool
	AvailabilityReason string
	Error              string
	// Origin is "local", "<owner>/<repo>", or "" (unknown), read from the
	// .source sidecar.
	Origin string
}
