// Package registry implements manifest discovery and the plugin registry
//: scanning the plugin directory, parsing each candidate's plugin.toml,
// and tracking enabled/available/error state ahead of loading.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/logger"
)

const manifestFilename = "plugin.toml"
const sourceFilename = ".source"

// tomlManifest mirrors the on-disk plugin.toml grammar. Unknown top-level
// keys in the source document are silently ignored by go-toml's default
// strict=false decode, keeping older hosts forward-compatible with newer
// manifest fields.
type tomlManifest struct {
	Name                string          `toml:"name"`
	Version             string          `toml:"version"`
	Description         string          `toml:"description"`
	Author              string          `toml:"author"`
	License             string          `toml:"license"`
	Homepage            string          `toml:"homepage"`
	Repository          string          `toml:"repository"`
	MinInterfaceVersion string          `toml:"min_interface_version"`
	HookTimeoutSecs     int             `toml:"hook_timeout_secs"`
	Actions             []tomlActionDef `toml:"actions"`
}

type tomlActionDef struct {
	Name        string `toml:"name"`
	DefaultKey  string `toml:"default_key"`
	Description string `toml:"description"`
}

// Registry scans a plugin directory and tracks one Info entry per
// immediate subdirectory found there.
type Registry struct {
	dir         string
	hostVersion string

	mu      sync.RWMutex
	entries map[string]*abi.Info // key: lowercase name
}

// New creates a Registry rooted at dir, checking plugins against
// hostVersion for interface compatibility.
func New(dir, hostVersion string) *Registry {
	return &Registry{
		dir:         dir,
		hostVersion: hostVersion,
		entries:     make(map[string]*abi.Info),
	}
}

// Discover scans the plugin directory's immediate subdirectories, parses
// each one's manifest, and returns the complete list of entries. It
// replaces any previously discovered state.
func (r *Registry) Discover() ([]*abi.Info, error) {
	log := logger.Registry()

	dirents, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("dir", r.dir).Msg("plugin directory does not exist, no plugins discovered")
			r.mu.Lock()
			r.entries = make(map[string]*abi.Info)
			r.mu.Unlock()
			return nil, nil
		}
		return nil, fmt.Errorf("reading plugin directory %s: %w", r.dir, err)
	}

	entries := make(map[string]*abi.Info)
	var list []*abi.Info
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		info := r.parseOne(filepath.Join(r.dir, de.Name()))
		entries[strings.ToLower(info.Manifest.Name)] = info
		list = append(list, info)
	}

	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()

	log.Info().Int("count", len(list)).Msg("plugin discovery complete")
	return list, nil
}

// parseOne parses a single plugin directory's manifest into an Info entry.
// Errors never abort discovery; they are recorded on the entry.
func (r *Registry) parseOne(dir string) *abi.Info {
	name := filepath.Base(dir)
	info := &abi.Info{Dir: dir, Enabled: true}

	raw, err := os.ReadFile(filepath.Join(dir, manifestFilename))
	if err != nil {
		info.Manifest.Name = name
		info.Error = fmt.Sprintf("reading %s: %v", manifestFilename, err)
		return info
	}

	var tm tomlManifest
	if err := toml.Unmarshal(raw, &tm); err != nil {
		info.Manifest.Name = name
		info.Error = fmt.Sprintf("parsing %s: %v", manifestFilename, err)
		return info
	}

	if tm.Name == "" {
		info.Manifest.Name = name
		info.Error = "manifest missing required field: name"
		return info
	}
	if tm.Version == "" {
		info.Manifest.Name = tm.Name
		info.Error = "manifest missing required field: version"
		return info
	}
	if !abi.ValidSemver(tm.Version) {
		info.Manifest.Name = tm.Name
		info.Error = fmt.Sprintf("version %q is not valid semver", tm.Version)
		return info
	}
	if tm.MinInterfaceVersion != "" && !abi.ValidSemver(tm.MinInterfaceVersion) {
		info.Manifest.Name = tm.Name
		info.Error = fmt.Sprintf("min_interface_version %q is not valid semver", tm.MinInterfaceVersion)
		return info
	}

	timeout := tm.HookTimeoutSecs
	if timeout <= 0 {
		timeout = abi.DefaultHookTimeoutSecs
	}

	actions := make([]abi.ActionDef, 0, len(tm.Actions))
	for _, a := range tm.Actions {
		actions = append(actions, abi.ActionDef{
			Name:        a.Name,
			DefaultKey:  a.DefaultKey,
			Description: a.Description,
		})
	}

	info.Manifest = abi.Manifest{
		Name:                tm.Name,
		Version:             tm.Version,
		Description:         tm.Description,
		Author:              tm.Author,
		License:             tm.License,
		Homepage:            tm.Homepage,
		Repository:          tm.Repository,
		MinInterfaceVersion: tm.MinInterfaceVersion,
		HookTimeoutSecs:     timeout,
		Actions:             actions,
	}

	if abi.Compatible(r.hostVersion, tm.MinInterfaceVersion) {
		info.Available = true
	} else {
		info.Available = false
		info.AvailabilityReason = fmt.Sprintf(
			"requires host interface >= %s, running %s", tm.MinInterfaceVersion, r.hostVersion)
	}

	if src, err := os.ReadFile(filepath.Join(dir, sourceFilename)); err == nil {
		info.Origin = strings.TrimSpace(string(src))
	}

	return info
}

// ApplyConfig sets the Enabled flag on every known entry from the user's
// persisted disabled-set.
func (r *Registry) ApplyConfig(disabled []string) {
	disabledSet := make(map[string]bool, len(disabled))
	for _, n := range disabled {
		disabledSet[strings.ToLower(n)] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, info := range r.entries {
		info.Enabled = !disabledSet[key]
	}
}

// Get looks up an entry by name, case-insensitively.
func (r *Registry) Get(name string) (*abi.Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.entries[strings.ToLower(name)]
	return info, ok
}

// All returns every discovered entry, in no particular order.
func (r *Registry) All() []*abi.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*abi.Info, 0, len(r.entries))
	for _, info := range r.entries {
		list = append(list, info)
	}
	return list
}

// EnabledPlugins returns entries that are enabled, available, and free of
// parse errors — the set the loader should attempt to load.
func (r *Registry) EnabledPlugins() []*abi.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*abi.Info
	for _, info := range r.entries {
		if info.Enabled && info.Available && info.Error == "" {
			list = append(list, info)
		}
	}
	return list
}
