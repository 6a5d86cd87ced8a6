// Package keybinding implements the plugin action/keybinding registry:
// plugins register named actions under a namespaced key, the host's own
// built-in bindings always take priority over a plugin's, and user-supplied
// overrides from the [keybindings.plugins.<name>] config section remap a
// plugin's action to a different key.
package keybinding

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/todoplug/hostrt/internal/logger"
)

// QualifiedName is the namespaced identifier of a plugin action, of the
// form "plugin:<plugin>:<action>".
func QualifiedName(plugin, action string) string {
	return fmt.Sprintf("plugin:%s:%s", plugin, action)
}

// Action is one entry a plugin's manifest declares under [[actions]].
type Action struct {
	Plugin      string
	Name        string
	Qualified   string
	DefaultKey  string
	Description string
}

// Registry tracks every registered plugin action and the key each one is
// currently bound to, after applying user overrides.
type Registry struct {
	mu sync.RWMutex

	// actions is qualified name -> Action, load order preserved in order.
	actions map[string]Action
	order   []string

	// keyToAction is the effective key -> qualified action name, used to
	// detect and warn on conflicts. Updated in place by Register,
	// ApplyOverrides and UnregisterAll.
	keyToAction map[string]string

	// hostKeys is the set of keys the host's own built-in bindings use;
	// a plugin can never claim one of these.
	hostKeys map[string]bool
}

// New creates an empty Registry. hostKeys lists every key already bound to
// a built-in (non-plugin) command.
func New(hostKeys []string) *Registry {
	set := make(map[string]bool, len(hostKeys))
	for _, k := range hostKeys {
		set[k] = true
	}
	return &Registry{
		actions:     make(map[string]Action),
		keyToAction: make(map[string]string),
		hostKeys:    set,
	}
}

// Register adds plugin's action with its manifest-declared default key. If
// defaultKey collides with a host key or an already-registered plugin
// action, the new action is registered unbound (no key) rather than
// silently stealing the slot; first-loaded wins, so conflict resolution
// order matches plugin load order.
func (r *Registry) Register(plugin, name, defaultKey, description string) {
	log := logger.Keybinding()
	qualified := QualifiedName(plugin, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	a := Action{Plugin: plugin, Name: name, Qualified: qualified, DefaultKey: defaultKey, Description: description}
	r.actions[qualified] = a
	r.order = append(r.order, qualified)

	if defaultKey == "" {
		return
	}
	if r.hostKeys[defaultKey] {
		log.Warn().Str("plugin", plugin).Str("action", name).Str("key", defaultKey).
			Msg("plugin default key shadowed by a built-in binding, action left unbound")
		return
	}
	if existing, taken := r.keyToAction[defaultKey]; taken {
		log.Warn().Str("plugin", plugin).Str("action", name).Str("key", defaultKey).Str("held_by", existing).
			Msg("plugin default key already claimed by an earlier-loaded plugin, action left unbound")
		return
	}
	r.keyToAction[defaultKey] = qualified
}

// ApplyOverrides reads v's "keybindings.plugins.<plugin>.<action>" entries
// and rebinds matching actions to the user-supplied key, displacing any
// default-key binding that key previously held.
func (r *Registry) ApplyOverrides(v *viper.Viper) {
	log := logger.Keybinding()

	r.mu.Lock()
	defer r.mu.Unlock()

	overrides, ok := v.Get("keybindings.plugins").(map[string]any)
	if !ok {
		return
	}

	for pluginName, raw := range overrides {
		perPlugin, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for actionName, rawKey := range perPlugin {
			key, ok := rawKey.(string)
			if !ok || key == "" {
				continue
			}
			qualified := QualifiedName(pluginName, actionName)
			if _, exists := r.actions[qualified]; !exists {
				log.Warn().Str("plugin", pluginName).Str("action", actionName).
					Msg("keybinding override for unknown plugin action ignored")
				continue
			}
			if r.hostKeys[key] {
				log.Warn().Str("plugin", pluginName).Str("action", actionName).Str("key", key).
					Msg("override key shadowed by a built-in binding, ignored")
				continue
			}
			// Clear any existing binding this qualified action held, then
			// rebind it to the override key (displacing whoever held it).
			for k, owner := range r.keyToAction {
				if owner == qualified {
					delete(r.keyToAction, k)
				}
			}
			r.keyToAction[key] = qualified
		}
	}
}

// Resolve returns the qualified action name bound to key, if any.
func (r *Registry) Resolve(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	qualified, ok := r.keyToAction[key]
	return qualified, ok
}

// Action returns the registered action for qualified, if any.
func (r *Registry) Action(qualified string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[qualified]
	return a, ok
}

// Actions returns every registered action in load order.
func (r *Registry) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, 0, len(r.order))
	for _, q := range r.order {
		out = append(out, r.actions[q])
	}
	return out
}

// UnregisterAll removes every action belonging to plugin, along with any
// key binding it held. Used when a plugin is disabled or unloaded.
func (r *Registry) UnregisterAll(plugin string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, owner := range r.keyToAction {
		if r.actions[owner].Plugin == plugin {
			delete(r.keyToAction, k)
		}
	}
	remaining := r.order[:0:0]
	for _, q := range r.order {
		a := r.actions[q]
		if a.Plugin == plugin {
			delete(r.actions, q)
			continue
		}
		remaining = append(remaining, q)
	}
	r.order = remaining
}
