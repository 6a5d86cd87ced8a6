// Package loader implements the dynamic plugin loader: opening a
// platform shared library for each enabled, compatible plugin, verifying
// its declared interface version, and wrapping every call to it in a
// panic-catching boundary that leaves host state intact.
package loader

import (
	"fmt"
	"path/filepath"
	"plugin"
	"runtime"
	"sync"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/apperr"
	"github.com/todoplug/hostrt/internal/logger"
)

// rootModuleSymbol is the fixed symbol name every plugin library must
// export: a value of type abi.RootModule.
const rootModuleSymbol = "PluginRoot"

// libraryFilename returns the platform-native shared library filename for
// a plugin named name.
func libraryFilename(name string) string {
	switch runtime.GOOS {
	case "windows":
		return name + ".dll"
	case "darwin":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}

// LoadedPlugin pairs a constructed plugin trait object with the loader's
// bookkeeping for panic isolation and session-disable tracking. The
// library handle that produced Handler is kept alive for process lifetime
// by the plugin package itself (proxy pattern); LoadedPlugin never closes
// or reopens it.
type LoadedPlugin struct {
	Name string
	Path string

	handler abi.PluginHandler

	mu                  sync.Mutex
	consecutiveFailures int
	sessionDisabled     bool
}

// Loader opens plugin libraries and constructs their root module.
type Loader struct {
	hostVersion string
}

// New creates a Loader that checks plugins against hostVersion.
func New(hostVersion string) *Loader {
	return &Loader{hostVersion: hostVersion}
}

// Load opens info's shared library, verifies its interface version, and
// constructs its plugin trait object. Callers must only invoke Load for
// entries that are already Enabled and Available (registry.EnabledPlugins).
func (l *Loader) Load(info *abi.Info) (*LoadedPlugin, error) {
	log := logger.Loader()
	path := filepath.Join(info.Dir, libraryFilename(info.Manifest.Name))

	lib, err := plugin.Open(path)
	if err != nil {
		return nil, apperr.LoadError(info.Manifest.Name, fmt.Sprintf("opening %s", path), err)
	}

	sym, err := lib.Lookup(rootModuleSymbol)
	if err != nil {
		return nil, apperr.LoadError(info.Manifest.Name, fmt.Sprintf("missing %s symbol", rootModuleSymbol), err)
	}

	root, ok := sym.(*abi.RootModule)
	if !ok {
		return nil, apperr.LoadError(info.Manifest.Name,
			fmt.Sprintf("%s has unexpected type, expected *abi.RootModule", rootModuleSymbol), nil)
	}

	if !abi.Compatible(l.hostVersion, root.InterfaceVersion) {
		return nil, apperr.IncompatibleVersion(info.Manifest.Name,
			fmt.Sprintf("root module interface version %s incompatible with host %s", root.InterfaceVersion, l.hostVersion))
	}

	if root.New == nil {
		return nil, apperr.LoadError(info.Manifest.Name, "root module constructor is nil", nil)
	}

	lp := &LoadedPlugin{Name: info.Manifest.Name, Path: path}
	if err := lp.construct(root.New); err != nil {
		return nil, err
	}

	log.Info().Str("plugin", info.Manifest.Name).Str("path", path).Msg("plugin library loaded")
	return lp, nil
}

// construct invokes root.New under the same panic boundary as any other
// plugin call, since constructors are plugin-authored code too.
func (lp *LoadedPlugin) construct(newFn func() abi.PluginHandler) error {
	return lp.call(func() error {
		h := newFn()
		if h == nil {
			return apperr.LoadError(lp.Name, "plugin constructor returned nil handler", nil)
		}
		lp.handler = h
		return nil
	})
}

// Disabled reports whether this plugin has been session-disabled after
// repeated hook failures. Session-disabled plugins must not be called
// again until process restart.
func (lp *LoadedPlugin) Disabled() bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.sessionDisabled
}

// RecordFailure increments the consecutive-failure counter and reports
// whether this failure tripped the plugin into session-disabled state.
// Three consecutive failures disable the plugin.
func (lp *LoadedPlugin) RecordFailure() (disabledNow bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.consecutiveFailures++
	if lp.consecutiveFailures >= 3 && !lp.sessionDisabled {
		lp.sessionDisabled = true
		disabledNow = true
	}
	return disabledNow
}

// RecordSuccess resets the consecutive-failure counter. A plugin already
// session-disabled stays disabled; only a process restart clears that.
func (lp *LoadedPlugin) RecordSuccess() {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.consecutiveFailures = 0
}

// Call invokes fn under the panic-catching boundary. If the plugin is
// session-disabled, fn is never invoked and a SessionDisabled error is
// returned instead. Otherwise any panic raised by fn is recovered and turned
// into a Panicked error; the caller (the dispatcher or runtime) is
// responsible for feeding the resulting success/failure back through
// RecordSuccess/RecordFailure.
func (lp *LoadedPlugin) Call(fn func() error) error {
	if lp.Disabled() {
		return apperr.SessionDisabled(lp.Name)
	}
	return lp.call(fn)
}

// call is the bare panic-recovery boundary, used both by Call and by
// construct (which must run before Disabled() is meaningful).
func (lp *LoadedPlugin) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Panicked(lp.Name, panicMessage(r))
		}
	}()
	return fn()
}

// panicMessage best-effort extracts a string payload from a recovered
// panic value, preserving it for diagnostics.
func panicMessage(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Handler returns the constructed plugin trait object. Callers invoke its
// methods only through Call to preserve panic isolation.
func (lp *LoadedPlugin) Handler() abi.PluginHandler {
	return lp.handler
}

// NewForTesting builds a LoadedPlugin around an already-constructed
// handler, bypassing plugin.Open. Used by other packages' tests that need
// a dispatchable plugin without a real shared library on disk.
func NewForTesting(name string, h abi.PluginHandler) *LoadedPlugin {
	return &LoadedPlugin{Name: name, handler: h}
}
