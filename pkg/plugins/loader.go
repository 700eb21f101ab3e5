package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPattern matches native module files in the plugin directory
	DefaultPattern = "m_*.so"

	tracerName = "github.com/platinummonkey/procvfs/pkg/plugins"
)

// Builtin is a module compiled into the core
type Builtin struct {
	Name       string
	Initialize EntryFunc
}

// Loader discovers and initializes modules: built-ins first, then native
// libraries from the plugin directory, then the runtime host.
type Loader struct {
	registry  *Registry
	opener    Opener
	builtins  []Builtin
	pluginDir string
	pattern   string
	exeDir    string
	system    SystemInfo
	runtime   RuntimeHostConfig
	onRuntime func(dir string) error

	// retained holds libraries kept alive outside any record
	retained []Library

	runtimeLoaded bool

	mu     sync.Mutex
	log    *logrus.Logger
	tracer trace.Tracer
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithOpener sets how libraries are opened
func WithOpener(o Opener) LoaderOption {
	return func(l *Loader) {
		l.opener = o
	}
}

// WithBuiltins sets the compiled-in modules, initialized in order
func WithBuiltins(builtins ...Builtin) LoaderOption {
	return func(l *Loader) {
		l.builtins = builtins
	}
}

// WithPluginDir sets the directory scanned for native modules
func WithPluginDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.pluginDir = dir
	}
}

// WithPattern sets the glob native module files must match
func WithPattern(pattern string) LoaderOption {
	return func(l *Loader) {
		l.pattern = pattern
	}
}

// WithExecutableDir overrides the directory the core runs from
func WithExecutableDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.exeDir = dir
	}
}

// WithSystemInfo sets the system description handed to every module
func WithSystemInfo(info SystemInfo) LoaderOption {
	return func(l *Loader) {
		l.system = info
	}
}

// WithRuntimeHost enables the runtime host bootstrap
func WithRuntimeHost(cfg RuntimeHostConfig) LoaderOption {
	return func(l *Loader) {
		l.runtime = cfg
	}
}

// WithRuntimeDirHook registers fn to persist a newly resolved interpreter
// directory
func WithRuntimeDirHook(fn func(dir string) error) LoaderOption {
	return func(l *Loader) {
		l.onRuntime = fn
	}
}

// WithLoaderLogger sets the loader logger
func WithLoaderLogger(log *logrus.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithTracer sets the tracer used for loader spans
func WithTracer(t trace.Tracer) LoaderOption {
	return func(l *Loader) {
		if t != nil {
			l.tracer = t
		}
	}
}

// NewLoader creates a loader that registers modules into registry
func NewLoader(registry *Registry, opts ...LoaderOption) *Loader {
	l := &Loader{
		registry: registry,
		pattern:  DefaultPattern,
		log:      registry.log,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.exeDir == "" {
		if dir, err := ExecutableDir(); err == nil {
			l.exeDir = dir
		} else {
			l.log.Warnf("Cannot determine executable directory: %v", err)
		}
	}
	if l.pluginDir == "" && l.exeDir != "" {
		l.pluginDir = filepath.Join(l.exeDir, "plugins")
	}
	if l.opener == nil {
		l.opener = NewNativeOpener(DefaultSearchPath(l.exeDir))
	}

	return l
}

// Initialize runs all loader phases under the loader lock. Failures of
// individual modules are logged and skipped; Initialize only fails when the
// registry was already populated.
func (l *Loader) Initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.registry.Len() > 0 {
		return ErrAlreadyInitialized
	}

	ctx, span := l.tracer.Start(ctx, "plugins.Initialize")
	defer span.End()

	l.loadBuiltins(ctx)
	l.loadNative(ctx)
	if l.runtime.Enabled {
		l.loadRuntimeHost(ctx)
	}

	span.SetAttributes(attribute.Int("modules", l.registry.Len()))
	l.log.Infof("Module registry initialized with %d modules", l.registry.Len())
	return nil
}

// Close tears down every module and releases all libraries
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.registry.Close()
	for i := len(l.retained) - 1; i >= 0; i-- {
		l.unload(l.retained[i])
	}
	l.retained = nil
	l.runtimeLoaded = false
}

// PluginDir returns the directory scanned for native modules
func (l *Loader) PluginDir() string {
	return l.pluginDir
}

// descriptor returns a fresh descriptor bound to lib. The registration
// callback stamps lib onto whatever the module submits.
func (l *Loader) descriptor(lib Library) *Descriptor {
	d := NewDescriptor()
	d.Library = lib
	d.System = l.system
	d.PluginDir = l.pluginDir
	d.Register = func(sub *Descriptor) error {
		if sub == nil {
			return &ValidationError{Field: "descriptor", Message: "descriptor is nil"}
		}
		sub.Library = lib
		return l.registry.Register(sub)
	}
	return d
}

// callEntry runs a module initializer, recovering a panic into an error
func (l *Loader) callEntry(name string, entry EntryFunc, d *Descriptor) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s initializer: %v", ErrModulePanic, name, p)
		}
	}()
	entry(d)
	return nil
}

func (l *Loader) loadBuiltins(ctx context.Context) {
	_, span := l.tracer.Start(ctx, "plugins.loadBuiltins")
	defer span.End()

	for _, b := range l.builtins {
		if b.Initialize == nil {
			continue
		}
		if err := l.callEntry(b.Name, b.Initialize, l.descriptor(nil)); err != nil {
			l.log.WithError(err).Debugf("Built-in module '%s' skipped", b.Name)
		}
	}
	span.SetAttributes(attribute.Int("modules", l.registry.Len()))
}

func (l *Loader) loadNative(ctx context.Context) {
	_, span := l.tracer.Start(ctx, "plugins.loadNative")
	defer span.End()

	if l.pluginDir == "" {
		return
	}

	candidates, err := filepath.Glob(filepath.Join(l.pluginDir, l.pattern))
	if err != nil {
		l.log.Warnf("Invalid plugin pattern %q: %v", l.pattern, err)
		return
	}

	loaded := 0
	for _, path := range candidates {
		if _, err := l.loadModuleLibrary(path); err != nil {
			l.log.WithField("library", filepath.Base(path)).Warnf("Skipping plugin: %v", err)
			continue
		}
		loaded++
	}

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("loaded", loaded),
	)
}

// loadModuleLibrary opens path, runs its entry point and verifies that it
// registered at least one module. On failure the library is not left loaded.
func (l *Loader) loadModuleLibrary(path string) (Library, error) {
	lib, err := l.opener.Open(path)
	if err != nil {
		return nil, &LibraryLoadError{Path: path, Err: err}
	}
	l.log.Debugf("Load library: '%s'", filepath.Base(path))

	entry, err := entryPoint(lib)
	if err != nil {
		l.unload(lib)
		return nil, &LibraryLoadError{Path: path, Symbol: EntrySymbol, Err: err}
	}

	if err := l.callEntry(path, entry, l.descriptor(lib)); err != nil {
		l.log.WithError(err).Warnf("Entry point of %s failed", filepath.Base(path))
	}

	if !l.registry.ModuleExists(lib, "") {
		l.unload(lib)
		return nil, &RegistrationVerificationError{Path: path}
	}

	return lib, nil
}

func (l *Loader) unload(lib Library) {
	if lib == nil {
		return
	}
	if err := lib.Close(); err != nil {
		l.log.WithError(err).Debugf("Failed to unload %s", lib.Path())
	}
}
