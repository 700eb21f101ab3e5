package luahost

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

const (
	// OpenLibsSymbol is exported by the interpreter library
	OpenLibsSymbol = "OpenLibs"

	// PreloadSymbol is optionally exported by the secondary library
	PreloadSymbol = "Preload"

	// ScriptDir is the plugin subdirectory holding Lua modules
	ScriptDir = "lua"
)

var (
	// ErrNoInterpreter is returned when the descriptor carries no usable
	// interpreter library
	ErrNoInterpreter = errors.New("no interpreter library bound")

	// ErrScript is returned when a script is malformed or a handler fails
	ErrScript = errors.New("lua script error")
)

// Host creates Lua states for scripts
type Host struct {
	openLibs func(*lua.LState)
	preload  func(*lua.LState)
	log      *logrus.Logger
}

// Initialize is the runtime host entry point. It registers one module per
// script found in the plugin directory.
func Initialize(d *plugins.Descriptor) {
	log := logrus.StandardLogger()

	host, err := NewHost(d.Runtime, log)
	if err != nil {
		log.WithError(err).Warn("Lua runtime host unavailable")
		return
	}

	n := host.RegisterScripts(d, filepath.Join(d.PluginDir, ScriptDir))
	log.Debugf("Lua runtime host registered %d modules", n)
}

// NewHost resolves the interpreter entry points from binding
func NewHost(binding *plugins.RuntimeBinding, log *logrus.Logger) (*Host, error) {
	if binding == nil || binding.Interpreter == nil {
		return nil, ErrNoInterpreter
	}
	if log == nil {
		log = logrus.New()
	}

	openLibs, err := lookupStateFunc(binding.Interpreter, OpenLibsSymbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoInterpreter, err)
	}

	h := &Host{openLibs: openLibs, log: log}
	if binding.Secondary != nil {
		if preload, err := lookupStateFunc(binding.Secondary, PreloadSymbol); err == nil {
			h.preload = preload
		} else {
			log.Debugf("Secondary library %s provides no preload: %v", binding.Secondary.Path(), err)
		}
	}
	return h, nil
}

func lookupStateFunc(lib plugins.Library, symbol string) (func(*lua.LState), error) {
	sym, err := lib.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case func(*lua.LState):
		if fn != nil {
			return fn, nil
		}
	case *func(*lua.LState):
		if fn != nil && *fn != nil {
			return *fn, nil
		}
	default:
		return nil, fmt.Errorf("%s: symbol %s has unexpected type %T", lib.Path(), symbol, sym)
	}
	return nil, fmt.Errorf("%s: symbol %s is nil", lib.Path(), symbol)
}

// RegisterScripts loads every *.lua file in dir, in name order, and submits
// one descriptor per script through d.Register. Broken scripts are logged
// and skipped. It returns the number of modules registered.
func (h *Host) RegisterScripts(d *plugins.Descriptor, dir string) int {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		h.log.Warnf("Invalid script directory %s: %v", dir, err)
		return 0
	}
	sort.Strings(paths)

	registered := 0
	for _, path := range paths {
		s, err := h.Load(path)
		if err != nil {
			h.log.WithField("script", filepath.Base(path)).Warnf("Skipping script: %v", err)
			continue
		}

		sub := plugins.NewDescriptor()
		sub.Name = s.name
		sub.Scope = s.scope
		sub.Handlers = s.Handlers()
		if err := d.Register(sub); err != nil {
			h.log.WithField("script", filepath.Base(path)).Warnf("Script module not registered: %v", err)
			s.L.Close()
			continue
		}
		registered++
	}
	return registered
}

// Load runs the script at path and reads its module table
func (h *Host) Load(path string) (*Script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	h.openLibs(L)
	if h.preload != nil {
		h.preload(L)
	}

	s, err := newScript(L, path)
	if err != nil {
		L.Close()
		return nil, err
	}
	s.log = h.log
	return s, nil
}

func newScript(L *lua.LState, path string) (*Script, error) {
	base := filepath.Base(path)
	if err := L.DoFile(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScript, base, err)
	}
	if L.GetTop() == 0 {
		return nil, fmt.Errorf("%w: %s returned nothing", ErrScript, base)
	}
	tbl, ok := L.Get(-1).(*lua.LTable)
	L.SetTop(0)
	if !ok {
		return nil, fmt.Errorf("%w: %s must return a table", ErrScript, base)
	}

	s := &Script{
		L:    L,
		name: strings.TrimSuffix(base, ".lua"),
	}
	if name, ok := tbl.RawGetString("name").(lua.LString); ok && name != "" {
		s.name = string(name)
	}
	s.scope = plugins.Scope{
		Root:    lua.LVAsBool(tbl.RawGetString("root")),
		Process: lua.LVAsBool(tbl.RawGetString("process")),
	}
	if !s.scope.Root && !s.scope.Process {
		s.scope.Root = true
	}

	s.list, _ = tbl.RawGetString("list").(*lua.LFunction)
	s.read, _ = tbl.RawGetString("read").(*lua.LFunction)
	s.write, _ = tbl.RawGetString("write").(*lua.LFunction)
	s.notify, _ = tbl.RawGetString("notify").(*lua.LFunction)
	s.close, _ = tbl.RawGetString("close").(*lua.LFunction)

	if s.list == nil {
		return nil, fmt.Errorf("%w: %s has no list function", ErrScript, base)
	}
	return s, nil
}
