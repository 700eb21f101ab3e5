package plugins

import (
	"math"
	"strings"
	"time"
)

const (
	// DescriptorMagic marks a value as a registration descriptor
	DescriptorMagic uint64 = 0xc0ffee663df9301e

	// DescriptorVersion is the newest descriptor layout understood by the registry
	DescriptorVersion uint16 = 3

	// MinDescriptorVersion is the oldest descriptor layout still accepted
	MinDescriptorVersion uint16 = 2

	// MaxNameLength is the longest module name accepted, in characters
	MaxNameLength = 31

	// NoPID identifies a request made in the root namespace
	NoPID uint32 = math.MaxUint32

	// EntrySymbol is the symbol every loadable library must export
	EntrySymbol = "InitializeModule"
)

// Namespace selects one half of the virtual hierarchy
type Namespace int

const (
	NamespaceRoot Namespace = iota
	NamespaceProcess
)

func (n Namespace) String() string {
	if n == NamespaceProcess {
		return "process"
	}
	return "root"
}

// NamespaceOf returns the namespace a request for proc lands in
func NamespaceOf(proc *Process) Namespace {
	if proc == nil {
		return NamespaceRoot
	}
	return NamespaceProcess
}

// Scope declares where a module's subtree is visible
type Scope struct {
	Root    bool `yaml:"root" json:"root"`
	Process bool `yaml:"process" json:"process"`
}

// Includes reports whether the scope covers namespace n
func (s Scope) Includes(n Namespace) bool {
	switch n {
	case NamespaceRoot:
		return s.Root
	case NamespaceProcess:
		return s.Process
	}
	return false
}

func (s Scope) String() string {
	var parts []string
	if s.Root {
		parts = append(parts, "root")
	}
	if s.Process {
		parts = append(parts, "process")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Process is the internal state of a process. Only built-in modules ever
// receive it through their RequestContext.
type Process struct {
	PID        uint32
	PPID       uint32
	Name       string
	Exe        string
	Cmdline    string
	Username   string
	CreateTime time.Time
}

// SystemInfo describes the analyzed system, handed to modules at registration
type SystemInfo struct {
	SystemType  string `yaml:"system_type" mapstructure:"system_type" json:"system_type"`
	MemoryModel string `yaml:"memory_model" mapstructure:"memory_model" json:"memory_model"`
}

// Event identifies a notification broadcast to modules
type Event uint32

const (
	EventVerbosityChange  Event = 0x01
	EventTotalRefresh     Event = 0x02
	EventProcessCreate    Event = 0x10
	EventProcessTerminate Event = 0x11
)

func (e Event) String() string {
	switch e {
	case EventVerbosityChange:
		return "verbosity-change"
	case EventTotalRefresh:
		return "total-refresh"
	case EventProcessCreate:
		return "process-create"
	case EventProcessTerminate:
		return "process-terminate"
	}
	return "unknown"
}

// Handler function types making up a module's capability set
type (
	ListFunc   func(ctx *RequestContext, files FileList) error
	ReadFunc   func(ctx *RequestContext, p []byte, offset uint64) (int, error)
	WriteFunc  func(ctx *RequestContext, p []byte, offset uint64) (int, error)
	NotifyFunc func(event Event, payload []byte)
	CloseFunc  func()
)

// Handlers is the capability set a module registers. List is mandatory.
type Handlers struct {
	List   ListFunc
	Read   ReadFunc
	Write  WriteFunc
	Notify NotifyFunc
	Close  CloseFunc
}

// Lister is implemented by any module value; the optional interfaces below
// are picked up by HandlersFor.
type Lister interface {
	List(ctx *RequestContext, files FileList) error
}

type Reader interface {
	Read(ctx *RequestContext, p []byte, offset uint64) (int, error)
}

type Writer interface {
	Write(ctx *RequestContext, p []byte, offset uint64) (int, error)
}

type Notifier interface {
	Notify(event Event, payload []byte)
}

type Closer interface {
	Close()
}

// HandlersFor builds a capability set from a module value's methods
func HandlersFor(m Lister) Handlers {
	if m == nil {
		return Handlers{}
	}
	h := Handlers{List: m.List}
	if r, ok := m.(Reader); ok {
		h.Read = r.Read
	}
	if w, ok := m.(Writer); ok {
		h.Write = w.Write
	}
	if n, ok := m.(Notifier); ok {
		h.Notify = n.Notify
	}
	if c, ok := m.(Closer); ok {
		h.Close = c.Close
	}
	return h
}

// Capability is a bit in a module's capability mask
type Capability uint8

const (
	CapList Capability = 1 << iota
	CapRead
	CapWrite
	CapNotify
	CapClose
)

func (c Capability) String() string {
	names := []struct {
		bit  Capability
		name string
	}{
		{CapList, "list"},
		{CapRead, "read"},
		{CapWrite, "write"},
		{CapNotify, "notify"},
		{CapClose, "close"},
	}
	var parts []string
	for _, n := range names {
		if c&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// MarshalText renders the mask as a comma separated list
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Capabilities returns the mask of handlers present
func (h Handlers) Capabilities() Capability {
	var c Capability
	if h.List != nil {
		c |= CapList
	}
	if h.Read != nil {
		c |= CapRead
	}
	if h.Write != nil {
		c |= CapWrite
	}
	if h.Notify != nil {
		c |= CapNotify
	}
	if h.Close != nil {
		c |= CapClose
	}
	return c
}

// RuntimeBinding carries the libraries a runtime host binds to
type RuntimeBinding struct {
	Interpreter Library
	Secondary   Library
}

// EntryFunc is the initializer of a module; it fills in the descriptor and
// calls Register one or more times.
type EntryFunc func(d *Descriptor)

// Descriptor is the self-describing value a module submits to register
type Descriptor struct {
	Magic   uint64
	Version uint16

	Name     string
	Scope    Scope
	Handlers Handlers

	// Library is set by the loader. A value set by the module is overwritten.
	Library Library

	// Environment supplied by the loader
	System    SystemInfo
	PluginDir string
	Runtime   *RuntimeBinding

	// Register submits the descriptor to the registry
	Register func(d *Descriptor) error
}

// NewDescriptor returns a descriptor with current markers
func NewDescriptor() *Descriptor {
	return &Descriptor{
		Magic:   DescriptorMagic,
		Version: DescriptorVersion,
	}
}

// ModuleRecord is one registered module
type ModuleRecord struct {
	Name     string
	Scope    Scope
	Library  Library
	handlers Handlers
}

// Builtin reports whether the module was compiled into the core
func (m *ModuleRecord) Builtin() bool { return m.Library == nil }

func (m *ModuleRecord) HasRead() bool { return m.handlers.Read != nil }
func (m *ModuleRecord) HasWrite() bool { return m.handlers.Write != nil }
func (m *ModuleRecord) HasNotify() bool { return m.handlers.Notify != nil }
func (m *ModuleRecord) HasClose() bool { return m.handlers.Close != nil }

// Capabilities returns the record's capability mask
func (m *ModuleRecord) Capabilities() Capability { return m.handlers.Capabilities() }

// ModuleInfo is a read-only snapshot of a record
type ModuleInfo struct {
	Name         string     `json:"name"`
	Scope        Scope      `json:"scope"`
	Capabilities Capability `json:"capabilities"`
	Builtin      bool       `json:"builtin"`
	Library      string     `json:"library,omitempty"`
}

// Info snapshots the record
func (m *ModuleRecord) Info() ModuleInfo {
	info := ModuleInfo{
		Name:         m.Name,
		Scope:        m.Scope,
		Capabilities: m.Capabilities(),
		Builtin:      m.Builtin(),
	}
	if m.Library != nil {
		info.Library = m.Library.Path()
	}
	return info
}
