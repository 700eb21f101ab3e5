package plugins

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// Registry holds registered modules in registration order and owns them
// until Close. It performs no locking; callers serialize access.
type Registry struct {
	// modules is kept in registration order; the most recent is last
	modules   []*ModuleRecord
	libraries map[Library]int
	capacity  int
	log       *logrus.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithCapacity bounds the number of records the registry will allocate
func WithCapacity(n int) RegistryOption {
	return func(r *Registry) {
		r.capacity = n
	}
}

// WithRegistryLogger sets the registry logger
func WithRegistryLogger(log *logrus.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		libraries: make(map[Library]int),
		log:       logrus.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates d and adds a record for it at the front of the registry
func (r *Registry) Register(d *Descriptor) error {
	if errs := ValidateDescriptor(d); len(errs) > 0 {
		return &errs[0]
	}

	if r.ModuleExists(nil, d.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, d.Name)
	}

	if r.capacity > 0 && len(r.modules) >= r.capacity {
		return fmt.Errorf("%w: capacity of %d modules reached", ErrAllocation, r.capacity)
	}

	record := &ModuleRecord{
		Name:     d.Name,
		Scope:    d.Scope,
		Library:  d.Library,
		handlers: d.Handlers,
	}
	r.modules = append(r.modules, record)
	if record.Library != nil {
		r.libraries[record.Library]++
	}

	kind := "built-in"
	if !record.Builtin() {
		kind = "native"
	}
	r.log.WithFields(logrus.Fields{
		"module": record.Name,
		"scope":  record.Scope.String(),
		"kind":   kind,
	}).Debugf("Loaded %s module '%s'", kind, record.Name)

	return nil
}

// ModuleExists reports whether any record belongs to lib or is named name.
// Either argument may be left empty.
func (r *Registry) ModuleExists(lib Library, name string) bool {
	for _, m := range r.modules {
		if lib != nil && m.Library == lib {
			return true
		}
		if name != "" && strings.EqualFold(m.Name, name) {
			return true
		}
	}
	return false
}

// LibraryRefs returns the number of live records owned by lib
func (r *Registry) LibraryRefs(lib Library) int {
	return r.libraries[lib]
}

// Len returns the number of registered modules
func (r *Registry) Len() int {
	return len(r.modules)
}

// Modules returns a snapshot of all records, most recent first
func (r *Registry) Modules() []ModuleInfo {
	out := make([]ModuleInfo, 0, len(r.modules))
	r.each(func(m *ModuleRecord) bool {
		out = append(out, m.Info())
		return true
	})
	return out
}

// lookup returns the first record in registry order matching namespace and name
func (r *Registry) lookup(ns Namespace, name string) *ModuleRecord {
	var found *ModuleRecord
	r.each(func(m *ModuleRecord) bool {
		if m.Scope.Includes(ns) && strings.EqualFold(m.Name, name) {
			found = m
			return false
		}
		return true
	})
	return found
}

// each walks records most recent first until fn returns false
func (r *Registry) each(fn func(m *ModuleRecord) bool) {
	for i := len(r.modules) - 1; i >= 0; i-- {
		if !fn(r.modules[i]) {
			return
		}
	}
}

// Close tears down every record, most recent first. A record's Close handler
// runs before its library is unloaded, and a library is unloaded only once
// its last record is gone. Close on an empty registry does nothing.
func (r *Registry) Close() {
	for len(r.modules) > 0 {
		last := len(r.modules) - 1
		record := r.modules[last]
		r.modules[last] = nil
		r.modules = r.modules[:last]

		if record.handlers.Close != nil {
			if err := r.guard(record, "close", func() error {
				record.handlers.Close()
				return nil
			}); err != nil {
				r.log.WithError(err).Warnf("Module '%s' failed to close", record.Name)
			}
		}

		if record.Library != nil {
			r.release(record.Library)
		}
	}
}

// release drops one reference to lib and unloads it when none remain
func (r *Registry) release(lib Library) {
	r.libraries[lib]--
	if r.libraries[lib] > 0 {
		return
	}
	delete(r.libraries, lib)
	if err := lib.Close(); err != nil {
		r.log.WithError(err).Warnf("Failed to unload library %s", lib.Path())
		return
	}
	r.log.Debugf("Unloaded library %s", lib.Path())
}

// guard runs a module handler, converting a panic into ErrModulePanic
func (r *Registry) guard(m *ModuleRecord, op string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithFields(logrus.Fields{
				"module": m.Name,
				"op":     op,
				"panic":  p,
				"stack":  string(debug.Stack()),
			}).Error("PANIC recovered in module handler")
			err = fmt.Errorf("%w: %s %s: %v", ErrModulePanic, m.Name, op, p)
		}
	}()
	return fn()
}
