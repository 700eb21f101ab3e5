package plugins

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Dispatcher routes file system operations to registered modules. Like the
// registry it expects its caller to hold the coarse file system lock.
type Dispatcher struct {
	registry *Registry
	stats    Statistics
	log      *logrus.Logger
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithStatistics sets the statistics hook called around each dispatch
func WithStatistics(s Statistics) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.stats = s
		}
	}
}

// WithDispatcherLogger sets the dispatcher logger
func WithDispatcherLogger(log *logrus.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDispatcher creates a dispatcher over registry
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		stats:    NopStatistics,
		log:      registry.log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ListAll returns the names of modules visible in namespace ns without
// calling into any module
func (d *Dispatcher) ListAll(ns Namespace) []string {
	var names []string
	d.registry.each(func(m *ModuleRecord) bool {
		if m.Scope.Includes(ns) {
			names = append(names, m.Name)
		}
		return true
	})
	return names
}

// List asks module for the entries under path. A nil proc targets the root
// namespace.
func (d *Dispatcher) List(proc *Process, module, path string, files FileList) error {
	start := d.stats.CallStart()
	defer d.stats.CallEnd(OpList, start)

	m := d.registry.lookup(NamespaceOf(proc), module)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, module)
	}

	ctx := newRequestContext(m, proc, path)
	return d.registry.guard(m, "list", func() error {
		return m.handlers.List(ctx, files)
	})
}

// Read reads from path in module into p starting at offset
func (d *Dispatcher) Read(proc *Process, module, path string, p []byte, offset uint64) (int, error) {
	start := d.stats.CallStart()
	defer d.stats.CallEnd(OpRead, start)

	m := d.registry.lookup(NamespaceOf(proc), module)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, module)
	}
	if m.handlers.Read == nil {
		return 0, fmt.Errorf("%w: %s has no read handler", ErrUnsupported, m.Name)
	}

	ctx := newRequestContext(m, proc, path)
	var n int
	err := d.registry.guard(m, "read", func() error {
		var err error
		n, err = m.handlers.Read(ctx, p, offset)
		return err
	})
	if n < 0 || n > len(p) {
		return 0, countError(m, "read", n, len(p))
	}
	return n, err
}

// Write writes p to path in module starting at offset
func (d *Dispatcher) Write(proc *Process, module, path string, p []byte, offset uint64) (int, error) {
	start := d.stats.CallStart()
	defer d.stats.CallEnd(OpWrite, start)

	m := d.registry.lookup(NamespaceOf(proc), module)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, module)
	}
	if m.handlers.Write == nil {
		return 0, fmt.Errorf("%w: %s has no write handler", ErrUnsupported, m.Name)
	}

	ctx := newRequestContext(m, proc, path)
	var n int
	err := d.registry.guard(m, "write", func() error {
		var err error
		n, err = m.handlers.Write(ctx, p, offset)
		return err
	})
	if n < 0 || n > len(p) {
		return 0, countError(m, "write", n, len(p))
	}
	return n, err
}

// countError rejects a count no caller could slice p with
func countError(m *ModuleRecord, op string, n, size int) error {
	return fmt.Errorf("%w: %s %s returned %d for a %d byte buffer", ErrBadCount, m.Name, op, n, size)
}

// Notify delivers event to every module with a notify handler regardless of
// scope. Delivery is best effort; failures are logged and skipped.
func (d *Dispatcher) Notify(event Event, payload []byte) {
	start := d.stats.CallStart()
	defer d.stats.CallEnd(OpNotify, start)

	d.registry.each(func(m *ModuleRecord) bool {
		if m.handlers.Notify == nil {
			return true
		}
		if err := d.registry.guard(m, "notify", func() error {
			m.handlers.Notify(event, payload)
			return nil
		}); err != nil {
			d.log.WithError(err).Debugf("Notify %s to '%s' failed", event, m.Name)
		}
		return true
	})
}
