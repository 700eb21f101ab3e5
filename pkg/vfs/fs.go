package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

const (
	// PIDDir is the root directory holding the process namespace
	PIDDir = "pid"

	// MaxFileSize bounds ReadFile
	MaxFileSize = 16 << 20

	readChunk = 4096
)

var (
	// ErrIsDir is returned when reading or writing a directory
	ErrIsDir = errors.New("is a directory")

	// ErrNoProcess is returned for a PID the process source does not know
	ErrNoProcess = errors.New("no such process")

	// ErrInvalidPath is returned for paths outside the hierarchy
	ErrInvalidPath = errors.New("invalid path")

	// ErrFileTooLarge is returned by ReadFile past MaxFileSize
	ErrFileTooLarge = errors.New("file too large")
)

// ProcessSource supplies the processes of the process namespace
type ProcessSource interface {
	Lookup(ctx context.Context, pid uint32) (*plugins.Process, error)
	PIDs(ctx context.Context) ([]uint32, error)
	Purge()
}

// FS routes paths to modules under one lock
type FS struct {
	mu         sync.Mutex
	registry   *plugins.Registry
	dispatcher *plugins.Dispatcher
	processes  ProcessSource

	// known is the PID set seen by the last Refresh; nil until the first
	known map[uint32]struct{}

	log *logrus.Logger
}

// Option configures an FS
type Option func(*FS)

// WithProcesses sets the process source. Without one the process namespace
// is empty.
func WithProcesses(src ProcessSource) Option {
	return func(f *FS) {
		f.processes = src
	}
}

// WithLogger sets the file system logger
func WithLogger(log *logrus.Logger) Option {
	return func(f *FS) {
		if log != nil {
			f.log = log
		}
	}
}

// New creates a file system over registry and dispatcher
func New(registry *plugins.Registry, dispatcher *plugins.Dispatcher, opts ...Option) *FS {
	f := &FS{
		registry:   registry,
		dispatcher: dispatcher,
		log:        logrus.New(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type kind int

const (
	kindRoot kind = iota
	kindPIDDir
	kindProcess
	kindModule
)

// location is a resolved path
type location struct {
	kind   kind
	proc   *plugins.Process
	module string
	rest   string
}

func (f *FS) resolve(ctx context.Context, p string) (location, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return location{kind: kindRoot}, nil
	}

	parts := strings.Split(clean[1:], "/")
	if parts[0] != PIDDir {
		return location{
			kind:   kindModule,
			module: parts[0],
			rest:   strings.Join(parts[1:], "/"),
		}, nil
	}

	if len(parts) == 1 {
		return location{kind: kindPIDDir}, nil
	}

	pid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || uint32(pid) == plugins.NoPID {
		return location{}, fmt.Errorf("%w: %s", ErrInvalidPath, clean)
	}
	proc, err := f.lookup(ctx, uint32(pid))
	if err != nil {
		return location{}, err
	}

	if len(parts) == 2 {
		return location{kind: kindProcess, proc: proc}, nil
	}
	return location{
		kind:   kindModule,
		proc:   proc,
		module: parts[2],
		rest:   strings.Join(parts[3:], "/"),
	}, nil
}

func (f *FS) lookup(ctx context.Context, pid uint32) (*plugins.Process, error) {
	if f.processes == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoProcess, pid)
	}
	proc, err := f.processes.Lookup(ctx, pid)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

// List returns the entries of the directory at p
func (f *FS) List(ctx context.Context, p string) (plugins.Entries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	var entries plugins.Entries
	switch loc.kind {
	case kindRoot:
		for _, name := range f.dispatcher.ListAll(plugins.NamespaceRoot) {
			entries.AddDirectory(name)
		}
		entries.AddDirectory(PIDDir)
	case kindPIDDir:
		pids, err := f.pids(ctx)
		if err != nil {
			return nil, err
		}
		for _, pid := range pids {
			entries.AddDirectory(strconv.FormatUint(uint64(pid), 10))
		}
	case kindProcess:
		for _, name := range f.dispatcher.ListAll(plugins.NamespaceProcess) {
			entries.AddDirectory(name)
		}
	case kindModule:
		if err := f.dispatcher.List(loc.proc, loc.module, loc.rest, &entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (f *FS) pids(ctx context.Context) ([]uint32, error) {
	if f.processes == nil {
		return nil, nil
	}
	pids, err := f.processes.PIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	slices.Sort(pids)
	return pids, nil
}

// Read reads from the file at p into buf starting at offset
func (f *FS) Read(ctx context.Context, p string, buf []byte, offset uint64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, err := f.resolve(ctx, p)
	if err != nil {
		return 0, err
	}
	return f.read(loc, buf, offset)
}

func (f *FS) read(loc location, buf []byte, offset uint64) (int, error) {
	if loc.kind != kindModule {
		return 0, ErrIsDir
	}
	return f.dispatcher.Read(loc.proc, loc.module, loc.rest, buf, offset)
}

// ReadFile reads the whole file at p
func (f *FS) ReadFile(ctx context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, err := f.resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	var out []byte
	buf := make([]byte, readChunk)
	for {
		n, err := f.read(loc, buf, uint64(len(out)))
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(out) > MaxFileSize {
			return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, p)
		}
	}
}

// Write writes data to the file at p starting at offset
func (f *FS) Write(ctx context.Context, p string, data []byte, offset uint64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	loc, err := f.resolve(ctx, p)
	if err != nil {
		return 0, err
	}
	if loc.kind != kindModule {
		return 0, ErrIsDir
	}
	return f.dispatcher.Write(loc.proc, loc.module, loc.rest, data, offset)
}

// Notify broadcasts event to every module
func (f *FS) Notify(event plugins.Event, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dispatcher.Notify(event, payload)
}

// Refresh drops cached process state and broadcasts a total refresh. Once a
// previous snapshot exists, processes that appeared or vanished since are
// announced with EventProcessCreate and EventProcessTerminate, carrying the
// decimal PID.
func (f *FS) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.processes != nil {
		f.processes.Purge()
	}
	f.dispatcher.Notify(plugins.EventTotalRefresh, nil)

	pids, err := f.pids(ctx)
	if err != nil {
		return err
	}

	current := make(map[uint32]struct{}, len(pids))
	for _, pid := range pids {
		current[pid] = struct{}{}
	}

	created, terminated := 0, 0
	if f.known != nil {
		for pid := range f.known {
			if _, ok := current[pid]; !ok {
				f.dispatcher.Notify(plugins.EventProcessTerminate, pidPayload(pid))
				terminated++
			}
		}
		for _, pid := range pids {
			if _, ok := f.known[pid]; !ok {
				f.dispatcher.Notify(plugins.EventProcessCreate, pidPayload(pid))
				created++
			}
		}
	}
	f.known = current

	f.log.WithFields(logrus.Fields{
		"processes":  len(pids),
		"created":    created,
		"terminated": terminated,
	}).Debug("File system refreshed")
	return nil
}

func pidPayload(pid uint32) []byte {
	return strconv.AppendUint(nil, uint64(pid), 10)
}

// Modules snapshots the registered modules
func (f *FS) Modules() []plugins.ModuleInfo {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.registry.Modules()
}

// Len returns the number of registered modules
func (f *FS) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.registry.Len()
}
