package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"plugin"
)

// NativeOpener opens Go plugin shared objects built with -buildmode=plugin.
//
// The Go runtime cannot unload a plugin, so Close only retires the handle:
// later lookups fail, but code and data stay mapped for the process lifetime.
type NativeOpener struct {
	// SearchPath is consulted, in order, for bare library names
	SearchPath []string
}

// NewNativeOpener creates an opener with the given search path
func NewNativeOpener(searchPath []string) *NativeOpener {
	return &NativeOpener{SearchPath: searchPath}
}

// Open loads the plugin at path
func (o *NativeOpener) Open(path string) (Library, error) {
	resolved, err := o.resolve(path)
	if err != nil {
		return nil, err
	}

	p, err := plugin.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin: %w", err)
	}

	return &nativeLibrary{path: resolved, plugin: p}, nil
}

func (o *NativeOpener) resolve(path string) (string, error) {
	if filepath.Base(path) != path {
		return path, nil
	}

	for _, dir := range o.SearchPath {
		candidate := filepath.Join(dir, path)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found on library search path: %w", path, fs.ErrNotExist)
}

type nativeLibrary struct {
	path   string
	plugin *plugin.Plugin
	closed bool
}

func (l *nativeLibrary) Path() string { return l.path }

func (l *nativeLibrary) Lookup(symbol string) (any, error) {
	if l.closed {
		return nil, errors.New("library is closed")
	}
	sym, err := l.plugin.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func (l *nativeLibrary) Close() error {
	if l.closed {
		return errors.New("library already closed")
	}
	l.closed = true
	return nil
}

// DefaultSearchPath returns the library search path used for bare names:
// the executable directory, LD_LIBRARY_PATH, then the system library dirs.
func DefaultSearchPath(exeDir string) []string {
	var dirs []string
	if exeDir != "" {
		dirs = append(dirs, exeDir)
	}
	if env := os.Getenv("LD_LIBRARY_PATH"); env != "" {
		dirs = append(dirs, filepath.SplitList(env)...)
	}
	return append(dirs, "/usr/local/lib", "/usr/lib")
}

// ExecutableDir returns the directory holding the running executable
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
