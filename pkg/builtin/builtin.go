// Package builtin provides the modules compiled into procvfs.
//
// sysinfo (root) describes the analyzed system and the loaded modules,
// procinfo (process) exposes trusted process state, and notes (root and
// process) is a writable scratch file per namespace.
package builtin

import (
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// Modules returns the built-in modules in registration order. sysinfo lists
// the contents of registry.
func Modules(registry *plugins.Registry) []plugins.Builtin {
	return []plugins.Builtin{
		{Name: "sysinfo", Initialize: SysInfo(registry)},
		{Name: "procinfo", Initialize: ProcInfo},
		{Name: "notes", Initialize: Notes},
	}
}

// file is one generated file of a module
type file struct {
	name    string
	content func(ctx *plugins.RequestContext) ([]byte, error)
}

// fileSet serves a flat directory of generated files
type fileSet []file

func (s fileSet) list(ctx *plugins.RequestContext, files plugins.FileList) error {
	if name := cleanPath(ctx.Path); name != "" {
		if _, ok := s.find(name); ok {
			return fmt.Errorf("%s: %w", name, fs.ErrInvalid)
		}
		return fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	for _, f := range s {
		data, err := f.content(ctx)
		if err != nil {
			continue
		}
		files.AddFile(f.name, uint64(len(data)))
	}
	return nil
}

func (s fileSet) read(ctx *plugins.RequestContext, p []byte, offset uint64) (int, error) {
	name := cleanPath(ctx.Path)
	f, ok := s.find(name)
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	data, err := f.content(ctx)
	if err != nil {
		return 0, err
	}
	return readAt(data, p, offset)
}

func (s fileSet) find(name string) (file, bool) {
	for _, f := range s {
		if f.name == name {
			return f, true
		}
	}
	return file{}, false
}

// readAt copies content[offset:] into p; io.EOF once offset reaches the end
func readAt(content, p []byte, offset uint64) (int, error) {
	if offset >= uint64(len(content)) {
		return 0, io.EOF
	}
	return copy(p, content[offset:]), nil
}

func cleanPath(path string) string {
	return strings.Trim(path, "/")
}
