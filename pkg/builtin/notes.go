package builtin

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

const (
	noteFile = "note"

	// MaxNoteSize bounds a single note
	MaxNoteSize = 64 << 10
)

// ErrNoteTooLarge is returned by a write that would grow a note past
// MaxNoteSize
var ErrNoteTooLarge = errors.New("note too large")

// notes keeps one scratch file per namespace entry, keyed by PID
type notes struct {
	data map[uint32][]byte
}

// Notes is the initializer of the notes module
func Notes(d *plugins.Descriptor) {
	m := &notes{data: make(map[uint32][]byte)}

	d.Name = "notes"
	d.Scope = plugins.Scope{Root: true, Process: true}
	d.Handlers = plugins.HandlersFor(m)
	_ = d.Register(d)
}

func (m *notes) List(ctx *plugins.RequestContext, files plugins.FileList) error {
	if name := cleanPath(ctx.Path); name != "" {
		return fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	files.AddFile(noteFile, uint64(len(m.data[ctx.PID])))
	return nil
}

func (m *notes) Read(ctx *plugins.RequestContext, p []byte, offset uint64) (int, error) {
	if name := cleanPath(ctx.Path); name != noteFile {
		return 0, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return readAt(m.data[ctx.PID], p, offset)
}

// Write stores p at offset, zero filling any gap and truncating whatever
// followed the written range
func (m *notes) Write(ctx *plugins.RequestContext, p []byte, offset uint64) (int, error) {
	if name := cleanPath(ctx.Path); name != noteFile {
		return 0, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	if offset > MaxNoteSize || uint64(len(p)) > MaxNoteSize-offset {
		return 0, ErrNoteTooLarge
	}

	current := m.data[ctx.PID]
	next := make([]byte, offset+uint64(len(p)))
	copy(next, current[:min(uint64(len(current)), offset)])
	copy(next[offset:], p)
	m.data[ctx.PID] = next
	return len(p), nil
}

// Notify drops every note on a total refresh, and a process's note when it
// terminates. Process event payloads carry the decimal PID.
func (m *notes) Notify(event plugins.Event, payload []byte) {
	switch event {
	case plugins.EventTotalRefresh:
		clear(m.data)
	case plugins.EventProcessTerminate:
		pid, err := strconv.ParseUint(string(payload), 10, 32)
		if err != nil {
			return
		}
		delete(m.data, uint32(pid))
	}
}

func (m *notes) Close() {
	clear(m.data)
}
