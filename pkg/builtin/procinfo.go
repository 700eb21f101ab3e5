package builtin

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// ErrNoProcess is returned when procinfo is asked about a process it was not
// given
var ErrNoProcess = errors.New("process state unavailable")

type procInfo struct {
	files fileSet
}

// ProcInfo is the initializer of the procinfo module
func ProcInfo(d *plugins.Descriptor) {
	m := &procInfo{}
	m.files = fileSet{
		{name: "status", content: m.status},
		{name: "cmdline", content: m.cmdline},
		{name: "exe", content: m.exe},
	}

	d.Name = "procinfo"
	d.Scope = plugins.Scope{Process: true}
	d.Handlers = plugins.HandlersFor(m)
	_ = d.Register(d)
}

func (m *procInfo) List(ctx *plugins.RequestContext, files plugins.FileList) error {
	if _, ok := ctx.Process(); !ok {
		return ErrNoProcess
	}
	return m.files.list(ctx, files)
}

func (m *procInfo) Read(ctx *plugins.RequestContext, p []byte, offset uint64) (int, error) {
	return m.files.read(ctx, p, offset)
}

func process(ctx *plugins.RequestContext) (*plugins.Process, error) {
	proc, ok := ctx.Process()
	if !ok {
		return nil, fmt.Errorf("pid %d: %w", ctx.PID, ErrNoProcess)
	}
	return proc, nil
}

func (m *procInfo) status(ctx *plugins.RequestContext) ([]byte, error) {
	proc, err := process(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Name:\t%s\n", proc.Name)
	fmt.Fprintf(&buf, "Pid:\t%d\n", proc.PID)
	fmt.Fprintf(&buf, "PPid:\t%d\n", proc.PPID)
	fmt.Fprintf(&buf, "User:\t%s\n", proc.Username)
	if !proc.CreateTime.IsZero() {
		fmt.Fprintf(&buf, "Started:\t%s\n", proc.CreateTime.UTC().Format(time.RFC3339))
	}
	return buf.Bytes(), nil
}

func (m *procInfo) cmdline(ctx *plugins.RequestContext) ([]byte, error) {
	proc, err := process(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(proc.Cmdline + "\n"), nil
}

func (m *procInfo) exe(ctx *plugins.RequestContext) ([]byte, error) {
	proc, err := process(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(proc.Exe + "\n"), nil
}
