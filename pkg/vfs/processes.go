package vfs

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// HostProcesses reads processes of the running host. Snapshots are cached
// by PID until Purge.
type HostProcesses struct {
	cache *lru.Cache[uint32, *plugins.Process]
}

// NewHostProcesses creates a source caching up to size snapshots
func NewHostProcesses(size int) (*HostProcesses, error) {
	cache, err := lru.New[uint32, *plugins.Process](size)
	if err != nil {
		return nil, fmt.Errorf("creating process cache: %w", err)
	}
	return &HostProcesses{cache: cache}, nil
}

// Lookup returns the snapshot of pid
func (h *HostProcesses) Lookup(ctx context.Context, pid uint32) (*plugins.Process, error) {
	if proc, ok := h.cache.Get(pid); ok {
		return proc, nil
	}

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrNoProcess, pid)
	}

	proc := snapshot(ctx, p)
	h.cache.Add(pid, proc)
	return proc, nil
}

// snapshot copies what is readable; fields the caller may not access stay
// empty
func snapshot(ctx context.Context, p *process.Process) *plugins.Process {
	proc := &plugins.Process{PID: uint32(p.Pid)}
	if ppid, err := p.PpidWithContext(ctx); err == nil {
		proc.PPID = uint32(ppid)
	}
	if name, err := p.NameWithContext(ctx); err == nil {
		proc.Name = name
	}
	if exe, err := p.ExeWithContext(ctx); err == nil {
		proc.Exe = exe
	}
	if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
		proc.Cmdline = cmdline
	}
	if user, err := p.UsernameWithContext(ctx); err == nil {
		proc.Username = user
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		proc.CreateTime = time.UnixMilli(created)
	}
	return proc
}

// PIDs lists the running processes
func (h *HostProcesses) PIDs(ctx context.Context) ([]uint32, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(pids))
	for _, pid := range pids {
		if pid >= 0 {
			out = append(out, uint32(pid))
		}
	}
	return out, nil
}

// Purge drops every cached snapshot
func (h *HostProcesses) Purge() {
	h.cache.Purge()
}

// Cached returns the number of cached snapshots
func (h *HostProcesses) Cached() int {
	return h.cache.Len()
}
