package builtin

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

type sysInfo struct {
	system   plugins.SystemInfo
	registry *plugins.Registry
	files    fileSet
}

// SysInfo returns the initializer of the sysinfo module
func SysInfo(registry *plugins.Registry) plugins.EntryFunc {
	return func(d *plugins.Descriptor) {
		m := &sysInfo{system: d.System, registry: registry}
		m.files = fileSet{
			{name: "system_type", content: m.systemType},
			{name: "memory_model", content: m.memoryModel},
			{name: "modules", content: m.modules},
			{name: "host", content: m.host},
		}

		d.Name = "sysinfo"
		d.Scope = plugins.Scope{Root: true}
		d.Handlers = plugins.HandlersFor(m)
		_ = d.Register(d)
	}
}

func (m *sysInfo) List(ctx *plugins.RequestContext, files plugins.FileList) error {
	return m.files.list(ctx, files)
}

func (m *sysInfo) Read(ctx *plugins.RequestContext, p []byte, offset uint64) (int, error) {
	return m.files.read(ctx, p, offset)
}

func (m *sysInfo) systemType(*plugins.RequestContext) ([]byte, error) {
	return []byte(m.system.SystemType + "\n"), nil
}

func (m *sysInfo) memoryModel(*plugins.RequestContext) ([]byte, error) {
	return []byte(m.system.MemoryModel + "\n"), nil
}

// modules renders one line per registered module, most recent first
func (m *sysInfo) modules(*plugins.RequestContext) ([]byte, error) {
	var buf bytes.Buffer
	for _, info := range m.registry.Modules() {
		kind := "built-in"
		if !info.Builtin {
			kind = info.Library
		}
		fmt.Fprintf(&buf, "%-31s %-12s %-28s %s\n", info.Name, info.Scope, info.Capabilities, kind)
	}
	return buf.Bytes(), nil
}

func (m *sysInfo) host(*plugins.RequestContext) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "hostname: %s\n", info.Hostname)
	fmt.Fprintf(&buf, "os: %s\n", info.OS)
	fmt.Fprintf(&buf, "platform: %s %s\n", info.Platform, info.PlatformVersion)
	fmt.Fprintf(&buf, "kernel: %s %s\n", info.KernelVersion, info.KernelArch)
	fmt.Fprintf(&buf, "uptime: %s\n", time.Duration(info.Uptime)*time.Second)
	return buf.Bytes(), nil
}
