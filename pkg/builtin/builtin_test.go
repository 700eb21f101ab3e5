package builtin

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

func setup(t *testing.T) (*plugins.Registry, *plugins.Dispatcher) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	registry := plugins.NewRegistry(plugins.WithRegistryLogger(log))
	loader := plugins.NewLoader(registry,
		plugins.WithBuiltins(Modules(registry)...),
		plugins.WithExecutableDir(t.TempDir()),
		plugins.WithSystemInfo(plugins.SystemInfo{SystemType: "linux", MemoryModel: "lp64"}),
	)
	require.NoError(t, loader.Initialize(context.Background()))
	t.Cleanup(loader.Close)

	return registry, plugins.NewDispatcher(registry)
}

func readAll(t *testing.T, d *plugins.Dispatcher, proc *plugins.Process, module, path string) string {
	t.Helper()
	var out []byte
	buf := make([]byte, 7)
	for {
		n, err := d.Read(proc, module, path, buf, uint64(len(out)))
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return string(out)
		}
		require.NoError(t, err)
	}
}

var testProcess = &plugins.Process{
	PID:        42,
	PPID:       1,
	Name:       "worker",
	Exe:        "/usr/bin/worker",
	Cmdline:    "worker --fast",
	Username:   "svc",
	CreateTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func TestModules_RegistrationOrder(t *testing.T) {
	registry, _ := setup(t)

	var names []string
	for _, info := range registry.Modules() {
		names = append(names, info.Name)
		assert.True(t, info.Builtin)
	}
	assert.Equal(t, []string{"notes", "procinfo", "sysinfo"}, names)
}

func TestSysInfo_List(t *testing.T) {
	_, d := setup(t)

	var files plugins.Entries
	require.NoError(t, d.List(nil, "sysinfo", "", &files))

	for _, name := range []string{"system_type", "memory_model", "modules"} {
		entry, ok := files.Find(name)
		assert.True(t, ok, "missing %s", name)
		assert.False(t, entry.IsDir)
	}
	entry, _ := files.Find("system_type")
	assert.Equal(t, uint64(len("linux\n")), entry.Size)
}

func TestSysInfo_Read(t *testing.T) {
	_, d := setup(t)

	assert.Equal(t, "linux\n", readAll(t, d, nil, "sysinfo", "system_type"))
	assert.Equal(t, "lp64\n", readAll(t, d, nil, "sysinfo", "/memory_model"))

	modules := readAll(t, d, nil, "sysinfo", "modules")
	lines := strings.Split(strings.TrimSpace(modules), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "notes"))
	assert.Contains(t, lines[0], "root+process")
	assert.Contains(t, lines[2], "built-in")
}

func TestSysInfo_Errors(t *testing.T) {
	_, d := setup(t)

	_, err := d.Read(nil, "sysinfo", "missing", make([]byte, 8), 0)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	var files plugins.Entries
	assert.ErrorIs(t, d.List(nil, "sysinfo", "modules", &files), fs.ErrInvalid)

	_, err = d.Write(nil, "sysinfo", "modules", []byte("x"), 0)
	assert.ErrorIs(t, err, plugins.ErrUnsupported)

	err = d.List(testProcess, "sysinfo", "", &files)
	assert.ErrorIs(t, err, plugins.ErrNotFound)
}

func TestProcInfo_Read(t *testing.T) {
	_, d := setup(t)

	status := readAll(t, d, testProcess, "procinfo", "status")
	assert.Contains(t, status, "Name:\tworker\n")
	assert.Contains(t, status, "Pid:\t42\n")
	assert.Contains(t, status, "PPid:\t1\n")
	assert.Contains(t, status, "User:\tsvc\n")
	assert.Contains(t, status, "Started:\t2024-05-01T12:00:00Z\n")

	assert.Equal(t, "worker --fast\n", readAll(t, d, testProcess, "procinfo", "cmdline"))
	assert.Equal(t, "/usr/bin/worker\n", readAll(t, d, testProcess, "PROCINFO", "exe"))
}

func TestProcInfo_List(t *testing.T) {
	_, d := setup(t)

	var files plugins.Entries
	require.NoError(t, d.List(testProcess, "procinfo", "", &files))
	assert.Len(t, files, 3)

	files = nil
	assert.ErrorIs(t, d.List(nil, "procinfo", "", &files), plugins.ErrNotFound)
}

func TestProcInfo_Untrusted(t *testing.T) {
	m := &procInfo{}

	var files plugins.Entries
	err := m.List(&plugins.RequestContext{PID: 42}, &files)
	assert.ErrorIs(t, err, ErrNoProcess)
}

func TestNotes_WriteRead(t *testing.T) {
	_, d := setup(t)

	n, err := d.Write(nil, "notes", "note", []byte("hello world"), 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = d.Write(nil, "notes", "note", []byte("there"), 6)
	require.NoError(t, err)
	assert.Equal(t, "hello there", readAll(t, d, nil, "notes", "note"))

	_, err = d.Write(testProcess, "notes", "note", []byte("x"), 3)
	require.NoError(t, err)
	assert.Equal(t, "\x00\x00\x00x", readAll(t, d, testProcess, "notes", "note"))

	var files plugins.Entries
	require.NoError(t, d.List(nil, "notes", "", &files))
	assert.Equal(t, plugins.Entries{{Name: "note", Size: 11}}, files)
}

func TestNotes_Truncates(t *testing.T) {
	_, d := setup(t)

	_, err := d.Write(nil, "notes", "note", []byte("long content"), 0)
	require.NoError(t, err)
	_, err = d.Write(nil, "notes", "note", []byte("short"), 0)
	require.NoError(t, err)

	assert.Equal(t, "short", readAll(t, d, nil, "notes", "note"))
}

func TestNotes_Errors(t *testing.T) {
	_, d := setup(t)

	_, err := d.Write(nil, "notes", "note", []byte("x"), MaxNoteSize)
	assert.ErrorIs(t, err, ErrNoteTooLarge)

	// offset plus length wraps past zero
	_, err = d.Write(nil, "notes", "note", []byte("ab"), math.MaxUint64-1)
	assert.ErrorIs(t, err, ErrNoteTooLarge)

	_, err = d.Write(nil, "notes", "other", []byte("x"), 0)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = d.Read(nil, "notes", "note", make([]byte, 4), 0)
	assert.ErrorIs(t, err, io.EOF)

	n, err := d.Write(nil, "notes", "note", []byte("x"), MaxNoteSize-1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNotes_Notify(t *testing.T) {
	_, d := setup(t)
	other := &plugins.Process{PID: 7}

	for _, proc := range []*plugins.Process{nil, testProcess, other} {
		_, err := d.Write(proc, "notes", "note", []byte("data"), 0)
		require.NoError(t, err)
	}

	d.Notify(plugins.EventProcessTerminate, []byte("42"))
	assert.Equal(t, "", readAll(t, d, testProcess, "notes", "note"))
	assert.Equal(t, "data", readAll(t, d, other, "notes", "note"))

	d.Notify(plugins.EventProcessTerminate, []byte("not-a-pid"))
	d.Notify(plugins.EventVerbosityChange, nil)
	assert.Equal(t, "data", readAll(t, d, nil, "notes", "note"))

	d.Notify(plugins.EventTotalRefresh, nil)
	assert.Equal(t, "", readAll(t, d, nil, "notes", "note"))
	assert.Equal(t, "", readAll(t, d, other, "notes", "note"))
}
