package plugins

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/sirupsen/logrus"
)

// fakeLibrary implements Library for tests
type fakeLibrary struct {
	path    string
	symbols map[string]any
	closes  int
}

func newFakeLibrary(path string, entry EntryFunc) *fakeLibrary {
	lib := &fakeLibrary{path: path, symbols: map[string]any{}}
	if entry != nil {
		lib.symbols[EntrySymbol] = func(d *Descriptor) { entry(d) }
	}
	return lib
}

func (f *fakeLibrary) Path() string { return f.path }

func (f *fakeLibrary) Lookup(symbol string) (any, error) {
	sym, ok := f.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}
	return sym, nil
}

func (f *fakeLibrary) Close() error {
	f.closes++
	return nil
}

// fakeOpener serves fakeLibraries by path
type fakeOpener struct {
	libs   map[string]*fakeLibrary
	opened []string
}

func newFakeOpener(libs ...*fakeLibrary) *fakeOpener {
	o := &fakeOpener{libs: map[string]*fakeLibrary{}}
	for _, lib := range libs {
		o.libs[lib.path] = lib
	}
	return o
}

func (o *fakeOpener) Open(path string) (Library, error) {
	o.opened = append(o.opened, path)
	lib, ok := o.libs[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	return lib, nil
}

// testModule records handler invocations
type testModule struct {
	lists    int
	reads    int
	writes   int
	notifies int
	closes   int
	lastCtx  *RequestContext
	content  []byte
	onClose  func()
}

func (m *testModule) List(ctx *RequestContext, files FileList) error {
	m.lists++
	m.lastCtx = ctx
	files.AddFile("data.txt", uint64(len(m.content)))
	return nil
}

func (m *testModule) Read(ctx *RequestContext, p []byte, offset uint64) (int, error) {
	m.reads++
	m.lastCtx = ctx
	if offset >= uint64(len(m.content)) {
		return 0, io.EOF
	}
	return copy(p, m.content[offset:]), nil
}

func (m *testModule) Write(ctx *RequestContext, p []byte, offset uint64) (int, error) {
	m.writes++
	m.lastCtx = ctx
	m.content = append(m.content[:min(int(offset), len(m.content))], p...)
	return len(p), nil
}

func (m *testModule) Notify(event Event, payload []byte) {
	m.notifies++
}

func (m *testModule) Close() {
	m.closes++
	if m.onClose != nil {
		m.onClose()
	}
}

// listOnly implements only the mandatory handler
type listOnly struct{}

func (listOnly) List(ctx *RequestContext, files FileList) error { return nil }

func descriptorFor(name string, scope Scope, m Lister) *Descriptor {
	d := NewDescriptor()
	d.Name = name
	d.Scope = scope
	d.Handlers = HandlersFor(m)
	return d
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
