package luahost

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// Script is one Lua module. Its state is not safe for concurrent use; calls
// arrive serialized by the file system lock.
type Script struct {
	L     *lua.LState
	name  string
	scope plugins.Scope
	log   *logrus.Logger

	list, read, write, notify, close *lua.LFunction
}

// Name returns the module name the script registers under
func (s *Script) Name() string { return s.name }

// Handlers returns the capability set matching the functions the script
// defines. Close is always present so the state is released on teardown.
func (s *Script) Handlers() plugins.Handlers {
	h := plugins.Handlers{
		List:  s.List,
		Close: s.Close,
	}
	if s.read != nil {
		h.Read = s.Read
	}
	if s.write != nil {
		h.Write = s.Write
	}
	if s.notify != nil {
		h.Notify = s.Notify
	}
	return h
}

// List calls list(ctx). Entries are file names or tables of
// {name, size, dir}.
func (s *Script) List(ctx *plugins.RequestContext, files plugins.FileList) error {
	ret, err := s.call(s.list, 2, s.context(ctx))
	if err != nil {
		return err
	}

	tbl, ok := ret[0].(*lua.LTable)
	if !ok {
		return s.failure(ret, "list must return a table")
	}
	for i := 1; i <= tbl.Len(); i++ {
		switch entry := tbl.RawGetInt(i).(type) {
		case lua.LString:
			files.AddFile(string(entry), 0)
		case *lua.LTable:
			name := lua.LVAsString(entry.RawGetString("name"))
			if name == "" {
				continue
			}
			if lua.LVAsBool(entry.RawGetString("dir")) {
				files.AddDirectory(name)
				continue
			}
			files.AddFile(name, uint64(lua.LVAsNumber(entry.RawGetString("size"))))
		}
	}
	return nil
}

// Read calls read(ctx) and serves p from the returned content at offset
func (s *Script) Read(ctx *plugins.RequestContext, p []byte, offset uint64) (int, error) {
	ret, err := s.call(s.read, 2, s.context(ctx))
	if err != nil {
		return 0, err
	}

	content, ok := ret[0].(lua.LString)
	if !ok {
		return 0, s.failure(ret, "read must return a string")
	}
	if offset >= uint64(len(content)) {
		return 0, io.EOF
	}
	return copy(p, content[offset:]), nil
}

// Write calls write(ctx, data, offset). A missing count means all of p was
// written; a count outside [0, len(p)] is an error.
func (s *Script) Write(ctx *plugins.RequestContext, p []byte, offset uint64) (int, error) {
	ret, err := s.call(s.write, 2, s.context(ctx), lua.LString(p), lua.LNumber(offset))
	if err != nil {
		return 0, err
	}

	switch n := ret[0].(type) {
	case lua.LNumber:
		if n < 0 || int(n) > len(p) {
			return 0, fmt.Errorf("%w: %w: %s write returned %v for %d bytes", ErrScript, plugins.ErrBadCount, s.name, n, len(p))
		}
		return int(n), nil
	case *lua.LNilType:
		if ret[1] != lua.LNil {
			return 0, s.failure(ret, "")
		}
	}
	return len(p), nil
}

// Notify calls notify(event, name, payload)
func (s *Script) Notify(event plugins.Event, payload []byte) {
	if _, err := s.call(s.notify, 0, lua.LNumber(event), lua.LString(event.String()), lua.LString(payload)); err != nil {
		s.log.WithError(err).Debugf("Lua notify %s failed", event)
	}
}

// Close calls close() if defined, then releases the Lua state
func (s *Script) Close() {
	if s.close != nil {
		if _, err := s.call(s.close, 0); err != nil {
			s.log.WithError(err).Debug("Lua close failed")
		}
	}
	s.L.Close()
}

func (s *Script) context(ctx *plugins.RequestContext) *lua.LTable {
	t := s.L.NewTable()
	t.RawSetString("module", lua.LString(ctx.Module))
	t.RawSetString("path", lua.LString(ctx.Path))
	t.RawSetString("root", lua.LBool(ctx.Root()))
	if !ctx.Root() {
		t.RawSetString("pid", lua.LNumber(ctx.PID))
	}
	return t
}

// call invokes fn in protected mode and returns exactly nret results
func (s *Script) call(fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	if err := s.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScript, s.name, err)
	}
	ret := make([]lua.LValue, nret)
	for i := nret - 1; i >= 0; i-- {
		ret[i] = s.L.Get(-1)
		s.L.Pop(1)
	}
	return ret, nil
}

// failure turns a (nil, message) return into an error
func (s *Script) failure(ret []lua.LValue, fallback string) error {
	if len(ret) > 1 {
		if msg, ok := ret[1].(lua.LString); ok {
			return fmt.Errorf("%w: %s: %s", ErrScript, s.name, msg)
		}
	}
	if fallback == "" {
		fallback = "handler failed"
	}
	return fmt.Errorf("%w: %s: %s", ErrScript, s.name, fallback)
}
