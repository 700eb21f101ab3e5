// Command procvfs-lualib is the secondary runtime library. It preloads the
// procvfs Lua module:
//
//	local procvfs = require("procvfs")
//	procvfs.version()          -- descriptor version
//	procvfs.basename("/a/b")   -- "b"
//
// Build it into the runtime directory:
//
//	go build -buildmode=plugin -o runtime/lualib.so ./cmd/procvfs-lualib
package main

import (
	"path"

	lua "github.com/yuin/gopher-lua"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

var exports = map[string]lua.LGFunction{
	"version": func(L *lua.LState) int {
		L.Push(lua.LNumber(plugins.DescriptorVersion))
		return 1
	},
	"basename": func(L *lua.LState) int {
		L.Push(lua.LString(path.Base(L.CheckString(1))))
		return 1
	},
}

// Preload registers the procvfs module with a new state
func Preload(L *lua.LState) {
	L.PreloadModule("procvfs", func(L *lua.LState) int {
		L.Push(L.SetFuncs(L.NewTable(), exports))
		return 1
	})
}

func main() {}
