// Command procvfs-lua51 is the Lua 5.1 interpreter library loaded ahead of
// the runtime host. Build it into the runtime directory next to procvfs:
//
//	go build -buildmode=plugin -o runtime/lua51.so ./cmd/procvfs-lua51
package main

import (
	lua "github.com/yuin/gopher-lua"
)

// OpenLibs opens the standard libraries on a new state
func OpenLibs(L *lua.LState) {
	L.OpenLibs()
}

func main() {}
