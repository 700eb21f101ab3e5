// Command procvfs-luahost is the Lua runtime host. Build it with
// -buildmode=plugin and install it on the library search path:
//
//	go build -buildmode=plugin -o procvfs-luahost.so ./cmd/procvfs-luahost
package main

import (
	"github.com/platinummonkey/procvfs/pkg/luahost"
	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// InitializeModule is resolved by the procvfs loader
func InitializeModule(d *plugins.Descriptor) {
	luahost.Initialize(d)
}

func main() {}
