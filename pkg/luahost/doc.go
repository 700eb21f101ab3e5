// Package luahost is the procvfs runtime host. It embeds a Lua interpreter
// and turns every script in <plugin dir>/lua into a module.
//
// # Scripts
//
// A script returns a table describing the module:
//
//	return {
//		name = "greeter",
//		root = true,
//		process = false,
//		list = function(ctx) return { { name = "hello", size = 6 } } end,
//		read = function(ctx) return "hello\n" end,
//		write = function(ctx, data, offset) return #data end,
//		notify = function(event, name, payload) end,
//		close = function() end,
//	}
//
// list is required. ctx carries module, path, root and, in the process
// namespace, pid. read returns the whole file content; the host serves the
// requested offset from it. A handler reports failure by raising an error or
// returning nil and a message.
//
// # Libraries
//
// The interpreter library must export OpenLibs func(*lua.LState), which opens
// the standard libraries on each new state. The optional secondary library
// may export Preload func(*lua.LState) to register extra modules.
package luahost
