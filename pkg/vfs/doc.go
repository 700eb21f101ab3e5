// Package vfs is the file system surface over the module dispatcher.
//
// Paths map onto modules as follows:
//
//	/                          root modules, plus pid
//	/<module>/<path>           root namespace module
//	/pid                       one directory per process
//	/pid/<n>                   process namespace modules
//	/pid/<n>/<module>/<path>   process namespace module for process n
//
// FS holds the single coarse lock the registry and dispatcher rely on. Every
// dispatch, broadcast and refresh runs under it.
//
// The HTTP front end exposes the tree for procvfs serve:
//
//	GET  /modules              registered modules (JSON)
//	GET  /ls/<path>            directory listing (JSON)
//	GET  /fs/<path>?offset=n   file content
//	PUT  /fs/<path>?offset=n   write request body
//	POST /refresh              purge caches and broadcast a total refresh
package vfs
