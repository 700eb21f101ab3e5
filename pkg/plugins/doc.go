// Package plugins provides the module registry, dispatcher and loader behind
// the procvfs virtual file system.
//
// # Overview
//
// Modules contribute subtrees of the virtual hierarchy, either at the root
// (/<module>/...) or under every process (/pid/<n>/<module>/...). Each module
// registers a capability set of handlers; List is mandatory, Read, Write,
// Notify and Close are optional.
//
// # Components
//
// Descriptor: versioned value a module submits to register itself
// Registry: ordered set of ModuleRecords, most recent first
// Dispatcher: routes ListAll, List, Read, Write and Notify to modules
// Loader: registers built-ins, native plugins and the runtime host
//
// # Trust
//
// Built-in modules receive the internal Process state through
// RequestContext.Process. Modules loaded from a library only see the PID and
// path.
//
// # Writing a native module
//
// A native module is a Go plugin named m_<name>.so in the plugin directory
// that exports InitializeModule:
//
//	func InitializeModule(d *plugins.Descriptor) {
//		d.Name = "hello"
//		d.Scope = plugins.Scope{Root: true}
//		d.Handlers = plugins.HandlersFor(&hello{})
//		_ = d.Register(d)
//	}
//
// # Usage Example
//
//	registry := plugins.NewRegistry()
//	loader := plugins.NewLoader(registry, plugins.WithBuiltins(builtin.Modules(registry)...))
//	if err := loader.Initialize(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer loader.Close()
//
//	dispatcher := plugins.NewDispatcher(registry)
//	var entries plugins.Entries
//	err := dispatcher.List(nil, "sysinfo", "", &entries)
//
// # Concurrency
//
// Registry and Dispatcher do no locking. Callers hold one coarse lock around
// every dispatch and mutation (see pkg/vfs).
package plugins
