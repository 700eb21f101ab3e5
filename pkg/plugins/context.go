package plugins

// RequestContext is the per-call view of a request handed to a module
// handler. It is built fresh for every call and must not be retained.
type RequestContext struct {
	PID    uint32
	Module string
	Path   string

	process *Process
}

// Process returns the internal process state. It is only available to
// built-in modules; external modules always get false.
func (c *RequestContext) Process() (*Process, bool) {
	return c.process, c.process != nil
}

// Root reports whether the request targets the root namespace
func (c *RequestContext) Root() bool {
	return c.PID == NoPID
}

// newRequestContext builds the context for a call into m. Trust is decided
// here: only records without an owning library see the process state.
func newRequestContext(m *ModuleRecord, proc *Process, path string) *RequestContext {
	ctx := &RequestContext{
		PID:    NoPID,
		Module: m.Name,
		Path:   path,
	}
	if proc != nil {
		ctx.PID = proc.PID
		if m.Builtin() {
			ctx.process = proc
		}
	}
	return ctx
}
