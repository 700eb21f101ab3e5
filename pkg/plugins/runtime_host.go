package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// RuntimeHostConfig locates the runtime host and the interpreter it embeds
type RuntimeHostConfig struct {
	Enabled bool

	// Dir is a user configured interpreter directory, tried first
	Dir string

	// Subdir is the interpreter directory next to the executable
	Subdir string

	// Versions lists supported interpreter libraries in priority order
	Versions []string

	// Secondary is a dependency library loaded from the interpreter directory
	Secondary string

	// Host is the runtime host library
	Host string
}

// DefaultRuntimeHostConfig returns the stock runtime host layout
func DefaultRuntimeHostConfig() RuntimeHostConfig {
	return RuntimeHostConfig{
		Enabled:   true,
		Subdir:    "runtime",
		Versions:  []string{"lua54.so", "lua53.so", "lua51.so"},
		Secondary: "lualib.so",
		Host:      "procvfs-luahost.so",
	}
}

// RuntimeDir returns the resolved interpreter directory, if any
func (l *Loader) RuntimeDir() string {
	return l.runtime.Dir
}

// RuntimeHostLoaded reports whether the runtime host survived bootstrap
func (l *Loader) RuntimeHostLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runtimeLoaded
}

// loadRuntimeHost bootstraps the runtime host. Every failure is logged and
// leaves the rest of initialization untouched.
func (l *Loader) loadRuntimeHost(ctx context.Context) {
	_, span := l.tracer.Start(ctx, "plugins.loadRuntimeHost")
	defer span.End()

	interp, dir, err := l.locateInterpreter()
	if err != nil {
		l.log.Warnf("Runtime host initialization failed: %v", err)
		span.SetAttributes(attribute.Bool("loaded", false))
		return
	}
	span.SetAttributes(attribute.String("interpreter", interp.Path()))

	if dir != l.runtime.Dir {
		l.runtime.Dir = dir
		if l.onRuntime != nil {
			if err := l.onRuntime(dir); err != nil {
				l.log.WithError(err).Warn("Failed to persist runtime directory")
			}
		}
	}

	var secondary Library
	if l.runtime.Secondary != "" {
		secondary, err = l.opener.Open(filepath.Join(filepath.Dir(interp.Path()), l.runtime.Secondary))
		if err != nil {
			l.log.Debugf("Runtime secondary library not loaded: %v", err)
			secondary = nil
		}
	}

	host, err := l.opener.Open(l.runtime.Host)
	if err != nil {
		l.log.Warnf("Runtime host failed to load: %v", err)
		l.rollback(nil, interp, secondary)
		return
	}

	entry, err := entryPoint(host)
	if err != nil {
		l.log.Warnf("Runtime host failed to load due to corrupt library: %v", err)
		l.rollback(host, interp, secondary)
		return
	}

	d := l.descriptor(host)
	d.Runtime = &RuntimeBinding{Interpreter: interp, Secondary: secondary}
	if err := l.callEntry(host.Path(), entry, d); err != nil {
		l.log.WithError(err).Warn("Runtime host entry point failed")
	}

	if !l.registry.ModuleExists(host, "") {
		l.log.Warnf("Runtime host failed to load: %v", &RegistrationVerificationError{Path: host.Path()})
		l.rollback(host, interp, secondary)
		return
	}

	l.unload(interp)
	if secondary != nil {
		l.retained = append(l.retained, secondary)
	}
	l.runtimeLoaded = true
	span.SetAttributes(attribute.Bool("loaded", true))
	l.log.Infof("Runtime host loaded from %s", host.Path())
}

// locateInterpreter probes the configured directory, the directory next to
// the executable, then the default search path
func (l *Loader) locateInterpreter() (Library, string, error) {
	if len(l.runtime.Versions) == 0 {
		return nil, "", fmt.Errorf("no interpreter versions configured")
	}

	if l.runtime.Dir != "" {
		if lib := l.probe(l.runtime.Dir); lib != nil {
			return lib, l.runtime.Dir, nil
		}
		l.log.Warnf("No supported interpreter found in configured directory %s", l.runtime.Dir)
		l.runtime.Dir = ""
	}

	if l.exeDir != "" && l.runtime.Subdir != "" {
		dir := filepath.Join(l.exeDir, l.runtime.Subdir)
		if lib := l.probe(dir); lib != nil {
			return lib, dir, nil
		}
	}

	for _, version := range l.runtime.Versions {
		if lib, err := l.opener.Open(version); err == nil {
			return lib, filepath.Dir(lib.Path()), nil
		}
	}

	return nil, "", fmt.Errorf("no supported interpreter found (%s)", strings.Join(l.runtime.Versions, ", "))
}

func (l *Loader) probe(dir string) Library {
	for _, version := range l.runtime.Versions {
		lib, err := l.opener.Open(filepath.Join(dir, version))
		if err == nil {
			return lib
		}
		l.log.Debugf("Interpreter %s not loaded: %v", version, err)
	}
	return nil
}

func (l *Loader) rollback(libs ...Library) {
	for _, lib := range libs {
		l.unload(lib)
	}
}
