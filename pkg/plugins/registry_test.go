package plugins

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.libraries)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		desc    func() *Descriptor
		wantErr bool
		field   string
	}{
		{
			name: "successful registration",
			desc: func() *Descriptor {
				return descriptorFor("proc", Scope{Process: true}, &testModule{})
			},
		},
		{
			name: "31 character name",
			desc: func() *Descriptor {
				return descriptorFor(strings.Repeat("a", 31), Scope{Root: true}, listOnly{})
			},
		},
		{
			name:    "nil descriptor",
			desc:    func() *Descriptor { return nil },
			wantErr: true,
			field:   "descriptor",
		},
		{
			name: "bad magic",
			desc: func() *Descriptor {
				d := descriptorFor("proc", Scope{Root: true}, listOnly{})
				d.Magic = 0
				return d
			},
			wantErr: true,
			field:   "magic",
		},
		{
			name: "version too new",
			desc: func() *Descriptor {
				d := descriptorFor("proc", Scope{Root: true}, listOnly{})
				d.Version = DescriptorVersion + 1
				return d
			},
			wantErr: true,
			field:   "version",
		},
		{
			name: "version too old",
			desc: func() *Descriptor {
				d := descriptorFor("proc", Scope{Root: true}, listOnly{})
				d.Version = MinDescriptorVersion - 1
				return d
			},
			wantErr: true,
			field:   "version",
		},
		{
			name: "empty name",
			desc: func() *Descriptor {
				return descriptorFor("", Scope{Root: true}, listOnly{})
			},
			wantErr: true,
			field:   "name",
		},
		{
			name: "32 character name",
			desc: func() *Descriptor {
				return descriptorFor(strings.Repeat("a", 32), Scope{Root: true}, listOnly{})
			},
			wantErr: true,
			field:   "name",
		},
		{
			name: "missing list handler",
			desc: func() *Descriptor {
				d := descriptorFor("proc", Scope{Root: true}, &testModule{})
				d.Handlers.List = nil
				return d
			},
			wantErr: true,
			field:   "handlers.list",
		},
		{
			name: "no scope",
			desc: func() *Descriptor {
				return descriptorFor("proc", Scope{}, listOnly{})
			},
			wantErr: true,
			field:   "scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry(WithRegistryLogger(quietLogger()))
			err := registry.Register(tt.desc())

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, 1, registry.Len())
				return
			}

			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, registry.Len())
		})
	}
}

func TestRegistry_Register_DuplicateName(t *testing.T) {
	registry := NewRegistry(WithRegistryLogger(quietLogger()))

	require.NoError(t, registry.Register(descriptorFor("Proc", Scope{Process: true}, listOnly{})))

	err := registry.Register(descriptorFor("PROC", Scope{Root: true}, listOnly{}))
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, "Proc", registry.Modules()[0].Name)
}

func TestRegistry_Register_Capacity(t *testing.T) {
	registry := NewRegistry(WithCapacity(2), WithRegistryLogger(quietLogger()))

	require.NoError(t, registry.Register(descriptorFor("a", Scope{Root: true}, listOnly{})))
	require.NoError(t, registry.Register(descriptorFor("b", Scope{Root: true}, listOnly{})))

	err := registry.Register(descriptorFor("c", Scope{Root: true}, listOnly{}))
	assert.ErrorIs(t, err, ErrAllocation)
	assert.Equal(t, 2, registry.Len())
}

func TestRegistry_Modules_MostRecentFirst(t *testing.T) {
	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, registry.Register(descriptorFor(name, Scope{Root: true}, listOnly{})))
	}

	var names []string
	for _, m := range registry.Modules() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"third", "second", "first"}, names)
}

func TestRegistry_ModuleExists(t *testing.T) {
	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	lib := newFakeLibrary("/plugins/m_a.so", nil)
	other := newFakeLibrary("/plugins/m_b.so", nil)

	d := descriptorFor("Alpha", Scope{Root: true}, listOnly{})
	d.Library = lib
	require.NoError(t, registry.Register(d))

	assert.True(t, registry.ModuleExists(lib, ""))
	assert.False(t, registry.ModuleExists(other, ""))
	assert.True(t, registry.ModuleExists(nil, "alpha"))
	assert.False(t, registry.ModuleExists(nil, "beta"))
	assert.False(t, registry.ModuleExists(nil, ""))
	assert.Equal(t, 1, registry.LibraryRefs(lib))
}

func TestRegistry_Close_Empty(t *testing.T) {
	registry := NewRegistry(WithRegistryLogger(quietLogger()))

	assert.NotPanics(t, registry.Close)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_Close_SharedLibrary(t *testing.T) {
	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	lib := newFakeLibrary("/plugins/m_pair.so", nil)

	var order []string
	first := &testModule{onClose: func() { order = append(order, "first") }}
	second := &testModule{onClose: func() {
		order = append(order, "second")
		// the library must still be loaded while any of its modules close
		assert.Equal(t, 0, lib.closes)
	}}

	for _, tc := range []struct {
		name string
		m    *testModule
	}{{"first", first}, {"second", second}} {
		d := descriptorFor(tc.name, Scope{Root: true}, tc.m)
		d.Library = lib
		require.NoError(t, registry.Register(d))
	}
	assert.Equal(t, 2, registry.LibraryRefs(lib))

	registry.Close()

	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, 1, first.closes)
	assert.Equal(t, 1, second.closes)
	assert.Equal(t, 1, lib.closes)
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 0, registry.LibraryRefs(lib))
}

func TestRegistry_Close_UnloadsAfterClose(t *testing.T) {
	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	lib := newFakeLibrary("/plugins/m_solo.so", nil)

	m := &testModule{}
	m.onClose = func() { assert.Equal(t, 0, lib.closes, "library unloaded before close handler") }
	d := descriptorFor("solo", Scope{Root: true}, m)
	d.Library = lib
	require.NoError(t, registry.Register(d))

	registry.Close()

	assert.Equal(t, 1, m.closes)
	assert.Equal(t, 1, lib.closes)
}

func TestRegistry_Close_PanickingModule(t *testing.T) {
	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	lib := newFakeLibrary("/plugins/m_bad.so", nil)

	d := NewDescriptor()
	d.Name = "bad"
	d.Scope = Scope{Root: true}
	d.Handlers = Handlers{
		List:  func(*RequestContext, FileList) error { return nil },
		Close: func() { panic("boom") },
	}
	d.Library = lib
	require.NoError(t, registry.Register(d))

	good := &testModule{}
	require.NoError(t, registry.Register(descriptorFor("good", Scope{Root: true}, good)))

	assert.NotPanics(t, registry.Close)
	assert.Equal(t, 1, good.closes)
	assert.Equal(t, 1, lib.closes)
}
