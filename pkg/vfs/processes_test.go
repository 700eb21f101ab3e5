package vfs

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostProcesses_Self(t *testing.T) {
	procs, err := NewHostProcesses(8)
	require.NoError(t, err)
	ctx := context.Background()
	self := uint32(os.Getpid())

	proc, err := procs.Lookup(ctx, self)
	require.NoError(t, err)
	assert.Equal(t, self, proc.PID)
	assert.NotEmpty(t, proc.Name)
	assert.Equal(t, 1, procs.Cached())

	again, err := procs.Lookup(ctx, self)
	require.NoError(t, err)
	assert.Same(t, proc, again, "second lookup is served from the cache")

	procs.Purge()
	assert.Equal(t, 0, procs.Cached())

	fresh, err := procs.Lookup(ctx, self)
	require.NoError(t, err)
	assert.NotSame(t, proc, fresh)
}

func TestHostProcesses_PIDs(t *testing.T) {
	procs, err := NewHostProcesses(8)
	require.NoError(t, err)

	pids, err := procs.PIDs(context.Background())
	require.NoError(t, err)
	assert.Contains(t, pids, uint32(os.Getpid()))
}

func TestHostProcesses_Missing(t *testing.T) {
	procs, err := NewHostProcesses(8)
	require.NoError(t, err)

	_, err = procs.Lookup(context.Background(), math.MaxInt32)
	assert.ErrorIs(t, err, ErrNoProcess)
	assert.Equal(t, 0, procs.Cached())
}

func TestNewHostProcesses_InvalidSize(t *testing.T) {
	_, err := NewHostProcesses(0)
	assert.Error(t, err)
}
