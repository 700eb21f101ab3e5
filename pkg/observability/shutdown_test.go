package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	sm := NewShutdownManager(nil, nil, 0)

	assert.NotNil(t, sm.logger)
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)
	assert.Empty(t, sm.shutdownFuncs)
}

func TestRegisterShutdownFunc(t *testing.T) {
	sm := NewShutdownManager(discardLogger(t), nil, time.Second)

	sm.RegisterShutdownFunc(func(context.Context) error { return nil })
	sm.RegisterShutdownFunc(nil)

	assert.Len(t, sm.shutdownFuncs, 1)
}

func TestShutdown_Functions(t *testing.T) {
	tests := []struct {
		name      string
		funcs     []ShutdownFunc
		wantErrs  int
		wantCalls int32
	}{
		{
			name:      "no functions",
			wantCalls: 0,
		},
		{
			name: "all succeed",
			funcs: []ShutdownFunc{
				func(context.Context) error { return nil },
				func(context.Context) error { return nil },
			},
			wantCalls: 2,
		},
		{
			name: "errors collected",
			funcs: []ShutdownFunc{
				func(context.Context) error { return errors.New("one") },
				func(context.Context) error { return nil },
				func(context.Context) error { return errors.New("two") },
			},
			wantErrs:  2,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewShutdownManager(discardLogger(t), nil, time.Second)
			var calls atomic.Int32
			for _, fn := range tt.funcs {
				sm.RegisterShutdownFunc(func(ctx context.Context) error {
					calls.Add(1)
					return fn(ctx)
				})
			}

			err := sm.Shutdown(context.Background())

			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErrs == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "shutdown completed with 2 errors")
		})
	}
}

func TestShutdown_Timeout(t *testing.T) {
	sm := NewShutdownManager(discardLogger(t), nil, 20*time.Millisecond)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})

	err := sm.Shutdown(context.Background())

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timeout"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdown_HTTPServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()

	sm := NewShutdownManager(discardLogger(t), server, time.Second)
	var ran atomic.Bool
	sm.RegisterShutdownFunc(func(context.Context) error {
		ran.Store(true)
		return nil
	})

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
	assert.True(t, ran.Load())
}

func TestWaitForShutdown_ContextCancel(t *testing.T) {
	sm := NewShutdownManager(discardLogger(t), nil, time.Second)
	var ran atomic.Bool
	sm.RegisterShutdownFunc(func(context.Context) error {
		ran.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, sm.WaitForShutdown(ctx))
	assert.True(t, ran.Load())
}
