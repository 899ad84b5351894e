package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "PGWDash/internal/log"
	"PGWDash/internal/pgwapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTransitions(t *testing.T) {
	tests := []struct {
		name      string
		fn        Func
		wantState State
		wantErr   bool
		wantMsg   string
	}{
		{
			name:      "成功",
			fn:        func(ctx context.Context) (interface{}, error) { return 3, nil },
			wantState: StateSucceeded,
		},
		{
			name:      "校验失败",
			fn:        func(ctx context.Context) (interface{}, error) { return nil, &pgwapi.APIError{Status: 400, Message: "Invalid port"} },
			wantState: StateFailed,
			wantErr:   true,
			wantMsg:   "Invalid port",
		},
		{
			name:      "登录失效回到空闲",
			fn:        func(ctx context.Context) (interface{}, error) { return nil, &pgwapi.APIError{Status: 401, Message: "expired"} },
			wantState: StateIdle,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New("test")
			assert.Equal(t, StateIdle, w.State())

			_, err := w.Run(context.Background(), tt.fn)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.wantState, w.State())

			snap := w.Snapshot()
			assert.Equal(t, tt.wantMsg, snap.Error)
			assert.Equal(t, 1, snap.Runs)
		})
	}
}

func TestFailedKeepsResult(t *testing.T) {
	w := New("bulk")
	_, err := w.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "partial", errors.New("1 failed")
	})
	require.Error(t, err)
	assert.Equal(t, StateFailed, w.State())
	assert.Equal(t, "partial", w.Result())
}

func TestRunRejectsConcurrentInvocation(t *testing.T) {
	w := New("slow")
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = w.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()

	<-started
	assert.Equal(t, StateInFlight, w.State())
	_, err := w.Run(context.Background(), func(ctx context.Context) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	wg.Wait()
	assert.Equal(t, StateSucceeded, w.State())

	// 结束后可以再次调用
	_, err = w.Run(context.Background(), func(ctx context.Context) (interface{}, error) { return nil, errors.New("x") })
	assert.Error(t, err)
	assert.Equal(t, StateFailed, w.State())
	assert.Equal(t, 2, w.Snapshot().Runs)
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(0)
	var states []State
	r.AddListener(func(s Snapshot) { states = append(states, s.State) })

	w, err := r.Start(context.Background(), "server.create", func(ctx context.Context) (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, []State{StateInFlight, StateSucceeded}, states)

	got, ok := r.Get(w.ID())
	require.True(t, ok)
	assert.Same(t, w, got)
}

func TestRegistryPrunesFinished(t *testing.T) {
	r := NewRegistry(2)
	first := r.New("a")
	r.New("b")
	r.New("c")

	_, ok := r.Get(first.ID())
	assert.False(t, ok)
}

func TestJournalListener(t *testing.T) {
	ol := log.NewOperationLogger(t.TempDir(), 1)
	defer ol.Close()

	r := NewRegistry(0)
	r.AddListener(JournalListener(ol))
	_, _ = r.Start(context.Background(), "proxy.delete", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("Proxy not found")
	})

	require.Eventually(t, func() bool {
		entries, err := ol.ReadRecentLogs("proxy.delete", 1, 10)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 20*time.Millisecond)

	entries, _ := ol.ReadRecentLogs("proxy.delete", 1, 10)
	assert.Contains(t, entries[0].Content, "failed: Proxy not found")
}
