package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gpt-vpn-tgbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PerUserOrder(t *testing.T) {
	d := New(context.Background(), nil, logger.Discard())

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, d.Submit(1, func(ctx context.Context) {
			if i == 0 {
				time.Sleep(10 * time.Millisecond)
			}
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, d.Close(context.Background()))
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Zero(t, d.Active())
}

func TestDispatcher_UsersRunConcurrently(t *testing.T) {
	d := New(context.Background(), nil, logger.Discard())

	release := make(chan struct{})
	other := make(chan struct{})
	require.NoError(t, d.Submit(1, func(ctx context.Context) { <-release }))
	require.NoError(t, d.Submit(2, func(ctx context.Context) { close(other) }))

	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("user 2 was blocked behind user 1")
	}
	assert.Eventually(t, func() bool { return d.Active() == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := New(context.Background(), nil, logger.Discard())

	done := make(chan struct{})
	require.NoError(t, d.Submit(1, func(ctx context.Context) { panic("boom") }))
	require.NoError(t, d.Submit(1, func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue stalled after panic")
	}
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_Close(t *testing.T) {
	d := New(context.Background(), nil, logger.Discard())

	block := make(chan struct{})
	require.NoError(t, d.Submit(1, func(ctx context.Context) { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	assert.ErrorIs(t, d.Submit(2, func(ctx context.Context) {}), ErrClosed)

	close(block)
}
