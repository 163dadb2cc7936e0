package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/transport"
	"github.com/gpt-vpn-tgbot-go/internal/transport/transporttest"
	"github.com/gpt-vpn-tgbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSink(tr transport.Transport, opts SinkOptions) (*Sink, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := NewSink(tr, 100, opts, nil, logger.Discard())
	s.now = clock.Now
	return s, clock
}

func TestSink_StartSendsPlaceholder(t *testing.T) {
	rec := transporttest.New()
	s, _ := newTestSink(rec, DefaultSinkOptions)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"."}, rec.SentTo(100))
	assert.Equal(t, ".", rec.Text(s.Ref()))
}

func TestSink_UpdateThrottling(t *testing.T) {
	ctx := context.Background()
	rec := transporttest.New()
	s, clock := newTestSink(rec, DefaultSinkOptions)
	require.NoError(t, s.Start(ctx))

	long := strings.Repeat("a", 41)

	// too short
	clock.Advance(10 * time.Second)
	assert.False(t, s.Update(ctx, strings.Repeat("a", 40)))

	// long enough and the interval passed
	assert.True(t, s.Update(ctx, long))
	assert.Equal(t, long+"...", rec.Text(s.Ref()))

	// interval not yet passed
	clock.Advance(3 * time.Second)
	assert.False(t, s.Update(ctx, long+"b"))

	// identical text is never re-sent
	clock.Advance(5 * time.Second)
	assert.False(t, s.Update(ctx, long))

	assert.True(t, s.Update(ctx, long+"b"))
	assert.Equal(t, []string{long + "...", long + "b..."}, rec.EditTexts())
}

func TestSink_UpdateCountsRunes(t *testing.T) {
	ctx := context.Background()
	rec := transporttest.New()
	s, clock := newTestSink(rec, DefaultSinkOptions)
	require.NoError(t, s.Start(ctx))
	clock.Advance(5 * time.Second)

	// 40 Cyrillic letters are 80 bytes but still not long enough
	assert.False(t, s.Update(ctx, strings.Repeat("я", 40)))
	assert.True(t, s.Update(ctx, strings.Repeat("я", 41)))
}

func TestSink_FinishDedupes(t *testing.T) {
	ctx := context.Background()
	rec := transporttest.New()
	s, _ := newTestSink(rec, SinkOptions{MinChars: 40, MinInterval: 4 * time.Second, Markdown: true})
	require.NoError(t, s.Start(ctx))

	s.Finish(ctx, "answer")
	s.Finish(ctx, "answer")
	require.Len(t, rec.Edits, 1)
	assert.True(t, rec.Edits[0].Formatted)
	assert.Equal(t, "answer", rec.Edits[0].Text)
}

func TestSink_EditFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	rec := transporttest.New()
	s, clock := newTestSink(rec, DefaultSinkOptions)
	require.NoError(t, s.Start(ctx))
	clock.Advance(5 * time.Second)

	rec.EditErr = errors.New("network down")
	long := strings.Repeat("b", 50)
	assert.False(t, s.Update(ctx, long))

	rec.EditErr = nil
	assert.True(t, s.Update(ctx, long))
}

func TestSink_NotModifiedIsSilentSuccess(t *testing.T) {
	ctx := context.Background()
	rec := transporttest.New()
	s, _ := newTestSink(rec, DefaultSinkOptions)
	require.NoError(t, s.Start(ctx))

	rec.EditErr = transport.ErrNotModified
	s.Replace(ctx, "notice")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, "notice", s.lastEmitted)
	assert.True(t, s.contentShown)
}

func TestSink_AnimateCyclesFramesAndStops(t *testing.T) {
	ctx := context.Background()
	rec := transporttest.New()
	s, _ := newTestSink(rec, SinkOptions{MinChars: 40, FrameInterval: 5 * time.Millisecond})
	require.NoError(t, s.Start(ctx))

	stop := s.Animate(ctx)
	require.Eventually(t, func() bool { return len(rec.EditTexts()) >= 3 }, time.Second, time.Millisecond)
	stop()
	stop()

	edits := rec.EditTexts()
	assert.Equal(t, []string{"..", "...", ".."}, edits[:3])

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, len(edits), len(rec.EditTexts()), "no edits after stop")
}

func TestSink_AnimateYieldsToContent(t *testing.T) {
	ctx := context.Background()
	rec := transporttest.New()
	s, _ := newTestSink(rec, SinkOptions{MinChars: 40, FrameInterval: 5 * time.Millisecond})
	require.NoError(t, s.Start(ctx))

	stop := s.Animate(ctx)
	defer stop()
	s.Replace(ctx, "real content")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, "real content", rec.Text(s.Ref()))
}

func TestSink_FramesDoNotDelayContent(t *testing.T) {
	ctx := context.Background()
	rec := transporttest.New()
	s, clock := newTestSink(rec, SinkOptions{MinChars: 40, MinInterval: 4 * time.Second, FrameInterval: 5 * time.Millisecond})
	require.NoError(t, s.Start(ctx))

	stop := s.Animate(ctx)
	defer stop()
	require.Eventually(t, func() bool { return len(rec.EditTexts()) >= 2 }, time.Second, time.Millisecond)

	long := strings.Repeat("a", 41)
	assert.False(t, s.Update(ctx, long), "interval since the placeholder not yet passed")

	clock.Advance(4 * time.Second)
	assert.True(t, s.Update(ctx, long))
	assert.Equal(t, long+"...", rec.Text(s.Ref()))

	// the animator gives way once content is visible
	n := len(rec.EditTexts())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(rec.EditTexts()))
}
