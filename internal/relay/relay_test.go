package relay

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/history"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/services/ai"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	"github.com/gpt-vpn-tgbot-go/internal/transport/transporttest"
	"github.com/gpt-vpn-tgbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	mu      sync.Mutex
	deltas  []string
	err     error
	delay   time.Duration
	payload ai.Payload
	// before runs ahead of delta i
	before func(i int)
}

func (f *fakeStreamer) Stream(ctx context.Context, payload ai.Payload) iter.Seq2[string, error] {
	f.mu.Lock()
	f.payload = payload
	f.mu.Unlock()

	return func(yield func(string, error) bool) {
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
		for i, d := range f.deltas {
			if f.before != nil {
				f.before(i)
			}
			if !yield(d, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

var testNotices = Notices{Timeout: "timed out", Failure: "failed", Empty: "empty"}

func newTestRelay(s Streamer, tr transport.Transport, h *history.Manager) *Relay {
	return New(s, tr, h, Options{
		Sink:    SinkOptions{MinChars: 40, MinInterval: 4 * time.Second, FrameInterval: 5 * time.Millisecond},
		Payload: ai.PayloadOptions{Model: "test-model"},
		Notices: testNotices,
	}, nil, logger.Discard())
}

func finalText(t *testing.T, rec *transporttest.Recorder, chatID int64) string {
	t.Helper()
	require.NotEmpty(t, rec.SentTo(chatID))
	return rec.Text(transport.MessageRef{ChatID: chatID, MessageID: 1})
}

func TestRelay_Success(t *testing.T) {
	rec := transporttest.New()
	h := history.NewManager(10)
	r := newTestRelay(&fakeStreamer{deltas: []string{"Hello, ", "world"}}, rec, h)

	res := r.Handle(context.Background(), Request{UserID: 1, ChatID: 10, Prompt: "hi"})

	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, "Hello, world", res.Text)
	assert.Equal(t, "Hello, world", finalText(t, rec, 10))
	assert.Equal(t, []models.Turn{models.UserTurn("hi", ""), models.AssistantTurn("Hello, world")}, h.Get(1))
}

func TestRelay_TimeoutKeepsPartialInHistory(t *testing.T) {
	rec := transporttest.New()
	h := history.NewManager(10)
	r := newTestRelay(&fakeStreamer{deltas: []string{"partial"}, err: ai.ErrTimeout}, rec, h)

	res := r.Handle(context.Background(), Request{UserID: 1, ChatID: 10, Prompt: "hi"})

	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Equal(t, "timed out", finalText(t, rec, 10))

	edits := len(rec.EditTexts())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, edits, len(rec.EditTexts()), "no edits after return")

	turns := h.Get(1)
	require.Len(t, turns, 2)
	assert.Equal(t, models.AssistantTurn("partial"), turns[1])
}

func TestRelay_UpstreamErrorWithoutContent(t *testing.T) {
	rec := transporttest.New()
	h := history.NewManager(10)
	r := newTestRelay(&fakeStreamer{err: &ai.UpstreamError{Status: 500, Message: "boom"}}, rec, h)

	res := r.Handle(context.Background(), Request{UserID: 1, ChatID: 10, Prompt: "hi"})

	assert.Equal(t, OutcomeError, res.Outcome)
	var upstream *ai.UpstreamError
	assert.True(t, errors.As(res.Err, &upstream))
	assert.Equal(t, "failed", finalText(t, rec, 10))
	assert.Len(t, h.Get(1), 1)
}

func TestRelay_EmptyAnswer(t *testing.T) {
	rec := transporttest.New()
	h := history.NewManager(10)
	r := newTestRelay(&fakeStreamer{}, rec, h)

	res := r.Handle(context.Background(), Request{UserID: 1, ChatID: 10, Prompt: "hi"})

	assert.Equal(t, OutcomeEmpty, res.Outcome)
	assert.Equal(t, "empty", finalText(t, rec, 10))
	assert.Len(t, h.Get(1), 1)
}

func TestRelay_CancelledStillConverges(t *testing.T) {
	rec := transporttest.New()
	h := history.NewManager(10)
	r := newTestRelay(&fakeStreamer{delay: time.Minute}, rec, h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := r.Handle(ctx, Request{UserID: 1, ChatID: 10, Prompt: "hi"})

	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, "failed", finalText(t, rec, 10))
}

func TestRelay_AnimatorStoppedBeforeReturn(t *testing.T) {
	rec := transporttest.New()
	h := history.NewManager(10)
	r := newTestRelay(&fakeStreamer{delay: 40 * time.Millisecond, deltas: []string{"done"}}, rec, h)

	r.Handle(context.Background(), Request{UserID: 1, ChatID: 10, Prompt: "hi"})

	edits := rec.EditTexts()
	require.NotEmpty(t, edits)
	assert.Contains(t, edits, "..", "idle frames were shown")
	assert.Equal(t, "done", edits[len(edits)-1])

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, len(edits), len(rec.EditTexts()))
	assert.Equal(t, "done", finalText(t, rec, 10))
}

func TestRelay_ProgressiveEditWhileAnimating(t *testing.T) {
	rec := transporttest.New()
	h := history.NewManager(10)
	clock := &fakeClock{now: time.Unix(1700000000, 0)}

	head := strings.Repeat("a", 45)
	streamer := &fakeStreamer{
		deltas: []string{head, "b", "c"},
		before: func(i int) {
			if i == 1 {
				// let the animator run a few frames, then pass the edit interval
				time.Sleep(30 * time.Millisecond)
				clock.Advance(5 * time.Second)
			}
		},
	}
	r := newTestRelay(streamer, rec, h)
	r.now = clock.Now

	res := r.Handle(context.Background(), Request{UserID: 1, ChatID: 10, Prompt: "hi"})
	require.Equal(t, OutcomeOK, res.Outcome)

	edits := rec.EditTexts()
	assert.Contains(t, edits, "..", "idle frames were shown")
	assert.Contains(t, edits, head+"b...", "partial answer shown before the stream ended")
	// the third delta arrives inside the interval and only shows up in the final edit
	assert.NotContains(t, edits, head+"bc...")
	assert.Equal(t, head+"bc", edits[len(edits)-1])
}

func TestRelay_PayloadCarriesBoundedHistoryAndImage(t *testing.T) {
	rec := transporttest.New()
	h := history.NewManager(3)
	h.Append(1, models.UserTurn("q1", ""))
	h.Append(1, models.AssistantTurn("a1"))
	h.Append(1, models.UserTurn("q2", ""))
	streamer := &fakeStreamer{deltas: []string{"ok"}}
	r := newTestRelay(streamer, rec, h)

	r.Handle(context.Background(), Request{UserID: 1, ChatID: 10, Prompt: "what?", ImageURL: "https://img/1.jpg"})

	msgs := streamer.payload.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "a1", msgs[0].Content)
	parts, ok := msgs[2].Content.([]ai.ContentPart)
	require.True(t, ok)
	assert.Equal(t, "https://img/1.jpg", parts[1].ImageURL.URL)
	assert.Equal(t, "test-model", streamer.payload.Model)
}

func TestRelay_PlaceholderFailure(t *testing.T) {
	rec := transporttest.New()
	rec.FailSendTo = map[int64]bool{10: true}
	h := history.NewManager(10)
	r := newTestRelay(&fakeStreamer{deltas: []string{"x"}}, rec, h)

	res := r.Handle(context.Background(), Request{UserID: 1, ChatID: 10, Prompt: "hi"})
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Error(t, res.Err)
}
