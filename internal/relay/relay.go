// Package relay streams a completion into a single, progressively edited chat message.
package relay

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/history"
	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/services/ai"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	"github.com/gpt-vpn-tgbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Streamer produces content deltas for a payload
type Streamer interface {
	Stream(ctx context.Context, payload ai.Payload) iter.Seq2[string, error]
}

// Outcome classifies how a relay ended
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeEmpty     Outcome = "empty"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Notices are the texts shown in place of an answer
type Notices struct {
	Timeout string
	Failure string
	Empty   string
}

type Options struct {
	Sink    SinkOptions
	Payload ai.PayloadOptions
	Notices Notices
}

// Request is one user prompt. ImageURL is set for photo messages.
type Request struct {
	UserID   int64
	ChatID   int64
	Prompt   string
	ImageURL string
}

type Result struct {
	Outcome  Outcome
	Text     string
	Err      error
	Duration time.Duration
}

// Relay ties history, the completion stream and the message sink together
type Relay struct {
	streamer Streamer
	tr       transport.Transport
	history  *history.Manager
	opts     Options
	metrics  *middleware.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

func New(streamer Streamer, tr transport.Transport, h *history.Manager, opts Options, metrics *middleware.Metrics, logger *logrus.Logger) *Relay {
	return &Relay{
		streamer: streamer,
		tr:       tr,
		history:  h,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle relays one prompt. It always leaves the chat message in a final
// state (answer or notice) and never returns with the animator running.
// Whatever text was received is appended to history, even after a failure.
func (r *Relay) Handle(ctx context.Context, req Request) Result {
	start := time.Now()
	log := logger.WithContext(r.logger, req.ChatID, req.UserID)

	turn := models.UserTurn(req.Prompt, req.ImageURL)
	r.history.Append(req.UserID, turn)
	payload := ai.BuildPayload(r.opts.Payload, r.history.Get(req.UserID), turn)

	sink := NewSink(r.tr, req.ChatID, r.opts.Sink, r.metrics, r.logger)
	sink.now = r.now
	if err := sink.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to send placeholder message")
		return r.finish(Result{Outcome: OutcomeError, Err: err}, start)
	}

	stopAnimation := sink.Animate(ctx)
	defer stopAnimation()

	var buf strings.Builder
	var streamErr error
	for delta, err := range r.streamer.Stream(ctx, payload) {
		if err != nil {
			streamErr = err
			break
		}
		buf.WriteString(delta)
		r.metrics.RecordDelta()
		sink.Update(ctx, buf.String())
	}

	// the animator must not race the final edit
	stopAnimation()

	// the final edit happens even if the request context is gone
	cleanup := context.WithoutCancel(ctx)
	text := buf.String()
	result := Result{Outcome: OutcomeOK, Text: text, Err: streamErr}

	switch {
	case streamErr == nil && text == "":
		result.Outcome = OutcomeEmpty
		sink.Replace(cleanup, r.opts.Notices.Empty)
	case streamErr == nil:
		sink.Finish(cleanup, text)
	case errors.Is(streamErr, ai.ErrTimeout):
		result.Outcome = OutcomeTimeout
		log.WithField("received", len(text)).Warn("Completion stream timed out")
		sink.Replace(cleanup, r.opts.Notices.Timeout)
	case errors.Is(streamErr, context.Canceled), errors.Is(streamErr, context.DeadlineExceeded):
		result.Outcome = OutcomeCancelled
		log.WithError(streamErr).Info("Completion relay cancelled")
		sink.Replace(cleanup, r.opts.Notices.Failure)
	default:
		result.Outcome = OutcomeError
		log.WithError(streamErr).Error("Completion stream failed")
		sink.Replace(cleanup, r.opts.Notices.Failure)
	}

	if text != "" {
		r.history.Append(req.UserID, models.AssistantTurn(text))
	}

	return r.finish(result, start)
}

func (r *Relay) finish(result Result, start time.Time) Result {
	result.Duration = time.Since(start)
	r.metrics.RecordRelay(string(result.Outcome), result.Duration)
	return result
}
