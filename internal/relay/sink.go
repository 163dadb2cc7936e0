package relay

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	"github.com/sirupsen/logrus"
)

const (
	placeholder    = "."
	progressSuffix = "..."
)

// Animation frames shown while nothing has been received yet
var frames = []string{".", "..", "...", ".."}

// SinkOptions tune edit throttling
type SinkOptions struct {
	MinChars      int
	MinInterval   time.Duration
	FrameInterval time.Duration
	Markdown      bool
}

// DefaultSinkOptions match the chat platform's edit rate limits
var DefaultSinkOptions = SinkOptions{
	MinChars:      40,
	MinInterval:   4 * time.Second,
	FrameInterval: 600 * time.Millisecond,
	Markdown:      true,
}

// Sink renders a growing answer into one chat message. All edits, whether
// from the streaming loop or the animator, go through one mutex.
type Sink struct {
	tr      transport.Transport
	chatID  int64
	opts    SinkOptions
	logger  *logrus.Entry
	metrics *middleware.Metrics
	now     func() time.Time

	mu            sync.Mutex
	ref           transport.MessageRef
	started       bool
	lastEmitted   string
	lastContentAt time.Time
	contentShown  bool
}

// NewSink creates a sink for one relay. metrics may be nil.
func NewSink(tr transport.Transport, chatID int64, opts SinkOptions, metrics *middleware.Metrics, logger *logrus.Logger) *Sink {
	return &Sink{
		tr:      tr,
		chatID:  chatID,
		opts:    opts,
		logger:  logger.WithField("chat_id", chatID),
		metrics: metrics,
		now:     time.Now,
	}
}

// Start sends the placeholder message
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := s.tr.Send(ctx, s.chatID, placeholder, nil)
	if err != nil {
		return err
	}
	s.ref = ref
	s.started = true
	s.lastEmitted = placeholder
	s.lastContentAt = s.now()
	return nil
}

// Ref returns the message being edited
func (s *Sink) Ref() transport.MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref
}

// Update shows snapshot with a progress suffix when it is long enough, enough
// time has passed since the last edit and the text actually changed.
func (s *Sink) Update(ctx context.Context, snapshot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || utf8.RuneCountInString(snapshot) <= s.opts.MinChars {
		return false
	}
	if s.now().Sub(s.lastContentAt) < s.opts.MinInterval {
		return false
	}

	text := snapshot + progressSuffix
	if text == s.lastEmitted {
		return false
	}
	if !s.editLocked(ctx, text, false) {
		return false
	}
	s.lastContentAt = s.now()
	s.contentShown = true
	return true
}

// Finish shows the complete answer, rendered as markdown when enabled
func (s *Sink) Finish(ctx context.Context, final string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || final == s.lastEmitted {
		return
	}
	if s.editLocked(ctx, final, s.opts.Markdown) {
		s.lastContentAt = s.now()
		s.contentShown = true
	}
}

// Replace overwrites the message with a notice such as a timeout
func (s *Sink) Replace(ctx context.Context, notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || notice == s.lastEmitted {
		return
	}
	if s.editLocked(ctx, notice, false) {
		s.lastContentAt = s.now()
		s.contentShown = true
	}
}

// frame shows one animation frame unless real content is already visible.
// Frames do not move the content clock.
func (s *Sink) frame(ctx context.Context, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contentShown {
		return false
	}
	if text != s.lastEmitted {
		s.editLocked(ctx, text, false)
	}
	return true
}

// Animate cycles the idle frames until content appears or stop is called.
// stop cancels the animator and waits for it to exit; it may be called more than once.
func (s *Sink) Animate(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.opts.FrameInterval)
		defer ticker.Stop()

		// the placeholder is frames[0], so the first tick shows frames[1]
		for i := 1; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil || !s.frame(ctx, frames[i%len(frames)]) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// editLocked performs an edit with s.mu held. Identical content is treated as
// success; other failures are logged and leave the sink state unchanged.
func (s *Sink) editLocked(ctx context.Context, text string, formatted bool) bool {
	var err error
	if formatted {
		err = s.tr.EditFormatted(ctx, s.ref, text)
	} else {
		err = s.tr.Edit(ctx, s.ref, text, nil)
	}

	switch {
	case err == nil:
		s.metrics.RecordEdit("ok")
	case errors.Is(err, transport.ErrNotModified):
		s.metrics.RecordEdit("not_modified")
	default:
		s.metrics.RecordEdit("error")
		s.logger.WithError(err).Warn("Failed to edit streaming message")
		return false
	}

	s.lastEmitted = text
	return true
}
