// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gpt-vpn-tgbot-go/internal/transport"
)

// Sent is one recorded outbound message
type Sent struct {
	ChatID   int64
	Text     string
	Keyboard *transport.Keyboard
}

// Edit is one recorded edit
type Edit struct {
	Ref       transport.MessageRef
	Text      string
	Formatted bool
}

// Callback is one recorded callback answer
type Callback struct {
	ID    string
	Text  string
	Alert bool
}

// Recorder records every call. Messages keep their latest text so tests can
// inspect what a user would finally see.
type Recorder struct {
	mu        sync.Mutex
	nextID    int
	Sent      []Sent
	Edits     []Edit
	Callbacks []Callback
	texts     map[transport.MessageRef]string

	// FailSendTo makes Send fail for the listed chat ids
	FailSendTo map[int64]bool
	// EditErr, when set, is returned by every Edit
	EditErr error
	// Files maps file ids to urls for FileURL
	Files map[string]string
}

// New creates an empty recorder
func New() *Recorder {
	return &Recorder{texts: make(map[transport.MessageRef]string)}
}

func (r *Recorder) Send(ctx context.Context, chatID int64, text string, kb *transport.Keyboard) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailSendTo[chatID] {
		return transport.MessageRef{}, fmt.Errorf("chat %d unreachable", chatID)
	}
	r.nextID++
	ref := transport.MessageRef{ChatID: chatID, MessageID: r.nextID}
	r.Sent = append(r.Sent, Sent{ChatID: chatID, Text: text, Keyboard: kb})
	r.texts[ref] = text
	return ref, nil
}

func (r *Recorder) Edit(ctx context.Context, ref transport.MessageRef, text string, kb *transport.Keyboard) error {
	return r.edit(ref, text, false)
}

func (r *Recorder) EditFormatted(ctx context.Context, ref transport.MessageRef, text string) error {
	return r.edit(ref, text, true)
}

func (r *Recorder) edit(ref transport.MessageRef, text string, formatted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.EditErr != nil {
		return r.EditErr
	}
	if r.texts[ref] == text {
		return transport.ErrNotModified
	}
	r.Edits = append(r.Edits, Edit{Ref: ref, Text: text, Formatted: formatted})
	r.texts[ref] = text
	return nil
}

func (r *Recorder) FileURL(ctx context.Context, fileID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if url, ok := r.Files[fileID]; ok {
		return url, nil
	}
	return "", fmt.Errorf("file %s not found", fileID)
}

func (r *Recorder) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Callbacks = append(r.Callbacks, Callback{ID: callbackID, Text: text, Alert: alert})
	return nil
}

// SentTo returns the texts sent to one chat, in order
func (r *Recorder) SentTo(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, s := range r.Sent {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

// LastSent returns the most recent message sent to chatID
func (r *Recorder) LastSent(chatID int64) (Sent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.Sent) - 1; i >= 0; i-- {
		if r.Sent[i].ChatID == chatID {
			return r.Sent[i], true
		}
	}
	return Sent{}, false
}

// Text returns the current text of a message
func (r *Recorder) Text(ref transport.MessageRef) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.texts[ref]
}

// EditTexts returns the texts of all successful edits, in order
func (r *Recorder) EditTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.Edits))
	for _, e := range r.Edits {
		out = append(out, e.Text)
	}
	return out
}

// SendCount returns the number of successful sends
func (r *Recorder) SendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sent)
}

// LastCallback returns the most recent callback answer
func (r *Recorder) LastCallback() (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Callbacks) == 0 {
		return Callback{}, false
	}
	return r.Callbacks[len(r.Callbacks)-1], true
}
