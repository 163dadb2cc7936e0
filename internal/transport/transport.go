// Package transport abstracts the chat platform: sending and editing messages,
// answering callbacks and resolving uploaded files.
package transport

import (
	"context"
	"errors"
)

// ErrNotModified is returned by Edit when the new content equals the current one
var ErrNotModified = errors.New("message is not modified")

// MaxMessageLength is the longest text a single chat message can hold
const MaxMessageLength = 4096

// MessageRef identifies a message that can be edited later
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one keyboard button. Action is callback data for inline keyboards
// and ignored for reply keyboards.
type Button struct {
	Text   string
	Action string
}

// Keyboard is a transport neutral keyboard description.
// Reply selects a persistent reply keyboard; Remove hides it.
type Keyboard struct {
	Rows   [][]Button
	Reply  bool
	Remove bool
}

// Inline builds an inline keyboard from rows of buttons
func Inline(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Row is a convenience for building one keyboard row
func Row(buttons ...Button) []Button {
	return buttons
}

// Transport is the outbound side of the chat platform
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, kb *Keyboard) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string, kb *Keyboard) error
	// EditFormatted renders markdown and falls back to plain text when the
	// platform rejects the markup.
	EditFormatted(ctx context.Context, ref MessageRef, text string) error
	FileURL(ctx context.Context, fileID string) (string, error)
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}
