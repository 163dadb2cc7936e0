package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gpt-vpn-tgbot-go/internal/services/cache"
	"github.com/gpt-vpn-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// truncatedMark ends a message that was cut at the length limit
const truncatedMark = "…"

// botAPI is the subset of *tgbotapi.BotAPI used here
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Telegram implements Transport with the Bot API
type Telegram struct {
	bot    botAPI
	files  cache.Service
	logger *logrus.Logger
}

// NewTelegram creates a Telegram transport. files may be nil.
func NewTelegram(bot botAPI, files cache.Service, logger *logrus.Logger) *Telegram {
	return &Telegram{bot: bot, files: files, logger: logger}
}

// Send sends a new message
func (t *Telegram) Send(ctx context.Context, chatID int64, text string, kb *Keyboard) (MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return MessageRef{}, err
	}

	msg := tgbotapi.NewMessage(chatID, t.truncate(text))
	if markup := replyMarkup(kb); markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := t.bot.Send(msg)
	if err != nil {
		return MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text of an existing message
func (t *Telegram) Edit(ctx context.Context, ref MessageRef, text string, kb *Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, t.truncate(text))
	if kb != nil && !kb.Reply && !kb.Remove {
		markup := inlineMarkup(kb)
		edit.ReplyMarkup = &markup
	}
	return t.request(edit)
}

// EditFormatted edits with markdown rendered to HTML, retrying as plain text on failure.
// Text over the message limit is split: the first part replaces the message and
// the rest follows as new messages.
func (t *Telegram) EditFormatted(ctx context.Context, ref MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parts := splitMessage(text, MaxMessageLength)
	err := t.editFormatted(ref, parts[0])
	if err != nil && !errors.Is(err, ErrNotModified) {
		return err
	}
	for _, part := range parts[1:] {
		if serr := t.sendFormatted(ref.ChatID, part); serr != nil {
			return serr
		}
	}
	return err
}

func (t *Telegram) editFormatted(ref MessageRef, text string) error {
	if html := markdown.ToTelegramHTML(text); html != "" && utf8.RuneCountInString(html) <= MaxMessageLength {
		edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, html)
		edit.ParseMode = tgbotapi.ModeHTML
		err := t.request(edit)
		if err == nil || errors.Is(err, ErrNotModified) {
			return err
		}
		t.logger.WithError(err).Debug("HTML edit rejected, retrying as plain text")
	}
	return t.request(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text))
}

func (t *Telegram) sendFormatted(chatID int64, text string) error {
	if html := markdown.ToTelegramHTML(text); html != "" && utf8.RuneCountInString(html) <= MaxMessageLength {
		msg := tgbotapi.NewMessage(chatID, html)
		msg.ParseMode = tgbotapi.ModeHTML
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		t.logger.WithError(err).Debug("HTML message rejected, retrying as plain text")
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send continuation: %w", err)
	}
	return nil
}

// FileURL resolves a file id to a downloadable url
func (t *Telegram) FileURL(ctx context.Context, fileID string) (string, error) {
	if t.files != nil {
		if url, ok := t.files.Get(ctx, fileID); ok {
			return url, nil
		}
	}

	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file %s: %w", fileID, err)
	}

	if t.files != nil {
		if err := t.files.Set(ctx, fileID, url); err != nil {
			t.logger.WithError(err).Warn("Failed to cache file url")
		}
	}
	return url, nil
}

// AnswerCallback acknowledges a callback query, optionally with a popup
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := t.bot.Request(cb); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func (t *Telegram) request(c tgbotapi.Chattable) error {
	if _, err := t.bot.Request(c); err != nil {
		if isNotModified(err) {
			return ErrNotModified
		}
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// truncate cuts text to the message limit and marks the cut
func (t *Telegram) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxMessageLength {
		return text
	}
	t.logger.WithField("length", len(runes)).Warn("Message over the length limit truncated")
	return string(runes[:MaxMessageLength-utf8.RuneCountInString(truncatedMark)]) + truncatedMark
}

// splitMessage breaks text into parts of at most limit runes, cutting at the
// last line break of each part when there is one.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(parts, string(runes))
}

func replyMarkup(kb *Keyboard) interface{} {
	switch {
	case kb == nil:
		return nil
	case kb.Remove:
		return tgbotapi.NewRemoveKeyboard(true)
	case kb.Reply:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Text))
			}
			rows = append(rows, buttons)
		}
		markup := tgbotapi.NewReplyKeyboard(rows...)
		markup.ResizeKeyboard = true
		return markup
	default:
		return inlineMarkup(kb)
	}
}

func inlineMarkup(kb *Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Action))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
