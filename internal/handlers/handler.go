package handlers

import (
	"context"
	"errors"

	"github.com/gpt-vpn-tgbot-go/internal/history"
	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/menu"
	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/gpt-vpn-tgbot-go/internal/relay"
	"github.com/gpt-vpn-tgbot-go/internal/services/access"
	"github.com/gpt-vpn-tgbot-go/internal/services/broadcast"
	"github.com/gpt-vpn-tgbot-go/internal/services/purchase"
	"github.com/gpt-vpn-tgbot-go/internal/services/users"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Relayer answers one chat prompt
type Relayer interface {
	Handle(ctx context.Context, req relay.Request) relay.Result
}

// StateStore keeps small per-user dialog flags
type StateStore interface {
	GetUserState(ctx context.Context, userID int64, key string) (string, error)
	SetUserState(ctx context.Context, userID int64, key string, value string) error
	DeleteUserState(ctx context.Context, userID int64, key string) error
}

// Deps bundles what the handler needs
type Deps struct {
	Transport   transport.Transport
	Relay       Relayer
	History     *history.Manager
	Registry    *users.Registry
	Access      *access.Service
	Purchase    *purchase.Machine
	Broadcast   *broadcast.Service
	State       StateStore
	RateLimiter *middleware.UserRateLimiter
	Localizer   *i18n.Localizer
	Metrics     *middleware.Metrics
	Logger      *logrus.Logger
}

// Handler classifies Telegram updates and routes them to the services
type Handler struct {
	transport   transport.Transport
	relay       Relayer
	history     *history.Manager
	registry    *users.Registry
	access      *access.Service
	purchase    *purchase.Machine
	broadcast   *broadcast.Service
	state       StateStore
	rateLimiter *middleware.UserRateLimiter
	security    *middleware.SecurityMiddleware
	localizer   *i18n.Localizer
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// New creates the update handler
func New(d Deps) *Handler {
	return &Handler{
		transport:   d.Transport,
		relay:       d.Relay,
		history:     d.History,
		registry:    d.Registry,
		access:      d.Access,
		purchase:    d.Purchase,
		broadcast:   d.Broadcast,
		state:       d.State,
		rateLimiter: d.RateLimiter,
		security:    middleware.NewSecurityMiddleware(d.Logger),
		localizer:   d.Localizer,
		metrics:     d.Metrics,
		logger:      d.Logger,
	}
}

// UpdateUserID returns the id updates are serialized on, or false for
// updates the bot ignores.
func UpdateUserID(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID, true
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, true
	}
	return 0, false
}

// HandleUpdate processes one update
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	var err error
	switch {
	case update.CallbackQuery != nil:
		h.metrics.RecordMessageReceived("callback")
		err = h.HandleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message == nil || update.Message.From == nil:
		return nil
	case update.Message.IsCommand():
		h.metrics.RecordMessageReceived("command")
		err = h.HandleCommand(ctx, update.Message)
	default:
		kind := "text"
		if len(update.Message.Photo) > 0 {
			kind = "photo"
		}
		h.metrics.RecordMessageReceived(kind)
		err = h.HandleMessage(ctx, update.Message)
	}

	if err != nil {
		h.metrics.RecordMessageProcessed("error")
		return err
	}
	h.metrics.RecordMessageProcessed("success")
	return nil
}

func (h *Handler) text(id string, data map[string]interface{}) string {
	return h.localizer.Default(id, data)
}

func (h *Handler) mainMenu(userID int64) *transport.Keyboard {
	return menu.Main(h.localizer, h.access.IsAdmin(userID))
}

// reply sends a message and logs delivery failures
func (h *Handler) reply(ctx context.Context, chatID int64, text string, kb *transport.Keyboard) {
	if _, err := h.transport.Send(ctx, chatID, text, kb); err != nil {
		h.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}

// edit replaces the text of origin, or sends a new message when there is none
func (h *Handler) edit(ctx context.Context, origin transport.MessageRef, text string, kb *transport.Keyboard) {
	if origin.MessageID == 0 {
		h.reply(ctx, origin.ChatID, text, kb)
		return
	}
	err := h.transport.Edit(ctx, origin, text, kb)
	if err != nil && !errors.Is(err, transport.ErrNotModified) {
		h.logger.WithError(err).WithField("chat_id", origin.ChatID).Warn("Failed to edit message")
	}
}

func (h *Handler) sendError(ctx context.Context, chatID, userID int64) {
	h.reply(ctx, chatID, h.text(i18n.MsgError, nil), h.mainMenu(userID))
}
