package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/menu"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/relay"
	"github.com/gpt-vpn-tgbot-go/internal/services/storage"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// HandleMessage processes text and photo messages
func (h *Handler) HandleMessage(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID
	text := strings.TrimSpace(message.Text)

	// an admin who opened the broadcast prompt owns the next message
	if h.access.IsAdmin(userID) {
		pending, err := h.state.GetUserState(ctx, userID, storage.StateAwaitingBroadcast)
		if err != nil {
			h.logger.WithError(err).WithField("user_id", userID).Warn("Failed to read broadcast state")
		}
		if pending != "" {
			return h.runBroadcast(ctx, chatID, userID, text)
		}
	}

	switch text {
	case h.text(i18n.MsgButtonClearHistory, nil):
		h.history.Clear(userID)
		h.reply(ctx, chatID, h.text(i18n.MsgHistoryCleared, nil), h.mainMenu(userID))
		return nil
	case h.text(i18n.MsgButtonChat, nil):
		h.reply(ctx, chatID, h.text(i18n.MsgEnterMessage, nil), &transport.Keyboard{Remove: true})
		return nil
	case h.text(i18n.MsgButtonHelp, nil):
		return h.handleHelp(ctx, chatID, userID)
	case h.text(i18n.MsgButtonBuyVPN, nil):
		return h.handleBuyVPN(ctx, message)
	case h.text(i18n.MsgButtonAdminMenu, nil):
		if !h.access.IsAdmin(userID) {
			h.reply(ctx, chatID, h.text(i18n.MsgNoPermission, nil), nil)
			return nil
		}
		h.reply(ctx, chatID, h.text(i18n.MsgAdminMenu, nil), menu.Admin(h.localizer, false))
		return nil
	}

	if len(message.Photo) == 0 && text == "" {
		return nil
	}
	return h.handleChat(ctx, message)
}

// handleChat gates the prompt and relays it to the completion provider
func (h *Handler) handleChat(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID
	log := h.logger.WithFields(logrus.Fields{"user_id": userID, "chat_id": chatID})

	rec, err := h.registry.EnsureUser(ctx, userID, message.From.UserName)
	if err != nil {
		log.WithError(err).Error("Failed to register user")
		h.sendError(ctx, chatID, userID)
		return err
	}
	if h.registry.IsBlocked(ctx, userID) {
		h.reply(ctx, chatID, h.text(i18n.MsgBlocked, nil), h.mainMenu(userID))
		return nil
	}
	if !rec.GPTAccess {
		h.reply(ctx, chatID, h.text(i18n.MsgAccessRequired, nil), menu.RequestAccess(h.localizer))
		return nil
	}

	if !h.rateLimiter.Allow(userID) {
		h.reply(ctx, chatID, h.text(i18n.MsgRateLimitExceeded, nil), nil)
		return nil
	}

	prompt := strings.TrimSpace(message.Text)
	var imageURL string
	if len(message.Photo) > 0 {
		prompt = strings.TrimSpace(message.Caption)
		if prompt == "" {
			prompt = h.text(i18n.MsgImageCaption, nil)
		}
		// the last size is the largest
		photo := message.Photo[len(message.Photo)-1]
		imageURL, err = h.transport.FileURL(ctx, photo.FileID)
		if err != nil {
			log.WithError(err).Error("Failed to resolve photo url")
			h.sendError(ctx, chatID, userID)
			return err
		}
	}

	if err := h.security.ValidateInput(prompt); err != nil {
		log.WithError(err).Warn("Input validation failed")
		h.reply(ctx, chatID, h.text(i18n.MsgInputInvalid, map[string]interface{}{"Reason": err.Error()}), nil)
		return nil
	}

	result := h.relay.Handle(ctx, relay.Request{
		UserID:   userID,
		ChatID:   chatID,
		Prompt:   prompt,
		ImageURL: imageURL,
	})
	log.WithFields(logrus.Fields{
		"outcome":  result.Outcome,
		"chars":    len(result.Text),
		"duration": result.Duration,
	}).Info("Prompt relayed")
	return nil
}

func (h *Handler) handleBuyVPN(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	err := h.purchase.Buy(ctx, userID, usernameOf(message.From))
	if err == nil || errors.Is(err, models.ErrBlocked) {
		return nil
	}
	h.logger.WithError(err).WithField("user_id", userID).Error("Failed to start VPN purchase")
	h.sendError(ctx, message.Chat.ID, userID)
	return err
}

func (h *Handler) runBroadcast(ctx context.Context, chatID, adminID int64, text string) error {
	if text == "" {
		h.reply(ctx, chatID, h.text(i18n.MsgBroadcastPrompt, nil), menu.Admin(h.localizer, true))
		return nil
	}
	if err := h.state.DeleteUserState(ctx, adminID, storage.StateAwaitingBroadcast); err != nil {
		h.logger.WithError(err).WithField("user_id", adminID).Warn("Failed to clear broadcast state")
	}

	count, err := h.broadcast.Send(ctx, adminID, text)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.WithError(err).WithField("admin_id", adminID).Error("Broadcast failed")
	}

	h.reply(ctx, chatID, h.text(i18n.MsgBroadcastDone, map[string]interface{}{"Count": count}), nil)
	h.reply(ctx, chatID, h.text(i18n.MsgAdminMenu, nil), menu.Admin(h.localizer, false))
	return nil
}

func usernameOf(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	return u.UserName
}
