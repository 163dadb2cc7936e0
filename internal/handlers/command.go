package handlers

import (
	"context"

	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// HandleCommand processes slash commands. Unknown commands are treated as
// ordinary chat text.
func (h *Handler) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	h.logger.WithFields(logrus.Fields{
		"command": message.Command(),
		"user_id": userID,
		"chat_id": chatID,
	}).Debug("Handling command")

	switch message.Command() {
	case "start":
		h.reply(ctx, chatID, h.text(i18n.MsgWelcome, nil), h.mainMenu(userID))
		return nil
	case "help":
		return h.handleHelp(ctx, chatID, userID)
	default:
		return h.HandleMessage(ctx, message)
	}
}

func (h *Handler) handleHelp(ctx context.Context, chatID, userID int64) error {
	h.reply(ctx, chatID, h.text(i18n.MsgHelp, nil), h.mainMenu(userID))
	return nil
}
