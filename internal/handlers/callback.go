package handlers

import (
	"context"
	"errors"

	"github.com/gpt-vpn-tgbot-go/internal/action"
	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// answer is the toast shown for a callback; an empty text just stops the spinner
type answer struct {
	text  string
	alert bool
}

func alert(text string) answer { return answer{text: text, alert: true} }

// callbackContext is what every callback branch needs to respond
type callbackContext struct {
	userID   int64
	username string
	origin   transport.MessageRef
}

// HandleCallbackQuery decodes the callback data once and dispatches on the action type
func (h *Handler) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	cc := callbackContext{userID: callback.From.ID, username: usernameOf(callback.From)}
	if callback.Message != nil {
		cc.origin = transport.MessageRef{ChatID: callback.Message.Chat.ID, MessageID: callback.Message.MessageID}
	} else {
		cc.origin = transport.MessageRef{ChatID: callback.From.ID}
	}

	var ans answer
	var err error

	a, perr := action.Parse(callback.Data)
	if perr != nil {
		h.logger.WithError(perr).WithField("data", callback.Data).Warn("Unknown callback data")
		ans = alert(h.text(i18n.MsgUnknownAction, nil))
	} else {
		h.logger.WithFields(logrus.Fields{
			"user_id": cc.userID,
			"action":  a.Data(),
		}).Debug("Handling callback")
		ans, err = h.dispatchAction(ctx, cc, a)
	}

	if aerr := h.transport.AnswerCallback(ctx, callback.ID, ans.text, ans.alert); aerr != nil {
		h.logger.WithError(aerr).Debug("Failed to answer callback")
	}
	return err
}

func (h *Handler) dispatchAction(ctx context.Context, cc callbackContext, a action.Action) (answer, error) {
	switch a := a.(type) {
	case action.RequestAccess:
		if err := h.access.RequestAccess(ctx, cc.userID, cc.username); err != nil {
			return alert(h.text(i18n.MsgError, nil)), err
		}
		h.edit(ctx, cc.origin, h.text(i18n.MsgAccessRequestSent, nil), nil)
		return answer{}, nil

	case action.ApproveAccess, action.DeclineAccess, action.GrantAccess, action.RevokeAccess:
		return h.handleDecision(ctx, cc, a)

	case action.BlockUser:
		return h.handleBlock(ctx, cc, a.UserID, true)
	case action.UnblockUser:
		return h.handleBlock(ctx, cc, a.UserID, false)

	case action.VPNPeriod:
		return h.purchaseAnswer(h.purchase.ChoosePeriod(ctx, cc.userID, a.Code, cc.origin))
	case action.VPNPaid:
		return h.purchaseAnswer(h.purchase.MarkPaid(ctx, cc.userID, cc.origin))
	case action.VPNCancel:
		return h.purchaseAnswer(h.purchase.Cancel(ctx, cc.userID, cc.origin))
	case action.VPNGrant:
		return h.handleVPNDecision(ctx, cc, a.UserID, true)
	case action.VPNReject:
		return h.handleVPNDecision(ctx, cc, a.UserID, false)
	}

	// everything else is an admin menu
	if !h.access.IsAdmin(cc.userID) {
		return alert(h.text(i18n.MsgNoPermission, nil)), nil
	}
	return h.handleAdminMenu(ctx, cc, a)
}

// errorAnswer maps the error taxonomy to a toast. Unknown errors are returned.
func (h *Handler) errorAnswer(err error) (answer, error) {
	switch {
	case errors.Is(err, models.ErrPermission):
		return alert(h.text(i18n.MsgNoPermission, nil)), nil
	case errors.Is(err, models.ErrNotFound):
		return alert(h.text(i18n.MsgUserNotFound, nil)), nil
	case errors.Is(err, models.ErrValidation):
		return alert(h.text(i18n.MsgVPNInvalidPeriod, nil)), nil
	case errors.Is(err, models.ErrInvalidTransition):
		return alert(h.text(i18n.MsgVPNNoActiveRequest, nil)), nil
	case errors.Is(err, models.ErrBlocked):
		return alert(h.text(i18n.MsgBlocked, nil)), nil
	}
	return alert(h.text(i18n.MsgError, nil)), err
}
