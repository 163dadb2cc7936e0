package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/gpt-vpn-tgbot-go/internal/action"
	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/menu"
	"github.com/gpt-vpn-tgbot-go/internal/services/access"
	"github.com/gpt-vpn-tgbot-go/internal/services/storage"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
)

func (h *Handler) handleDecision(ctx context.Context, cc callbackContext, a action.Action) (answer, error) {
	var target int64
	var d access.Decision
	switch a := a.(type) {
	case action.ApproveAccess:
		target, d = a.UserID, access.Approve
	case action.DeclineAccess:
		target, d = a.UserID, access.Decline
	case action.GrantAccess:
		target, d = a.UserID, access.Grant
	case action.RevokeAccess:
		target, d = a.UserID, access.Revoke
	}

	if err := h.access.Decide(ctx, cc.userID, target, d); err != nil {
		return h.errorAnswer(err)
	}

	switch d {
	case access.Approve:
		h.edit(ctx, cc.origin, h.text(i18n.MsgAdminApproveDone, nil), nil)
	case access.Decline:
		h.edit(ctx, cc.origin, h.text(i18n.MsgAdminDeclineDone, nil), nil)
	case access.Grant:
		h.showGrantList(ctx, cc.origin)
		return alert(h.text(i18n.MsgAdminGrantDone, nil)), nil
	case access.Revoke:
		h.showRevokeList(ctx, cc.origin)
		return alert(h.text(i18n.MsgAdminRevokeDone, nil)), nil
	}
	return answer{}, nil
}

func (h *Handler) handleBlock(ctx context.Context, cc callbackContext, target int64, block bool) (answer, error) {
	var changed bool
	var err error
	if block {
		changed, err = h.access.Block(ctx, cc.userID, target)
	} else {
		changed, err = h.access.Unblock(ctx, cc.userID, target)
	}
	if err != nil {
		return h.errorAnswer(err)
	}

	var msg string
	switch {
	case block && changed:
		msg = i18n.MsgUserBlocked
	case block:
		msg = i18n.MsgUserAlreadyBlocked
	case changed:
		msg = i18n.MsgUserUnblocked
	default:
		msg = i18n.MsgUserNotBlocked
	}
	h.showLockMenu(ctx, cc.origin)
	return alert(h.text(msg, nil)), nil
}

func (h *Handler) handleAdminMenu(ctx context.Context, cc callbackContext, a action.Action) (answer, error) {
	switch a.(type) {
	case action.AdminMenu:
		h.edit(ctx, cc.origin, h.text(i18n.MsgAdminMenu, nil), menu.Admin(h.localizer, false))
	case action.ViewUsers:
		h.edit(ctx, cc.origin, h.usersText(ctx), menu.Admin(h.localizer, false))
	case action.OpenAccessMenu:
		h.showGrantList(ctx, cc.origin)
	case action.CloseAccessMenu:
		h.showRevokeList(ctx, cc.origin)
	case action.LockMenu:
		h.showLockMenu(ctx, cc.origin)
	case action.Stats:
		stats := h.access.Stats(ctx)
		h.edit(ctx, cc.origin, h.text(i18n.MsgAdminStats, map[string]interface{}{
			"Total":      stats.Total,
			"Blocked":    stats.Blocked,
			"WithAccess": stats.WithAccess,
		}), backKeyboard(h))
	case action.Broadcast:
		if err := h.state.SetUserState(ctx, cc.userID, storage.StateAwaitingBroadcast, "true"); err != nil {
			return h.errorAnswer(err)
		}
		h.reply(ctx, cc.origin.ChatID, h.text(i18n.MsgBroadcastPrompt, nil), menu.Admin(h.localizer, true))
	case action.CancelBroadcast:
		if err := h.state.DeleteUserState(ctx, cc.userID, storage.StateAwaitingBroadcast); err != nil {
			h.logger.WithError(err).WithField("user_id", cc.userID).Warn("Failed to clear broadcast state")
		}
		h.edit(ctx, cc.origin, h.text(i18n.MsgBroadcastCancelled, nil), menu.Admin(h.localizer, false))
	default:
		return alert(h.text(i18n.MsgUnknownAction, nil)), nil
	}
	return answer{}, nil
}

func (h *Handler) usersText(ctx context.Context) string {
	entries := h.access.Users(ctx)
	if len(entries) == 0 {
		return h.text(i18n.MsgAdminNoUsers, nil)
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		mark := "❌"
		if e.Record.GPTAccess {
			mark = "✅"
		}
		lines = append(lines, fmt.Sprintf("%d (%s) | GPT: %s", e.ID, e.Record.Username, mark))
	}
	return h.text(i18n.MsgAdminUsers, map[string]interface{}{"List": strings.Join(lines, "\n")})
}

func (h *Handler) showGrantList(ctx context.Context, origin transport.MessageRef) {
	kb := menu.UserPicker(h.localizer, h.access.PendingGrantCandidates(ctx), i18n.MsgAdminNoGrant,
		func(id int64) action.Action { return action.GrantAccess{UserID: id} })
	h.edit(ctx, origin, h.text(i18n.MsgAdminGrantList, nil), kb)
}

func (h *Handler) showRevokeList(ctx context.Context, origin transport.MessageRef) {
	kb := menu.UserPicker(h.localizer, h.access.PendingRevokeCandidates(ctx), i18n.MsgAdminNoRevoke,
		func(id int64) action.Action { return action.RevokeAccess{UserID: id} })
	h.edit(ctx, origin, h.text(i18n.MsgAdminRevokeList, nil), kb)
}

func (h *Handler) showLockMenu(ctx context.Context, origin transport.MessageRef) {
	h.edit(ctx, origin, h.text(i18n.MsgAdminLockMenu, nil), menu.LockList(h.localizer, h.access.Users(ctx)))
}

func backKeyboard(h *Handler) *transport.Keyboard {
	return transport.Inline(transport.Row(transport.Button{
		Text:   h.text(i18n.MsgButtonBack, nil),
		Action: action.AdminMenu{}.Data(),
	}))
}
