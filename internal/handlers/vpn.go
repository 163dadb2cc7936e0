package handlers

import (
	"context"

	"github.com/gpt-vpn-tgbot-go/internal/i18n"
)

func (h *Handler) purchaseAnswer(err error) (answer, error) {
	if err != nil {
		return h.errorAnswer(err)
	}
	return answer{}, nil
}

func (h *Handler) handleVPNDecision(ctx context.Context, cc callbackContext, target int64, grant bool) (answer, error) {
	var err error
	done := i18n.MsgVPNAdminRejectDone
	if grant {
		done = i18n.MsgVPNAdminGrantDone
		_, err = h.purchase.Grant(ctx, cc.userID, target)
	} else {
		_, err = h.purchase.Reject(ctx, cc.userID, target)
	}
	if err != nil {
		return h.errorAnswer(err)
	}

	h.edit(ctx, cc.origin, h.text(done, nil), nil)
	return answer{}, nil
}
