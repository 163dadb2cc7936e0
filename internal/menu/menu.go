// Package menu builds the localized keyboards shared by handlers and services.
package menu

import (
	"fmt"

	"github.com/gpt-vpn-tgbot-go/internal/action"
	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
)

// Translator resolves message ids in the default language
type Translator interface {
	Default(messageID string, data map[string]interface{}) string
}

func button(t Translator, id string, a action.Action) transport.Button {
	return transport.Button{Text: t.Default(id, nil), Action: a.Data()}
}

// Main is the persistent reply keyboard. Admins get an extra row.
func Main(t Translator, isAdmin bool) *transport.Keyboard {
	rows := [][]transport.Button{
		{{Text: t.Default(i18n.MsgButtonChat, nil)}, {Text: t.Default(i18n.MsgButtonBuyVPN, nil)}},
		{{Text: t.Default(i18n.MsgButtonClearHistory, nil)}},
		{{Text: t.Default(i18n.MsgButtonHelp, nil)}},
	}
	if isAdmin {
		rows = append(rows, []transport.Button{{Text: t.Default(i18n.MsgButtonAdminMenu, nil)}})
	}
	return &transport.Keyboard{Rows: rows, Reply: true}
}

// RequestAccess offers the access request button to users without access
func RequestAccess(t Translator) *transport.Keyboard {
	return transport.Inline(transport.Row(button(t, i18n.MsgButtonRequestAccess, action.RequestAccess{})))
}

// Admin is the admin menu, optionally with a cancel row for the broadcast prompt
func Admin(t Translator, withCancel bool) *transport.Keyboard {
	kb := transport.Inline(
		transport.Row(
			button(t, i18n.MsgButtonUsers, action.ViewUsers{}),
			button(t, i18n.MsgButtonOpenAccess, action.OpenAccessMenu{}),
			button(t, i18n.MsgButtonCloseAccess, action.CloseAccessMenu{}),
		),
		transport.Row(
			button(t, i18n.MsgButtonLock, action.LockMenu{}),
			button(t, i18n.MsgButtonStats, action.Stats{}),
		),
		transport.Row(button(t, i18n.MsgButtonBroadcast, action.Broadcast{})),
	)
	if withCancel {
		kb.Rows = append(kb.Rows, transport.Row(button(t, i18n.MsgButtonCancel, action.CancelBroadcast{})))
	}
	return kb
}

// AccessDecision is sent to admins for a pending access request
func AccessDecision(userID int64) *transport.Keyboard {
	return transport.Inline(transport.Row(
		transport.Button{Text: "✅", Action: action.ApproveAccess{UserID: userID}.Data()},
		transport.Button{Text: "❌", Action: action.DeclineAccess{UserID: userID}.Data()},
	))
}

// UserPicker lists users with one button each. emptyID labels the placeholder row.
func UserPicker(t Translator, entries []models.UserEntry, emptyID string, bind func(id int64) action.Action) *transport.Keyboard {
	kb := transport.Inline()
	for _, e := range entries {
		kb.Rows = append(kb.Rows, transport.Row(transport.Button{
			Text:   fmt.Sprintf("%s (%d)", e.Record.Username, e.ID),
			Action: bind(e.ID).Data(),
		}))
	}
	if len(entries) == 0 {
		kb.Rows = append(kb.Rows, transport.Row(button(t, emptyID, action.AdminMenu{})))
	}
	kb.Rows = append(kb.Rows, transport.Row(button(t, i18n.MsgButtonBack, action.AdminMenu{})))
	return kb
}

// LockList lists users with a block or unblock button depending on their state
func LockList(t Translator, entries []models.UserEntry) *transport.Keyboard {
	kb := transport.Inline()
	for _, e := range entries {
		var b transport.Button
		if e.Blocked {
			b = transport.Button{
				Text:   fmt.Sprintf("%s (%d) ✅", e.Record.Username, e.ID),
				Action: action.UnblockUser{UserID: e.ID}.Data(),
			}
		} else {
			b = transport.Button{
				Text:   fmt.Sprintf("%s (%d) ❌", e.Record.Username, e.ID),
				Action: action.BlockUser{UserID: e.ID}.Data(),
			}
		}
		kb.Rows = append(kb.Rows, transport.Row(b))
	}
	if len(entries) == 0 {
		kb.Rows = append(kb.Rows, transport.Row(button(t, i18n.MsgAdminNoUsers, action.AdminMenu{})))
	}
	kb.Rows = append(kb.Rows, transport.Row(button(t, i18n.MsgButtonBack, action.AdminMenu{})))
	return kb
}

// Period describes one purchasable VPN period for the selection keyboard
type Period struct {
	Code  string
	Label string
}

// Periods is the period selection keyboard, one period per row
func Periods(t Translator, periods []Period) *transport.Keyboard {
	kb := transport.Inline()
	for _, p := range periods {
		kb.Rows = append(kb.Rows, transport.Row(transport.Button{
			Text:   p.Label,
			Action: action.VPNPeriod{Code: p.Code}.Data(),
		}))
	}
	kb.Rows = append(kb.Rows, transport.Row(button(t, i18n.MsgButtonCancel, action.VPNCancel{})))
	return kb
}

// Payment is shown with the payment details
func Payment(t Translator) *transport.Keyboard {
	return transport.Inline(transport.Row(
		button(t, i18n.MsgButtonPaid, action.VPNPaid{}),
		button(t, i18n.MsgButtonCancel, action.VPNCancel{}),
	))
}

// VPNDecision is sent to admins for a paid VPN request
func VPNDecision(t Translator, userID int64) *transport.Keyboard {
	return transport.Inline(transport.Row(
		button(t, i18n.MsgButtonConfirm, action.VPNGrant{UserID: userID}),
		button(t, i18n.MsgButtonReject, action.VPNReject{UserID: userID}),
	))
}
