// Package action encodes and decodes inline keyboard callback data.
//
// Every callback carries one of the tagged actions below. Parsing happens once
// at the update boundary so handlers can switch on concrete types instead of
// matching string prefixes.
package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gpt-vpn-tgbot-go/internal/models"
)

// Action is a decoded callback payload
type Action interface {
	Data() string
}

// Simple actions carry no argument
type (
	RequestAccess   struct{}
	OpenAccessMenu  struct{}
	CloseAccessMenu struct{}
	ViewUsers       struct{}
	LockMenu        struct{}
	AdminMenu       struct{}
	Broadcast       struct{}
	CancelBroadcast struct{}
	Stats           struct{}
	VPNPaid         struct{}
	VPNCancel       struct{}
)

// User-targeted actions
type (
	ApproveAccess struct{ UserID int64 }
	DeclineAccess struct{ UserID int64 }
	GrantAccess   struct{ UserID int64 }
	RevokeAccess  struct{ UserID int64 }
	BlockUser     struct{ UserID int64 }
	UnblockUser   struct{ UserID int64 }
	VPNGrant      struct{ UserID int64 }
	VPNReject     struct{ UserID int64 }
)

// VPNPeriod selects a subscription period by code (1m, 3m, 6m, 1y)
type VPNPeriod struct{ Code string }

const (
	dataRequestAccess   = "request_gpt_access"
	dataOpenAccessMenu  = "admin_open_gpt_access"
	dataCloseAccessMenu = "admin_close_gpt_access"
	dataViewUsers       = "admin_view_users"
	dataLockMenu        = "admin_lock_menu"
	dataAdminMenu       = "admin_menu"
	dataBroadcast       = "admin_broadcast"
	dataCancelBroadcast = "cancel_broadcast"
	dataStats           = "admin_stats"
	dataVPNPaid         = "vpn_paid"
	dataVPNCancel       = "vpn_cancel"

	prefixApprove = "admin_approve_gpt_"
	prefixDecline = "admin_decline_gpt_"
	prefixGrant   = "admin_grant_gpt_"
	prefixRevoke  = "admin_revoke_gpt_"
	prefixBlock   = "block_user_"
	prefixUnblock = "unblock_user_"
	prefixVPNOK   = "vpn_grant_"
	prefixVPNNo   = "vpn_reject_"
	prefixPeriod  = "vpn_period_"
)

func (RequestAccess) Data() string   { return dataRequestAccess }
func (OpenAccessMenu) Data() string  { return dataOpenAccessMenu }
func (CloseAccessMenu) Data() string { return dataCloseAccessMenu }
func (ViewUsers) Data() string       { return dataViewUsers }
func (LockMenu) Data() string        { return dataLockMenu }
func (AdminMenu) Data() string       { return dataAdminMenu }
func (Broadcast) Data() string       { return dataBroadcast }
func (CancelBroadcast) Data() string { return dataCancelBroadcast }
func (Stats) Data() string           { return dataStats }
func (VPNPaid) Data() string         { return dataVPNPaid }
func (VPNCancel) Data() string       { return dataVPNCancel }

func (a ApproveAccess) Data() string { return withID(prefixApprove, a.UserID) }
func (a DeclineAccess) Data() string { return withID(prefixDecline, a.UserID) }
func (a GrantAccess) Data() string   { return withID(prefixGrant, a.UserID) }
func (a RevokeAccess) Data() string  { return withID(prefixRevoke, a.UserID) }
func (a BlockUser) Data() string     { return withID(prefixBlock, a.UserID) }
func (a UnblockUser) Data() string   { return withID(prefixUnblock, a.UserID) }
func (a VPNGrant) Data() string      { return withID(prefixVPNOK, a.UserID) }
func (a VPNReject) Data() string     { return withID(prefixVPNNo, a.UserID) }
func (a VPNPeriod) Data() string     { return prefixPeriod + a.Code }

func withID(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

var simple = map[string]Action{
	dataRequestAccess:   RequestAccess{},
	dataOpenAccessMenu:  OpenAccessMenu{},
	dataCloseAccessMenu: CloseAccessMenu{},
	dataViewUsers:       ViewUsers{},
	dataLockMenu:        LockMenu{},
	dataAdminMenu:       AdminMenu{},
	dataBroadcast:       Broadcast{},
	dataCancelBroadcast: CancelBroadcast{},
	dataStats:           Stats{},
	dataVPNPaid:         VPNPaid{},
	dataVPNCancel:       VPNCancel{},
}

var targeted = []struct {
	prefix string
	build  func(int64) Action
}{
	{prefixApprove, func(id int64) Action { return ApproveAccess{UserID: id} }},
	{prefixDecline, func(id int64) Action { return DeclineAccess{UserID: id} }},
	{prefixGrant, func(id int64) Action { return GrantAccess{UserID: id} }},
	{prefixRevoke, func(id int64) Action { return RevokeAccess{UserID: id} }},
	{prefixUnblock, func(id int64) Action { return UnblockUser{UserID: id} }},
	{prefixBlock, func(id int64) Action { return BlockUser{UserID: id} }},
	{prefixVPNOK, func(id int64) Action { return VPNGrant{UserID: id} }},
	{prefixVPNNo, func(id int64) Action { return VPNReject{UserID: id} }},
}

// Parse decodes callback data. Unknown or malformed data yields models.ErrValidation.
func Parse(data string) (Action, error) {
	if a, ok := simple[data]; ok {
		return a, nil
	}

	if code, ok := strings.CutPrefix(data, prefixPeriod); ok {
		if code == "" {
			return nil, fmt.Errorf("%w: empty period in %q", models.ErrValidation, data)
		}
		return VPNPeriod{Code: code}, nil
	}

	for _, t := range targeted {
		raw, ok := strings.CutPrefix(data, t.prefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad user id in %q", models.ErrValidation, data)
		}
		return t.build(id), nil
	}

	return nil, fmt.Errorf("%w: unknown action %q", models.ErrValidation, data)
}
