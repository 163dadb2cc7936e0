package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer from the embedded message files
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.Russian)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		if _, err := bundle.LoadMessageFileFS(localeFS, fmt.Sprintf("locales/%s.json", lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	if _, ok := localizers[cfg.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %q is not among loaded languages", cfg.DefaultLanguage)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Default returns the message in the default language
func (l *Localizer) Default(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}

// DefaultLanguage returns the configured fallback language
func (l *Localizer) DefaultLanguage() string {
	return l.defaultLanguage
}

// Message IDs
const (
	MsgWelcome           = "welcome"
	MsgHelp              = "help"
	MsgEnterMessage      = "enter_message"
	MsgHistoryCleared    = "history_cleared"
	MsgBlocked           = "blocked"
	MsgNoPermission      = "no_permission"
	MsgUserNotFound      = "user_not_found"
	MsgError             = "error"
	MsgRateLimitExceeded = "rate_limit_exceeded"
	MsgInputInvalid      = "input_invalid"
	MsgUnknownAction     = "unknown_action"
	MsgImageCaption      = "image_caption"

	MsgTimeout       = "relay_timeout"
	MsgRelayFailed   = "relay_failed"
	MsgEmptyResponse = "relay_empty"

	MsgAccessRequired       = "access_required"
	MsgAccessRequestSent    = "access_request_sent"
	MsgAccessAdminPrompt    = "access_admin_prompt"
	MsgAccessApproved       = "access_approved"
	MsgAccessDeclined       = "access_declined"
	MsgAccessGranted        = "access_granted"
	MsgAccessRevoked        = "access_revoked"
	MsgAdminApproveDone     = "admin_approve_done"
	MsgAdminDeclineDone     = "admin_decline_done"
	MsgAdminGrantDone       = "admin_grant_done"
	MsgAdminRevokeDone      = "admin_revoke_done"
	MsgAdminMenu            = "admin_menu"
	MsgAdminUsers           = "admin_users"
	MsgAdminNoUsers         = "admin_no_users"
	MsgAdminGrantList       = "admin_grant_list"
	MsgAdminRevokeList      = "admin_revoke_list"
	MsgAdminNoGrant         = "admin_no_grant_candidates"
	MsgAdminNoRevoke        = "admin_no_revoke_candidates"
	MsgAdminLockMenu        = "admin_lock_menu"
	MsgAdminStats           = "admin_stats"
	MsgUserBlocked          = "user_blocked"
	MsgUserAlreadyBlocked   = "user_already_blocked"
	MsgUserUnblocked        = "user_unblocked"
	MsgUserNotBlocked       = "user_not_blocked"
	MsgBroadcastPrompt      = "broadcast_prompt"
	MsgBroadcastDone        = "broadcast_done"
	MsgBroadcastCancelled   = "broadcast_cancelled"
	MsgVPNSelectPeriod      = "vpn_select_period"
	MsgVPNInvalidPeriod     = "vpn_invalid_period"
	MsgVPNPaymentDetails    = "vpn_payment_details"
	MsgVPNRequestAccepted   = "vpn_request_accepted"
	MsgVPNAdminPrompt       = "vpn_admin_prompt"
	MsgVPNCancelled         = "vpn_cancelled"
	MsgVPNRejected          = "vpn_rejected"
	MsgVPNGranted           = "vpn_granted"
	MsgVPNAdminRejectDone   = "vpn_admin_reject_done"
	MsgVPNAdminGrantDone    = "vpn_admin_grant_done"
	MsgVPNNoActiveRequest   = "vpn_no_active_request"
	MsgButtonChat           = "button_chat"
	MsgButtonBuyVPN         = "button_buy_vpn"
	MsgButtonClearHistory   = "button_clear_history"
	MsgButtonHelp           = "button_help"
	MsgButtonAdminMenu      = "button_admin_menu"
	MsgButtonRequestAccess  = "button_request_access"
	MsgButtonUsers          = "button_users"
	MsgButtonOpenAccess     = "button_open_access"
	MsgButtonCloseAccess    = "button_close_access"
	MsgButtonLock           = "button_lock"
	MsgButtonBroadcast      = "button_broadcast"
	MsgButtonStats          = "button_stats"
	MsgButtonBack           = "button_back"
	MsgButtonCancel         = "button_cancel"
	MsgButtonPaid           = "button_paid"
	MsgButtonConfirm        = "button_confirm"
	MsgButtonReject         = "button_reject"
)
