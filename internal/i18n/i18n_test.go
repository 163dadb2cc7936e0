package i18n

import (
	"testing"

	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalizer(t *testing.T) *Localizer {
	t.Helper()
	l, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "ru", Languages: []string{"ru", "en"}})
	require.NoError(t, err)
	return l
}

func TestLocalizer_Get(t *testing.T) {
	l := newTestLocalizer(t)

	assert.Equal(t, "Купить VPN", l.Get("ru", MsgButtonBuyVPN, nil))
	assert.Equal(t, "Buy VPN", l.Get("en", MsgButtonBuyVPN, nil))
	// unknown language falls back to the default
	assert.Equal(t, "Купить VPN", l.Get("de", MsgButtonBuyVPN, nil))
	assert.Equal(t, "Купить VPN", l.Default(MsgButtonBuyVPN, nil))
}

func TestLocalizer_TemplateData(t *testing.T) {
	l := newTestLocalizer(t)

	got := l.Get("en", MsgBroadcastDone, map[string]interface{}{"Count": 3})
	assert.Equal(t, "Broadcast finished! Sent to 3 users.", got)
}

func TestLocalizer_UnknownMessage(t *testing.T) {
	l := newTestLocalizer(t)
	assert.Equal(t, "missing_id", l.Get("ru", "missing_id", nil))
}

func TestNewLocalizer_BadDefault(t *testing.T) {
	_, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "fr", Languages: []string{"ru"}})
	assert.Error(t, err)
}
