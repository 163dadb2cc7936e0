package access

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gpt-vpn-tgbot-go/internal/action"
	"github.com/gpt-vpn-tgbot-go/internal/config"
	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/services/users"
	"github.com/gpt-vpn-tgbot-go/internal/transport/transporttest"
	"github.com/gpt-vpn-tgbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminA int64 = 100
	adminB int64 = 200
)

type fixture struct {
	svc      *Service
	tr       *transporttest.Recorder
	registry *users.Registry
	texts    *i18n.Localizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := users.NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	texts, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "ru", Languages: []string{"ru"}})
	require.NoError(t, err)

	registry := users.NewRegistry(store, logger.Discard())
	tr := transporttest.New()
	svc := NewService(registry, tr, models.NewAdminSet([]int64{adminA, adminB}), texts, nil, logger.Discard())
	return &fixture{svc: svc, tr: tr, registry: registry, texts: texts}
}

func TestRequestAccess_NotifiesEveryAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.RequestAccess(ctx, 42, "alice"))

	rec, ok := f.registry.Get(ctx, 42)
	require.True(t, ok)
	assert.Equal(t, "alice", rec.Username)
	assert.False(t, rec.GPTAccess)

	for _, admin := range []int64{adminA, adminB} {
		sent, ok := f.tr.LastSent(admin)
		require.True(t, ok)
		assert.Contains(t, sent.Text, "@alice (ID: 42)")
		require.NotNil(t, sent.Keyboard)
		assert.Equal(t, action.ApproveAccess{UserID: 42}.Data(), sent.Keyboard.Rows[0][0].Action)
		assert.Equal(t, action.DeclineAccess{UserID: 42}.Data(), sent.Keyboard.Rows[0][1].Action)
	}
}

func TestRequestAccess_AdminUnreachable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tr.FailSendTo = map[int64]bool{adminA: true}

	require.NoError(t, f.svc.RequestAccess(ctx, 42, ""))

	assert.Len(t, f.tr.SentTo(adminB), 1)
	rec, _ := f.registry.Get(ctx, 42)
	assert.Equal(t, users.UnknownUsername, rec.Username)
}

func TestDecide_ApproveFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.RequestAccess(ctx, 42, "alice"))

	require.NoError(t, f.svc.Decide(ctx, adminA, 42, Approve))

	rec, _ := f.registry.Get(ctx, 42)
	assert.True(t, rec.GPTAccess)
	assert.Equal(t, []string{f.texts.Default(i18n.MsgAccessApproved, nil)}, f.tr.SentTo(42))
}

func TestDecide_NonAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.RequestAccess(ctx, 42, "alice"))
	sends := f.tr.SendCount()

	err := f.svc.Decide(ctx, 999, 42, Approve)
	assert.True(t, errors.Is(err, models.ErrPermission))

	rec, _ := f.registry.Get(ctx, 42)
	assert.False(t, rec.GPTAccess)
	assert.Equal(t, sends, f.tr.SendCount(), "no notification on permission error")
}

func TestDecide_UnknownUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, d := range []Decision{Approve, Grant, Revoke} {
		err := f.svc.Decide(ctx, adminA, 7, d)
		assert.ErrorIs(t, err, models.ErrNotFound, d.String())
	}
	assert.Empty(t, f.tr.SentTo(7))

	// decline of an unknown user still notifies
	require.NoError(t, f.svc.Decide(ctx, adminA, 7, Decline))
	assert.Equal(t, []string{f.texts.Default(i18n.MsgAccessDeclined, nil)}, f.tr.SentTo(7))
	_, ok := f.registry.Get(ctx, 7)
	assert.False(t, ok)
}

func TestDecide_RevokeAndCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.RequestAccess(ctx, 3, "c"))
	require.NoError(t, f.svc.RequestAccess(ctx, 1, "a"))
	require.NoError(t, f.svc.RequestAccess(ctx, 2, "b"))

	require.NoError(t, f.svc.Decide(ctx, adminA, 1, Grant))
	require.NoError(t, f.svc.Decide(ctx, adminB, 3, Grant))

	ids := func(entries []models.UserEntry) []int64 {
		var out []int64
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}
	assert.Equal(t, []int64{2}, ids(f.svc.PendingGrantCandidates(ctx)))
	assert.Equal(t, []int64{1, 3}, ids(f.svc.PendingRevokeCandidates(ctx)))

	require.NoError(t, f.svc.Decide(ctx, adminA, 3, Revoke))
	assert.Equal(t, []int64{1}, ids(f.svc.PendingRevokeCandidates(ctx)))
	assert.Equal(t, f.texts.Default(i18n.MsgAccessRevoked, nil), f.tr.SentTo(3)[1])
}

func TestDecide_NotificationFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.RequestAccess(ctx, 42, "alice"))
	f.tr.FailSendTo = map[int64]bool{42: true}

	require.NoError(t, f.svc.Decide(ctx, adminA, 42, Approve))
	rec, _ := f.registry.Get(ctx, 42)
	assert.True(t, rec.GPTAccess)
}

func TestBlockUnblock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.RequestAccess(ctx, 42, "alice"))

	_, err := f.svc.Block(ctx, 999, 42)
	assert.ErrorIs(t, err, models.ErrPermission)

	_, err = f.svc.Block(ctx, adminA, 7)
	assert.ErrorIs(t, err, models.ErrNotFound)

	changed, err := f.svc.Block(ctx, adminA, 42)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, f.registry.IsBlocked(ctx, 42))

	changed, err = f.svc.Block(ctx, adminA, 42)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.Unblock(ctx, adminB, 42)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.svc.Unblock(ctx, adminB, 42)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.RequestAccess(ctx, 1, "a"))
	require.NoError(t, f.svc.RequestAccess(ctx, 2, "b"))
	require.NoError(t, f.svc.Decide(ctx, adminA, 1, Approve))
	_, err := f.svc.Block(ctx, adminA, 2)
	require.NoError(t, err)

	assert.Equal(t, models.UserStats{Total: 2, Blocked: 1, WithAccess: 1}, f.svc.Stats(ctx))
}

func TestReportStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.svc.RequestAccess(ctx, 1, "a"))

	require.NoError(t, f.svc.ReportStats(ctx))
	last, ok := f.tr.LastSent(adminB)
	require.True(t, ok)
	assert.Contains(t, last.Text, "Всего пользователей: 1")

	f.tr.FailSendTo = map[int64]bool{adminA: true, adminB: true}
	assert.Error(t, f.svc.ReportStats(ctx))
}
