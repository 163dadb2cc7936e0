package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/menu"
	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	"github.com/sirupsen/logrus"
)

// SessionStore persists purchase sessions. A missing session is nil, nil.
type SessionStore interface {
	GetPurchase(ctx context.Context, userID int64) (*models.PurchaseSession, error)
	SavePurchase(ctx context.Context, session *models.PurchaseSession) error
	DeletePurchase(ctx context.Context, userID int64) error
}

// Blocklist reports blocked users
type Blocklist interface {
	IsBlocked(ctx context.Context, userID int64) bool
}

// Machine runs purchase events for one user at a time
type Machine struct {
	store          SessionStore
	blocklist      Blocklist
	transport      transport.Transport
	admins         models.AdminSet
	texts          menu.Translator
	paymentDetails string
	metrics        *middleware.Metrics
	logger         *logrus.Logger

	locks *keyedMutex
	newID func() string
	now   func() time.Time
}

func NewMachine(
	store SessionStore,
	blocklist Blocklist,
	tr transport.Transport,
	admins models.AdminSet,
	texts menu.Translator,
	paymentDetails string,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Machine {
	return &Machine{
		store:          store,
		blocklist:      blocklist,
		transport:      tr,
		admins:         admins,
		texts:          texts,
		paymentDetails: paymentDetails,
		metrics:        metrics,
		logger:         logger,
		locks:          newKeyedMutex(),
		newID:          uuid.NewString,
		now:            time.Now,
	}
}

// State returns the user's current purchase session
func (m *Machine) State(ctx context.Context, userID int64) (models.PurchaseSession, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.load(ctx, userID)
}

// Buy starts (or restarts) the flow and offers the period menu.
// Blocked users get ErrBlocked after being told so.
func (m *Machine) Buy(ctx context.Context, userID int64, username string) error {
	if m.blocklist.IsBlocked(ctx, userID) {
		m.metrics.RecordPurchaseTransition(BuyRequested{}.Name(), "blocked")
		m.send(ctx, userID, m.texts.Default(i18n.MsgBlocked, nil), m.mainMenu(userID))
		return models.ErrBlocked
	}

	if _, err := m.transition(ctx, userID, BuyRequested{Username: username}); err != nil {
		return err
	}

	m.send(ctx, userID, m.texts.Default(i18n.MsgVPNSelectPeriod, nil), menu.Periods(m.texts, periodButtons()))
	return nil
}

// ChoosePeriod records the selected period and shows payment details in
// place of origin. An unknown code yields ErrValidation and no state change.
func (m *Machine) ChoosePeriod(ctx context.Context, userID int64, code string, origin transport.MessageRef) error {
	next, err := m.transition(ctx, userID, PeriodChosen{Code: code, RequestID: m.newID()})
	if err != nil {
		return err
	}

	text := m.texts.Default(i18n.MsgVPNPaymentDetails, map[string]interface{}{
		"Period":  next.Pending.Period,
		"Price":   next.Pending.Price,
		"Details": m.paymentDetails,
	})
	m.reply(ctx, userID, origin, text, menu.Payment(m.texts))
	return nil
}

// MarkPaid moves the request to admin review and asks every admin to decide
func (m *Machine) MarkPaid(ctx context.Context, userID int64, origin transport.MessageRef) error {
	next, err := m.transition(ctx, userID, MarkedPaid{})
	if err != nil {
		return err
	}

	m.reply(ctx, userID, origin, m.texts.Default(i18n.MsgVPNRequestAccepted, nil), nil)

	prompt := m.texts.Default(i18n.MsgVPNAdminPrompt, map[string]interface{}{
		"Username":  next.Pending.Username,
		"UserID":    userID,
		"Period":    next.Pending.Period,
		"Price":     next.Pending.Price,
		"RequestID": next.Pending.RequestID,
	})
	for _, adminID := range m.admins.IDs() {
		if _, err := m.transport.Send(ctx, adminID, prompt, menu.VPNDecision(m.texts, userID)); err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"admin_id": adminID,
				"user_id":  userID,
			}).Error("Failed to notify admin about VPN request")
		}
	}
	return nil
}

// Cancel abandons the flow before payment is confirmed
func (m *Machine) Cancel(ctx context.Context, userID int64, origin transport.MessageRef) error {
	if _, err := m.transition(ctx, userID, Cancelled{}); err != nil {
		return err
	}
	m.reply(ctx, userID, origin, m.texts.Default(i18n.MsgVPNCancelled, nil), m.mainMenu(userID))
	return nil
}

// Reject closes a paid request without granting it and tells the user
func (m *Machine) Reject(ctx context.Context, adminID, userID int64) (*models.PendingVPNRequest, error) {
	return m.decide(ctx, adminID, userID, AdminRejected{})
}

// Grant confirms a paid request and tells the user
func (m *Machine) Grant(ctx context.Context, adminID, userID int64) (*models.PendingVPNRequest, error) {
	return m.decide(ctx, adminID, userID, AdminGranted{})
}

func (m *Machine) decide(ctx context.Context, adminID, userID int64, ev Event) (*models.PendingVPNRequest, error) {
	if !m.admins.Contains(adminID) {
		m.metrics.RecordPurchaseTransition(ev.Name(), "denied")
		return nil, models.ErrPermission
	}

	var pending *models.PendingVPNRequest
	unlock := m.locks.Lock(userID)
	current, err := m.load(ctx, userID)
	if err == nil {
		pending = current.Pending
		_, err = m.applyLocked(ctx, current, ev)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	if pending == nil {
		pending = &models.PendingVPNRequest{}
	}

	var text string
	if _, ok := ev.(AdminGranted); ok {
		text = m.texts.Default(i18n.MsgVPNGranted, map[string]interface{}{
			"Period": pending.Period,
			"Days":   pending.Days,
		})
	} else {
		text = m.texts.Default(i18n.MsgVPNRejected, nil)
	}
	m.send(ctx, userID, text, m.mainMenu(userID))

	m.logger.WithFields(logrus.Fields{
		"admin_id":   adminID,
		"user_id":    userID,
		"event":      ev.Name(),
		"request_id": pending.RequestID,
	}).Info("VPN request decided")
	return pending, nil
}

// transition loads, applies and stores under the user's lock
func (m *Machine) transition(ctx context.Context, userID int64, ev Event) (models.PurchaseSession, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	current, err := m.load(ctx, userID)
	if err != nil {
		return current, err
	}
	return m.applyLocked(ctx, current, ev)
}

func (m *Machine) applyLocked(ctx context.Context, current models.PurchaseSession, ev Event) (models.PurchaseSession, error) {
	next, err := Apply(current, ev)
	if err != nil {
		status := "error"
		if errors.Is(err, models.ErrInvalidTransition) {
			status = "invalid"
		} else if errors.Is(err, models.ErrValidation) {
			status = "validation"
		}
		m.metrics.RecordPurchaseTransition(ev.Name(), status)
		m.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": current.UserID,
			"state":   current.State,
			"event":   ev.Name(),
		}).Warn("Purchase event rejected")
		return current, err
	}

	next.UpdatedAt = m.now()
	if next.State == models.PurchaseIdle {
		err = m.store.DeletePurchase(ctx, next.UserID)
	} else {
		err = m.store.SavePurchase(ctx, &next)
	}
	if err != nil {
		m.metrics.RecordPurchaseTransition(ev.Name(), "error")
		return current, err
	}

	m.metrics.RecordPurchaseTransition(ev.Name(), "ok")
	m.logger.WithFields(logrus.Fields{
		"user_id": next.UserID,
		"event":   ev.Name(),
		"state":   next.State,
	}).Debug("Purchase state changed")
	return next, nil
}

func (m *Machine) load(ctx context.Context, userID int64) (models.PurchaseSession, error) {
	s, err := m.store.GetPurchase(ctx, userID)
	if err != nil {
		return *models.NewPurchaseSession(userID), err
	}
	if s == nil {
		return *models.NewPurchaseSession(userID), nil
	}
	return *s, nil
}

func (m *Machine) mainMenu(userID int64) *transport.Keyboard {
	return menu.Main(m.texts, m.admins.Contains(userID))
}

func (m *Machine) send(ctx context.Context, chatID int64, text string, kb *transport.Keyboard) {
	if _, err := m.transport.Send(ctx, chatID, text, kb); err != nil {
		m.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to send purchase notice")
	}
}

// reply edits origin when it is set, otherwise sends a new message.
// Reply keyboards cannot be attached to edits and are dropped there.
func (m *Machine) reply(ctx context.Context, chatID int64, origin transport.MessageRef, text string, kb *transport.Keyboard) {
	if origin.MessageID == 0 {
		m.send(ctx, chatID, text, kb)
		return
	}
	if kb != nil && kb.Reply {
		kb = nil
	}
	err := m.transport.Edit(ctx, origin, text, kb)
	if err != nil && !errors.Is(err, transport.ErrNotModified) {
		m.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to edit purchase message, sending instead")
		m.send(ctx, chatID, text, kb)
	}
}

func periodButtons() []menu.Period {
	out := make([]menu.Period, 0, len(periods))
	for _, p := range periods {
		out = append(out, menu.Period{Code: p.Code, Label: p.Label})
	}
	return out
}
