// Package access implements the GPT access approval workflow and the user
// administration around it (listings, blocklist, statistics).
package access

import (
	"context"
	"fmt"

	"github.com/gpt-vpn-tgbot-go/internal/i18n"
	"github.com/gpt-vpn-tgbot-go/internal/menu"
	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/services/users"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	"github.com/sirupsen/logrus"
)

// Decision is an administrator's verdict on a user's GPT access
type Decision int

const (
	Approve Decision = iota
	Decline
	Grant
	Revoke
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case Decline:
		return "decline"
	case Grant:
		return "grant"
	case Revoke:
		return "revoke"
	default:
		return "unknown"
	}
}

// access reports the gpt_access value a decision leads to
func (d Decision) access() bool {
	return d == Approve || d == Grant
}

func (d Decision) notice() string {
	switch d {
	case Approve:
		return i18n.MsgAccessApproved
	case Decline:
		return i18n.MsgAccessDeclined
	case Grant:
		return i18n.MsgAccessGranted
	default:
		return i18n.MsgAccessRevoked
	}
}

type Service struct {
	registry  *users.Registry
	transport transport.Transport
	admins    models.AdminSet
	texts     menu.Translator
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

func NewService(
	registry *users.Registry,
	tr transport.Transport,
	admins models.AdminSet,
	texts menu.Translator,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Service {
	return &Service{
		registry:  registry,
		transport: tr,
		admins:    admins,
		texts:     texts,
		metrics:   metrics,
		logger:    logger,
	}
}

// IsAdmin reports whether id belongs to the fixed admin list
func (s *Service) IsAdmin(id int64) bool {
	return s.admins.Contains(id)
}

// RequestAccess registers the user if needed and asks every admin for a decision.
// Per-admin delivery failures are logged; the request itself never fails because of them.
func (s *Service) RequestAccess(ctx context.Context, userID int64, username string) error {
	rec, err := s.registry.EnsureUser(ctx, userID, username)
	if err != nil {
		return err
	}

	prompt := s.texts.Default(i18n.MsgAccessAdminPrompt, map[string]interface{}{
		"Username": rec.Username,
		"UserID":   userID,
	})
	for _, adminID := range s.admins.IDs() {
		if _, err := s.transport.Send(ctx, adminID, prompt, menu.AccessDecision(userID)); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"admin_id": adminID,
				"user_id":  userID,
			}).Error("Failed to notify admin about access request")
		}
	}

	s.logger.WithField("user_id", userID).Info("GPT access requested")
	return nil
}

// Decide applies an admin decision. Non-admins get ErrPermission and nothing
// changes. Approve, Grant and Revoke of an unknown user return ErrNotFound;
// Decline only notifies. On success the user receives exactly one notice.
func (s *Service) Decide(ctx context.Context, adminID, userID int64, d Decision) error {
	if !s.IsAdmin(adminID) {
		s.metrics.RecordAccessDecision(d.String(), "denied")
		s.logger.WithFields(logrus.Fields{
			"admin_id": adminID,
			"user_id":  userID,
		}).Warn("Access decision by non-admin rejected")
		return models.ErrPermission
	}

	if d != Decline {
		err := s.registry.Update(ctx, func(db *models.UsersDB) error {
			rec, ok := db.Get(userID)
			if !ok {
				return fmt.Errorf("user %d: %w", userID, models.ErrNotFound)
			}
			rec.GPTAccess = d.access()
			db.Put(userID, rec)
			return nil
		})
		if err != nil {
			s.metrics.RecordAccessDecision(d.String(), "error")
			return err
		}
	}

	s.notify(ctx, userID, s.texts.Default(d.notice(), nil))
	s.metrics.RecordAccessDecision(d.String(), "ok")
	s.logger.WithFields(logrus.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"decision": d.String(),
	}).Info("GPT access decision applied")
	return nil
}

func (s *Service) notify(ctx context.Context, userID int64, text string) {
	if _, err := s.transport.Send(ctx, userID, text, menu.Main(s.texts, s.IsAdmin(userID))); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to notify user")
	}
}

// Users returns every registered user sorted by id
func (s *Service) Users(ctx context.Context) []models.UserEntry {
	return s.registry.Snapshot(ctx).Entries()
}

// PendingGrantCandidates lists users without GPT access
func (s *Service) PendingGrantCandidates(ctx context.Context) []models.UserEntry {
	return s.filter(ctx, false)
}

// PendingRevokeCandidates lists users with GPT access
func (s *Service) PendingRevokeCandidates(ctx context.Context) []models.UserEntry {
	return s.filter(ctx, true)
}

func (s *Service) filter(ctx context.Context, access bool) []models.UserEntry {
	var out []models.UserEntry
	for _, e := range s.Users(ctx) {
		if e.Record.GPTAccess == access {
			out = append(out, e)
		}
	}
	return out
}

// Block adds a registered user to the blocklist. The bool is false when the
// user was already blocked.
func (s *Service) Block(ctx context.Context, adminID, userID int64) (bool, error) {
	if !s.IsAdmin(adminID) {
		return false, models.ErrPermission
	}

	var changed bool
	err := s.registry.Update(ctx, func(db *models.UsersDB) error {
		if _, ok := db.Get(userID); !ok {
			return fmt.Errorf("user %d: %w", userID, models.ErrNotFound)
		}
		changed = db.Block(userID)
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.logger.WithFields(logrus.Fields{"admin_id": adminID, "user_id": userID}).Info("User blocked")
	}
	return changed, nil
}

// Unblock removes a user from the blocklist. The bool is false when the user
// was not blocked.
func (s *Service) Unblock(ctx context.Context, adminID, userID int64) (bool, error) {
	if !s.IsAdmin(adminID) {
		return false, models.ErrPermission
	}

	var changed bool
	err := s.registry.Update(ctx, func(db *models.UsersDB) error {
		changed = db.Unblock(userID)
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.logger.WithFields(logrus.Fields{"admin_id": adminID, "user_id": userID}).Info("User unblocked")
	}
	return changed, nil
}

// Stats summarizes the users file
func (s *Service) Stats(ctx context.Context) models.UserStats {
	db := s.registry.Snapshot(ctx)
	stats := models.UserStats{Total: len(db.Users), Blocked: len(db.Blocked)}
	for _, rec := range db.Users {
		if rec.GPTAccess {
			stats.WithAccess++
		}
	}
	return stats
}

// ReportStats sends the current statistics to every admin
func (s *Service) ReportStats(ctx context.Context) error {
	stats := s.Stats(ctx)
	text := s.texts.Default(i18n.MsgAdminStats, map[string]interface{}{
		"Total":      stats.Total,
		"Blocked":    stats.Blocked,
		"WithAccess": stats.WithAccess,
	})

	var failed int
	for _, adminID := range s.admins.IDs() {
		if _, err := s.transport.Send(ctx, adminID, text, nil); err != nil {
			failed++
			s.logger.WithError(err).WithField("admin_id", adminID).Error("Failed to send stats report")
		}
	}
	if failed == len(s.admins) && failed > 0 {
		return fmt.Errorf("stats report undelivered to %d admins", failed)
	}
	return nil
}
