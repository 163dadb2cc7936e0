package broadcast

import (
	"context"
	"time"

	"github.com/gpt-vpn-tgbot-go/internal/middleware"
	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/internal/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Directory lists broadcast recipients
type Directory interface {
	Snapshot(ctx context.Context) *models.UsersDB
}

// Service sends one text to every non-blocked user with a fixed gap between messages
type Service struct {
	directory Directory
	transport transport.Transport
	admins    models.AdminSet
	delay     time.Duration
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

func NewService(
	directory Directory,
	tr transport.Transport,
	admins models.AdminSet,
	delay time.Duration,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Service {
	return &Service{
		directory: directory,
		transport: tr,
		admins:    admins,
		delay:     delay,
		metrics:   metrics,
		logger:    logger,
	}
}

// Send delivers text to every registered, non-blocked user and returns how
// many deliveries succeeded. A failed recipient is logged and skipped.
// Cancelling ctx stops the run between recipients.
func (s *Service) Send(ctx context.Context, adminID int64, text string) (int, error) {
	if !s.admins.Contains(adminID) {
		return 0, models.ErrPermission
	}

	limit := rate.Inf
	if s.delay > 0 {
		limit = rate.Every(s.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	entries := s.directory.Snapshot(ctx).Entries()
	sent := 0
	for _, e := range entries {
		if e.Blocked {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			s.logger.WithError(err).WithField("sent", sent).Warn("Broadcast interrupted")
			return sent, err
		}

		if _, err := s.transport.Send(ctx, e.ID, text, nil); err != nil {
			s.metrics.RecordBroadcast("error")
			s.logger.WithError(err).WithField("user_id", e.ID).Error("Broadcast delivery failed")
			continue
		}
		s.metrics.RecordBroadcast("ok")
		sent++
	}

	s.logger.WithFields(logrus.Fields{
		"admin_id":   adminID,
		"recipients": len(entries),
		"sent":       sent,
	}).Info("Broadcast finished")
	return sent, nil
}
