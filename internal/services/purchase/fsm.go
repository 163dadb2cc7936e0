// Package purchase implements the VPN purchase flow: a pure transition
// function over models.PurchaseSession and a Machine that persists sessions,
// guards admin events and sends the notifications of each step.
package purchase

import (
	"fmt"

	"github.com/gpt-vpn-tgbot-go/internal/models"
)

// Period is one purchasable VPN subscription length
type Period struct {
	Code  string
	Label string
	Price int
	Days  int
}

var periods = []Period{
	{Code: "1m", Label: "1 месяц", Price: 599, Days: 30},
	{Code: "3m", Label: "3 месяца", Price: 1797, Days: 90},
	{Code: "6m", Label: "6 месяцев", Price: 3594, Days: 180},
	{Code: "1y", Label: "1 год", Price: 7188, Days: 365},
}

// Periods returns the period table in display order
func Periods() []Period {
	out := make([]Period, len(periods))
	copy(out, periods)
	return out
}

// LookupPeriod finds a period by its code
func LookupPeriod(code string) (Period, bool) {
	for _, p := range periods {
		if p.Code == code {
			return p, true
		}
	}
	return Period{}, false
}

// Event drives the purchase state machine
type Event interface {
	Name() string
}

type (
	BuyRequested struct{ Username string }
	// PeriodChosen carries the id the new pending request is stored under
	PeriodChosen struct {
		Code      string
		RequestID string
	}
	MarkedPaid    struct{}
	Cancelled     struct{}
	AdminRejected struct{}
	AdminGranted  struct{}
)

func (BuyRequested) Name() string  { return "buy_requested" }
func (PeriodChosen) Name() string  { return "period_chosen" }
func (MarkedPaid) Name() string    { return "marked_paid" }
func (Cancelled) Name() string     { return "cancelled" }
func (AdminRejected) Name() string { return "admin_rejected" }
func (AdminGranted) Name() string  { return "admin_granted" }

// Apply returns the session that results from ev. On error the returned
// session equals the input.
func Apply(s models.PurchaseSession, ev Event) (models.PurchaseSession, error) {
	if s.State == "" {
		s.State = models.PurchaseIdle
	}

	switch e := ev.(type) {
	case BuyRequested:
		// valid from every state, any in-flight request is dropped
		return models.PurchaseSession{
			UserID:   s.UserID,
			State:    models.PurchaseSelectingPeriod,
			Username: e.Username,
		}, nil

	case PeriodChosen:
		if s.State != models.PurchaseSelectingPeriod {
			return s, invalid(s, ev)
		}
		p, ok := LookupPeriod(e.Code)
		if !ok {
			return s, fmt.Errorf("unknown period %q: %w", e.Code, models.ErrValidation)
		}
		next := s
		next.State = models.PurchaseAwaitingPayment
		next.Pending = &models.PendingVPNRequest{
			RequestID: e.RequestID,
			Code:      p.Code,
			Period:    p.Label,
			Price:     p.Price,
			Days:      p.Days,
			Username:  s.Username,
		}
		return next, nil

	case MarkedPaid:
		if s.State != models.PurchaseAwaitingPayment {
			return s, invalid(s, ev)
		}
		next := s
		next.State = models.PurchaseAwaitingAdminDecision
		next.Paid = true
		return next, nil

	case Cancelled:
		if s.State != models.PurchaseSelectingPeriod && s.State != models.PurchaseAwaitingPayment {
			return s, invalid(s, ev)
		}
		return idle(s), nil

	case AdminRejected, AdminGranted:
		if s.State != models.PurchaseAwaitingAdminDecision {
			return s, invalid(s, ev)
		}
		return idle(s), nil
	}

	return s, fmt.Errorf("unsupported event %T: %w", ev, models.ErrInvalidTransition)
}

func idle(s models.PurchaseSession) models.PurchaseSession {
	return models.PurchaseSession{UserID: s.UserID, State: models.PurchaseIdle, Username: s.Username}
}

func invalid(s models.PurchaseSession, ev Event) error {
	return fmt.Errorf("%s in state %s: %w", ev.Name(), s.State, models.ErrInvalidTransition)
}
