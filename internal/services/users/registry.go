package users

import (
	"context"
	"errors"
	"sync"

	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// UnknownUsername is stored when the platform gives no username
const UnknownUsername = "Unknown"

// Registry serializes read-modify-write cycles over a Store
type Registry struct {
	store  Store
	mu     sync.Mutex
	logger *logrus.Logger
}

func NewRegistry(store Store, logger *logrus.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Snapshot returns the current database. Load failures are logged and yield the empty structure.
func (r *Registry) Snapshot(ctx context.Context) *models.UsersDB {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Registry) loadLocked() *models.UsersDB {
	db, err := r.store.Load()
	if err != nil {
		r.logger.WithError(err).Error("Failed to load users, using an empty database")
	}
	if db == nil {
		db = models.NewUsersDB()
	}
	return db
}

// Update applies fn to a fresh copy of the database and saves the result.
// An unreadable file counts as the empty database, so the next save rewrites it.
// Nothing is saved when fn fails. Save failures are logged, not returned.
func (r *Registry) Update(ctx context.Context, fn func(db *models.UsersDB) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	db := r.loadLocked()
	if err := fn(db); err != nil {
		return err
	}
	if err := r.store.Save(db); err != nil {
		r.logger.WithError(err).Error("Failed to save users")
	}
	return nil
}

// Get returns one user record
func (r *Registry) Get(ctx context.Context, userID int64) (models.UserRecord, bool) {
	return r.Snapshot(ctx).Get(userID)
}

// IsBlocked reports whether the user is on the blocklist
func (r *Registry) IsBlocked(ctx context.Context, userID int64) bool {
	return r.Snapshot(ctx).IsBlocked(userID)
}

// EnsureUser registers an unknown user without GPT access and returns the stored record
func (r *Registry) EnsureUser(ctx context.Context, userID int64, username string) (models.UserRecord, error) {
	if username == "" {
		username = UnknownUsername
	}

	var rec models.UserRecord
	err := r.Update(ctx, func(db *models.UsersDB) error {
		existing, ok := db.Get(userID)
		if ok {
			rec = existing
			return errUnchanged
		}
		rec = models.UserRecord{Username: username, GPTAccess: false}
		db.Put(userID, rec)
		r.logger.WithFields(logrus.Fields{"user_id": userID, "username": username}).Info("Registered new user")
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return rec, nil
	}
	return rec, err
}

// errUnchanged aborts an Update without saving
var errUnchanged = errors.New("unchanged")
