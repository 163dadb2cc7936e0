package users

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gpt-vpn-tgbot-go/internal/models"
	"github.com/gpt-vpn-tgbot-go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "users.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":{},"blocked":[]}`, string(raw))

	db, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, db.Users)
	assert.Empty(t, db.Blocked)
}

func TestFileStore_ReadsOriginalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "users": {"403786501": {"username": "admin", "gpt_access": true}, "55": {"username": "bob", "gpt_access": false}},
  "blocked": [55]
}`), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	db, err := s.Load()
	require.NoError(t, err)

	rec, ok := db.Get(403786501)
	require.True(t, ok)
	assert.True(t, rec.GPTAccess)
	assert.True(t, db.IsBlocked(55))
}

func TestFileStore_CorruptFileYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	db, err := s.Load()
	assert.Error(t, err)
	require.NotNil(t, db)
	assert.Empty(t, db.Users)
}

func TestFileStore_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	db := models.NewUsersDB()
	db.Put(1, models.UserRecord{Username: "Пётр", GPTAccess: true})
	db.Block(2)
	require.NoError(t, s.Save(db))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, db, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	return NewRegistry(s, logger.Discard())
}

func TestRegistry_EnsureUser(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	rec, err := r.EnsureUser(ctx, 10, "")
	require.NoError(t, err)
	assert.Equal(t, models.UserRecord{Username: UnknownUsername}, rec)

	require.NoError(t, r.Update(ctx, func(db *models.UsersDB) error {
		db.Put(10, models.UserRecord{Username: "alice", GPTAccess: true})
		return nil
	}))

	rec, err = r.EnsureUser(ctx, 10, "other")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
	assert.True(t, rec.GPTAccess)
}

func TestRegistry_UpdateErrorSkipsSave(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	boom := errors.New("boom")

	err := r.Update(ctx, func(db *models.UsersDB) error {
		db.Put(1, models.UserRecord{Username: "x"})
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := r.Get(ctx, 1)
	assert.False(t, ok)
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := r.EnsureUser(ctx, id, "u")
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	assert.Len(t, r.Snapshot(ctx).Users, 20)
}

func TestRegistry_CorruptFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o644))
	s, err := NewFileStore(path)
	require.NoError(t, err)
	r := NewRegistry(s, logger.Discard())

	rec, err := r.EnsureUser(ctx, 7, "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", rec.Username)

	// the save replaced the corrupt file with a readable one
	db, err := s.Load()
	require.NoError(t, err)
	_, ok := db.Get(7)
	assert.True(t, ok)
}
