package users

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gpt-vpn-tgbot-go/internal/models"
)

// Store persists the users database
type Store interface {
	Load() (*models.UsersDB, error)
	Save(db *models.UsersDB) error
}

// FileStore keeps the users database in a JSON file compatible with
// {"users": {"<id>": {"username", "gpt_access"}}, "blocked": [ids]}.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates the file with the empty default structure when it does not exist
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.Save(models.NewUsersDB()); err != nil {
			return nil, fmt.Errorf("create users file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat users file: %w", err)
	}
	return s, nil
}

// Load reads the database. On any failure it returns the empty structure along with the error.
func (s *FileStore) Load() (*models.UsersDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return models.NewUsersDB(), fmt.Errorf("read users file: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return models.NewUsersDB(), nil
	}

	db := models.NewUsersDB()
	if err := json.Unmarshal(raw, db); err != nil {
		return models.NewUsersDB(), fmt.Errorf("decode users file: %w", err)
	}
	if db.Users == nil {
		db.Users = make(map[string]models.UserRecord)
	}
	if db.Blocked == nil {
		db.Blocked = []int64{}
	}
	return db, nil
}

// Save replaces the file atomically
func (s *FileStore) Save(db *models.UsersDB) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	return atomicWriteFile(s.path, data, 0o644)
}

// atomicWriteFile writes to a temp file in the target directory and renames it into place
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}

	f, err := os.CreateTemp(dir, ".users-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}
