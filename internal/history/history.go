package history

import (
	"sync"

	"github.com/gpt-vpn-tgbot-go/internal/models"
)

// DefaultLimit is the number of turns kept per user
const DefaultLimit = 10

// Manager keeps a bounded, in-memory conversation per user.
// Oldest turns are evicted first once the limit is exceeded.
type Manager struct {
	mu       sync.RWMutex
	limit    int
	sessions map[int64][]models.Turn
}

func NewManager(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit, sessions: make(map[int64][]models.Turn)}
}

// Append adds a turn and trims the sequence to the most recent limit turns
func (m *Manager) Append(userID int64, turn models.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.sessions[userID], turn)
	if over := len(turns) - m.limit; over > 0 {
		trimmed := make([]models.Turn, m.limit)
		copy(trimmed, turns[over:])
		turns = trimmed
	}
	m.sessions[userID] = turns
}

// Get returns a copy of the user's turns, oldest first
func (m *Manager) Get(userID int64) []models.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.sessions[userID]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}

func (m *Manager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Len reports how many turns are stored for a user
func (m *Manager) Len(userID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[userID])
}

func (m *Manager) Limit() int { return m.limit }
