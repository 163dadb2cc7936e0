package models

import (
	"sort"
	"strconv"
	"time"
)

// Role tags a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn represents one entry of a user's conversation history.
// ImageURL is set only for photo messages.
type Turn struct {
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// HasImage reports whether the turn carries structured text+image content
func (t Turn) HasImage() bool {
	return t.ImageURL != ""
}

// UserTurn creates a user turn, optionally with an image reference
func UserTurn(text, imageURL string) Turn {
	return Turn{Role: RoleUser, Text: text, ImageURL: imageURL}
}

// AssistantTurn creates an assistant turn
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// UserRecord is a persisted bot user
type UserRecord struct {
	Username  string `json:"username"`
	GPTAccess bool   `json:"gpt_access"`
}

// UserEntry is a user record together with its id, used in listings
type UserEntry struct {
	ID      int64
	Record  UserRecord
	Blocked bool
}

// UsersDB mirrors the users file: records keyed by decimal id plus the blocked list
type UsersDB struct {
	Users   map[string]UserRecord `json:"users"`
	Blocked []int64               `json:"blocked"`
}

// NewUsersDB returns the empty default structure
func NewUsersDB() *UsersDB {
	return &UsersDB{
		Users:   make(map[string]UserRecord),
		Blocked: []int64{},
	}
}

// Get returns the record for a user id
func (db *UsersDB) Get(userID int64) (UserRecord, bool) {
	rec, ok := db.Users[strconv.FormatInt(userID, 10)]
	return rec, ok
}

// Put stores the record for a user id
func (db *UsersDB) Put(userID int64, rec UserRecord) {
	if db.Users == nil {
		db.Users = make(map[string]UserRecord)
	}
	db.Users[strconv.FormatInt(userID, 10)] = rec
}

// IsBlocked reports membership in the blocked set
func (db *UsersDB) IsBlocked(userID int64) bool {
	for _, id := range db.Blocked {
		if id == userID {
			return true
		}
	}
	return false
}

// Block adds the user to the blocked set. Returns false if already blocked.
func (db *UsersDB) Block(userID int64) bool {
	if db.IsBlocked(userID) {
		return false
	}
	db.Blocked = append(db.Blocked, userID)
	return true
}

// Unblock removes the user from the blocked set. Returns false if not blocked.
func (db *UsersDB) Unblock(userID int64) bool {
	for i, id := range db.Blocked {
		if id == userID {
			db.Blocked = append(db.Blocked[:i], db.Blocked[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns all users sorted by id. Keys that are not numeric are skipped.
func (db *UsersDB) Entries() []UserEntry {
	entries := make([]UserEntry, 0, len(db.Users))
	for key, rec := range db.Users {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, UserEntry{ID: id, Record: rec, Blocked: db.IsBlocked(id)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// PendingVPNRequest bridges period selection and admin confirmation
type PendingVPNRequest struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Period    string `json:"period"`
	Price     int    `json:"price"`
	Days      int    `json:"days"`
	Username  string `json:"username"`
}

// PurchaseState is the position of a user in the VPN purchase flow
type PurchaseState string

const (
	PurchaseIdle                  PurchaseState = "idle"
	PurchaseSelectingPeriod       PurchaseState = "selecting_period"
	PurchaseAwaitingPayment       PurchaseState = "awaiting_payment"
	PurchaseAwaitingAdminDecision PurchaseState = "awaiting_admin_decision"
)

// PurchaseSession is the persisted per-user purchase context
type PurchaseSession struct {
	UserID    int64              `json:"user_id"`
	State     PurchaseState      `json:"state"`
	Username  string             `json:"username"`
	Pending   *PendingVPNRequest `json:"pending,omitempty"`
	Paid      bool               `json:"paid"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewPurchaseSession returns the idle session for a user
func NewPurchaseSession(userID int64) *PurchaseSession {
	return &PurchaseSession{UserID: userID, State: PurchaseIdle}
}

// UserStats is a summary of the users file
type UserStats struct {
	Total      int
	Blocked    int
	WithAccess int
}

// AdminSet is the fixed allow-list of administrator ids
type AdminSet map[int64]struct{}

// NewAdminSet builds an admin set from ids
func NewAdminSet(ids []int64) AdminSet {
	set := make(AdminSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is an administrator
func (s AdminSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns administrator ids in ascending order
func (s AdminSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
