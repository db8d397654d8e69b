package services

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/surveydesk/surveydesk/internal/models"
	"github.com/surveydesk/surveydesk/internal/store"
)

// PasswordScheme controls how passwords are stored and compared.
type PasswordScheme string

const (
	// SchemePlain stores and compares passwords as-is, matching the source
	// system's contract. Default.
	SchemePlain PasswordScheme = "plain"
	// SchemeBcrypt hashes on create and compares with bcrypt.
	SchemeBcrypt PasswordScheme = "bcrypt"
)

// UserRegistry owns the users collection: account creation, removal,
// authentication and listing. The admin account is seeded once and protected
// from removal.
type UserRegistry struct {
	mu     sync.Mutex
	store  store.RecordStore
	scheme PasswordScheme
	now    func() time.Time
}

func NewUserRegistry(rs store.RecordStore, scheme PasswordScheme) *UserRegistry {
	if scheme == "" {
		scheme = SchemePlain
	}
	return &UserRegistry{
		store:  rs,
		scheme: scheme,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureAdmin seeds the admin account if it does not exist yet. It must run
// before any other operation on a fresh store.
func (r *UserRegistry) EnsureAdmin(password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := store.ReadUsers(r.store)
	if err != nil {
		return err
	}
	if _, ok := users[models.AdminID]; ok {
		return nil
	}
	stored, err := r.encode(password)
	if err != nil {
		return err
	}
	users[models.AdminID] = models.User{
		ID:        models.AdminID,
		Password:  stored,
		Role:      models.RoleAdmin,
		CreatedAt: r.now(),
	}
	return store.WriteUsers(r.store, users)
}

// AddUser creates a regular account. Fails with a conflict when the id is
// taken, the admin id included.
func (r *UserRegistry) AddUser(id, password string) (*models.User, error) {
	if id == "" || password == "" {
		return nil, NewInvalidError("id/password required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := store.ReadUsers(r.store)
	if err != nil {
		return nil, err
	}
	if _, ok := users[id]; ok {
		return nil, NewConflictError("user id already exists")
	}
	stored, err := r.encode(password)
	if err != nil {
		return nil, err
	}
	u := models.User{ID: id, Password: stored, Role: models.RoleUser, CreatedAt: r.now()}
	users[id] = u
	if err := store.WriteUsers(r.store, users); err != nil {
		return nil, err
	}
	return &u, nil
}

// RemoveUser deletes a regular account. The admin account is protected.
func (r *UserRegistry) RemoveUser(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, err := store.ReadUsers(r.store)
	if err != nil {
		return err
	}
	u, ok := users[id]
	if !ok {
		return NewNotFoundError("user not found")
	}
	if u.Role == models.RoleAdmin {
		return NewForbiddenError("admin account cannot be removed")
	}
	delete(users, id)
	return store.WriteUsers(r.store, users)
}

// Authenticate returns the user on an exact id+password match under the
// active scheme, otherwise an unauthorized error. Case-sensitive.
func (r *UserRegistry) Authenticate(id, password string) (*models.User, error) {
	users, err := store.ReadUsers(r.store)
	if err != nil {
		return nil, err
	}
	u, ok := users[id]
	if !ok || !r.compare(u.Password, password) {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	return &u, nil
}

// ListUsers returns non-admin user ids in a stable order (creation time,
// then id).
func (r *UserRegistry) ListUsers() ([]string, error) {
	users, err := store.ReadUsers(r.store)
	if err != nil {
		return nil, err
	}
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(users))
	for id, u := range users {
		if u.Role == models.RoleAdmin {
			continue
		}
		entries = append(entries, entry{id: id, at: u.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].id < entries[j].id
		}
		return entries[i].at.Before(entries[j].at)
	})
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.id)
	}
	return out, nil
}

// GetUser returns a copy of the user record, or nil when absent.
func (r *UserRegistry) GetUser(id string) (*models.User, error) {
	users, err := store.ReadUsers(r.store)
	if err != nil {
		return nil, err
	}
	u, ok := users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRegistry) encode(password string) (string, error) {
	if r.scheme == SchemeBcrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", err
		}
		return string(hash), nil
	}
	return password, nil
}

func (r *UserRegistry) compare(stored, supplied string) bool {
	if r.scheme == SchemeBcrypt {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return stored == supplied
}
