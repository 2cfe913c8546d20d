package email

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mailer "github.com/dmitrymomot/notifykit/pkg/email"
)

// Address is the email destination of one user.
type Address struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
	// BouncedAt is set when the provider rejected the address.
	BouncedAt *time.Time `json:"bounced_at,omitempty"`
}

// Directory maps users to their email address. Safe for concurrent use.
type Directory struct {
	mu     sync.RWMutex
	byUser map[string]*Address
	now    func() time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{byUser: make(map[string]*Address), now: time.Now}
}

// Set stores or replaces a user's address and reactivates it.
func (d *Directory) Set(userID, addr string) (Address, error) {
	addr = strings.TrimSpace(addr)
	if strings.TrimSpace(userID) == "" {
		return Address{}, fmt.Errorf("%w: user id is required", ErrInvalidAddress)
	}
	if !mailer.ValidAddress(addr) {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	a := Address{UserID: userID, Email: addr, Active: true, UpdatedAt: d.now()}
	d.mu.Lock()
	d.byUser[userID] = &a
	d.mu.Unlock()
	return a, nil
}

// Get returns the user's address.
func (d *Directory) Get(userID string) (Address, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.byUser[userID]
	if !ok {
		return Address{}, false
	}
	return *a, true
}

// Remove deletes the user's address.
func (d *Directory) Remove(userID string) {
	d.mu.Lock()
	delete(d.byUser, userID)
	d.mu.Unlock()
}

// Deactivate marks the user's address as bounced if it still matches addr.
func (d *Directory) Deactivate(userID, addr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.byUser[userID]
	if !ok || !strings.EqualFold(a.Email, addr) {
		return ErrAddressNotFound
	}
	now := d.now()
	a.Active = false
	a.BouncedAt = &now
	return nil
}

// Targets returns the user's address when it is active.
func (d *Directory) Targets(userID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if a, ok := d.byUser[userID]; ok && a.Active {
		return []string{a.Email}
	}
	return nil
}

// Len returns the number of stored addresses.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byUser)
}
