package push

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultTokenTTL is how long a token stays valid without being refreshed.
const DefaultTokenTTL = 90 * 24 * time.Hour

// Platform identifies the push service a token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
}

// Device is one registered push destination.
type Device struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Token          string    `json:"token"`
	Platform       Platform  `json:"platform"`
	AppVersion     string    `json:"app_version,omitempty"`
	Language       string    `json:"language,omitempty"`
	Active         bool      `json:"active"`
	RegisteredAt   time.Time `json:"registered_at"`
	LastSeen       time.Time `json:"last_seen"`
	TokenUpdatedAt time.Time `json:"token_updated_at"`
}

// Expired reports whether the token has not been refreshed within ttl.
func (d Device) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(d.TokenUpdatedAt) > ttl
}

// Registry tracks devices and badge counters per user. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byToken map[string]*Device
	byUser  map[string][]string
	badges  map[string]*badge

	ttl time.Duration
	now func() time.Time
}

// NewRegistry creates an empty registry. A zero ttl uses DefaultTokenTTL.
func NewRegistry(ttl time.Duration, now func() time.Time) *Registry {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		byToken: make(map[string]*Device),
		byUser:  make(map[string][]string),
		badges:  make(map[string]*badge),
		ttl:     ttl,
		now:     now,
	}
}

// Register adds or refreshes a device. Re-registering a known token moves it
// to the new user and marks it active again.
func (r *Registry) Register(d Device) (Device, error) {
	if strings.TrimSpace(d.UserID) == "" || strings.TrimSpace(d.Token) == "" {
		return Device{}, fmt.Errorf("%w: user id and token are required", ErrInvalidDevice)
	}
	platform, err := ParsePlatform(string(d.Platform))
	if err != nil {
		return Device{}, err
	}
	d.Platform = platform

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byToken[d.Token]; ok {
		d.RegisteredAt = prev.RegisteredAt
		if prev.UserID != d.UserID {
			r.unlinkLocked(prev.UserID, d.Token)
			r.byUser[d.UserID] = append(r.byUser[d.UserID], d.Token)
		}
	} else {
		d.RegisteredAt = now
		r.byUser[d.UserID] = append(r.byUser[d.UserID], d.Token)
	}
	if d.ID == "" {
		d.ID = d.Token
	}
	d.Active = true
	d.LastSeen = now
	d.TokenUpdatedAt = now

	stored := d
	r.byToken[d.Token] = &stored
	return stored, nil
}

// Unregister removes a device by token.
func (r *Registry) Unregister(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byToken[token]
	if !ok {
		return ErrDeviceNotFound
	}
	delete(r.byToken, token)
	r.unlinkLocked(d.UserID, token)
	return nil
}

// UnregisterUser removes every device of a user and returns how many.
func (r *Registry) UnregisterUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens := r.byUser[userID]
	for _, tok := range tokens {
		delete(r.byToken, tok)
	}
	delete(r.byUser, userID)
	delete(r.badges, userID)
	return len(tokens)
}

// Deactivate marks a token inactive so it no longer receives sends.
func (r *Registry) Deactivate(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byToken[token]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Active = false
	return nil
}

// UpdateToken replaces a device token, keeping the rest of the registration.
func (r *Registry) UpdateToken(oldToken, newToken string) error {
	if strings.TrimSpace(newToken) == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidDevice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byToken[oldToken]
	if !ok {
		return ErrDeviceNotFound
	}
	delete(r.byToken, oldToken)
	r.unlinkLocked(d.UserID, oldToken)

	d.Token = newToken
	d.Active = true
	d.TokenUpdatedAt = r.now()
	r.byToken[newToken] = d
	r.byUser[d.UserID] = append(r.byUser[d.UserID], newToken)
	return nil
}

// Touch records activity for a token.
func (r *Registry) Touch(token string) {
	r.mu.Lock()
	if d, ok := r.byToken[token]; ok {
		d.LastSeen = r.now()
	}
	r.mu.Unlock()
}

// Device returns the registration of token.
func (r *Registry) Device(token string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byToken[token]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Devices returns every device of a user, active or not.
func (r *Registry) Devices(userID string) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.byUser[userID]))
	for _, tok := range r.byUser[userID] {
		out = append(out, *r.byToken[tok])
	}
	return out
}

// ActiveTokens returns the user's tokens that are active and not expired.
func (r *Registry) ActiveTokens(userID string) []string {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, tok := range r.byUser[userID] {
		d := r.byToken[tok]
		if d.Active && !d.Expired(now, r.ttl) {
			out = append(out, tok)
		}
	}
	return out
}

// Cleanup drops inactive and expired devices and returns how many.
func (r *Registry) Cleanup() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for tok, d := range r.byToken {
		if d.Active && !d.Expired(now, r.ttl) {
			continue
		}
		delete(r.byToken, tok)
		r.unlinkLocked(d.UserID, tok)
		removed++
	}
	return removed
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}

// maxCountedIDs bounds the notification ids remembered per badge.
const maxCountedIDs = 512

type badge struct {
	count   int
	counted map[string]struct{}
}

// NextBadge returns the value the user's badge will have once
// notificationID is counted. It does not change the counter.
func (r *Registry) NextBadge(userID, notificationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.badges[userID]
	if !ok {
		return 1
	}
	if _, seen := b.counted[notificationID]; seen && notificationID != "" {
		return b.count
	}
	return b.count + 1
}

// IncrementBadge counts notificationID towards the user's unread badge and
// returns the new value. A notification is counted once no matter how many
// devices or attempts delivered it. An empty id always increments.
func (r *Registry) IncrementBadge(userID, notificationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.badges[userID]
	if !ok {
		b = &badge{counted: make(map[string]struct{})}
		r.badges[userID] = b
	}
	if notificationID != "" {
		if _, seen := b.counted[notificationID]; seen {
			return b.count
		}
		if len(b.counted) >= maxCountedIDs {
			clear(b.counted)
		}
		b.counted[notificationID] = struct{}{}
	}
	b.count++
	return b.count
}

// SetBadge overwrites the user's badge counter. Negative values clear it.
func (r *Registry) SetBadge(userID string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if count <= 0 {
		delete(r.badges, userID)
		return
	}
	r.badges[userID] = &badge{count: count, counted: make(map[string]struct{})}
}

// ClearBadge resets the user's badge counter.
func (r *Registry) ClearBadge(userID string) { r.SetBadge(userID, 0) }

// Badge returns the user's badge counter.
func (r *Registry) Badge(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.badges[userID]; ok {
		return b.count
	}
	return 0
}

func (r *Registry) unlinkLocked(userID, token string) {
	tokens := slices.DeleteFunc(r.byUser[userID], func(t string) bool { return t == token })
	if len(tokens) == 0 {
		delete(r.byUser, userID)
		return
	}
	r.byUser[userID] = tokens
}
