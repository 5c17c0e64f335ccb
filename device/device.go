// Package device mints the per-browser identity used as the like key.
// The identity is a throttle, not a credential: it is random, unverified and
// trivially replaced by the client.
package device

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// CookieName is the fixed local key holding the identity.
	CookieName = "deviceId"
	prefix     = "device-"
	maxAge     = 365 * 24 * time.Hour
)

type Store interface {
	Load() (string, bool)
	Save(id string) error
}

// NewID returns a fresh identity carrying 122 random bits.
func NewID() string {
	return prefix + uuid.NewString()
}

// Valid rejects values a client could use to smuggle markup or oversized
// keys into the store.
func Valid(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

// GetOrCreate returns the persisted identity, minting and saving one on the
// first call.
func GetOrCreate(s Store) (string, error) {
	if id, ok := s.Load(); ok && Valid(id) {
		return id, nil
	}
	id := NewID()
	if err := s.Save(id); err != nil {
		return "", err
	}
	return id, nil
}

type MemoryStore struct {
	mu sync.Mutex
	id string
}

func (m *MemoryStore) Load() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != ""
}

func (m *MemoryStore) Save(id string) error {
	m.mu.Lock()
	m.id = id
	m.mu.Unlock()
	return nil
}

// CookieStore persists the identity in the visitor's browser.
type CookieStore struct {
	r      *http.Request
	w      http.ResponseWriter
	Secure bool
}

func NewCookieStore(w http.ResponseWriter, r *http.Request) *CookieStore {
	return &CookieStore{r: r, w: w, Secure: r.TLS != nil}
}

func (c *CookieStore) Load() (string, bool) {
	cookie, err := c.r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(cookie.Value), cookie.Value != ""
}

func (c *CookieStore) Save(id string) error {
	http.SetCookie(c.w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

type ctxKey struct{}

func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

// Middleware makes sure every request carries a device identity.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetOrCreate(NewCookieStore(w, r))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}
