// Package auth signs administrators in and out. Accounts live in the record
// store with bcrypt password hashes; the signed-in email rides in a
// gorilla/sessions cookie.
package auth

import (
	"context"
	"encoding/gob"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/aquilax/treeboard/database"
	"github.com/aquilax/treeboard/tree"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionName       = "treeboard"
	MinPasswordLength = 6
	SignInPath        = "/auth"

	emailKey = "email"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrAccountExists      = errors.New("user already registered")
	ErrSignUpDisabled     = errors.New("sign up is disabled")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
)

// Accounts is the slice of the record store auth needs.
type Accounts interface {
	GetAdmin(ctx context.Context, email string) (*tree.Admin, error)
	AddAdmin(ctx context.Context, a *tree.Admin) error
}

type Flash struct {
	Kind    string
	Message string
}

const (
	FlashSuccess = "success"
	FlashError   = "error"
)

func init() {
	gob.Register(Flash{})
}

type Auth struct {
	accounts    Accounts
	store       sessions.Store
	AllowSignUp bool
	Cost        int
}

func New(accounts Accounts, store sessions.Store) *Auth {
	return &Auth{
		accounts:    accounts,
		store:       store,
		AllowSignUp: true,
		Cost:        bcrypt.DefaultCost,
	}
}

// NewCookieStore returns the session store used by the server.
func NewCookieStore(secret []byte, secure bool) *sessions.CookieStore {
	s := sessions.NewCookieStore(secret)
	s.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validate(email, password string) error {
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// Register creates an account regardless of AllowSignUp.
func (a *Auth) Register(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if err := validate(email, password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.Cost)
	if err != nil {
		return err
	}
	err = a.accounts.AddAdmin(ctx, &tree.Admin{Email: email, PasswordHash: string(hash)})
	if errors.Is(err, database.ErrDuplicate) {
		return ErrAccountExists
	}
	return err
}

func (a *Auth) SignUp(ctx context.Context, email, password string) error {
	if !a.AllowSignUp {
		return ErrSignUpDisabled
	}
	return a.Register(ctx, email, password)
}

// Verify checks the credentials without touching the session.
func (a *Auth) Verify(ctx context.Context, email, password string) error {
	admin, err := a.accounts.GetAdmin(ctx, normalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (a *Auth) SignIn(w http.ResponseWriter, r *http.Request, email, password string) error {
	if err := a.Verify(r.Context(), email, password); err != nil {
		return err
	}
	s, _ := a.store.Get(r, SessionName)
	s.Values[emailKey] = normalizeEmail(email)
	return s.Save(r, w)
}

func (a *Auth) SignOut(w http.ResponseWriter, r *http.Request) error {
	s, _ := a.store.Get(r, SessionName)
	delete(s.Values, emailKey)
	return s.Save(r, w)
}

// Current returns the signed-in email, if any.
func (a *Auth) Current(r *http.Request) (string, bool) {
	s, err := a.store.Get(r, SessionName)
	if err != nil {
		return "", false
	}
	email, ok := s.Values[emailKey].(string)
	return email, ok && email != ""
}

// Require redirects anonymous requests to the sign in page.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.Current(r); !ok {
			http.Redirect(w, r, SignInPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddFlash queues a one-shot notification for the next rendered page.
func (a *Auth) AddFlash(w http.ResponseWriter, r *http.Request, kind, message string) error {
	s, _ := a.store.Get(r, SessionName)
	s.AddFlash(Flash{Kind: kind, Message: message})
	return s.Save(r, w)
}

// Flashes pops the queued notifications.
func (a *Auth) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	s, err := a.store.Get(r, SessionName)
	if err != nil {
		return nil
	}
	raw := s.Flashes()
	if len(raw) == 0 {
		return nil
	}
	var out []Flash
	for _, f := range raw {
		if fl, ok := f.(Flash); ok {
			out = append(out, fl)
		}
	}
	s.Save(r, w)
	return out
}
