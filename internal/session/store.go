package session

import (
	"context"
	"sync"
	"time"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/metrics"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/pkg/log"
)

const (
	defaultLoginFailure    = "Login failed"
	defaultRegisterFailure = "Registration failed"
)

// AuthAPI is the slice of the backend the store talks to.
type AuthAPI interface {
	SignIn(ctx context.Context, usernameOrEmail, password string) (*model.AuthResponse, error)
	SignUp(ctx context.Context, req model.RegisterRequest) (string, error)
	// Me returns the identity behind the credential the store currently holds.
	Me(ctx context.Context) (*model.User, error)
}

type LoginResult struct {
	Success bool
	Session *model.Session
	Message string
}

type RegisterResult struct {
	Success bool
	Message string
	// Err carries the classified failure, e.g. a validation error with per-field messages.
	Err error
}

// Store owns the process-wide session and bearer credential. Other
// components read through Current and Credential and learn about changes via
// Watch; only the store mutates.
type Store struct {
	api  AuthAPI
	repo CredentialRepository
	now  func() time.Time
	log  log.Logger

	mu         sync.RWMutex
	session    *model.Session
	credential string

	watchers watchers
}

type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a signed-out store. A nil repo keeps the credential in memory only.
func NewStore(api AuthAPI, repo CredentialRepository, opts ...Option) *Store {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	s := &Store{
		api:  api,
		repo: repo,
		now:  time.Now,
		log:  log.WithName("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAPI attaches the backend after construction. The gateway needs the
// store as its credential source, so the two are wired in two steps.
func (s *Store) SetAPI(api AuthAPI) {
	s.mu.Lock()
	s.api = api
	s.mu.Unlock()
}

func (s *Store) authAPI() AuthAPI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.api
}

// Credential returns the bearer credential at the moment of the call, or "".
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// Current returns a copy of the active session.
func (s *Store) Current() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return model.Session{}, false
	}
	return *s.session, true
}

// Watch registers fn for session changes and returns its disposer.
func (s *Store) Watch(fn func(Event)) func() {
	return s.watchers.add(fn)
}

// Login signs in and never fails loudly: errors become a message.
func (s *Store) Login(ctx context.Context, usernameOrEmail, password string) LoginResult {
	if usernameOrEmail == "" || password == "" {
		return LoginResult{Message: "Username and password are required"}
	}

	resp, err := s.authAPI().SignIn(ctx, usernameOrEmail, password)
	if err != nil {
		s.log.Warn("Sign-in rejected", "user", usernameOrEmail, "error", err.Error())
		return LoginResult{Message: apperr.MessageOf(err, defaultLoginFailure)}
	}

	credential := resp.Credential()
	if credential == "" {
		return LoginResult{Message: defaultLoginFailure}
	}

	// Opaque (non-JWT) tokens carry no expiry; the server still vouched for them.
	exp, _ := decodeExpiry(credential)

	sess := model.Session{
		UserID:     resp.ID,
		Username:   resp.Username,
		Email:      resp.Email,
		Role:       resp.Role,
		Credential: credential,
		ExpiresAt:  exp,
	}

	if err := s.repo.Save(ctx, credential); err != nil {
		s.log.Error(err, "Failed to persist credential")
	}
	s.install(sess, Event{Type: EventSignedIn})

	s.log.Info("Signed in", "user", sess.Username, "role", sess.Role)
	return LoginResult{Success: true, Session: &sess}
}

// Register validates locally, then creates the account. It does not sign in.
func (s *Store) Register(ctx context.Context, req model.RegisterRequest) RegisterResult {
	if err := validateRegistration(req); err != nil {
		return RegisterResult{Message: "Please fix the highlighted fields", Err: err}
	}

	msg, err := s.authAPI().SignUp(ctx, req)
	if err != nil {
		return RegisterResult{Message: apperr.MessageOf(err, defaultRegisterFailure), Err: err}
	}
	return RegisterResult{Success: true, Message: msg}
}

// Logout drops the session and the credential. Safe to call at any time.
func (s *Store) Logout() {
	s.logout("")
}

// HandleError tears the session down when err is an authentication failure.
// The gateway calls it for every failed authenticated request.
func (s *Store) HandleError(err error) {
	if apperr.IsAuth(err) && s.Credential() != "" {
		s.logout("credential rejected by server")
	}
}

// Restore signs back in with a persisted credential, if any. Expired,
// malformed or rejected credentials sign out instead; nothing is retried.
func (s *Store) Restore(ctx context.Context) error {
	credential, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if credential == "" {
		return nil
	}

	exp, err := checkCredential(credential, s.now())
	if err != nil {
		s.log.Info("Discarding persisted credential", "reason", err.Error())
		s.logout(err.Error())
		return nil
	}

	// The gateway reads the credential from the store, so it has to be in
	// place before /auth/me is called.
	s.mu.Lock()
	s.credential = credential
	s.mu.Unlock()

	user, err := s.authAPI().Me(ctx)
	if err != nil {
		s.log.Warn("Restoring session failed", "error", err.Error())
		s.logout("identity lookup failed")
		return nil
	}

	s.mu.RLock()
	current := s.credential
	s.mu.RUnlock()
	if current != credential {
		// Logged out or replaced while /auth/me was in flight.
		return nil
	}

	s.install(model.Session{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.FullName(),
		Role:        user.Role,
		Credential:  credential,
		ExpiresAt:   exp,
	}, Event{Type: EventRestored})
	return nil
}

// CheckExpiry signs out once the held credential has expired. Call it on a
// timer; the backend rejects expired tokens anyway.
func (s *Store) CheckExpiry() bool {
	sess, ok := s.Current()
	if !ok || !sess.Expired(s.now()) {
		return false
	}
	s.logout(ErrExpiredCredential.Error())
	return true
}

func (s *Store) install(sess model.Session, ev Event) {
	s.mu.Lock()
	s.session = &sess
	s.credential = sess.Credential
	s.mu.Unlock()

	metrics.SessionActive.Set(1)
	ev.Session = sess
	s.watchers.publish(ev)
}

func (s *Store) logout(reason string) {
	s.mu.Lock()
	had := s.session != nil
	s.session = nil
	s.credential = ""
	s.mu.Unlock()

	if err := s.repo.Clear(context.Background()); err != nil {
		s.log.Error(err, "Failed to clear persisted credential")
	}
	metrics.SessionActive.Set(0)

	if had {
		if reason != "" {
			s.log.Info("Signed out", "reason", reason)
		}
		s.watchers.publish(Event{Type: EventSignedOut, Reason: reason})
	}
}
