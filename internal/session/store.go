package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swrite/swrite-agent/internal/logging"
)

type EventKind int

const (
	SignedIn EventKind = iota
	SignedOut
	Expired
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on every session change. Session is nil
// unless Kind is SignedIn.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Store is the single owner of the live session.
type Store struct {
	provider Provider
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	current *Session
	expiry  *time.Timer
	subs    map[int]func(Event)
	nextSub int
}

func NewStore(provider Provider, logger *slog.Logger) *Store {
	return &Store{
		provider: provider,
		logger:   logging.WithComponent(logger, "session"),
		now:      time.Now,
		subs:     make(map[int]func(Event)),
	}
}

// Init loads the persisted session once. An expired session is cleared
// from the provider.
func (s *Store) Init(ctx context.Context) error {
	sess, err := s.provider.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if sess.Expired(s.now()) {
		s.logger.Info("stored session expired", "email", sess.Email)
		return s.provider.SignOut(ctx)
	}

	s.set(sess)
	s.logger.Info("session restored", "email", sess.Email, "token", logging.SanitizeToken(sess.AccessToken))
	s.publish(Event{Kind: SignedIn, Session: copySession(sess)})
	return nil
}

// Current returns a copy of the live session, or nil when signed out or expired.
func (s *Store) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Expired(s.now()) {
		return nil
	}
	return copySession(s.current)
}

// AccessToken returns the bearer token of the live session, or "".
func (s *Store) AccessToken() string {
	if sess := s.Current(); sess != nil {
		return sess.AccessToken
	}
	return ""
}

// Subscribe registers fn for session events and returns its unsubscribe func.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) SignIn(ctx context.Context, provider string, creds Credentials) (*Session, error) {
	sess, err := s.provider.SignIn(ctx, provider, creds)
	if err != nil {
		return nil, err
	}

	s.set(sess)
	s.logger.Info("signed in", "email", sess.Email, "token", logging.SanitizeToken(sess.AccessToken))
	s.publish(Event{Kind: SignedIn, Session: copySession(sess)})
	return copySession(sess), nil
}

func (s *Store) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return err
	}
	if !s.clear() {
		return nil
	}
	s.logger.Info("signed out")
	s.publish(Event{Kind: SignedOut})
	return nil
}

// Close stops the expiry timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

func (s *Store) set(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = copySession(sess)
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	if !sess.ExpiresAt.IsZero() {
		token := sess.AccessToken
		s.expiry = time.AfterFunc(sess.ExpiresAt.Sub(s.now()), func() { s.expire(token) })
	}
}

// clear drops the live session and reports whether there was one.
func (s *Store) clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
	had := s.current != nil
	s.current = nil
	return had
}

func (s *Store) expire(token string) {
	s.mu.Lock()
	if s.current == nil || s.current.AccessToken != token {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.expiry = nil
	s.mu.Unlock()

	if err := s.provider.SignOut(context.Background()); err != nil {
		s.logger.Warn("failed to clear expired session", "error", err)
	}
	s.logger.Info("session expired")
	s.publish(Event{Kind: Expired})
}

// publish calls subscribers outside the lock so they may call back into the store.
func (s *Store) publish(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func copySession(sess *Session) *Session {
	if sess == nil {
		return nil
	}
	c := *sess
	return &c
}
