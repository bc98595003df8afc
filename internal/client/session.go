package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type SessionState int

const (
	SessionUnresolved SessionState = iota
	SessionAbsent
	SessionPresent
)

func (s SessionState) String() string {
	switch s {
	case SessionUnresolved:
		return "unresolved"
	case SessionAbsent:
		return "absent"
	case SessionPresent:
		return "present"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// TokenSource looks up the current bearer token. ok is false when nobody
// is signed in.
type TokenSource interface {
	Token(ctx context.Context) (token string, ok bool, err error)
}

// SignOuter is implemented by sources that can revoke their session.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// StaticToken is a fixed token; the empty string means signed out.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, bool, error) { return string(t), t != "", nil }

// Session resolves the credential once and broadcasts every state change.
// SignOut is the only thing that makes it resolve again.
type Session struct {
	src    TokenSource
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     SessionState
	token     string
	resolving bool
	gen       uint64
	changed   chan struct{}
}

func NewSession(src TokenSource, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		src:     src,
		log:     logger.With("component", "session"),
		ctx:     ctx,
		cancel:  cancel,
		changed: make(chan struct{}),
	}
}

// Close stops any pending resolution.
func (s *Session) Close() { s.cancel() }

// State reports the current state without starting resolution.
func (s *Session) State() (SessionState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.token
}

func (s *Session) startLocked() {
	if s.state != SessionUnresolved || s.resolving {
		return
	}
	s.resolving = true
	go s.resolve(s.gen)
}

func (s *Session) resolve(gen uint64) {
	token, ok, err := s.src.Token(s.ctx)
	if s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.resolving = false
	if err != nil {
		s.log.Warn("session lookup failed", "error", err)
		ok = false
	}
	if ok && token != "" {
		s.state, s.token = SessionPresent, token
	} else {
		s.state, s.token = SessionAbsent, ""
	}
	s.broadcastLocked()
}

func (s *Session) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// await blocks until the session is resolved. changed is closed on the
// next transition after the returned state.
func (s *Session) await(ctx context.Context) (state SessionState, token string, changed <-chan struct{}, err error) {
	for {
		s.mu.Lock()
		if s.state != SessionUnresolved {
			state, token, changed = s.state, s.token, s.changed
			s.mu.Unlock()
			return state, token, changed, nil
		}
		s.startLocked()
		wait := s.changed
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return SessionUnresolved, "", nil, ctx.Err()
		case <-s.ctx.Done():
			return SessionUnresolved, "", nil, s.ctx.Err()
		}
	}
}

// Resolve waits for resolution and returns the result.
func (s *Session) Resolve(ctx context.Context) (SessionState, string, error) {
	state, token, _, err := s.await(ctx)
	return state, token, err
}

// Require returns the token, or ErrUnauthorized once the session is known
// to be absent. Route guards use it to send visitors to the login page.
func (s *Session) Require(ctx context.Context) (string, error) {
	state, token, err := s.Resolve(ctx)
	if err != nil {
		return "", err
	}
	if state != SessionPresent {
		return "", ErrUnauthorized
	}
	return token, nil
}

// SignOut revokes the session upstream and re-resolves. The local state is
// reset even when revocation fails; that error is returned.
func (s *Session) SignOut(ctx context.Context) error {
	var err error
	if so, ok := s.src.(SignOuter); ok {
		err = so.SignOut(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state, s.token, s.resolving = SessionUnresolved, "", false
	s.broadcastLocked()
	s.startLocked()
	return err
}
