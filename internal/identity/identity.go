// Package identity resolves the user every operation acts for
package identity

import (
	"context"
	"sync"
)

// Provider supplies the signed-in user
type Provider interface {
	// CurrentUserID returns the user for ctx, or false when nobody is signed in
	CurrentUserID(ctx context.Context) (string, bool)
	// OnAuthChange registers fn to run whenever the signed-in user changes
	OnAuthChange(fn func(previous, next string))
}

type ctxKey struct{}

// WithUserID returns a context carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// FromContext returns the user id stored by WithUserID
func FromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(ctxKey{}).(string)
	return userID, ok && userID != ""
}

// RequestProvider reads the user from the request context. Used by the HTTP
// API where every request names its user.
type RequestProvider struct{}

func (RequestProvider) CurrentUserID(ctx context.Context) (string, bool) {
	return FromContext(ctx)
}

// OnAuthChange is a no-op, request users never change mid-flight
func (RequestProvider) OnAuthChange(func(previous, next string)) {}

// Session is a single signed-in user, as on a device
type Session struct {
	mu        sync.RWMutex
	userID    string
	listeners []func(previous, next string)
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) CurrentUserID(ctx context.Context) (string, bool) {
	if userID, ok := FromContext(ctx); ok {
		return userID, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

func (s *Session) OnAuthChange(fn func(previous, next string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SignIn switches the session to userID
func (s *Session) SignIn(userID string) {
	s.switchTo(userID)
}

// SignOut clears the session
func (s *Session) SignOut() {
	s.switchTo("")
}

func (s *Session) switchTo(userID string) {
	s.mu.Lock()
	previous := s.userID
	s.userID = userID
	listeners := append(([]func(string, string))(nil), s.listeners...)
	s.mu.Unlock()

	if previous == userID {
		return
	}
	for _, fn := range listeners {
		fn(previous, userID)
	}
}
