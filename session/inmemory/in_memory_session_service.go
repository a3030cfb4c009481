//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory session service implementation.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"trpc.group/trpc-go/trpc-chatguard-go/session"
)

var _ session.Service = (*SessionService)(nil)

// appSessions stores the sessions of one app, keyed by user then session id.
type appSessions struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*session.Session
}

func newAppSessions() *appSessions {
	return &appSessions{
		sessions: make(map[string]map[string]*session.Session),
	}
}

// serviceOpts is the options for the session service.
type serviceOpts struct {
	// maxTurns bounds the history of every session this service creates.
	maxTurns int
}

// ServiceOpt is the option for the in-memory session service.
type ServiceOpt func(*serviceOpts)

// WithMaxTurns sets the history bound for sessions created by this service.
func WithMaxTurns(n int) ServiceOpt {
	return func(opts *serviceOpts) {
		opts.maxTurns = n
	}
}

// SessionService provides an in-memory implementation of session.Service.
type SessionService struct {
	mu   sync.RWMutex
	apps map[string]*appSessions
	opts serviceOpts
}

// NewSessionService creates a new in-memory session service.
func NewSessionService(options ...ServiceOpt) *SessionService {
	opts := serviceOpts{
		maxTurns: session.DefaultMaxTurns,
	}
	for _, option := range options {
		option(&opts)
	}
	return &SessionService{
		apps: make(map[string]*appSessions),
		opts: opts,
	}
}

func (s *SessionService) getAppSessions(appName string) (*appSessions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appName]
	return app, ok
}

func (s *SessionService) getOrCreateAppSessions(appName string) *appSessions {
	s.mu.RLock()
	app, ok := s.apps[appName]
	if ok {
		s.mu.RUnlock()
		return app
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if app, ok = s.apps[appName]; ok {
		return app
	}
	app = newAppSessions()
	s.apps[appName] = app
	return app
}

// CreateSession creates a new session with an empty bounded history.
func (s *SessionService) CreateSession(ctx context.Context, key session.Key) (*session.Session, error) {
	if err := key.CheckUserKey(); err != nil {
		return nil, err
	}
	if key.SessionID == "" {
		key.SessionID = uuid.New().String()
	}

	now := time.Now()
	sess := &session.Session{
		ID:        key.SessionID,
		AppName:   key.AppName,
		UserID:    key.UserID,
		History:   session.NewHistory(s.opts.maxTurns),
		CreatedAt: now,
		UpdatedAt: now,
	}

	app := s.getOrCreateAppSessions(key.AppName)
	app.mu.Lock()
	defer app.mu.Unlock()
	userSessions, ok := app.sessions[key.UserID]
	if !ok {
		userSessions = make(map[string]*session.Session)
		app.sessions[key.UserID] = userSessions
	}
	userSessions[key.SessionID] = sess
	return sess, nil
}

// GetSession gets a session, or nil when it does not exist.
func (s *SessionService) GetSession(ctx context.Context, key session.Key) (*session.Session, error) {
	if err := key.CheckSessionKey(); err != nil {
		return nil, err
	}
	app, ok := s.getAppSessions(key.AppName)
	if !ok {
		return nil, nil
	}
	app.mu.RLock()
	defer app.mu.RUnlock()
	userSessions, ok := app.sessions[key.UserID]
	if !ok {
		return nil, nil
	}
	return userSessions[key.SessionID], nil
}

// DeleteSession deletes a session if present.
func (s *SessionService) DeleteSession(ctx context.Context, key session.Key) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}
	app, ok := s.getAppSessions(key.AppName)
	if !ok {
		return nil
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	if userSessions, ok := app.sessions[key.UserID]; ok {
		delete(userSessions, key.SessionID)
		if len(userSessions) == 0 {
			delete(app.sessions, key.UserID)
		}
	}
	return nil
}

// AppendTurns commits turns to the session history.
func (s *SessionService) AppendTurns(ctx context.Context, sess *session.Session, turns ...session.Turn) error {
	key := session.Key{AppName: sess.AppName, UserID: sess.UserID, SessionID: sess.ID}
	if err := key.CheckSessionKey(); err != nil {
		return err
	}
	app, ok := s.getAppSessions(sess.AppName)
	if !ok {
		return nil
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	sess.History.Append(turns...)
	sess.UpdatedAt = time.Now()
	return nil
}

// Close closes the service.
func (s *SessionService) Close() error {
	return nil
}
