//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package session provides bounded per-conversation history storage.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultMaxTurns is the history bound applied when none is configured.
const DefaultMaxTurns = 10

var (
	// ErrAppNameRequired is the error for app name required.
	ErrAppNameRequired = errors.New("appName is required")
	// ErrUserIDRequired is the error for user id required.
	ErrUserIDRequired = errors.New("userID is required")
	// ErrSessionIDRequired is the error for session id required.
	ErrSessionIDRequired = errors.New("sessionID is required")
)

// Speaker identifies the author of a turn.
type Speaker string

// Speaker constants.
const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Turn is one message in a conversation. Turns are immutable once created
// and their order is chronological.
type Turn struct {
	Speaker Speaker `json:"role"`
	Text    string  `json:"text"`
}

// History is an ordered, size-bounded sequence of turns. When an append
// would exceed the bound, the oldest turns are evicted first; the newest
// turns are always retained. History is safe for concurrent use: reads
// (health checks, snapshots) may race a commit on the same session.
type History struct {
	mu       sync.RWMutex
	maxTurns int
	turns    []Turn
}

// NewHistory creates an empty history bounded to maxTurns. Non-positive
// bounds fall back to DefaultMaxTurns.
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns}
}

// Append adds a turn at the end, evicting from the front when the bound is
// exceeded.
func (h *History) Append(turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
	if over := len(h.turns) - h.maxTurns; over > 0 {
		h.turns = append(h.turns[:0:0], h.turns[over:]...)
	}
}

// Snapshot returns a copy of the current turns without mutating history.
// Callers use it to build model context before the exchange commits.
func (h *History) Snapshot() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// MaxTurns returns the configured bound.
func (h *History) MaxTurns() int {
	return h.maxTurns
}

// Session holds the state that survives across requests within one
// conversation. Callers must ensure at most one exchange per session is in
// flight at a time; History itself is safe to read concurrently (a health
// check may observe a session mid-commit).
type Session struct {
	ID        string    `json:"id"`
	AppName   string    `json:"appName"`
	UserID    string    `json:"userID"`
	History   *History  `json:"history"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key is the key for a session.
type Key struct {
	AppName   string // app name
	UserID    string // user id
	SessionID string // session id
}

// CheckSessionKey checks if a session key is valid.
func (k *Key) CheckSessionKey() error {
	if err := k.CheckUserKey(); err != nil {
		return err
	}
	if k.SessionID == "" {
		return ErrSessionIDRequired
	}
	return nil
}

// CheckUserKey checks if a user key is valid.
func (k *Key) CheckUserKey() error {
	if k.AppName == "" {
		return ErrAppNameRequired
	}
	if k.UserID == "" {
		return ErrUserIDRequired
	}
	return nil
}

// Service is the interface that all session stores must implement.
type Service interface {
	// CreateSession creates a new session. An empty SessionID in the key is
	// filled with a generated identifier.
	CreateSession(ctx context.Context, key Key) (*Session, error)

	// GetSession gets a session, or nil when it does not exist.
	GetSession(ctx context.Context, key Key) (*Session, error)

	// DeleteSession deletes a session. Deleting an absent session is not an
	// error.
	DeleteSession(ctx context.Context, key Key) error

	// AppendTurns commits completed exchange turns to the session history
	// and updates the session timestamp.
	AppendTurns(ctx context.Context, sess *Session, turns ...Turn) error

	// Close closes the service.
	Close() error
}
