//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trpc.group/trpc-go/trpc-chatguard-go/session"
)

func TestCreateAndGetSession(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()
	ctx := context.Background()

	key := session.Key{AppName: "chatguard", UserID: "user-1", SessionID: "sess-1"}
	created, err := svc.CreateSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", created.ID)
	assert.Equal(t, 0, created.History.Len())

	got, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestCreateSessionGeneratesID(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()

	sess, err := svc.CreateSession(context.Background(),
		session.Key{AppName: "chatguard", UserID: "user-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
}

func TestGetSessionMissing(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()

	sess, err := svc.GetSession(context.Background(),
		session.Key{AppName: "chatguard", UserID: "user-1", SessionID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestGetSessionInvalidKey(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()

	_, err := svc.GetSession(context.Background(),
		session.Key{AppName: "chatguard", UserID: "user-1"})
	assert.ErrorIs(t, err, session.ErrSessionIDRequired)
}

func TestAppendTurnsRespectsBound(t *testing.T) {
	svc := NewSessionService(WithMaxTurns(6))
	defer svc.Close()
	ctx := context.Background()

	key := session.Key{AppName: "chatguard", UserID: "user-1", SessionID: "sess-1"}
	sess, err := svc.CreateSession(ctx, key)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		err = svc.AppendTurns(ctx, sess,
			session.Turn{Speaker: session.SpeakerUser, Text: "q"},
			session.Turn{Speaker: session.SpeakerBot, Text: "a"},
		)
		require.NoError(t, err)
	}
	assert.Equal(t, 6, sess.History.Len())
}

func TestDeleteSession(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()
	ctx := context.Background()

	key := session.Key{AppName: "chatguard", UserID: "user-1", SessionID: "sess-1"}
	_, err := svc.CreateSession(ctx, key)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(ctx, key))
	sess, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, sess)

	// Deleting again is not an error.
	assert.NoError(t, svc.DeleteSession(ctx, key))
}

func TestSessionsIsolatedByUser(t *testing.T) {
	svc := NewSessionService()
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, session.Key{AppName: "chatguard", UserID: "alpha", SessionID: "s"})
	require.NoError(t, err)

	sess, err := svc.GetSession(ctx, session.Key{AppName: "chatguard", UserID: "beta", SessionID: "s"})
	require.NoError(t, err)
	assert.Nil(t, sess)
}
