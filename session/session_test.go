//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendBound(t *testing.T) {
	tests := []struct {
		name     string
		maxTurns int
		appends  int
		expected int
	}{
		{name: "under bound", maxTurns: 6, appends: 4, expected: 4},
		{name: "at bound", maxTurns: 6, appends: 6, expected: 6},
		{name: "over bound", maxTurns: 6, appends: 9, expected: 6},
		{name: "default bound", maxTurns: 0, appends: 15, expected: DefaultMaxTurns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(tt.maxTurns)
			for i := 0; i < tt.appends; i++ {
				h.Append(Turn{Speaker: SpeakerUser, Text: fmt.Sprintf("m%d", i)})
			}
			assert.Equal(t, tt.expected, h.Len())
		})
	}
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	// A full history at M=6 receiving one more exchange keeps the 6 most
	// recent turns in original order.
	h := NewHistory(6)
	for i := 0; i < 6; i++ {
		h.Append(Turn{Speaker: SpeakerUser, Text: fmt.Sprintf("m%d", i)})
	}
	h.Append(
		Turn{Speaker: SpeakerUser, Text: "m6"},
		Turn{Speaker: SpeakerBot, Text: "m7"},
	)

	turns := h.Snapshot()
	require.Len(t, turns, 6)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("m%d", i+2), turn.Text)
	}
}

func TestHistorySnapshotDoesNotMutate(t *testing.T) {
	h := NewHistory(4)
	h.Append(Turn{Speaker: SpeakerUser, Text: "hello"})

	snap := h.Snapshot()
	snap[0].Text = "changed"
	snap = append(snap, Turn{Speaker: SpeakerBot, Text: "extra"})
	_ = snap

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, "hello", h.Snapshot()[0].Text)
}

func TestHistoryConcurrentReadDuringAppend(t *testing.T) {
	// Reads may race a commit on the same session (health check vs chat).
	h := NewHistory(6)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			h.Append(
				Turn{Speaker: SpeakerUser, Text: fmt.Sprintf("q%d", i)},
				Turn{Speaker: SpeakerBot, Text: fmt.Sprintf("a%d", i)},
			)
		}
	}()
	for i := 0; i < 500; i++ {
		assert.LessOrEqual(t, h.Len(), 6)
		assert.LessOrEqual(t, len(h.Snapshot()), 6)
	}
	<-done
	assert.Equal(t, 6, h.Len())
}

func TestCheckSessionKey(t *testing.T) {
	tests := []struct {
		name     string
		key      Key
		expected error
	}{
		{name: "valid", key: Key{AppName: "chatguard", UserID: "u", SessionID: "s"}, expected: nil},
		{name: "missing app", key: Key{UserID: "u", SessionID: "s"}, expected: ErrAppNameRequired},
		{name: "missing user", key: Key{AppName: "chatguard", SessionID: "s"}, expected: ErrUserIDRequired},
		{name: "missing session", key: Key{AppName: "chatguard", UserID: "u"}, expected: ErrSessionIDRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.CheckSessionKey()
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}
