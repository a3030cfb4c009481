//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trpc.group/trpc-go/trpc-chatguard-go/model"
)

func TestNewAppliesOptions(t *testing.T) {
	m := New("gpt-4o-mini",
		WithAPIKey("test-key"),
		WithBaseURL("http://localhost:8080/v1"),
		WithChannelBufferSize(16),
	)
	require.NotNil(t, m)
	assert.Equal(t, "gpt-4o-mini", m.Info().Name)
	assert.Equal(t, 16, m.channelBufferSize)
}

func TestWithChannelBufferSizeIgnoresNonPositive(t *testing.T) {
	m := New("gpt-4o-mini", WithChannelBufferSize(0))
	assert.Equal(t, defaultChannelBufferSize, m.channelBufferSize)

	m = New("gpt-4o-mini", WithChannelBufferSize(-5))
	assert.Equal(t, defaultChannelBufferSize, m.channelBufferSize)
}

func TestGenerateContentNilRequest(t *testing.T) {
	m := New("gpt-4o-mini")
	ch, err := m.GenerateContent(context.Background(), nil)
	assert.Error(t, err)
	assert.Nil(t, ch)
}

func TestConvertMessages(t *testing.T) {
	messages := []model.Message{
		model.NewSystemMessage("be brief"),
		model.NewUserMessage("2+2?"),
		model.NewAssistantMessage("4"),
	}
	converted := convertMessages(messages)
	require.Len(t, converted, 3)
	assert.NotNil(t, converted[0].OfSystem)
	assert.NotNil(t, converted[1].OfUser)
	assert.NotNil(t, converted[2].OfAssistant)
}

func TestPartialResponse(t *testing.T) {
	chunk := openai.ChatCompletionChunk{
		ID:    "chunk-1",
		Model: "gpt-4o-mini",
	}
	chunk.Choices = []openai.ChatCompletionChunkChoice{{}}
	chunk.Choices[0].Delta.Content = "Hel"

	rsp := partialResponse(chunk)
	assert.Equal(t, "chunk-1", rsp.ID)
	assert.Equal(t, model.ObjectTypeChatCompletionChunk, rsp.Object)
	assert.True(t, rsp.IsPartial)
	assert.False(t, rsp.Done)
	assert.Equal(t, "Hel", rsp.DeltaContent())
}

func TestStatusCodeOf(t *testing.T) {
	assert.Equal(t, 0, statusCodeOf(errors.New("plain")))

	apierr := &openai.Error{StatusCode: 429}
	assert.Equal(t, 429, statusCodeOf(apierr))
}
