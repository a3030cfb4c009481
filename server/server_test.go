//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-chatguard-go/model"
	"trpc.group/trpc-go/trpc-chatguard-go/router"
)

// scriptedModel answers every call with the same response batch.
type scriptedModel struct {
	batch []*model.Response
}

func (m *scriptedModel) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	ch := make(chan *model.Response, len(m.batch)+1)
	for _, rsp := range m.batch {
		ch <- rsp
	}
	close(ch)
	return ch, nil
}

func (m *scriptedModel) Info() model.Info { return model.Info{Name: "scripted"} }

func textResponse(text string) *model.Response {
	return &model.Response{
		Object: model.ObjectTypeChatCompletion,
		Done:   true,
		Choices: []model.Choice{
			{Message: model.Message{Role: model.RoleAssistant, Content: text}},
		},
	}
}

func deltaResponse(text string) *model.Response {
	return &model.Response{
		Object:    model.ObjectTypeChatCompletionChunk,
		IsPartial: true,
		Choices: []model.Choice{
			{Delta: model.Message{Role: model.RoleAssistant, Content: text}},
		},
	}
}

func newTestServer(batch ...*model.Response) *Server {
	chat := router.New("chatguard-test", router.WithModel(&scriptedModel{batch: batch}))
	return New("chatguard-test", chat)
}

func postChat(t *testing.T, s *Server, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeChat(t *testing.T, rec *httptest.ResponseRecorder) chatResponse {
	t.Helper()
	var rsp chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rsp))
	return rsp
}

func TestChatGuardrailReply(t *testing.T) {
	s := newTestServer(textResponse("unused"))

	rec := postChat(t, s, `{"message":"What is 2+3*4?"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rsp := decodeChat(t, rec)
	assert.True(t, rsp.OK)
	assert.Equal(t, "14", rsp.Reply)
}

func TestChatModelReply(t *testing.T) {
	s := newTestServer(textResponse("model says hi"))

	rec := postChat(t, s, `{"message":"tell me something"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rsp := decodeChat(t, rec)
	assert.True(t, rsp.OK)
	assert.Equal(t, "model says hi", rsp.Reply)
}

func TestChatEmptyMessage(t *testing.T) {
	s := newTestServer(textResponse("unused"))

	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `{}`} {
		rec := postChat(t, s, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rsp := decodeChat(t, rec)
		assert.False(t, rsp.OK)
		assert.Equal(t, "Empty message", rsp.Error)
	}
}

func TestChatInvalidBody(t *testing.T) {
	s := newTestServer(textResponse("unused"))

	rec := postChat(t, s, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decodeChat(t, rec).OK)
}

func TestChatUpstreamFailure(t *testing.T) {
	s := newTestServer(&model.Response{
		Object: model.ObjectTypeError,
		Done:   true,
		Error: &model.ResponseError{
			Message:    "bad request",
			Type:       model.ErrorTypeAPIError,
			StatusCode: http.StatusBadRequest,
		},
	})

	rec := postChat(t, s, `{"message":"tell me something"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	rsp := decodeChat(t, rec)
	assert.False(t, rsp.OK)
	assert.Equal(t, router.FailedReply, rsp.Error)
}

func TestChatMintsSessionCookie(t *testing.T) {
	s := newTestServer(textResponse("unused"))

	rec := postChat(t, s, `{"message":"1+1"}`)
	var minted *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			minted = c
		}
	}
	require.NotNil(t, minted, "first request mints the session cookie")
	assert.NotEmpty(t, minted.Value)
	assert.True(t, minted.HttpOnly)

	// Second request with the cookie reuses the session: history grows.
	rec = postChat(t, s, `{"message":"2+2"}`, minted)
	assert.Empty(t, rec.Result().Cookies(), "existing cookie is not re-set")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.AddCookie(minted)
	hrec := httptest.NewRecorder()
	s.Handler().ServeHTTP(hrec, req)
	var health map[string]any
	require.NoError(t, json.NewDecoder(hrec.Body).Decode(&health))
	assert.Equal(t, float64(4), health["session_len"])
}

func TestChatHistoryAcrossRequests(t *testing.T) {
	s := newTestServer(textResponse("model answer"))
	cookie := &http.Cookie{Name: SessionCookie, Value: "fixed-session"}

	rec := postChat(t, s, `{"message":"10/4"}`, cookie)
	assert.Equal(t, "2.5", decodeChat(t, rec).Reply)

	rec = postChat(t, s, `{"message":"what was that?"}`, cookie)
	assert.Equal(t, "model answer", decodeChat(t, rec).Reply)
}

func TestChatStreamSSE(t *testing.T) {
	s := newTestServer(deltaResponse("Hel"), deltaResponse("lo"), textResponse("Hello"))

	rec := postChat(t, s, `{"message":"tell me something","stream":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	lines := strings.Split(strings.TrimSpace(body), "\n\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `data: {"token":"Hel"}`, lines[0])
	assert.Equal(t, `data: {"token":"lo"}`, lines[1])
	assert.Equal(t, `data: [DONE]`, lines[2])
}

func TestChatStreamGuardrail(t *testing.T) {
	s := newTestServer(textResponse("unused"))

	rec := postChat(t, s, `{"message":"6*7","stream":true}`)
	body := strings.TrimSpace(rec.Body.String())
	assert.Equal(t, "data: {\"token\":\"42\"}\n\ndata: [DONE]", body)
}

func TestChatStreamError(t *testing.T) {
	s := newTestServer(&model.Response{
		Object: model.ObjectTypeError,
		Done:   true,
		Error: &model.ResponseError{
			Message:    "boom",
			Type:       model.ErrorTypeStreamError,
			StatusCode: http.StatusInternalServerError,
		},
	})

	rec := postChat(t, s, `{"message":"tell me something","stream":true}`)
	body := strings.TrimSpace(rec.Body.String())
	var payload struct {
		Error string `json:"error"`
	}
	require.True(t, strings.HasPrefix(body, "data: "))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(body, "data: ")), &payload))
	assert.Equal(t, router.FailedReply, payload.Error)
	assert.NotContains(t, body, "[DONE]")
}

func TestReset(t *testing.T) {
	s := newTestServer(textResponse("unused"))
	cookie := &http.Cookie{Name: SessionCookie, Value: "fixed-session"}

	postChat(t, s, `{"message":"1+1"}`, cookie)

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeChat(t, rec).OK)

	// History is gone: the next health check reports an empty session.
	hreq := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	hreq.AddCookie(cookie)
	hrec := httptest.NewRecorder()
	s.Handler().ServeHTTP(hrec, hreq)
	var health map[string]any
	require.NoError(t, json.NewDecoder(hrec.Body).Decode(&health))
	assert.Equal(t, float64(0), health["session_len"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(textResponse("unused"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "openai", health["backend"])
	assert.Equal(t, float64(0), health["session_len"])
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(textResponse("unused"))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
