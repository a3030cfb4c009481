//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package server exposes the chat service over HTTP.
//
// The server is a thin rendering layer: it parses requests, resolves the
// session cookie, delegates to the router and renders replies as JSON or as
// a server-sent event stream. It never reaches into router internals.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-chatguard-go/log"
	"trpc.group/trpc-go/trpc-chatguard-go/router"
	"trpc.group/trpc-go/trpc-chatguard-go/session"
)

// SessionCookie is the cookie carrying the chat session identifier.
const SessionCookie = "chatguard_session"

// Server handles the chat HTTP endpoints.
type Server struct {
	appName string
	chat    *router.Router
	mux     *mux.Router
	backend string
}

// Option configures the Server.
type Option func(*Server)

// WithBackendName sets the backend name reported by the health endpoint.
func WithBackendName(name string) Option {
	return func(s *Server) { s.backend = name }
}

// New creates a Server for the given application name and chat router.
func New(appName string, chat *router.Router, opts ...Option) *Server {
	s := &Server{
		appName: appName,
		chat:    chat,
		mux:     mux.NewRouter(),
		backend: "openai",
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.mux.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	s.mux.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	s.mux.HandleFunc("/chat", preflight).Methods(http.MethodOptions)
	s.mux.HandleFunc("/reset", preflight).Methods(http.MethodOptions)
}

type chatRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream,omitempty"`
}

type chatResponse struct {
	OK    bool   `json:"ok"`
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, chatResponse{OK: false, Error: "Invalid JSON body"})
		return
	}
	defer r.Body.Close()

	key := s.sessionKey(w, r)
	if req.Stream {
		s.streamChat(w, r, key, req.Message)
		return
	}

	reply, err := s.chat.Respond(r.Context(), key, req.Message)
	if err != nil {
		if errors.Is(err, router.ErrEmptyInput) {
			s.writeJSON(w, http.StatusBadRequest, chatResponse{OK: false, Error: "Empty message"})
			return
		}
		log.Errorf("chat failed: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, chatResponse{OK: false, Error: "Internal error"})
		return
	}
	if reply.Failed {
		s.writeJSON(w, http.StatusInternalServerError, chatResponse{OK: false, Error: reply.Text})
		return
	}
	s.writeJSON(w, http.StatusOK, chatResponse{OK: true, Reply: reply.Text})
}

// streamChat renders the exchange as server-sent events. Each frame is one
// "data:" line: a token object, an error object, or the literal [DONE]
// sentinel.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, key session.Key, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, chatResponse{OK: false, Error: "Streaming unsupported"})
		return
	}

	frames, err := s.chat.RespondStream(r.Context(), key, message)
	if err != nil {
		if errors.Is(err, router.ErrEmptyInput) {
			s.writeJSON(w, http.StatusBadRequest, chatResponse{OK: false, Error: "Empty message"})
			return
		}
		log.Errorf("chat stream failed: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, chatResponse{OK: false, Error: "Internal error"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for frame := range frames {
		var data []byte
		switch {
		case frame.Done:
			data = []byte("[DONE]")
		case frame.Err != "":
			data, err = json.Marshal(map[string]string{"error": frame.Err})
		default:
			data, err = json.Marshal(map[string]string{"token": frame.Token})
		}
		if err != nil {
			log.Errorf("marshal frame: %v", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	key := s.sessionKey(w, r)
	if err := s.chat.Sessions().DeleteSession(r.Context(), key); err != nil {
		log.Errorf("reset failed: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, chatResponse{OK: false, Error: "Internal error"})
		return
	}
	s.writeJSON(w, http.StatusOK, chatResponse{OK: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	length := 0
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		key := session.Key{AppName: s.appName, UserID: cookie.Value, SessionID: cookie.Value}
		if sess, err := s.chat.Sessions().GetSession(r.Context(), key); err == nil && sess != nil {
			length = sess.History.Len()
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"backend":     s.backend,
		"session_len": length,
	})
}

// sessionKey resolves the session key from the request cookie, minting a
// new identifier (and setting the cookie) when absent.
func (s *Server) sessionKey(w http.ResponseWriter, r *http.Request) session.Key {
	var id string
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		id = cookie.Value
	} else {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return session.Key{AppName: s.appName, UserID: id, SessionID: id}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write response: %v", err)
	}
}
