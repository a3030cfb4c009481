//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package router decides how each chat message is answered: by the
// deterministic arithmetic guardrail, or by the upstream model with the
// conversation history as context.
//
// The guardrail always runs first and its failures are absorbed; the model
// is a fallback, never a co-processor. The model handle is obtained lazily
// from a provider on first use so that a misconfigured credential surfaces
// as a safe reply rather than a startup crash.
package router

import (
	"context"
	"errors"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-chatguard-go/guardrail"
	"trpc.group/trpc-go/trpc-chatguard-go/log"
	"trpc.group/trpc-go/trpc-chatguard-go/model"
	"trpc.group/trpc-go/trpc-chatguard-go/session"
	"trpc.group/trpc-go/trpc-chatguard-go/session/inmemory"
	"trpc.group/trpc-go/trpc-chatguard-go/stream"
	"trpc.group/trpc-go/trpc-chatguard-go/telemetry/trace"
)

// DefaultSystemPrompt is the instruction sent ahead of every model call.
const DefaultSystemPrompt = "You are a helpful, concise assistant for a beginner-friendly chat service. " +
	"Answer clearly, use short paragraphs, and avoid making things up. " +
	"If you are unsure, say so briefly."

// DefaultGreetings are the inputs answered without conversation history.
var DefaultGreetings = []string{"hi", "hello", "hey"}

// User-safe replies for upstream failures. The real error goes to the log
// only; these are the exact strings clients see.
const (
	// FailedReply is returned when the model call failed after retries.
	FailedReply = "Sorry, the assistant could not be reached. Please try again in a moment."
	// NotConfiguredReply is returned when no model credential is configured.
	NotConfiguredReply = "The assistant is not configured on this server."
	// emptyReply stands in for a model response that carried no text.
	emptyReply = "(no reply)"
)

// ErrEmptyInput reports a message that is empty after trimming.
var ErrEmptyInput = errors.New("empty input")

// RouteDecision records which path produced a reply. It is computed once
// per exchange and never revisited.
type RouteDecision int

// RouteDecision values.
const (
	// RouteGuardrail means the arithmetic guardrail answered.
	RouteGuardrail RouteDecision = iota
	// RouteModel means the upstream model answered (or failed to).
	RouteModel
)

// String implements fmt.Stringer.
func (d RouteDecision) String() string {
	if d == RouteGuardrail {
		return "guardrail"
	}
	return "model"
}

// Reply is the outcome of one exchange.
type Reply struct {
	// Text is the reply shown to the user. On failure it is one of the
	// fixed user-safe strings above.
	Text string
	// Route tells which path produced Text.
	Route RouteDecision
	// Failed is set when the model path gave up; nothing was committed to
	// the session history.
	Failed bool
}

// ModelProvider constructs the upstream model on first use. Returning an
// error (typically model.ErrMissingCredential) marks every model-path
// exchange as failed without crashing the process.
type ModelProvider func() (model.Model, error)

// Option configures a Router.
type Option func(*Router)

// WithSessionService sets the session store. Defaults to the in-memory
// store.
func WithSessionService(svc session.Service) Option {
	return func(r *Router) {
		r.sessions = svc
	}
}

// WithModelProvider sets the lazy model constructor.
func WithModelProvider(p ModelProvider) Option {
	return func(r *Router) {
		r.provider = p
	}
}

// WithModel sets an already-constructed model. Mostly useful in tests.
func WithModel(m model.Model) Option {
	return func(r *Router) {
		r.provider = func() (model.Model, error) { return m, nil }
	}
}

// WithSystemPrompt overrides the system instruction.
func WithSystemPrompt(prompt string) Option {
	return func(r *Router) {
		if prompt != "" {
			r.systemPrompt = prompt
		}
	}
}

// WithGreetings overrides the greeting fast-path inputs.
func WithGreetings(greetings []string) Option {
	return func(r *Router) {
		r.greetings = make(map[string]struct{}, len(greetings))
		for _, g := range greetings {
			r.greetings[strings.ToLower(g)] = struct{}{}
		}
	}
}

// WithRetryPolicy overrides the upstream retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Router) {
		if p.MaxAttempts > 0 {
			r.retry = p
		}
	}
}

// WithFrameBufferSize sets the capacity of the frame channel returned by
// RespondStream.
func WithFrameBufferSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.frameBuffer = n
		}
	}
}

// Router routes chat messages to the guardrail or the model.
//
// Router is safe for concurrent use across sessions; the caller must not
// run two exchanges for the same session concurrently.
type Router struct {
	appName      string
	sessions     session.Service
	provider     ModelProvider
	systemPrompt string
	greetings    map[string]struct{}
	retry        RetryPolicy
	frameBuffer  int

	initOnce sync.Once
	model    model.Model
	initErr  error
}

// New creates a Router for the given application name.
func New(appName string, opts ...Option) *Router {
	r := &Router{
		appName:      appName,
		systemPrompt: DefaultSystemPrompt,
		retry:        DefaultRetryPolicy(),
		frameBuffer:  64,
	}
	WithGreetings(DefaultGreetings)(r)
	for _, opt := range opts {
		opt(r)
	}
	if r.sessions == nil {
		r.sessions = inmemory.NewSessionService()
	}
	return r
}

// Sessions returns the session store the router commits to.
func (r *Router) Sessions() session.Service {
	return r.sessions
}

// Respond answers one chat message synchronously.
//
// An empty message (after trimming) returns ErrEmptyInput. Upstream model
// failures do not surface as errors: the returned Reply has Failed set and
// Text holds a fixed user-safe string. A non-nil error means the exchange
// itself could not run (bad session key, store failure).
func (r *Router) Respond(ctx context.Context, key session.Key, message string) (*Reply, error) {
	ctx, span := trace.Tracer.Start(ctx, "chat.respond")
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyInput
	}
	sess, err := r.sessionFor(ctx, key)
	if err != nil {
		return nil, err
	}

	if text, ok := r.tryGuardrail(message); ok {
		if err := r.commit(ctx, sess, message, text); err != nil {
			return nil, err
		}
		return &Reply{Text: text, Route: RouteGuardrail}, nil
	}

	m, err := r.modelInstance()
	if err != nil {
		log.Errorf("model unavailable: %v", err)
		return &Reply{Text: NotConfiguredReply, Route: RouteModel, Failed: true}, nil
	}
	text, callErr := r.callModel(ctx, m, r.buildRequest(sess, message, false))
	if callErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Errorf("model call failed: %v", callErr)
		return &Reply{Text: FailedReply, Route: RouteModel, Failed: true}, nil
	}
	if text == "" {
		text = emptyReply
	}
	if err := r.commit(ctx, sess, message, text); err != nil {
		return nil, err
	}
	return &Reply{Text: text, Route: RouteModel}, nil
}

// RespondStream answers one chat message as a stream of frames.
//
// The returned channel carries token frames in production order followed by
// exactly one done marker, or an error frame instead of the marker when no
// reply could be produced. The channel is closed when the exchange ends.
// History is committed only after a successful done marker.
func (r *Router) RespondStream(ctx context.Context, key session.Key, message string) (<-chan stream.Frame, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyInput
	}
	sess, err := r.sessionFor(ctx, key)
	if err != nil {
		return nil, err
	}

	frames := make(chan stream.Frame, r.frameBuffer)
	go func() {
		defer close(frames)
		ctx, span := trace.Tracer.Start(ctx, "chat.respond_stream")
		defer span.End()
		r.streamExchange(ctx, sess, message, frames)
	}()
	return frames, nil
}

func (r *Router) streamExchange(ctx context.Context, sess *session.Session, message string, frames chan<- stream.Frame) {
	acc := stream.New(frames)

	if text, ok := r.tryGuardrail(message); ok {
		if err := r.commit(ctx, sess, message, text); err != nil {
			log.Errorf("commit failed: %v", err)
			acc.Abort(ctx, FailedReply)
			return
		}
		acc.Finish(ctx, func(context.Context) (string, error) { return text, nil })
		return
	}

	m, err := r.modelInstance()
	if err != nil {
		log.Errorf("model unavailable: %v", err)
		acc.Abort(ctx, NotConfiguredReply)
		return
	}

	req := r.buildRequest(sess, message, true)
	for attempt := 1; ; attempt++ {
		ch, err := m.GenerateContent(ctx, req)
		if err != nil {
			log.Errorf("model stream failed to start: %v", err)
			acc.Abort(ctx, FailedReply)
			return
		}
		upErr := acc.Consume(ctx, ch)
		if upErr == nil {
			break
		}
		// Retry only while nothing reached the client yet; after the
		// first forwarded token the stream is committed to this attempt.
		if acc.Forwarded() == 0 && upErr.Transient() && attempt < r.retry.MaxAttempts {
			log.Warnf("model stream attempt %d failed (status %d), retrying: %s",
				attempt, upErr.StatusCode, upErr.Message)
			if err := r.retry.Sleep(ctx, attempt); err != nil {
				return
			}
			continue
		}
		log.Errorf("model stream failed: %s", upErr.Message)
		acc.Abort(ctx, FailedReply)
		return
	}

	reply, commit := acc.Finish(ctx, func(ctx context.Context) (string, error) {
		return r.callModel(ctx, m, r.buildRequest(sess, message, false))
	})
	if commit {
		if err := r.commit(ctx, sess, message, reply); err != nil {
			log.Errorf("commit failed: %v", err)
		}
	}
}

// tryGuardrail runs the arithmetic pipeline. Any failure is absorbed: the
// reason is logged at debug and the caller falls through to the model.
func (r *Router) tryGuardrail(message string) (string, bool) {
	candidate := guardrail.Extract(guardrail.Normalize(message))
	if candidate == "" {
		return "", false
	}
	text, err := guardrail.Eval(candidate)
	if err != nil {
		log.Debugf("guardrail declined %q: %v", candidate, err)
		return "", false
	}
	return text, true
}

// buildRequest assembles the model context: system instruction, mapped
// history turns, then the current message. Greetings skip the history so a
// bare "hi" is never colored by earlier turns.
func (r *Router) buildRequest(sess *session.Session, message string, streaming bool) *model.Request {
	messages := []model.Message{model.NewSystemMessage(r.systemPrompt)}
	if !r.isGreeting(message) {
		for _, turn := range sess.History.Snapshot() {
			if turn.Speaker == session.SpeakerBot {
				messages = append(messages, model.NewAssistantMessage(turn.Text))
			} else {
				messages = append(messages, model.NewUserMessage(turn.Text))
			}
		}
	}
	messages = append(messages, model.NewUserMessage(message))
	return &model.Request{
		Messages: messages,
		GenerationConfig: model.GenerationConfig{
			Stream: streaming,
		},
	}
}

func (r *Router) isGreeting(message string) bool {
	_, ok := r.greetings[strings.ToLower(message)]
	return ok
}

// callModel performs a non-streaming model call with the retry policy.
// Only errors carrying a transient status (429, 503) are retried.
func (r *Router) callModel(ctx context.Context, m model.Model, req *model.Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		ch, err := m.GenerateContent(ctx, req)
		if err != nil {
			return "", err
		}
		text, respErr := collectResponse(ch)
		if respErr == nil {
			return text, nil
		}
		lastErr = respErr
		if !respErr.Transient() || attempt == r.retry.MaxAttempts {
			return "", respErr
		}
		log.Warnf("model attempt %d failed (status %d), retrying: %s",
			attempt, respErr.StatusCode, respErr.Message)
		if err := r.retry.Sleep(ctx, attempt); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// collectResponse drains a response channel and returns the final content,
// or the upstream error that ended the call.
func collectResponse(ch <-chan *model.Response) (string, *model.ResponseError) {
	var text string
	var respErr *model.ResponseError
	for rsp := range ch {
		if rsp == nil {
			continue
		}
		if rsp.Error != nil {
			respErr = rsp.Error
			continue
		}
		if !rsp.IsPartial {
			if content := rsp.Content(); content != "" {
				text = content
			}
		}
	}
	if respErr != nil {
		return "", respErr
	}
	return text, nil
}

func (r *Router) modelInstance() (model.Model, error) {
	r.initOnce.Do(func() {
		if r.provider == nil {
			r.initErr = model.ErrMissingCredential
			return
		}
		r.model, r.initErr = r.provider()
	})
	return r.model, r.initErr
}

func (r *Router) sessionFor(ctx context.Context, key session.Key) (*session.Session, error) {
	if key.AppName == "" {
		key.AppName = r.appName
	}
	sess, err := r.sessions.GetSession(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	return r.sessions.CreateSession(ctx, key)
}

// commit appends the completed exchange to the session history. Both turns
// land together so the history never holds a user turn without its answer.
func (r *Router) commit(ctx context.Context, sess *session.Session, userText, botText string) error {
	return r.sessions.AppendTurns(ctx, sess,
		session.Turn{Speaker: session.SpeakerUser, Text: userText},
		session.Turn{Speaker: session.SpeakerBot, Text: botText},
	)
}
