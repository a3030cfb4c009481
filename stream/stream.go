//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package stream reassembles model token streams into wire frames and a
// final reply.
//
// The accumulator writes Frame values to a bounded channel owned by the
// caller; it never touches transport types. Rendering frames as
// server-sent events is the HTTP layer's concern.
package stream

import (
	"context"
	"strings"

	"trpc.group/trpc-go/trpc-chatguard-go/model"
)

// Frame is one wire frame of a streamed reply: a token, an error, or the
// terminal done marker. Exactly one of the fields is meaningful.
type Frame struct {
	Token string
	Err   string
	Done  bool
}

// TokenFrame creates a token frame.
func TokenFrame(token string) Frame {
	return Frame{Token: token}
}

// ErrorFrame creates an error frame.
func ErrorFrame(msg string) Frame {
	return Frame{Err: msg}
}

// DoneFrame is the terminal marker frame.
var DoneFrame = Frame{Done: true}

// Fallback produces a reply synchronously when the stream yielded no
// tokens. It typically wraps a non-streaming model call.
type Fallback func(ctx context.Context) (string, error)

// Accumulator consumes model responses, forwards each token immediately as
// a frame, and concatenates the forwarded tokens into the final reply.
// It is single-use: one Accumulator per streamed exchange.
type Accumulator struct {
	out       chan<- Frame
	reply     strings.Builder
	forwarded int
	done      bool
}

// New creates an accumulator writing frames to out.
func New(out chan<- Frame) *Accumulator {
	return &Accumulator{out: out}
}

// Consume drains the response channel, forwarding every non-empty token
// delta as a frame in production order. It returns the upstream error that
// ended the stream, or nil on a clean end. Consume never emits error or
// done frames; the caller decides how the stream terminates.
func (a *Accumulator) Consume(ctx context.Context, ch <-chan *model.Response) *model.ResponseError {
	var lastErr *model.ResponseError
	for rsp := range ch {
		if rsp == nil {
			continue
		}
		if rsp.Error != nil {
			lastErr = rsp.Error
			continue
		}
		if rsp.IsPartial {
			if token := rsp.DeltaContent(); token != "" {
				if !a.forward(ctx, token) {
					return lastErr
				}
			}
			continue
		}
		// Aggregated final response. Its content duplicates the deltas
		// already forwarded; it only matters when no deltas arrived.
		if rsp.Done && a.forwarded == 0 {
			if token := rsp.Content(); token != "" {
				if !a.forward(ctx, token) {
					return lastErr
				}
			}
		}
	}
	return lastErr
}

// Forwarded returns the number of token frames emitted so far.
func (a *Accumulator) Forwarded() int {
	return a.forwarded
}

// Reply returns the ordered concatenation of all forwarded tokens.
func (a *Accumulator) Reply() string {
	return a.reply.String()
}

// Finish terminates the stream. When no tokens were forwarded it invokes
// fallback (if any) and forwards the result as a single frame. It then
// emits the done marker exactly once, or an error frame instead when no
// text was produced at all. The returned bool reports whether the exchange
// produced text and should be committed to history.
func (a *Accumulator) Finish(ctx context.Context, fallback Fallback) (string, bool) {
	if a.forwarded == 0 && fallback != nil {
		text, err := fallback(ctx)
		if err == nil && text != "" {
			a.forward(ctx, text)
		}
	}
	if a.reply.Len() == 0 {
		a.emit(ctx, ErrorFrame("no reply produced"))
		return "", false
	}
	if !a.done {
		a.done = true
		a.emit(ctx, DoneFrame)
	}
	return a.reply.String(), true
}

// Abort emits an error frame in place of the done marker. Used when the
// upstream failed after retries; nothing is committed.
func (a *Accumulator) Abort(ctx context.Context, msg string) {
	a.emit(ctx, ErrorFrame(msg))
}

func (a *Accumulator) forward(ctx context.Context, token string) bool {
	if !a.emit(ctx, TokenFrame(token)) {
		return false
	}
	a.reply.WriteString(token)
	a.forwarded++
	return true
}

func (a *Accumulator) emit(ctx context.Context, f Frame) bool {
	select {
	case a.out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
