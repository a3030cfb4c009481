//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package model provides interfaces for working with LLMs.
package model

import (
	"context"
	"errors"
)

// ErrMissingCredential is returned by model providers when no API
// credential is configured. It must never reach an end user verbatim.
var ErrMissingCredential = errors.New("missing model credential")

// Model is the interface for all language models.
//
// Error handling is dual-layer:
//
//  1. Function-level errors (returned as `error`): system-level failures
//     that prevent communication, such as a nil request.
//  2. Response-level errors (Response.Error): failures reported by the
//     model service after communication succeeded, such as rate limits.
//     These are delivered through the response channel as structured
//     errors, and the router decides whether they are retryable.
type Model interface {
	// GenerateContent generates content from the given request. The
	// returned channel carries streaming or single-shot responses and is
	// closed when generation ends.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}
