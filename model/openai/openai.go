//
// Tencent is pleased to support the open source community by making trpc-chatguard-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatguard-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an OpenAI-compatible model implementation.
package openai

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"trpc.group/trpc-go/trpc-chatguard-go/model"
)

// defaultChannelBufferSize is the default response channel buffer size.
const defaultChannelBufferSize = 256

// options is the configuration collected from Option values.
type options struct {
	APIKey            string
	BaseURL           string
	ChannelBufferSize int
	OpenAIOptions     []openaiopt.RequestOption
}

// Option configures the Model.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.APIKey = key
	}
}

// WithBaseURL sets the base URL for OpenAI-compatible endpoints.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.BaseURL = url
	}
}

// WithChannelBufferSize sets the buffer size of the response channel.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.ChannelBufferSize = size
		}
	}
}

// WithOpenAIOptions appends raw request options passed to the underlying
// SDK client.
func WithOpenAIOptions(openaiOpts ...openaiopt.RequestOption) Option {
	return func(o *options) {
		o.OpenAIOptions = append(o.OpenAIOptions, openaiOpts...)
	}
}

// Model implements the model.Model interface for the OpenAI API and
// compatible endpoints.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
}

// New creates an OpenAI-compatible model client. SDK-level retries are
// disabled: the router owns the retry policy.
func New(name string, opts ...Option) *Model {
	o := &options{
		ChannelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	clientOpts := []openaiopt.RequestOption{openaiopt.WithMaxRetries(0)}
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	clientOpts = append(clientOpts, o.OpenAIOptions...)

	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.ChannelBufferSize,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)

	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
	}
	if request.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}

	go func() {
		defer close(responseChan)
		if request.Stream {
			m.handleStreamingResponse(ctx, chatRequest, responseChan)
		} else {
			m.handleNonStreamingResponse(ctx, chatRequest, responseChan)
		}
	}()

	return responseChan, nil
}

// convertMessages converts our Message format to the SDK's union type.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func (m *Model) handleStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, chatRequest)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		// Only chunks with a visible delta or a finish reason are emitted.
		if len(chunk.Choices) == 0 {
			continue
		}
		if chunk.Choices[0].Delta.Content == "" && chunk.Choices[0].FinishReason == "" {
			continue
		}

		select {
		case responseChan <- partialResponse(chunk):
		case <-ctx.Done():
			return
		}
	}

	if err := stream.Err(); err != nil {
		errorResponse := &model.Response{
			Object: model.ObjectTypeError,
			Error: &model.ResponseError{
				Message:    err.Error(),
				Type:       model.ErrorTypeStreamError,
				StatusCode: statusCodeOf(err),
			},
			Timestamp: time.Now(),
			Done:      true,
		}
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	select {
	case responseChan <- finalResponse(acc):
	case <-ctx.Done():
	}
}

// partialResponse converts one streaming chunk into a partial Response.
func partialResponse(chunk openai.ChatCompletionChunk) *model.Response {
	response := &model.Response{
		ID:        chunk.ID,
		Object:    model.ObjectTypeChatCompletionChunk,
		Created:   chunk.Created,
		Model:     chunk.Model,
		Timestamp: time.Now(),
		IsPartial: true,
	}
	response.Choices = []model.Choice{{
		Delta: model.Message{
			Role:    model.RoleAssistant,
			Content: chunk.Choices[0].Delta.Content,
		},
	}}
	if chunk.Choices[0].FinishReason != "" {
		finishReason := chunk.Choices[0].FinishReason
		response.Choices[0].FinishReason = &finishReason
	}
	return response
}

// finalResponse builds the aggregated end-of-stream response.
func finalResponse(acc openai.ChatCompletionAccumulator) *model.Response {
	response := &model.Response{
		ID:        acc.ID,
		Object:    model.ObjectTypeChatCompletion,
		Created:   acc.Created,
		Model:     acc.Model,
		Timestamp: time.Now(),
		Done:      true,
	}
	if len(acc.Choices) > 0 {
		response.Choices = []model.Choice{{
			Message: model.Message{
				Role:    model.RoleAssistant,
				Content: acc.Choices[0].Message.Content,
			},
		}}
	}
	if acc.Usage.TotalTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
		}
	}
	return response
}

func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest)
	if err != nil {
		errorResponse := &model.Response{
			Object: model.ObjectTypeError,
			Error: &model.ResponseError{
				Message:    err.Error(),
				Type:       model.ErrorTypeAPIError,
				StatusCode: statusCodeOf(err),
			},
			Timestamp: time.Now(),
			Done:      true,
		}
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	response := &model.Response{
		ID:        chatCompletion.ID,
		Object:    string(chatCompletion.Object),
		Created:   chatCompletion.Created,
		Model:     chatCompletion.Model,
		Timestamp: time.Now(),
		Done:      true,
	}
	if len(chatCompletion.Choices) > 0 {
		response.Choices = make([]model.Choice, len(chatCompletion.Choices))
		for i, choice := range chatCompletion.Choices {
			response.Choices[i] = model.Choice{
				Index: int(choice.Index),
				Message: model.Message{
					Role:    model.RoleAssistant,
					Content: choice.Message.Content,
				},
			}
			if choice.FinishReason != "" {
				finishReason := choice.FinishReason
				response.Choices[i].FinishReason = &finishReason
			}
		}
	}
	if chatCompletion.Usage.TotalTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(chatCompletion.Usage.PromptTokens),
			CompletionTokens: int(chatCompletion.Usage.CompletionTokens),
			TotalTokens:      int(chatCompletion.Usage.TotalTokens),
		}
	}

	select {
	case responseChan <- response:
	case <-ctx.Done():
	}
}

// statusCodeOf extracts the upstream HTTP status code from an SDK error.
func statusCodeOf(err error) int {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode
	}
	return 0
}
