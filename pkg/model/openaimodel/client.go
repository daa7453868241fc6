// Package openaimodel streams model turns through the OpenAI Responses API
package openaimodel

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/responses"
	"github.com/sealor/pharmacy-agent/pkg/model"
)

type Options struct {
	BaseURL string
	APIKey  string
	// DebugHTTP logs every request and response of the SDK.
	DebugHTTP bool
	Timeout   time.Duration
}

type Client struct {
	responses responses.ResponseService
}

func New(opts Options) *Client {
	options := []option.RequestOption{
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		options = append(options, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		options = append(options, option.WithAPIKey(opts.APIKey))
	}
	if opts.DebugHTTP {
		options = append(options, option.WithDebugLog(nil))
	}
	if opts.Timeout > 0 {
		options = append(options, option.WithRequestTimeout(opts.Timeout))
	}
	client := openai.NewClient(options...)
	return &Client{responses: client.Responses}
}

func (c *Client) Stream(ctx context.Context, req model.Request) model.Stream {
	params := responses.ResponseNewParams{
		Input:             responses.ResponseNewParamsInputUnion{OfInputItemList: NewInputFromItems(req.Input)},
		Model:             req.Model,
		Tools:             NewToolsFromDeclarations(req.Tools),
		ParallelToolCalls: openai.Bool(false),
		Store:             openai.Bool(false),
		// unstored reasoning items can only be replayed with their encrypted content
		Include: []responses.ResponseIncludable{responses.ResponseIncludableReasoningEncryptedContent},
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(req.MaxOutputTokens)
	}
	return &stream{sse: c.responses.NewStreaming(ctx, params)}
}

type stream struct {
	sse  *ssestream.Stream[responses.ResponseStreamEventUnion]
	cur  model.Event
	err  error
	done bool
}

func (s *stream) Next() bool {
	if s.done {
		return false
	}
	for s.sse.Next() {
		event := s.sse.Current()
		switch event.Type {
		case "response.output_text.delta":
			s.cur = model.Event{Kind: model.EventTextDelta, Delta: event.Delta}
			return true
		case "response.refusal.delta":
			s.cur = model.Event{Kind: model.EventRefusalDelta, Delta: event.Delta}
			return true
		case "response.completed":
			s.cur = model.Event{Kind: model.EventCompleted, Response: NewResponseFromOpenAI(&event.Response)}
			s.done = true
			return true
		case "error":
			s.fail(fmt.Errorf("model error %s: %s", event.Code, event.Message))
			return false
		case "response.failed", "response.incomplete":
			msg := event.Response.Error.Message
			if msg == "" {
				msg = event.Response.IncompleteDetails.Reason
			}
			s.fail(fmt.Errorf("%s: %s", event.Type, msg))
			return false
		}
	}
	s.done = true
	return false
}

func (s *stream) fail(err error) {
	s.err = err
	s.done = true
}

func (s *stream) Current() model.Event {
	return s.cur
}

func (s *stream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.sse.Err()
}

func (s *stream) Close() error {
	return s.sse.Close()
}
