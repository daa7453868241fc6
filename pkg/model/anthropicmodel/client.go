// Package anthropicmodel streams model turns through the Anthropic Messages API
package anthropicmodel

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/sealor/pharmacy-agent/pkg/model"
)

const defaultMaxTokens = 2048

type Options struct {
	BaseURL   string
	APIKey    string
	DebugHTTP bool
	Timeout   time.Duration
	// Logger receives the DebugHTTP output.
	Logger *slog.Logger
}

func debugLog(logger *slog.Logger) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		start := time.Now()
		resp, err := next(req)
		attrs := []any{"method", req.Method, "url", req.URL.String(), "duration", time.Since(start)}
		if err != nil {
			logger.Debug("model request failed", append(attrs, "error", err)...)
			return resp, err
		}
		logger.Debug("model request", append(attrs, "status", resp.StatusCode)...)
		return resp, nil
	}
}

type Client struct {
	messages anthropic.MessageService
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
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		options = append(options, option.WithMiddleware(debugLog(logger)))
	}
	if opts.Timeout > 0 {
		options = append(options, option.WithRequestTimeout(opts.Timeout))
	}
	client := anthropic.NewClient(options...)
	return &Client{messages: client.Messages}
}

func (c *Client) Stream(ctx context.Context, req model.Request) model.Stream {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxOutputTokens,
		Messages:  NewMessagesFromItems(req.Input),
		Tools:     NewToolsFromDeclarations(req.Tools),
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = defaultMaxTokens
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	return &stream{sse: c.messages.NewStreaming(ctx, params)}
}

type stream struct {
	sse  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	msg  anthropic.Message
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
		if err := s.msg.Accumulate(event); err != nil {
			s.err, s.done = err, true
			return false
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				s.cur = model.Event{Kind: model.EventTextDelta, Delta: event.Delta.Text}
				return true
			}
		case "message_stop":
			s.cur = model.Event{Kind: model.EventCompleted, Response: NewResponseFromAnthropic(&s.msg)}
			s.done = true
			return true
		}
	}
	s.done = true
	return false
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
