// Package modeltest provides a scripted model.Client for tests.
package modeltest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sealor/pharmacy-agent/pkg/history"
	"github.com/sealor/pharmacy-agent/pkg/model"
)

// Round scripts one model call. Deltas are streamed first, then the response completes
// unless Err is set or Incomplete is true.
type Round struct {
	Deltas     []string
	Refusals   []string
	Calls      []model.FunctionCall
	Err        error
	Incomplete bool
	// Block makes the stream wait for the request context before returning anything.
	Block bool
}

// Text scripts a round that answers with text only.
func Text(deltas ...string) Round {
	return Round{Deltas: deltas}
}

// Calls scripts a round that requests the given function calls.
func Calls(calls ...model.FunctionCall) Round {
	return Round{Calls: calls}
}

func Call(callID, name, arguments string) model.FunctionCall {
	return model.FunctionCall{CallID: callID, Name: name, Arguments: arguments}
}

// Client replays rounds in order and records every request.
type Client struct {
	mu       sync.Mutex
	rounds   []Round
	requests []model.Request
}

func New(rounds ...Round) *Client {
	return &Client{rounds: rounds}
}

func (c *Client) Requests() []model.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.requests)
}

func (c *Client) Stream(ctx context.Context, req model.Request) model.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.Input = slices.Clone(req.Input)
	c.requests = append(c.requests, req)
	if len(c.rounds) == 0 {
		return &stream{ctx: ctx, err: errors.New("modeltest: no scripted round left")}
	}
	r := c.rounds[0]
	c.rounds = c.rounds[1:]
	return newStream(ctx, len(c.requests), r)
}

type stream struct {
	ctx    context.Context
	events []model.Event
	cur    model.Event
	err    error
	block  bool
}

func newStream(ctx context.Context, n int, r Round) *stream {
	s := &stream{ctx: ctx, block: r.Block}
	text := ""
	for _, d := range r.Deltas {
		s.events = append(s.events, model.Event{Kind: model.EventTextDelta, Delta: d})
		text += d
	}
	for _, d := range r.Refusals {
		s.events = append(s.events, model.Event{Kind: model.EventRefusalDelta, Delta: d})
		text += d
	}
	if r.Err != nil {
		s.err = r.Err
		return s
	}
	if r.Incomplete {
		return s
	}

	resp := &model.Response{ID: fmt.Sprintf("resp_%d", n), Calls: r.Calls}
	if text != "" {
		resp.Items = append(resp.Items, history.MessageItem(history.Turn{Role: history.RoleAssistant, Content: text}))
	}
	for _, call := range r.Calls {
		resp.Items = append(resp.Items, history.FunctionCallItem(call.CallID, call.Name, call.Arguments))
	}
	s.events = append(s.events, model.Event{Kind: model.EventCompleted, Response: resp})
	return s
}

func (s *stream) Next() bool {
	if s.block {
		<-s.ctx.Done()
		s.err = s.ctx.Err()
		return false
	}
	if len(s.events) == 0 {
		return false
	}
	s.cur, s.events = s.events[0], s.events[1:]
	return true
}

func (s *stream) Current() model.Event {
	return s.cur
}

func (s *stream) Err() error {
	return s.err
}

func (s *stream) Close() error {
	return nil
}
