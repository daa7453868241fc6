// Package model declares the streaming model capability the orchestrator talks to.
// Provider adapters live in the subpackages.
package model

import (
	"context"
	"errors"

	"github.com/sealor/pharmacy-agent/pkg/contracts"
	"github.com/sealor/pharmacy-agent/pkg/history"
)

type FunctionCall struct {
	CallID    string
	Name      string
	Arguments string
}

type EventKind int

const (
	EventTextDelta EventKind = iota
	EventRefusalDelta
	EventCompleted
	EventError
)

// Event is one element of a model stream. Completed events carry the Response,
// error events carry Err.
type Event struct {
	Kind     EventKind
	Delta    string
	Response *Response
	Err      error
}

// Response is a completed model response.
type Response struct {
	ID string
	// Items are appended to the runtime history verbatim.
	Items []history.Item
	Calls []FunctionCall
}

// ToolDeclaration describes a tool to the model.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Model           string
	Instructions    string
	Tools           []ToolDeclaration
	Input           []history.Item
	MaxOutputTokens int64
}

type Stream interface {
	Next() bool
	Current() Event
	Err() error
	Close() error
}

type Client interface {
	Stream(ctx context.Context, req Request) Stream
}

// ErrNoCompletedResponse is reported when a stream ends without a completed response.
var ErrNoCompletedResponse = errors.New("model stream ended without a completed response")

func DeclarationsFrom(cs []contracts.Contract) []ToolDeclaration {
	decls := make([]ToolDeclaration, 0, len(cs))
	for _, c := range cs {
		decls = append(decls, ToolDeclaration{Name: c.Name, Description: c.Description, Parameters: c.Input.JSONSchema()})
	}
	return decls
}
