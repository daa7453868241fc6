// Package agent runs one conversational turn: safety gate, streamed model rounds and validated tool calls.
package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sealor/pharmacy-agent/pkg/contracts"
	"github.com/sealor/pharmacy-agent/pkg/history"
	"github.com/sealor/pharmacy-agent/pkg/model"
	"github.com/sealor/pharmacy-agent/pkg/safety"
	"github.com/tidwall/gjson"
)

//go:embed prompt.md
var DefaultInstructions string

const (
	DefaultMaxRounds    = 8
	DefaultModelTimeout = 60 * time.Second
	DefaultTurnTimeout  = 3 * time.Minute

	unparsableArgsMessage = "Could not parse tool arguments JSON."
)

// Dispatcher executes validated tool calls. It never fails past the outcome envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args []byte) contracts.Output
	Contracts() []contracts.Contract
}

type Orchestrator struct {
	Model           model.Client
	Tools           Dispatcher
	Logger          *slog.Logger
	ModelName       string
	Instructions    string
	MaxRounds       int
	ModelTimeout    time.Duration
	TurnTimeout     time.Duration
	MaxOutputTokens int64
}

func New(client model.Client, tools Dispatcher, modelName string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Model:        client,
		Tools:        tools,
		Logger:       logger,
		ModelName:    modelName,
		Instructions: DefaultInstructions,
		MaxRounds:    DefaultMaxRounds,
		ModelTimeout: DefaultModelTimeout,
		TurnTimeout:  DefaultTurnTimeout,
	}
}

// turn holds the state of one RunTurn call.
type turn struct {
	o       *Orchestrator
	id      string
	logger  *slog.Logger
	caller  context.Context
	ctx     context.Context
	history *history.Manager
	emitFn  func(Event) bool
	text    strings.Builder
	stopped bool
}

// RunTurn processes one user message and returns the updated serializable history.
//
// Events are passed to emit in order. When emit returns false the consumer is gone and the turn
// stops without further side effects; the same happens when ctx is cancelled.
func (o *Orchestrator) RunTurn(ctx context.Context, userText string, prior []history.Turn, emit func(Event) bool) []history.Turn {
	t := &turn{
		o:       o,
		id:      uuid.NewString(),
		caller:  ctx,
		history: history.NewManager(prior),
		emitFn:  emit,
	}
	t.logger = o.Logger.With("turn_id", t.id)
	t.history.AppendUser(userText)

	if refusal, ok := safety.Evaluate(userText); ok {
		t.logger.Info("safety gate refused the request", "language", refusal.Language)
		if t.emit(Event{Type: EventTextDelta, Delta: refusal.Text}) {
			t.history.AppendAssistant(refusal.Text)
			t.emit(Event{Type: EventDone, TurnID: t.id})
		}
		return t.history.Serializable()
	}

	budget := o.TurnTimeout
	if budget <= 0 {
		budget = DefaultTurnTimeout
	}
	var cancel context.CancelFunc
	t.ctx, cancel = context.WithTimeout(ctx, budget)
	defer cancel()

	t.logger.Info("turn started", "prior_turns", len(prior))
	t.run()
	return t.history.Serializable()
}

func (t *turn) run() {
	maxRounds := t.o.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	decls := model.DeclarationsFrom(t.o.Tools.Contracts())

	for rounds := 0; ; rounds++ {
		if t.interrupted() {
			return
		}
		resp, ok := t.callModel(decls)
		if !ok {
			return
		}
		t.history.ExtendRuntime(resp.Items...)

		if len(resp.Calls) == 0 {
			t.history.AppendAssistant(t.text.String())
			t.logger.Info("turn finished", "tool_rounds", rounds)
			t.emit(Event{Type: EventDone, TurnID: t.id})
			return
		}
		if rounds == maxRounds {
			t.fail(CodeMaxRoundsExceeded, fmt.Sprintf("the model requested more than %d tool rounds", maxRounds))
			return
		}

		t.logger.Debug("tool round", "round", rounds+1, "calls", len(resp.Calls))
		for _, call := range resp.Calls {
			if t.interrupted() || !t.runCall(call) {
				return
			}
		}
	}
}

func (t *turn) callModel(decls []model.ToolDeclaration) (*model.Response, bool) {
	timeout := t.o.ModelTimeout
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	ctx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()

	stream := t.o.Model.Stream(ctx, model.Request{
		Model:           t.o.ModelName,
		Instructions:    t.o.Instructions,
		Tools:           decls,
		Input:           t.history.Runtime(),
		MaxOutputTokens: t.o.MaxOutputTokens,
	})
	defer func() { _ = stream.Close() }()

	var resp *model.Response
	var streamErr error
loop:
	for stream.Next() {
		ev := stream.Current()
		switch ev.Kind {
		case model.EventTextDelta, model.EventRefusalDelta:
			if ev.Delta == "" {
				continue
			}
			t.text.WriteString(ev.Delta)
			if !t.emit(Event{Type: EventTextDelta, Delta: ev.Delta}) {
				return nil, false
			}
		case model.EventCompleted:
			resp = ev.Response
		case model.EventError:
			streamErr = ev.Err
			break loop
		}
	}
	if streamErr == nil {
		streamErr = stream.Err()
	}

	if t.interrupted() {
		return nil, false
	}
	if streamErr != nil {
		t.logger.Error("model call failed", "error", streamErr)
		t.fail(CodeModelTransport, "Model call failed: "+streamErr.Error())
		return nil, false
	}
	if resp == nil {
		t.logger.Error("model call failed", "error", model.ErrNoCompletedResponse)
		t.fail(CodeModelTransport, "No completed response received.")
		return nil, false
	}
	return resp, true
}

// runCall dispatches one function call and feeds its outcome back to the runtime history.
func (t *turn) runCall(call model.FunctionCall) bool {
	logger := t.logger.With("tool_name", call.Name, "call_id", call.CallID)

	args := strings.TrimSpace(call.Arguments)
	if args == "" {
		args = "{}"
	}

	var out contracts.Output
	if !gjson.Valid(args) {
		logger.Warn("tool arguments are not valid JSON", "tool_args", call.Arguments)
		if !t.emit(Event{Type: EventToolCall, Name: call.Name, CallID: call.CallID, Arguments: jsonString(args)}) {
			return false
		}
		out = contracts.Failure(contracts.ErrInvalidToolArgs, unparsableArgsMessage)
	} else {
		if !t.emit(Event{Type: EventToolCall, Name: call.Name, CallID: call.CallID, Arguments: json.RawMessage(args)}) {
			return false
		}
		out = t.o.Tools.Dispatch(t.ctx, call.Name, []byte(args))
	}

	payload, err := json.Marshal(out)
	if err != nil {
		logger.Error("tool outcome could not be encoded", "error", err)
		payload, _ = json.Marshal(contracts.Failure(contracts.ErrInvalidToolOutput, "The tool returned an unexpected result."))
	}
	if !t.emit(Event{Type: EventToolResult, Name: call.Name, CallID: call.CallID, Output: payload}) {
		return false
	}
	t.history.AppendToolOutput(call.CallID, payload)
	return true
}

// interrupted reports a cancelled caller or an exhausted turn budget and ends the turn accordingly.
func (t *turn) interrupted() bool {
	if t.stopped {
		return true
	}
	switch {
	case t.caller.Err() != nil:
		t.logger.Info("turn cancelled", "error", t.caller.Err())
		t.fail(CodeCancelled, "The turn was cancelled.")
	case errors.Is(t.ctx.Err(), context.DeadlineExceeded):
		t.logger.Warn("turn budget exhausted", "budget", t.o.TurnTimeout)
		t.fail(CodeTurnTimeout, "The turn took too long and was stopped.")
	default:
		return false
	}
	return true
}

func (t *turn) fail(code ErrorCode, message string) {
	t.emit(Event{Type: EventError, Code: code, Message: message, TurnID: t.id})
	t.stopped = true
}

func (t *turn) emit(e Event) bool {
	if t.stopped {
		return false
	}
	if !t.emitFn(e) {
		t.logger.Info("event consumer went away", "event", e.Type)
		t.stopped = true
		return false
	}
	return true
}

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Stream runs the turn in a goroutine and delivers its events over a channel that is closed after the
// terminal event. The returned function blocks until the turn is over and yields the final history.
// Cancel ctx to abandon the turn before draining the channel.
func (o *Orchestrator) Stream(ctx context.Context, userText string, prior []history.Turn) (<-chan Event, func() []history.Turn) {
	events := make(chan Event)
	finished := make(chan struct{})
	var final []history.Turn

	go func() {
		defer close(finished)
		defer close(events)
		final = o.RunTurn(ctx, userText, prior, func(e Event) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	return events, func() []history.Turn {
		<-finished
		return final
	}
}
