package agent

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sealor/pharmacy-agent/pkg/contracts"
	"github.com/sealor/pharmacy-agent/pkg/history"
	"github.com/sealor/pharmacy-agent/pkg/logging"
	"github.com/sealor/pharmacy-agent/pkg/model"
	"github.com/sealor/pharmacy-agent/pkg/model/modeltest"
	"github.com/sealor/pharmacy-agent/pkg/pharmacy"
	"github.com/sealor/pharmacy-agent/pkg/safety"
	"github.com/sealor/pharmacy-agent/pkg/tooling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) *tooling.Dispatcher {
	t.Helper()
	ctx := context.Background()
	today := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	store, err := pharmacy.Open(ctx, filepath.Join(t.TempDir(), "pharmacy.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(ctx, today))
	store.Now = func() time.Time { return today }

	return tooling.NewDispatcher(store, logging.Discard())
}

func newOrchestrator(t *testing.T, client *modeltest.Client) *Orchestrator {
	return New(client, newDispatcher(t), "test-model", logging.Discard())
}

func runTurn(o *Orchestrator, text string, prior []history.Turn) ([]Event, []history.Turn) {
	var events []Event
	final := o.RunTurn(context.Background(), text, prior, func(e Event) bool {
		events = append(events, e)
		return true
	})
	return events, final
}

func eventTypes(events []Event) []EventType {
	var types []EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func outcome(t *testing.T, e Event) contracts.Envelope {
	t.Helper()
	var env contracts.Envelope
	require.NoError(t, json.Unmarshal(e.Output, &env))
	return env
}

func userTurn(text string) history.Turn {
	return history.Turn{Role: history.RoleUser, Content: text}
}

func assistantTurn(text string) history.Turn {
	return history.Turn{Role: history.RoleAssistant, Content: text}
}

func TestSafetyGateShortCircuits(t *testing.T) {
	client := modeltest.New()
	o := newOrchestrator(t, client)
	prior := []history.Turn{userTurn("hi"), assistantTurn("hello")}
	text := "יש לי כאבים בחזה, מה כדאי לי לקחת?"

	events, final := runTurn(o, text, prior)

	require.Len(t, events, 2)
	assert.Equal(t, Event{Type: EventTextDelta, Delta: safety.HebrewRefusal}, events[0])
	assert.Equal(t, EventDone, events[1].Type)
	assert.NotEmpty(t, events[1].TurnID)
	assert.Empty(t, client.Requests(), "model is never called")
	assert.Equal(t, []history.Turn{userTurn("hi"), assistantTurn("hello"), userTurn(text), assistantTurn(safety.HebrewRefusal)}, final)
}

func TestTextOnlyTurn(t *testing.T) {
	client := modeltest.New(modeltest.Text("Hello", ", how can ", "I help?"))
	o := newOrchestrator(t, client)

	events, final := runTurn(o, "Hi", nil)

	assert.Equal(t, []EventType{EventTextDelta, EventTextDelta, EventTextDelta, EventDone}, eventTypes(events))
	assert.Equal(t, []history.Turn{userTurn("Hi"), assistantTurn("Hello, how can I help?")}, final)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "test-model", reqs[0].Model)
	assert.Equal(t, DefaultInstructions, reqs[0].Instructions)
	assert.Contains(t, reqs[0].Instructions, "These medications cannot be taken together. Consult a pharmacist or clinician.")
	require.Len(t, reqs[0].Tools, 4)
	assert.Equal(t, contracts.InventoryCheck, reqs[0].Tools[0].Name)
	assert.Equal(t, []history.Item{history.MessageItem(userTurn("Hi"))}, reqs[0].Input)
}

func TestOutOfStockFlowKeepsCallOrder(t *testing.T) {
	client := modeltest.New(
		modeltest.Round{
			Deltas: []string{"Let me check. "},
			Calls:  []model.FunctionCall{modeltest.Call("call_1", contracts.InventoryCheck, `{"query":"PainAway","language":"en"}`)},
		},
		modeltest.Calls(modeltest.Call("call_2", contracts.InventoryFindEquivalent, `{"med_id":"MED001","language":"en"}`)),
		modeltest.Text("PainAway (ibuprofen) is out of stock. IbuTabs is available. ",
			"Possible differences: price, inactive ingredients, packaging."),
	)
	o := newOrchestrator(t, client)

	events, final := runTurn(o, "Do you have PainAway 200 mg?", nil)

	assert.Equal(t, []EventType{
		EventTextDelta,
		EventToolCall, EventToolResult,
		EventToolCall, EventToolResult,
		EventTextDelta, EventTextDelta,
		EventDone,
	}, eventTypes(events))

	assert.Equal(t, contracts.InventoryCheck, events[1].Name)
	assert.Equal(t, "call_1", events[1].CallID)
	assert.JSONEq(t, `{"query":"PainAway","language":"en"}`, string(events[1].Arguments))
	assert.Equal(t, "call_1", events[2].CallID)
	assert.True(t, outcome(t, events[2]).OK)

	var stock contracts.InventoryCheckOutput
	require.NoError(t, json.Unmarshal(events[2].Output, &stock))
	require.Len(t, stock.Matches, 1)
	assert.Equal(t, 0, stock.Matches[0].QtyOnHand)

	assert.Equal(t, contracts.InventoryFindEquivalent, events[3].Name)
	assert.Equal(t, "call_2", events[4].CallID)
	assert.Contains(t, string(events[4].Output), `"possible_differences":["price","inactive ingredients","packaging"]`)

	require.Len(t, final, 2)
	assert.Equal(t, "Let me check. PainAway (ibuprofen) is out of stock. IbuTabs is available. "+
		"Possible differences: price, inactive ingredients, packaging.", final[1].Content)

	reqs := client.Requests()
	require.Len(t, reqs, 3)
	second := reqs[1].Input
	require.Len(t, second, 4)
	assert.Equal(t, history.KindMessage, second[1].Kind, "model's own text item is fed back")
	assert.Equal(t, history.FunctionCallItem("call_1", contracts.InventoryCheck, `{"query":"PainAway","language":"en"}`), second[2])
	assert.Equal(t, history.KindFunctionCallOutput, second[3].Kind)
	assert.Equal(t, "call_1", second[3].CallID)
	assert.Equal(t, string(events[2].Output), second[3].Output)

	third := reqs[2].Input
	require.Len(t, third, 6)
	assert.Equal(t, "call_2", third[5].CallID)
}

func TestInStockWithoutPrescriptionFlow(t *testing.T) {
	client := modeltest.New(
		modeltest.Calls(modeltest.Call("call_1", contracts.InventoryCheck, `{"query":"AllerFree","language":"en"}`)),
		modeltest.Text("Yes, AllerFree 10 mg tablets (loratadine) are in stock. No prescription is required."),
	)
	o := newOrchestrator(t, client)

	events, final := runTurn(o, "Do you have AllerFree?", nil)

	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventTextDelta, EventDone}, eventTypes(events))
	var tools []string
	for _, e := range events {
		if e.Type == EventToolCall {
			tools = append(tools, e.Name)
		}
	}
	assert.Equal(t, []string{contracts.InventoryCheck}, tools, "no prescription or interaction lookup")

	var stock contracts.InventoryCheckOutput
	require.NoError(t, json.Unmarshal(events[1].Output, &stock))
	require.True(t, stock.OK)
	require.Len(t, stock.Matches, 1)
	assert.Equal(t, "MED005", stock.Matches[0].MedID)
	assert.Equal(t, []string{"loratadine"}, stock.Matches[0].ActiveIngredients)
	assert.False(t, stock.Matches[0].RxRequired)
	assert.Greater(t, stock.Matches[0].QtyOnHand, 0)

	require.Len(t, final, 2)
	assert.Contains(t, final[1].Content, "loratadine")
}

func TestCallsInOneRoundRunInEmissionOrder(t *testing.T) {
	client := modeltest.New(
		modeltest.Calls(
			modeltest.Call("c_b", contracts.InventoryCheck, `{"query":"Cholesto"}`),
			modeltest.Call("c_a", contracts.InventoryCheck, `{"query":"PainAway"}`),
			modeltest.Call("c_c", contracts.InteractionCheck, `{"med_ids":["MED001","MED003"],"language":"en"}`),
		),
		modeltest.Text("These medications cannot be taken together. Consult a pharmacist or clinician."),
	)
	o := newOrchestrator(t, client)

	events, _ := runTurn(o, "I want PainAway 200 mg and Cholesto 20 mg together.", nil)

	var calls, results []string
	for _, e := range events {
		switch e.Type {
		case EventToolCall:
			calls = append(calls, e.CallID)
		case EventToolResult:
			results = append(results, e.CallID)
		}
	}
	assert.Equal(t, []string{"c_b", "c_a", "c_c"}, calls)
	assert.Equal(t, calls, results)

	last := events[len(events)-3]
	require.Equal(t, EventToolResult, last.Type)
	assert.Contains(t, string(last.Output), `"interaction_level":"avoid"`)

	input := client.Requests()[1].Input
	var outputs []string
	for _, item := range input {
		if item.Kind == history.KindFunctionCallOutput {
			outputs = append(outputs, item.CallID)
		}
	}
	assert.Equal(t, []string{"c_b", "c_a", "c_c"}, outputs)
}

func TestUnparsableArgumentsDoNotAbortTheTurn(t *testing.T) {
	client := modeltest.New(
		modeltest.Calls(modeltest.Call("call_1", contracts.InventoryCheck, `{"query":`)),
		modeltest.Text("Sorry, something went wrong looking that up."),
	)
	o := newOrchestrator(t, client)

	events, final := runTurn(o, "PainAway?", nil)

	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventTextDelta, EventDone}, eventTypes(events))
	assert.Equal(t, `"{\"query\":"`, string(events[0].Arguments))
	assert.JSONEq(t, `{"ok":false,"error":{"code":"INVALID_TOOL_ARGS","message":"Could not parse tool arguments JSON."}}`,
		string(events[1].Output))
	assert.Equal(t, "Sorry, something went wrong looking that up.", final[1].Content)

	fed := client.Requests()[1].Input
	assert.Equal(t, history.FunctionOutputItem("call_1", string(events[1].Output)), fed[len(fed)-1])
}

func TestEmptyArgumentsAreAnEmptyObject(t *testing.T) {
	client := modeltest.New(
		modeltest.Calls(modeltest.Call("call_1", contracts.InventoryCheck, "")),
		modeltest.Text("Which medication?"),
	)
	events, _ := runTurn(newOrchestrator(t, client), "stock?", nil)

	assert.Equal(t, "{}", string(events[0].Arguments))
	env := outcome(t, events[1])
	require.NotNil(t, env.Error)
	assert.Equal(t, contracts.ErrInvalidToolArgs, env.Error.Code)
	assert.Equal(t, "query: field required", env.Error.Message)
}

func TestUnknownToolIsFedBack(t *testing.T) {
	client := modeltest.New(
		modeltest.Calls(modeltest.Call("call_1", "dose_calculator", `{}`)),
		modeltest.Text("I can't do that."),
	)
	events, _ := runTurn(newOrchestrator(t, client), "How much should I take?", nil)

	env := outcome(t, events[1])
	require.NotNil(t, env.Error)
	assert.Equal(t, contracts.ErrUnknownTool, env.Error.Code)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
}

func TestTransportErrorEndsTheTurn(t *testing.T) {
	client := modeltest.New(modeltest.Round{Deltas: []string{"Partial"}, Err: errors.New("connection reset")})
	o := newOrchestrator(t, client)
	prior := []history.Turn{userTurn("hi"), assistantTurn("hello")}

	events, final := runTurn(o, "PainAway?", prior)

	assert.Equal(t, []EventType{EventTextDelta, EventError}, eventTypes(events))
	assert.Equal(t, CodeModelTransport, events[1].Code)
	assert.Equal(t, "Model call failed: connection reset", events[1].Message)
	assert.Equal(t, []history.Turn{userTurn("hi"), assistantTurn("hello"), userTurn("PainAway?")}, final)
}

func TestTransportErrorAfterToolRound(t *testing.T) {
	client := modeltest.New(
		modeltest.Calls(modeltest.Call("call_1", contracts.InventoryCheck, `{"query":"AllerFree"}`)),
		modeltest.Round{Err: errors.New("503 Service Unavailable")},
	)
	events, final := runTurn(newOrchestrator(t, client), "AllerFree?", nil)

	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventError}, eventTypes(events))
	assert.Equal(t, []history.Turn{userTurn("AllerFree?")}, final)
}

func TestMissingCompletedResponse(t *testing.T) {
	client := modeltest.New(modeltest.Round{Deltas: []string{"Hel"}, Incomplete: true})

	events, final := runTurn(newOrchestrator(t, client), "Hi", nil)

	assert.Equal(t, []EventType{EventTextDelta, EventError}, eventTypes(events))
	assert.Equal(t, CodeModelTransport, events[1].Code)
	assert.Equal(t, "No completed response received.", events[1].Message)
	assert.Len(t, final, 1)
}

func TestMaxRoundsExceeded(t *testing.T) {
	call := modeltest.Call("call", contracts.InventoryCheck, `{"query":"AllerFree"}`)
	client := modeltest.New(modeltest.Calls(call), modeltest.Calls(call), modeltest.Calls(call))
	o := newOrchestrator(t, client)
	o.MaxRounds = 2

	events, final := runTurn(o, "AllerFree?", nil)

	assert.Equal(t, []EventType{
		EventToolCall, EventToolResult,
		EventToolCall, EventToolResult,
		EventError,
	}, eventTypes(events))
	assert.Equal(t, CodeMaxRoundsExceeded, events[4].Code)
	assert.Len(t, client.Requests(), 3)
	assert.Equal(t, []history.Turn{userTurn("AllerFree?")}, final)
}

func TestConsumerStopsReading(t *testing.T) {
	client := modeltest.New(
		modeltest.Round{
			Deltas: []string{"one", "two"},
			Calls:  []model.FunctionCall{modeltest.Call("call_1", contracts.InventoryCheck, `{"query":"AllerFree"}`)},
		},
		modeltest.Text("never requested"),
	)
	o := newOrchestrator(t, client)

	var events []Event
	final := o.RunTurn(context.Background(), "AllerFree?", nil, func(e Event) bool {
		events = append(events, e)
		return false
	})

	assert.Len(t, events, 1)
	assert.Len(t, client.Requests(), 1)
	assert.Equal(t, []history.Turn{userTurn("AllerFree?")}, final)
}

func TestCallerCancellation(t *testing.T) {
	client := modeltest.New(modeltest.Round{Block: true})
	o := newOrchestrator(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	var events []Event
	final := o.RunTurn(ctx, "Hi", nil, func(e Event) bool {
		events = append(events, e)
		return true
	})

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, CodeCancelled, events[0].Code)
	assert.Equal(t, []history.Turn{userTurn("Hi")}, final)
}

func TestTurnTimeout(t *testing.T) {
	client := modeltest.New(modeltest.Round{Block: true})
	o := newOrchestrator(t, client)
	o.TurnTimeout = 20 * time.Millisecond

	events, _ := runTurn(o, "Hi", nil)

	require.Len(t, events, 1)
	assert.Equal(t, CodeTurnTimeout, events[0].Code)
}

func TestModelCallTimeout(t *testing.T) {
	client := modeltest.New(modeltest.Round{Block: true})
	o := newOrchestrator(t, client)
	o.ModelTimeout = 20 * time.Millisecond

	events, _ := runTurn(o, "Hi", nil)

	require.Len(t, events, 1)
	assert.Equal(t, CodeModelTransport, events[0].Code)
	assert.Contains(t, events[0].Message, "deadline exceeded")
}

func TestHistoryRoundTrip(t *testing.T) {
	client := modeltest.New(
		modeltest.Calls(modeltest.Call("call_1", contracts.InventoryCheck, `{"query":"AllerFree"}`)),
		modeltest.Text("AllerFree is in stock."),
		modeltest.Text("It contains loratadine."),
	)
	o := newOrchestrator(t, client)

	_, first := runTurn(o, "AllerFree?", nil)
	raw, err := json.Marshal(first)
	require.NoError(t, err)

	var restored []history.Turn
	require.NoError(t, json.Unmarshal(raw, &restored))
	_, second := runTurn(o, "What is in it?", restored)

	assert.Equal(t, []history.Turn{
		userTurn("AllerFree?"), assistantTurn("AllerFree is in stock."),
		userTurn("What is in it?"), assistantTurn("It contains loratadine."),
	}, second)

	reqs := client.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []history.Item{
		history.MessageItem(userTurn("AllerFree?")),
		history.MessageItem(assistantTurn("AllerFree is in stock.")),
		history.MessageItem(userTurn("What is in it?")),
	}, reqs[2].Input)
	assert.Equal(t, []history.Turn{userTurn("AllerFree?")}, history.Project(reqs[1].Input), "projection drops tool items")
}

func TestStreamChannel(t *testing.T) {
	client := modeltest.New(
		modeltest.Calls(modeltest.Call("call_1", contracts.PrescriptionVerify, `{"patient_id":"P001","med_id":"MED003","intent":"refill","language":"en"}`)),
		modeltest.Text("Your prescription allows a refill request."),
	)
	o := newOrchestrator(t, client)

	events, wait := o.Stream(context.Background(), "I want to refill Cholesto 20 mg. My patient id is P001.", nil)
	var got []Event
	for e := range events {
		got = append(got, e)
	}
	final := wait()

	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventTextDelta, EventDone}, eventTypes(got))
	assert.Contains(t, string(got[1].Output), `"next_step":"allow_refill_request"`)
	assert.Equal(t, "Your prescription allows a refill request.", final[1].Content)
}

func TestStreamAbandonedByContext(t *testing.T) {
	client := modeltest.New(modeltest.Text("one", "two", "three"))
	o := newOrchestrator(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	events, wait := o.Stream(ctx, "Hi", nil)
	first := <-events
	cancel()

	assert.Equal(t, "one", first.Delta)
	final := wait()
	assert.Equal(t, userTurn("Hi"), final[0])
}

func TestEventJSON(t *testing.T) {
	raw, err := json.Marshal(Event{Type: EventToolCall, Name: "inventory_check", CallID: "c1", Arguments: json.RawMessage(`{"query":"x"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_call","name":"inventory_check","call_id":"c1","arguments":{"query":"x"}}`, string(raw))

	raw, err = json.Marshal(Event{Type: EventDone})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done"}`, string(raw))
	assert.True(t, Event{Type: EventError}.Terminal())
	assert.False(t, Event{Type: EventTextDelta}.Terminal())
}
