// Package history keeps the two views of a conversation: the serializable turns returned to callers
// and the runtime items fed back to the model.
package history

import (
	"fmt"
	"slices"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the serializable history.
type Turn struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

func (t Turn) Validate() error {
	if t.Role != RoleUser && t.Role != RoleAssistant {
		return fmt.Errorf("invalid role %q", t.Role)
	}
	return nil
}

// ValidateTurns checks every turn of a caller supplied history.
func ValidateTurns(turns []Turn) error {
	for i, t := range turns {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("history[%d]: %w", i, err)
		}
	}
	return nil
}

type ItemKind int

const (
	KindMessage ItemKind = iota
	KindFunctionCall
	KindFunctionCallOutput
	// KindOpaque holds a provider specific output item in Raw.
	KindOpaque
)

func (k ItemKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindFunctionCall:
		return "function_call"
	case KindFunctionCallOutput:
		return "function_call_output"
	case KindOpaque:
		return "opaque"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Item is one entry of the runtime history.
//
// Role and Content are set for messages and for opaque items that carry assistant text.
// CallID, Name and Arguments describe function calls; CallID and Output describe their results.
type Item struct {
	Kind      ItemKind
	Role      Role
	Content   string
	CallID    string
	Name      string
	Arguments string
	Output    string
	Raw       any
}

func MessageItem(t Turn) Item {
	return Item{Kind: KindMessage, Role: t.Role, Content: t.Content}
}

func FunctionCallItem(callID, name, arguments string) Item {
	return Item{Kind: KindFunctionCall, CallID: callID, Name: name, Arguments: arguments}
}

func FunctionOutputItem(callID, output string) Item {
	return Item{Kind: KindFunctionCallOutput, CallID: callID, Output: output}
}

func OpaqueItem(raw any) Item {
	return Item{Kind: KindOpaque, Raw: raw}
}

// Manager owns both histories for the duration of a single turn.
type Manager struct {
	turns   []Turn
	runtime []Item
}

func NewManager(prior []Turn) *Manager {
	m := &Manager{turns: slices.Clone(prior)}
	for _, t := range prior {
		m.runtime = append(m.runtime, MessageItem(t))
	}
	return m
}

func (m *Manager) AppendUser(text string) {
	t := Turn{Role: RoleUser, Content: text}
	m.turns = append(m.turns, t)
	m.runtime = append(m.runtime, MessageItem(t))
}

// AppendAssistant records the final assistant text. The runtime side already holds the model's own items.
func (m *Manager) AppendAssistant(text string) {
	m.turns = append(m.turns, Turn{Role: RoleAssistant, Content: text})
}

func (m *Manager) ExtendRuntime(items ...Item) {
	m.runtime = append(m.runtime, items...)
}

func (m *Manager) AppendToolOutput(callID string, payload []byte) {
	m.runtime = append(m.runtime, FunctionOutputItem(callID, string(payload)))
}

func (m *Manager) Serializable() []Turn {
	return slices.Clone(m.turns)
}

func (m *Manager) Runtime() []Item {
	return slices.Clone(m.runtime)
}

// Project maps runtime items onto serializable turns. Function calls, their outputs and opaque items
// without text are dropped; consecutive assistant texts merge into one turn.
func Project(items []Item) []Turn {
	var turns []Turn
	var pending []string
	flush := func() {
		if len(pending) > 0 {
			turns = append(turns, Turn{Role: RoleAssistant, Content: strings.Join(pending, "")})
			pending = nil
		}
	}

	for _, item := range items {
		if item.Kind != KindMessage && item.Kind != KindOpaque {
			continue
		}
		switch item.Role {
		case RoleUser:
			flush()
			turns = append(turns, Turn{Role: RoleUser, Content: item.Content})
		case RoleAssistant:
			if item.Content != "" || item.Kind == KindMessage {
				pending = append(pending, item.Content)
			}
		}
	}
	flush()
	return turns
}
