// Package persistence handles YAML serialization of chat sessions
package persistence

import (
	"fmt"

	"github.com/sealor/pharmacy-agent/pkg/history"
)

// Session is what the CLI keeps between runs. Only the serializable history is stored.
type Session struct {
	Provider string         `yaml:"provider,omitempty"`
	Model    string         `yaml:"model,omitempty"`
	History  []history.Turn `yaml:"history"`
}

func (s *Session) Validate() error {
	if err := history.ValidateTurns(s.History); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	return nil
}
