package persistence

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func SaveSession(sessionFile string, session *Session) error {
	data, err := yaml.Marshal(session)
	if err != nil {
		return err
	}
	if err = os.WriteFile(sessionFile, data, 0640); err != nil {
		return err
	}
	return nil
}

// TryToResumeSession loads a session file. A missing file yields an empty session.
func TryToResumeSession(sessionFile string) (*Session, error) {
	data, err := os.ReadFile(sessionFile)
	if errors.Is(err, os.ErrNotExist) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err = yaml.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", sessionFile, err)
	}
	if err = session.Validate(); err != nil {
		return nil, err
	}
	return &session, nil
}
