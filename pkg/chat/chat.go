// Package chat is the interactive terminal front end
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sealor/pharmacy-agent/pkg/agent"
	"github.com/sealor/pharmacy-agent/pkg/history"
	"github.com/sealor/pharmacy-agent/pkg/persistence"
	"golang.org/x/term"
)

type Turner interface {
	RunTurn(ctx context.Context, userText string, prior []history.Turn, emit func(agent.Event) bool) []history.Turn
}

// LineReader yields one user line per call and io.EOF when input ends.
type LineReader interface {
	ReadLine() (string, error)
}

type REPL struct {
	Turns       Turner
	Out         io.Writer
	Session     *persistence.Session
	SessionFile string
}

// Ask runs one turn, renders its events and stores the returned history in the session.
func (r *REPL) Ask(ctx context.Context, text string) error {
	final := r.Turns.RunTurn(ctx, text, r.Session.History, func(e agent.Event) bool {
		Render(r.Out, e)
		return true
	})
	r.Session.History = final

	if r.SessionFile != "" {
		if err := persistence.SaveSession(r.SessionFile, r.Session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return nil
}

// Run reads lines until EOF or an exit command. A non-empty message runs exactly one turn.
func (r *REPL) Run(ctx context.Context, in LineReader, message string) error {
	if message != "" {
		return r.Ask(ctx, message)
	}

	for {
		line, err := in.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		prompt := strings.TrimSpace(line)
		switch strings.ToLower(prompt) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := r.Ask(ctx, prompt); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Render writes one event the way the terminal shows it: deltas inline, tool activity on own lines.
func Render(w io.Writer, e agent.Event) {
	switch e.Type {
	case agent.EventTextDelta:
		fmt.Fprint(w, e.Delta)
	case agent.EventToolCall:
		fmt.Fprintf(w, "\nTool Call: %s %s\n", e.Name, e.Arguments)
	case agent.EventToolResult:
		fmt.Fprintf(w, "Result: %s\n", e.Output)
	case agent.EventError:
		fmt.Fprintf(w, "\nError [%s]: %s\n", e.Code, e.Message)
	case agent.EventDone:
		fmt.Fprintln(w)
	}
}

// Terminal reads lines from a raw mode terminal, restoring the previous mode after every line.
type Terminal struct {
	fd int
	t  *term.Terminal
}

func NewTerminal(in *os.File, prompt string) *Terminal {
	return &Terminal{fd: int(in.Fd()), t: term.NewTerminal(in, prompt)}
}

// Writer is the terminal output; writes through it do not garble the prompt line.
func (t *Terminal) Writer() io.Writer {
	return t.t
}

func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func (t *Terminal) ReadLine() (string, error) {
	oldState, err := term.MakeRaw(t.fd)
	if err != nil {
		return "", err
	}

	width, height, err := term.GetSize(t.fd)
	if err != nil {
		_ = term.Restore(t.fd, oldState)
		return "", err
	}
	_ = t.t.SetSize(width, height)

	line, err := t.t.ReadLine()
	restoreErr := term.Restore(t.fd, oldState)
	if err != nil {
		return "", err
	}
	if restoreErr != nil {
		return "", restoreErr
	}
	return line, nil
}

// Lines reads plain lines, for input that is not a terminal.
type Lines struct {
	scanner *bufio.Scanner
}

func NewLines(in io.Reader) *Lines {
	return &Lines{scanner: bufio.NewScanner(in)}
}

func (l *Lines) ReadLine() (string, error) {
	if l.scanner.Scan() {
		return l.scanner.Text(), nil
	}
	if err := l.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
