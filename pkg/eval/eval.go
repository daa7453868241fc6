// Package eval replays scripted conversations through the orchestrator and checks the outcome
package eval

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sealor/pharmacy-agent/pkg/agent"
	"github.com/sealor/pharmacy-agent/pkg/history"
	"gopkg.in/yaml.v3"
)

//go:embed cases.yaml
var builtinCases []byte

type Turner interface {
	RunTurn(ctx context.Context, userText string, prior []history.Turn, emit func(agent.Event) bool) []history.Turn
}

type Expectations struct {
	ToolsInOrder   []string `yaml:"tools_in_order"`
	MustContain    []string `yaml:"must_contain"`
	MustNotContain []string `yaml:"must_not_contain"`
}

type Case struct {
	ID      string       `yaml:"id"`
	Lang    string       `yaml:"lang"`
	Turns   []string     `yaml:"turns"`
	Expects Expectations `yaml:"expects"`
}

type Result struct {
	ID     string
	Errors []string
}

func (r Result) Passed() bool {
	return len(r.Errors) == 0
}

func BuiltinCases() []Case {
	cases, err := ParseCases(bytes.NewReader(builtinCases))
	if err != nil {
		panic(err)
	}
	return cases
}

func ParseCases(r io.Reader) ([]Case, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cases []Case
	if err := dec.Decode(&cases); err != nil {
		return nil, fmt.Errorf("parse eval cases: %w", err)
	}
	for i, c := range cases {
		if c.ID == "" || len(c.Turns) == 0 {
			return nil, fmt.Errorf("eval case %d: id and turns are required", i)
		}
	}
	return cases, nil
}

func LoadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCases(f)
}

// RunCase plays all turns of c, carrying the returned history forward. An error event fails the case at once.
func RunCase(ctx context.Context, turns Turner, c Case) Result {
	var prior []history.Turn
	var text strings.Builder
	var tools []string
	var runtimeErr string

	for _, userText := range c.Turns {
		prior = turns.RunTurn(ctx, userText, prior, func(e agent.Event) bool {
			switch e.Type {
			case agent.EventTextDelta:
				text.WriteString(e.Delta)
			case agent.EventToolCall:
				tools = append(tools, e.Name)
			case agent.EventError:
				runtimeErr = fmt.Sprintf("Runtime error: %s", e.Message)
			}
			return true
		})
		if runtimeErr != "" {
			return Result{ID: c.ID, Errors: []string{runtimeErr}}
		}
	}

	var errs []string
	errs = checkToolsInOrder(tools, c.Expects.ToolsInOrder, errs)
	errs = checkContains(text.String(), c.Expects.MustContain, errs)
	errs = checkNotContains(text.String(), c.Expects.MustNotContain, errs)
	return Result{ID: c.ID, Errors: errs}
}

// Run executes every case, prints a report to w and reports whether all cases passed.
func Run(ctx context.Context, turns Turner, cases []Case, w io.Writer) bool {
	passed := 0
	for _, c := range cases {
		res := RunCase(ctx, turns, c)
		if res.Passed() {
			passed++
			fmt.Fprintf(w, "[PASS] %s\n", res.ID)
			continue
		}
		fmt.Fprintf(w, "[FAIL] %s\n", res.ID)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	fmt.Fprintf(w, "\nSummary: %d/%d passed.\n", passed, len(cases))
	return passed == len(cases)
}

func checkContains(text string, phrases []string, errs []string) []string {
	t := strings.ToLower(text)
	for _, p := range phrases {
		if !strings.Contains(t, strings.ToLower(p)) {
			errs = append(errs, "Missing required phrase: "+p)
		}
	}
	return errs
}

func checkNotContains(text string, phrases []string, errs []string) []string {
	t := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(t, strings.ToLower(p)) {
			errs = append(errs, "Contains prohibited phrase: "+p)
		}
	}
	return errs
}

// checkToolsInOrder requires expected to be a subsequence of calls, not necessarily contiguous.
func checkToolsInOrder(calls, expected []string, errs []string) []string {
	i := 0
	for _, c := range calls {
		if i < len(expected) && c == expected[i] {
			i++
		}
	}
	if i != len(expected) {
		errs = append(errs, fmt.Sprintf("Tool sequence mismatch. Expected subsequence %v, got %v", expected, calls))
	}
	return errs
}
