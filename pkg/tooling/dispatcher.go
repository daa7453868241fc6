package tooling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sealor/pharmacy-agent/pkg/contracts"
	"github.com/sealor/pharmacy-agent/pkg/logging"
)

const invalidOutputMessage = "The tool returned an unexpected result. Please try again later or ask a pharmacist."

// Dispatcher validates tool calls against their contracts and never fails past the outcome envelope.
type Dispatcher struct {
	logger *slog.Logger
	tools  map[string]Tool
}

func NewDispatcher(p Pharmacy, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger, tools: pharmacyTools(p)}
}

// Register replaces the implementation behind a declared contract.
func (d *Dispatcher) Register(name string, t Tool) error {
	if _, ok := contracts.Lookup(name); !ok {
		return fmt.Errorf("no contract for tool %q", name)
	}
	d.tools[name] = t
	return nil
}

// Contracts returns the contracts of all dispatchable tools in declaration order.
func (d *Dispatcher) Contracts() []contracts.Contract {
	var out []contracts.Contract
	for _, c := range contracts.Registry() {
		if _, ok := d.tools[c.Name]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, name string, args []byte) contracts.Output {
	logger := d.logger.With("tool_name", name)

	contract, known := contracts.Lookup(name)
	tool, ok := d.tools[name]
	if !known || !ok {
		logger.Error("unknown tool requested", "tool_args", string(args))
		return contracts.Failure(contracts.ErrUnknownTool, "Unknown tool: "+name)
	}

	normalized, err := contract.Input.Validate(args)
	if err != nil {
		logger.Warn("tool input validation failed", "tool_args", string(args), "validation_error", err.Error())
		return contracts.Failure(contracts.ErrInvalidToolArgs, err.Error())
	}

	out, err := run(ctx, tool, normalized)
	if errors.Is(err, errDecode) {
		logger.Warn("tool input validation failed", "tool_args", string(normalized), "validation_error", err.Error())
		return contracts.Failure(contracts.ErrInvalidToolArgs, err.Error())
	}
	if err != nil {
		logger.Error("tool runtime error", "tool_args", string(normalized), "error", err)
		return contracts.Failure(contracts.ErrToolRuntime, err.Error())
	}

	if err := tool.Check(out); err != nil {
		logger.Log(ctx, logging.LevelCritical, "tool output validation failed",
			"raw_output", fmt.Sprintf("%+v", out), "validation_error", err.Error())
		return contracts.Failure(contracts.ErrInvalidToolOutput, invalidOutputMessage)
	}

	logger.Info("tool executed successfully", "ok", out.Outcome().OK)
	return out
}

func run(ctx context.Context, tool Tool, args []byte) (out contracts.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Run(ctx, args)
}
