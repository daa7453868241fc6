// Package tooling provides the validated dispatch of model tool calls to the pharmacy tools
package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sealor/pharmacy-agent/pkg/contracts"
)

// Pharmacy is the set of typed tool implementations.
type Pharmacy interface {
	InventoryCheck(context.Context, contracts.InventoryCheckInput) (contracts.InventoryCheckOutput, error)
	InventoryFindEquivalent(context.Context, contracts.InventoryFindEquivalentInput) (contracts.InventoryFindEquivalentOutput, error)
	PrescriptionVerify(context.Context, contracts.PrescriptionVerifyInput) (contracts.PrescriptionVerifyOutput, error)
	InteractionCheck(context.Context, contracts.InteractionCheckInput) (contracts.InteractionCheckOutput, error)
}

var errDecode = errors.New("decode arguments")

// Tool runs one implementation on validated arguments and checks what it returns.
type Tool struct {
	Run   func(ctx context.Context, args []byte) (contracts.Output, error)
	Check func(out contracts.Output) error
}

// Bind adapts a typed implementation and its output check to a Tool.
func Bind[I any, O contracts.Output](fn func(context.Context, I) (O, error), check func(O) error) Tool {
	return Tool{
		Run: func(ctx context.Context, args []byte) (contracts.Output, error) {
			var in I
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", errDecode, err)
			}
			out, err := fn(ctx, in)
			if err != nil {
				return nil, err
			}
			return out, nil
		},
		Check: func(out contracts.Output) error {
			o, ok := out.(O)
			if !ok {
				return fmt.Errorf("unexpected output type %T", out)
			}
			return check(o)
		},
	}
}

func pharmacyTools(p Pharmacy) map[string]Tool {
	return map[string]Tool{
		contracts.InventoryCheck:          Bind(p.InventoryCheck, contracts.CheckInventoryCheck),
		contracts.InventoryFindEquivalent: Bind(p.InventoryFindEquivalent, contracts.CheckInventoryFindEquivalent),
		contracts.PrescriptionVerify:      Bind(p.PrescriptionVerify, contracts.CheckPrescriptionVerify),
		contracts.InteractionCheck:        Bind(p.InteractionCheck, contracts.CheckInteractionCheck),
	}
}
