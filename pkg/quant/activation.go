package quant

import (
	"fmt"
	"math"
)

// Activation selects the fused activation applied by a packed operator's
// output clamp. The enumeration is closed: new kinds require extending
// ActivationLimits.
type Activation uint8

const (
	ActivationNone Activation = 0
	ActivationReLU Activation = 1
)

func (a Activation) String() string {
	switch a {
	case ActivationNone:
		return "none"
	case ActivationReLU:
		return "relu"
	default:
		return fmt.Sprintf("activation(%d)", uint8(a))
	}
}

// ParseActivation is the inverse of Activation.String.
func ParseActivation(s string) (Activation, error) {
	switch s {
	case "", "none":
		return ActivationNone, nil
	case "relu":
		return ActivationReLU, nil
	default:
		return 0, fmt.Errorf("quant: unknown activation %q", s)
	}
}

// ActivationLimits returns the inclusive [min, max] output byte range that
// implements the fused activation in integer space. The range is handed to
// the execution kernel to clamp every accumulator before narrowing to uint8.
//
// None covers the full byte range. ReLU raises the lower bound to the code
// of real 0.0 under the output quantization, computed with QuantizeUint8 so
// the clamp shares its rounding and saturation rules. An unknown kind
// panics: the enumeration is closed and a silent default would corrupt
// outputs.
func ActivationLimits(scale float32, zeroPoint int32, a Activation) (min, max uint8) {
	switch a {
	case ActivationNone:
		return 0, math.MaxUint8
	case ActivationReLU:
		return QuantizeUint8(scale, zeroPoint, 0.0), math.MaxUint8
	default:
		panic(fmt.Sprintf("quant: unreachable activation %d", uint8(a)))
	}
}
