// Package qop implements prepacked 8-bit affine quantized operators.
//
// A packed operator owns its repacked weight bytes, the original float bias
// and the per-output-channel parameters extracted at pack time. The
// requantization scales and the quantized bias depend on the runtime input
// activation scale, which is unknown until the first forward call: both are
// (re)derived whenever the input scale changes between calls.
//
// Packed operators assume a single writer. Forward mutates the cached
// requantization state, so sharing one operator across goroutines requires
// external synchronisation.
package qop

import (
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/basalt/pkg/pwf"
	"github.com/samcharles93/basalt/pkg/quant"
)

var (
	ErrShapeMismatch = errors.New("qop: input shape mismatch")
	ErrBadOperator   = errors.New("qop: invalid operator description")
)

// InputParams describes the runtime quantization of input activations.
type InputParams struct {
	Scale     float32
	ZeroPoint int32
}

// OutputParams fixes the output activation domain of a packed operator.
// It is set once at pack time, like the original operator export pipeline
// does, and never changes afterwards.
type OutputParams struct {
	Scale      float32
	ZeroPoint  int32
	Activation quant.Activation
}

// Operator is the shape-generic surface shared by the packed operators.
// Apply validates shape against the operator's geometry, runs the integer
// forward pass and returns the output codes with their shape.
type Operator interface {
	Info() pwf.OperatorInfo
	Apply(input []uint8, shape []int, in InputParams) ([]uint8, []int, error)
}

// requantState caches the artifacts derived from the last seen input scale:
// the per-channel requantization multipliers and the bias quantized into the
// accumulator domain.
type requantState struct {
	scales []float32
	qbias  []int32

	inputScale    float32
	hasInputScale bool
}

// NeedsRequantization reports whether the cached requantization state is
// missing or was derived against a different input scale.
func (s *requantState) NeedsRequantization(inputScale float32) bool {
	return !s.hasInputScale || s.inputScale != inputScale
}

func (s *requantState) requantize(params quant.ChannelParams, bias []float32, inputScale, outputScale float32) error {
	scales, err := quant.RequantizationScales(params.Scales, inputScale, outputScale)
	if err != nil {
		return err
	}

	qbias := make([]int32, params.Channels())
	if len(bias) > 0 {
		// Bias lives in the accumulator domain: input_scale * weight_scale[c].
		for c := range qbias {
			qbias[c] = quant.QuantizeInt32(inputScale*params.Scales[c], bias[c])
		}
	}

	s.scales = scales
	s.qbias = qbias
	s.inputScale = inputScale
	s.hasInputScale = true
	return nil
}

func validateOutputParams(out OutputParams) error {
	if !(out.Scale > 0) {
		return fmt.Errorf("%w: output scale %v", ErrBadOperator, out.Scale)
	}
	switch out.Activation {
	case quant.ActivationNone, quant.ActivationReLU:
		return nil
	default:
		return fmt.Errorf("%w: activation %s", ErrBadOperator, out.Activation)
	}
}

// packWeights rebases signed weight bytes into the unsigned domain, the same
// +128 offset applied to the extracted zero points.
func packWeights(weights []int8) []uint8 {
	packed := make([]uint8, len(weights))
	for i, w := range weights {
		packed[i] = uint8(int32(w) + 128)
	}
	return packed
}

// validateBias rejects bias vectors the quantizer cannot represent. A
// non-finite entry would otherwise surface as a panic on the first forward
// pass, when the bias is quantized against the input scale.
func validateBias(bias []float32) error {
	for i, b := range bias {
		if math.IsNaN(float64(b)) || math.IsInf(float64(b), 0) {
			return fmt.Errorf("%w: non-finite bias entry %d", ErrBadOperator, i)
		}
	}
	return nil
}

func mulInt(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > int(^uint(0)>>1)/b {
		return 0, false
	}
	return a * b, true
}
