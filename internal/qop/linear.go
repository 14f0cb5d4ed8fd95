package qop

import (
	"fmt"

	"github.com/samcharles93/basalt/pkg/pwf"
	"github.com/samcharles93/basalt/pkg/quant"
)

// Linear is a prepacked quantized fully connected operator.
//
// W holds the repacked weight matrix in [outputChannels][inputChannels]
// row-major order, rebased into the unsigned byte domain. Bias keeps the
// original float values so it can be requantized whenever the runtime input
// scale changes.
type Linear struct {
	Name string

	InputChannels  int
	OutputChannels int

	W      []uint8
	Bias   []float32
	Params quant.ChannelParams
	Scheme quant.Scheme
	Output OutputParams

	state requantState
}

// PrepackLinear extracts the per-channel parameters of the quantized weight
// tensor and repacks the signed weight bytes for integer execution.
// weights is [outputChannels][inputChannels] row-major. bias may be empty;
// otherwise it must have one entry per output channel.
func PrepackLinear(name string, w quant.Quantized, weights []int8, inputChannels int, bias []float32, out OutputParams) (*Linear, error) {
	if err := validateOutputParams(out); err != nil {
		return nil, err
	}
	if inputChannels <= 0 {
		return nil, fmt.Errorf("%w: %d input channels", ErrBadOperator, inputChannels)
	}

	params, err := quant.ExtractChannelParams(w)
	if err != nil {
		return nil, err
	}
	c := params.Channels()

	want, ok := mulInt(c, inputChannels)
	if !ok || len(weights) != want {
		return nil, fmt.Errorf("%w: %d weight bytes for %dx%d", ErrBadOperator,
			len(weights), c, inputChannels)
	}
	if len(bias) != 0 && len(bias) != c {
		return nil, fmt.Errorf("%w: %d bias entries for %d channels", ErrBadOperator,
			len(bias), c)
	}
	if err := validateBias(bias); err != nil {
		return nil, err
	}

	return &Linear{
		Name:           name,
		InputChannels:  inputChannels,
		OutputChannels: c,
		W:              packWeights(weights),
		Bias:           append([]float32(nil), bias...),
		Params:         params,
		Scheme:         w.Scheme(),
		Output:         out,
	}, nil
}

// NeedsRequantization reports whether Forward would re-derive the
// requantization scales and quantized bias for the given input scale.
func (l *Linear) NeedsRequantization(inputScale float32) bool {
	return l.state.NeedsRequantization(inputScale)
}

// Requantize re-derives the per-channel requantization multipliers and
// requantizes the bias against the given input scale.
func (l *Linear) Requantize(inputScale float32) error {
	return l.state.requantize(l.Params, l.Bias, inputScale, l.Output.Scale)
}

// Forward runs the integer forward pass over one or more rows of input
// codes. input length must be a multiple of InputChannels; each row yields
// OutputChannels output codes.
//
// The graph is expected to be static, so the input scale rarely changes
// between calls; when it does, the requantization state is re-derived first.
func (l *Linear) Forward(input []uint8, in InputParams) ([]uint8, error) {
	if l.InputChannels <= 0 || len(input) == 0 || len(input)%l.InputChannels != 0 {
		return nil, fmt.Errorf("%w: %d input codes for %d channels", ErrShapeMismatch,
			len(input), l.InputChannels)
	}
	if l.NeedsRequantization(in.Scale) {
		if err := l.Requantize(in.Scale); err != nil {
			return nil, err
		}
	}

	rows := len(input) / l.InputChannels
	lo, hi := quant.ActivationLimits(l.Output.Scale, l.Output.ZeroPoint, l.Output.Activation)

	out := make([]uint8, rows*l.OutputChannels)
	for r := 0; r < rows; r++ {
		x := input[r*l.InputChannels : (r+1)*l.InputChannels]
		for c := 0; c < l.OutputChannels; c++ {
			wrow := l.W[c*l.InputChannels : (c+1)*l.InputChannels]
			wzp := int32(l.Params.ZeroPoints[c])

			acc := l.state.qbias[c]
			for k := range x {
				acc += (int32(x[k]) - in.ZeroPoint) * (int32(wrow[k]) - wzp)
			}
			out[r*l.OutputChannels+c] = quant.RequantizeInt32(acc, l.state.scales[c], l.Output.ZeroPoint, lo, hi)
		}
	}
	return out, nil
}

// Apply implements Operator. shape must be [rows, inputChannels].
func (l *Linear) Apply(input []uint8, shape []int, in InputParams) ([]uint8, []int, error) {
	if len(shape) != 2 || shape[1] != l.InputChannels {
		return nil, nil, fmt.Errorf("%w: shape %v, want [rows %d]", ErrShapeMismatch,
			shape, l.InputChannels)
	}
	want, ok := mulInt(shape[0], shape[1])
	if !ok || shape[0] <= 0 || len(input) != want {
		return nil, nil, fmt.Errorf("%w: %d input codes for shape %v", ErrShapeMismatch,
			len(input), shape)
	}
	out, err := l.Forward(input, in)
	if err != nil {
		return nil, nil, err
	}
	return out, []int{shape[0], l.OutputChannels}, nil
}

// Info implements Operator.
func (l *Linear) Info() pwf.OperatorInfo {
	return pwf.OperatorInfo{
		Name:            l.Name,
		Kind:            pwf.OpKindLinear,
		Scheme:          l.Scheme.String(),
		InputChannels:   l.InputChannels,
		OutputChannels:  l.OutputChannels,
		OutputScale:     l.Output.Scale,
		OutputZeroPoint: l.Output.ZeroPoint,
		Activation:      l.Output.Activation.String(),
	}
}
