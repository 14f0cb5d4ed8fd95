package qop

import (
	"fmt"

	"github.com/samcharles93/basalt/pkg/pwf"
	"github.com/samcharles93/basalt/pkg/quant"
)

// ConvGeometry fixes the spatial layout of a packed 2-D convolution.
// All values are in [height, width] order.
type ConvGeometry struct {
	InputChannels int
	Kernel        [2]int
	Stride        [2]int
	Padding       [2]int
}

// Conv is a prepacked quantized 2-D convolution operator over NHWC input.
//
// W holds the repacked weights in [outputChannels][kernelH][kernelW]
// [inputChannels] order, rebased into the unsigned byte domain.
type Conv struct {
	Name string

	Geometry       ConvGeometry
	OutputChannels int

	W      []uint8
	Bias   []float32
	Params quant.ChannelParams
	Scheme quant.Scheme
	Output OutputParams

	state requantState
}

// PrepackConv extracts per-channel parameters from the quantized kernel
// tensor and repacks its signed bytes. weights is OHWI row-major. bias may
// be empty; otherwise one entry per output channel.
func PrepackConv(name string, w quant.Quantized, weights []int8, geom ConvGeometry, bias []float32, out OutputParams) (*Conv, error) {
	if err := validateOutputParams(out); err != nil {
		return nil, err
	}
	if err := validateGeometry(geom); err != nil {
		return nil, err
	}

	params, err := quant.ExtractChannelParams(w)
	if err != nil {
		return nil, err
	}
	c := params.Channels()

	want := c
	for _, dim := range []int{geom.Kernel[0], geom.Kernel[1], geom.InputChannels} {
		var ok bool
		want, ok = mulInt(want, dim)
		if !ok {
			return nil, fmt.Errorf("%w: kernel too large", ErrBadOperator)
		}
	}
	if len(weights) != want {
		return nil, fmt.Errorf("%w: %d weight bytes for %dx%dx%dx%d", ErrBadOperator,
			len(weights), c, geom.Kernel[0], geom.Kernel[1], geom.InputChannels)
	}
	if len(bias) != 0 && len(bias) != c {
		return nil, fmt.Errorf("%w: %d bias entries for %d channels", ErrBadOperator,
			len(bias), c)
	}
	if err := validateBias(bias); err != nil {
		return nil, err
	}

	return &Conv{
		Name:           name,
		Geometry:       geom,
		OutputChannels: c,
		W:              packWeights(weights),
		Bias:           append([]float32(nil), bias...),
		Params:         params,
		Scheme:         w.Scheme(),
		Output:         out,
	}, nil
}

func validateGeometry(geom ConvGeometry) error {
	if geom.InputChannels <= 0 {
		return fmt.Errorf("%w: %d input channels", ErrBadOperator, geom.InputChannels)
	}
	if geom.Kernel[0] <= 0 || geom.Kernel[1] <= 0 {
		return fmt.Errorf("%w: kernel %v", ErrBadOperator, geom.Kernel)
	}
	if geom.Stride[0] <= 0 || geom.Stride[1] <= 0 {
		return fmt.Errorf("%w: stride %v", ErrBadOperator, geom.Stride)
	}
	if geom.Padding[0] < 0 || geom.Padding[1] < 0 {
		return fmt.Errorf("%w: padding %v", ErrBadOperator, geom.Padding)
	}
	return nil
}

// OutputDims returns the spatial output size for the given input size.
func (v *Conv) OutputDims(height, width int) (int, int) {
	outH := (height+2*v.Geometry.Padding[0]-v.Geometry.Kernel[0])/v.Geometry.Stride[0] + 1
	outW := (width+2*v.Geometry.Padding[1]-v.Geometry.Kernel[1])/v.Geometry.Stride[1] + 1
	return outH, outW
}

// NeedsRequantization reports whether Forward would re-derive the
// requantization scales and quantized bias for the given input scale.
func (v *Conv) NeedsRequantization(inputScale float32) bool {
	return v.state.NeedsRequantization(inputScale)
}

// Requantize re-derives the per-channel requantization multipliers and
// requantizes the bias against the given input scale.
func (v *Conv) Requantize(inputScale float32) error {
	return v.state.requantize(v.Params, v.Bias, inputScale, v.Output.Scale)
}

// Forward runs the direct integer convolution over an NHWC input of the
// given batch and spatial size. Padding contributes nothing to the
// accumulator, which is identical to padding with the input zero point.
func (v *Conv) Forward(input []uint8, batch, height, width int, in InputParams) ([]uint8, error) {
	ic := v.Geometry.InputChannels
	if batch <= 0 || height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: input %dx%dx%dx%d", ErrShapeMismatch, batch, height, width, ic)
	}
	want := ic
	for _, dim := range []int{batch, height, width} {
		var ok bool
		want, ok = mulInt(want, dim)
		if !ok {
			return nil, fmt.Errorf("%w: input %dx%dx%dx%d overflows", ErrShapeMismatch,
				batch, height, width, ic)
		}
	}
	if len(input) != want {
		return nil, fmt.Errorf("%w: %d input codes, want %d", ErrShapeMismatch, len(input), want)
	}
	outH, outW := v.OutputDims(height, width)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%w: kernel %v does not fit %dx%d input", ErrShapeMismatch,
			v.Geometry.Kernel, height, width)
	}

	if v.NeedsRequantization(in.Scale) {
		if err := v.Requantize(in.Scale); err != nil {
			return nil, err
		}
	}
	lo, hi := quant.ActivationLimits(v.Output.Scale, v.Output.ZeroPoint, v.Output.Activation)

	kh, kw := v.Geometry.Kernel[0], v.Geometry.Kernel[1]
	sh, sw := v.Geometry.Stride[0], v.Geometry.Stride[1]
	ph, pw := v.Geometry.Padding[0], v.Geometry.Padding[1]

	outElems := v.OutputChannels
	for _, dim := range []int{batch, outH, outW} {
		var ok bool
		outElems, ok = mulInt(outElems, dim)
		if !ok {
			return nil, fmt.Errorf("%w: output %dx%dx%dx%d overflows", ErrShapeMismatch,
				batch, outH, outW, v.OutputChannels)
		}
	}
	out := make([]uint8, outElems)
	for n := 0; n < batch; n++ {
		inBase := n * height * width * ic
		outBase := n * outH * outW * v.OutputChannels
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				for c := 0; c < v.OutputChannels; c++ {
					wzp := int32(v.Params.ZeroPoints[c])
					wBase := c * kh * kw * ic

					acc := v.state.qbias[c]
					for ky := 0; ky < kh; ky++ {
						iy := oy*sh - ph + ky
						if iy < 0 || iy >= height {
							continue
						}
						for kx := 0; kx < kw; kx++ {
							ix := ox*sw - pw + kx
							if ix < 0 || ix >= width {
								continue
							}
							xOff := inBase + (iy*width+ix)*ic
							wOff := wBase + (ky*kw+kx)*ic
							for k := 0; k < ic; k++ {
								acc += (int32(input[xOff+k]) - in.ZeroPoint) *
									(int32(v.W[wOff+k]) - wzp)
							}
						}
					}
					out[outBase+(oy*outW+ox)*v.OutputChannels+c] =
						quant.RequantizeInt32(acc, v.state.scales[c], v.Output.ZeroPoint, lo, hi)
				}
			}
		}
	}
	return out, nil
}

// Apply implements Operator. shape must be [batch, height, width, inputChannels].
func (v *Conv) Apply(input []uint8, shape []int, in InputParams) ([]uint8, []int, error) {
	if len(shape) != 4 || shape[3] != v.Geometry.InputChannels {
		return nil, nil, fmt.Errorf("%w: shape %v, want [batch height width %d]", ErrShapeMismatch,
			shape, v.Geometry.InputChannels)
	}
	out, err := v.Forward(input, shape[0], shape[1], shape[2], in)
	if err != nil {
		return nil, nil, err
	}
	outH, outW := v.OutputDims(shape[1], shape[2])
	return out, []int{shape[0], outH, outW, v.OutputChannels}, nil
}

// Info implements Operator.
func (v *Conv) Info() pwf.OperatorInfo {
	return pwf.OperatorInfo{
		Name:            v.Name,
		Kind:            pwf.OpKindConv2D,
		Scheme:          v.Scheme.String(),
		InputChannels:   v.Geometry.InputChannels,
		OutputChannels:  v.OutputChannels,
		Kernel:          []int64{int64(v.Geometry.Kernel[0]), int64(v.Geometry.Kernel[1])},
		Stride:          []int64{int64(v.Geometry.Stride[0]), int64(v.Geometry.Stride[1])},
		Padding:         []int64{int64(v.Geometry.Padding[0]), int64(v.Geometry.Padding[1])},
		OutputScale:     v.Output.Scale,
		OutputZeroPoint: v.Output.ZeroPoint,
		Activation:      v.Output.Activation.String(),
	}
}
