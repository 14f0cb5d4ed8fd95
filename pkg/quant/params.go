package quant

import (
	"fmt"
	"math"
)

// zeroPointBias rebases signed-centred zero points into the unsigned byte
// domain used by the packed kernels. The add must wrap modulo 256 (Go's
// int32→uint8 conversion), never saturate: a saturating cast here would
// silently change the packed parameters.
const zeroPointBias = 128

// ChannelParams holds the per-output-channel affine parameters extracted
// from a quantized weight tensor: parallel zero-point and scale tables of
// length Channels. Zero points are stored pre-biased by +128. The tables are
// freshly allocated by ExtractChannelParams and immutable afterwards; their
// lifetime matches the packed operator that owns them.
type ChannelParams struct {
	ZeroPoints []uint8
	Scales     []float32
}

// Channels returns the number of output channels covered by the parameters.
func (p ChannelParams) Channels() int { return len(p.Scales) }

// ExtractChannelParams derives per-output-channel zero points and scales
// from a quantized weight tensor.
//
// Per-tensor tensors have their single scale and (biased) zero point
// replicated across every channel, so downstream per-channel code paths
// never branch on the scheme again. Per-channel tensors are copied through
// channel by channel. Any other scheme is a contract violation from the
// weight preparation pipeline and is rejected instead of yielding zeroed
// parameters.
func ExtractChannelParams(w Quantized) (ChannelParams, error) {
	c := w.Channels()
	if c <= 0 {
		return ChannelParams{}, fmt.Errorf("%w: leading dimension %d", ErrNoChannels, c)
	}

	p := ChannelParams{
		ZeroPoints: make([]uint8, c),
		Scales:     make([]float32, c),
	}

	switch w.Scheme() {
	case SchemePerTensorAffine:
		zp := uint8(w.ZeroPoint() + zeroPointBias)
		scale := w.Scale()
		for i := range p.ZeroPoints {
			p.ZeroPoints[i] = zp
			p.Scales[i] = scale
		}
	case SchemePerChannelAffine:
		for i := range p.ZeroPoints {
			p.ZeroPoints[i] = uint8(w.ChannelZeroPoint(i) + zeroPointBias)
			p.Scales[i] = w.ChannelScale(i)
		}
	default:
		return ChannelParams{}, fmt.Errorf("%w: %s", ErrUnsupportedScheme, w.Scheme())
	}

	return p, nil
}

// RequantizationScales computes one float32 requantization multiplier per
// output channel:
//
//	out[i] = weightScales[i] * inputScale / outputScale
//
// The multipliers rescale the int32 accumulator domain
// (input_scale * weight_scale[i]) into the output activation domain. The
// function is cheap and stateless: it is re-run every time the runtime input
// activation scale changes, and detecting that change is the caller's job.
//
// inputScale and outputScale must be positive and finite; weight scales come
// from ExtractChannelParams and are trusted as-is.
func RequantizationScales(weightScales []float32, inputScale, outputScale float32) ([]float32, error) {
	if !(inputScale > 0) || math.IsInf(float64(inputScale), 1) {
		return nil, fmt.Errorf("%w: input scale %v", ErrInvalidScale, inputScale)
	}
	if !(outputScale > 0) || math.IsInf(float64(outputScale), 1) {
		return nil, fmt.Errorf("%w: output scale %v", ErrInvalidScale, outputScale)
	}

	out := make([]float32, len(weightScales))
	for i, ws := range weightScales {
		out[i] = ws * inputScale / outputScale
	}
	return out, nil
}
