// Package quant implements the affine quantization arithmetic shared by
// every prepacked 8-bit operator.
//
// A real value is represented by an integer code such that
// value ≈ scale * (code - zero_point). The functions here derive the
// per-output-channel parameters of a quantized weight tensor, compute the
// requantization multipliers that map a 32-bit accumulator back into the
// 8-bit output domain, and perform the correctly rounded, saturating
// float-to-code conversions used for activations and bias.
//
// All functions are pure and allocate only their own results; they are safe
// to call concurrently on disjoint inputs.
package quant

import "math"

// QuantizeUint8 converts value into its unsigned 8-bit affine code.
//
// The quotient value/scale is computed in float32 and rounded half to even
// (the platform nearest-integer rounding), then the zero point is added and
// the result is saturated into [0, 255]. The same rounding rule is used for
// bias requantization via QuantizeInt32 so that bias and activation codes
// stay consistent.
//
// scale must be positive and finite; anything else is a contract violation
// and panics.
func QuantizeUint8(scale float32, zeroPoint int32, value float32) uint8 {
	checkScale(scale)
	r := int64(zeroPoint) + roundToInt32(value/scale)
	if r < 0 {
		r = 0
	}
	if r > math.MaxUint8 {
		r = math.MaxUint8
	}
	return uint8(r)
}

// QuantizeInt32 converts value into the signed 32-bit accumulator domain.
// It shares the rounding rule of QuantizeUint8 and saturates at the int32
// bounds. Bias terms are requantized with this against
// input_scale * weight_scale[channel].
func QuantizeInt32(scale float32, value float32) int32 {
	checkScale(scale)
	return int32(roundToInt32(value / scale))
}

// DequantizeUint8 recovers the approximate real value of an 8-bit code.
func DequantizeUint8(scale float32, zeroPoint int32, code uint8) float32 {
	return scale * float32(int32(code)-zeroPoint)
}

// RequantizeInt32 converts a 32-bit accumulator into its output byte code:
// the accumulator is scaled by a precomputed requantization multiplier
// (see RequantizationScales), rounded half to even, offset by the output
// zero point and clamped into the fused activation range [min, max].
func RequantizeInt32(acc int32, multiplier float32, zeroPoint int32, min, max uint8) uint8 {
	r := int64(zeroPoint) + roundToInt32(float32(acc)*multiplier)
	if r < int64(min) {
		r = int64(min)
	}
	if r > int64(max) {
		r = int64(max)
	}
	return uint8(r)
}

// roundToInt32 rounds q half to even and clamps it to the int32 range so the
// later zero-point add cannot overflow its wide intermediate.
func roundToInt32(q float32) int64 {
	if math.IsNaN(float64(q)) {
		panic("quant: quantization of NaN")
	}
	r := math.RoundToEven(float64(q))
	if r >= math.MaxInt32 {
		return math.MaxInt32
	}
	if r <= math.MinInt32 {
		return math.MinInt32
	}
	return int64(r)
}

func checkScale(scale float32) {
	// NaN fails the comparison too.
	if !(scale > 0) || math.IsInf(float64(scale), 1) {
		panic("quant: scale must be positive and finite")
	}
}
