package qop

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/basalt/pkg/quant"
)

func mustPerChannel(t *testing.T, scales []float32, zps []int32) quant.PerChannel {
	t.Helper()
	w, err := quant.NewPerChannel(scales, zps)
	if err != nil {
		t.Fatalf("NewPerChannel: %v", err)
	}
	return w
}

func testLinear(t *testing.T, out OutputParams) *Linear {
	t.Helper()
	w := mustPerChannel(t, []float32{0.5, 0.25}, []int32{0, 0})
	l, err := PrepackLinear("fc1", w, []int8{2, -1, 4, 0}, 2, []float32{0.5, -0.25}, out)
	if err != nil {
		t.Fatalf("PrepackLinear: %v", err)
	}
	return l
}

func TestLinearForwardMatchesFloatReference(t *testing.T) {
	l := testLinear(t, OutputParams{Scale: 1.0, ZeroPoint: 100})
	in := InputParams{Scale: 0.5, ZeroPoint: 10}

	// input codes decode to x = [1.0, 2.0]; weight rows decode to
	// [1.0, -0.5] and [1.0, 0.0]; with bias [0.5, -0.25] the float
	// outputs are [0.5, 0.75].
	got, err := l.Forward([]uint8{12, 14}, in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	// 0.5 rounds half to even down to code 100, 0.75 rounds up to 101.
	want := []uint8{100, 101}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Forward = %v, want %v", got, want)
	}
}

func TestLinearForwardBatch(t *testing.T) {
	l := testLinear(t, OutputParams{Scale: 1.0, ZeroPoint: 100})
	in := InputParams{Scale: 0.5, ZeroPoint: 10}

	got, err := l.Forward([]uint8{12, 14, 10, 10}, in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("output length = %d, want 4", len(got))
	}
	// Second row is the zero input: outputs are just the bias.
	if got[2] != 100 || got[3] != 100 {
		t.Fatalf("zero-input row = %v, want [100 100]", got[2:4])
	}
}

func TestLinearReLUClampsBelowZeroPoint(t *testing.T) {
	l := testLinear(t, OutputParams{Scale: 1.0, ZeroPoint: 100, Activation: quant.ActivationReLU})
	in := InputParams{Scale: 0.5, ZeroPoint: 10}

	// Large negative x drives channel 0 (weight row [1.0, -0.5]) negative.
	got, err := l.Forward([]uint8{10, 60}, in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if got[0] != 100 {
		t.Fatalf("relu output = %d, want clamp at zero point 100", got[0])
	}
}

func TestLinearRequantizationTracking(t *testing.T) {
	l := testLinear(t, OutputParams{Scale: 1.0})
	if !l.NeedsRequantization(0.5) {
		t.Fatal("fresh operator should need requantization")
	}

	if _, err := l.Forward([]uint8{12, 14}, InputParams{Scale: 0.5, ZeroPoint: 10}); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if l.NeedsRequantization(0.5) {
		t.Fatal("same input scale should not need requantization")
	}
	if !l.NeedsRequantization(0.25) {
		t.Fatal("changed input scale must trigger requantization")
	}

	if err := l.Requantize(0.25); err != nil {
		t.Fatalf("Requantize: %v", err)
	}
	if l.NeedsRequantization(0.25) {
		t.Fatal("requantization state not updated")
	}
	// weight_scale * input_scale / output_scale for channel 0.
	if got := l.state.scales[0]; got != 0.5*0.25/1.0 {
		t.Fatalf("requant scale = %v, want %v", got, 0.5*0.25/1.0)
	}
}

func TestLinearRequantizeRejectsBadScale(t *testing.T) {
	l := testLinear(t, OutputParams{Scale: 1.0})
	if err := l.Requantize(0); !errors.Is(err, quant.ErrInvalidScale) {
		t.Fatalf("err = %v, want ErrInvalidScale", err)
	}
}

func TestLinearForwardShapeErrors(t *testing.T) {
	l := testLinear(t, OutputParams{Scale: 1.0})
	in := InputParams{Scale: 0.5}

	if _, err := l.Forward([]uint8{1, 2, 3}, in); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("odd length err = %v, want ErrShapeMismatch", err)
	}
	if _, err := l.Forward(nil, in); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("empty input err = %v, want ErrShapeMismatch", err)
	}
	if _, _, err := l.Apply([]uint8{1, 2}, []int{2, 1}, in); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("bad shape err = %v, want ErrShapeMismatch", err)
	}
}

func TestPrepackLinearValidation(t *testing.T) {
	w := mustPerChannel(t, []float32{0.5}, []int32{0})

	if _, err := PrepackLinear("fc", w, []int8{1, 2, 3}, 2, nil, OutputParams{Scale: 1}); !errors.Is(err, ErrBadOperator) {
		t.Fatalf("weight size err = %v, want ErrBadOperator", err)
	}
	if _, err := PrepackLinear("fc", w, []int8{1, 2}, 2, []float32{1, 2}, OutputParams{Scale: 1}); !errors.Is(err, ErrBadOperator) {
		t.Fatalf("bias size err = %v, want ErrBadOperator", err)
	}
	if _, err := PrepackLinear("fc", w, []int8{1, 2}, 2, nil, OutputParams{Scale: 0}); !errors.Is(err, ErrBadOperator) {
		t.Fatalf("output scale err = %v, want ErrBadOperator", err)
	}
	nan := []float32{float32(math.NaN())}
	if _, err := PrepackLinear("fc", w, []int8{1, 2}, 2, nan, OutputParams{Scale: 1}); !errors.Is(err, ErrBadOperator) {
		t.Fatalf("non-finite bias err = %v, want ErrBadOperator", err)
	}
}

func TestPrepackLinearRebasesWeights(t *testing.T) {
	w := quant.NewPerTensor(1.0, 0, 1)
	l, err := PrepackLinear("fc", w, []int8{-128, -1, 0, 127}, 4, nil, OutputParams{Scale: 1})
	if err != nil {
		t.Fatalf("PrepackLinear: %v", err)
	}
	want := []uint8{0, 127, 128, 255}
	for i := range want {
		if l.W[i] != want[i] {
			t.Fatalf("W = %v, want %v", l.W, want)
		}
	}
	if l.Params.ZeroPoints[0] != 128 {
		t.Fatalf("zero point = %d, want 128", l.Params.ZeroPoints[0])
	}
}
