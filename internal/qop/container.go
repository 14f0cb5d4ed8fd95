package qop

import (
	"fmt"
	"os"

	"github.com/samcharles93/basalt/pkg/pwf"
	"github.com/samcharles93/basalt/pkg/quant"
)

// Save writes a packed operator to path as a PWF container.
func Save(path string, op Operator) error {
	switch t := op.(type) {
	case *Linear:
		return saveParts(path, t.Info(), t.Params, t.W, t.Bias)
	case *Conv:
		return saveParts(path, t.Info(), t.Params, t.W, t.Bias)
	default:
		return fmt.Errorf("%w: unsupported operator type %T", ErrBadOperator, op)
	}
}

func saveParts(path string, info pwf.OperatorInfo, params quant.ChannelParams, weights []uint8, bias []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w, err := pwf.NewWriter(f)
	if err != nil {
		return err
	}

	infoSec, err := pwf.EncodeOperatorInfoSection(info)
	if err != nil {
		return err
	}
	if err := w.WriteSection(pwf.SectionOperatorInfo, pwf.OperatorInfoVersion, infoSec); err != nil {
		return err
	}

	paramsSec, err := pwf.EncodeChannelParamsSection(params)
	if err != nil {
		return err
	}
	if err := w.WriteSection(pwf.SectionChannelParams, pwf.ChannelParamsVersion, paramsSec); err != nil {
		return err
	}

	if err := w.WriteSection(pwf.SectionWeightData, 1, weights); err != nil {
		return err
	}
	if len(bias) > 0 {
		if err := w.WriteSection(pwf.SectionBiasData, pwf.BiasDataVersion, pwf.EncodeBiasDataSection(bias)); err != nil {
			return err
		}
	}

	if err := w.Finalise(); err != nil {
		return err
	}
	return f.Close()
}

// Load reads a packed operator back from a PWF container. All payloads are
// copied out of the mapping, so the returned operator outlives the file.
func Load(path string) (Operator, error) {
	f, err := pwf.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	infoSec := f.Section(pwf.SectionOperatorInfo)
	if infoSec == nil {
		return nil, fmt.Errorf("%w: missing operator info section", pwf.ErrCorruptFile)
	}
	info, err := pwf.ParseOperatorInfoSection(f.SectionData(infoSec))
	if err != nil {
		return nil, err
	}

	paramsSec := f.Section(pwf.SectionChannelParams)
	if paramsSec == nil {
		return nil, fmt.Errorf("%w: missing channel params section", pwf.ErrCorruptFile)
	}
	params, err := pwf.ParseChannelParamsSection(f.SectionData(paramsSec))
	if err != nil {
		return nil, err
	}
	if params.Channels() != info.OutputChannels {
		return nil, fmt.Errorf("%w: %d channel params for %d output channels",
			pwf.ErrCorruptFile, params.Channels(), info.OutputChannels)
	}

	weightSec := f.Section(pwf.SectionWeightData)
	if weightSec == nil {
		return nil, fmt.Errorf("%w: missing weight data section", pwf.ErrCorruptFile)
	}
	weights := append([]uint8(nil), f.SectionData(weightSec)...)

	var bias []float32
	if biasSec := f.Section(pwf.SectionBiasData); biasSec != nil {
		bias, err = pwf.ParseBiasDataSection(f.SectionData(biasSec))
		if err != nil {
			return nil, err
		}
		if len(bias) != info.OutputChannels {
			return nil, fmt.Errorf("%w: %d bias entries for %d output channels",
				pwf.ErrCorruptFile, len(bias), info.OutputChannels)
		}
	}

	scheme, err := quant.ParseScheme(info.Scheme)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pwf.ErrCorruptFile, err)
	}
	activation, err := quant.ParseActivation(info.Activation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pwf.ErrCorruptFile, err)
	}
	out := OutputParams{
		Scale:      info.OutputScale,
		ZeroPoint:  info.OutputZeroPoint,
		Activation: activation,
	}

	switch info.Kind {
	case pwf.OpKindLinear:
		want, ok := mulInt(info.OutputChannels, info.InputChannels)
		if !ok || len(weights) != want {
			return nil, fmt.Errorf("%w: %d weight bytes for %dx%d linear",
				pwf.ErrCorruptFile, len(weights), info.OutputChannels, info.InputChannels)
		}
		return &Linear{
			Name:           info.Name,
			InputChannels:  info.InputChannels,
			OutputChannels: info.OutputChannels,
			W:              weights,
			Bias:           bias,
			Params:         params,
			Scheme:         scheme,
			Output:         out,
		}, nil

	case pwf.OpKindConv2D:
		// Geometry is stored as int64; on 32-bit builds the narrowing
		// conversion can truncate, so check the round trip and validate
		// the converted values again.
		dims := [6]int64{
			info.Kernel[0], info.Kernel[1],
			info.Stride[0], info.Stride[1],
			info.Padding[0], info.Padding[1],
		}
		var narrowed [6]int
		for i, d := range dims {
			n := int(d)
			if int64(n) != d {
				return nil, fmt.Errorf("%w: conv geometry value %d out of range",
					pwf.ErrCorruptFile, d)
			}
			narrowed[i] = n
		}
		geom := ConvGeometry{
			InputChannels: info.InputChannels,
			Kernel:        [2]int{narrowed[0], narrowed[1]},
			Stride:        [2]int{narrowed[2], narrowed[3]},
			Padding:       [2]int{narrowed[4], narrowed[5]},
		}
		if err := validateGeometry(geom); err != nil {
			return nil, fmt.Errorf("%w: %v", pwf.ErrCorruptFile, err)
		}
		want := info.OutputChannels
		for _, dim := range []int{geom.Kernel[0], geom.Kernel[1], geom.InputChannels} {
			var ok bool
			want, ok = mulInt(want, dim)
			if !ok {
				return nil, fmt.Errorf("%w: conv kernel too large", pwf.ErrCorruptFile)
			}
		}
		if len(weights) != want {
			return nil, fmt.Errorf("%w: %d weight bytes for conv kernel",
				pwf.ErrCorruptFile, len(weights))
		}
		return &Conv{
			Name:           info.Name,
			Geometry:       geom,
			OutputChannels: info.OutputChannels,
			W:              weights,
			Bias:           bias,
			Params:         params,
			Scheme:         scheme,
			Output:         out,
		}, nil

	default:
		return nil, fmt.Errorf("%w: operator kind %q", pwf.ErrCorruptFile, info.Kind)
	}
}
