package pwf

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// OperatorInfoVersion is the section version for the OperatorInfo payload.
const OperatorInfoVersion uint32 = 1

// Operator kinds stored in OperatorInfo.Kind.
const (
	OpKindLinear = "linear"
	OpKindConv2D = "conv2d"
)

// OperatorInfo is the JSON payload of the OperatorInfo section. It describes
// the prepacked operator: its shape, the quantization scheme its weights
// were packed from, and the fixed output quantization domain.
type OperatorInfo struct {
	Version uint32 `json:"version"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"`
	Scheme  string `json:"scheme"`

	InputChannels  int `json:"input_channels"`
	OutputChannels int `json:"output_channels"`

	// Conv-only geometry, ordered [height, width].
	Kernel  []int64 `json:"kernel,omitempty"`
	Stride  []int64 `json:"stride,omitempty"`
	Padding []int64 `json:"padding,omitempty"`

	OutputScale     float32 `json:"output_scale"`
	OutputZeroPoint int32   `json:"output_zero_point"`
	Activation      string  `json:"activation"`
}

var errBadOperatorInfo = errors.New("pwf: invalid operator info")

// EncodeOperatorInfoSection builds an OperatorInfo section payload (v1).
func EncodeOperatorInfoSection(info OperatorInfo) ([]byte, error) {
	info.Version = OperatorInfoVersion
	if err := validateOperatorInfo(info); err != nil {
		return nil, err
	}
	return json.Marshal(info)
}

// ParseOperatorInfoSection validates and decodes an OperatorInfo section payload.
// Pass it File.SectionData(File.Section(SectionOperatorInfo)).
func ParseOperatorInfoSection(sec []byte) (OperatorInfo, error) {
	var info OperatorInfo
	if err := json.Unmarshal(sec, &info); err != nil {
		return OperatorInfo{}, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	if info.Version != OperatorInfoVersion {
		return OperatorInfo{}, ErrCorruptFile
	}
	if err := validateOperatorInfo(info); err != nil {
		return OperatorInfo{}, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return info, nil
}

func validateOperatorInfo(info OperatorInfo) error {
	if info.InputChannels <= 0 || info.OutputChannels <= 0 {
		return fmt.Errorf("%w: channels %dx%d", errBadOperatorInfo,
			info.InputChannels, info.OutputChannels)
	}
	if !(info.OutputScale > 0) {
		return fmt.Errorf("%w: output scale %v", errBadOperatorInfo, info.OutputScale)
	}

	switch info.Kind {
	case OpKindLinear:
		if len(info.Kernel) != 0 || len(info.Stride) != 0 || len(info.Padding) != 0 {
			return fmt.Errorf("%w: linear operator with conv geometry", errBadOperatorInfo)
		}
	case OpKindConv2D:
		for _, dims := range [][]int64{info.Kernel, info.Stride, info.Padding} {
			if len(dims) != 2 {
				return fmt.Errorf("%w: conv geometry must be [height, width]", errBadOperatorInfo)
			}
		}
		if info.Kernel[0] <= 0 || info.Kernel[1] <= 0 {
			return fmt.Errorf("%w: kernel %v", errBadOperatorInfo, info.Kernel)
		}
		if info.Stride[0] <= 0 || info.Stride[1] <= 0 {
			return fmt.Errorf("%w: stride %v", errBadOperatorInfo, info.Stride)
		}
		if info.Padding[0] < 0 || info.Padding[1] < 0 {
			return fmt.Errorf("%w: padding %v", errBadOperatorInfo, info.Padding)
		}
	default:
		return fmt.Errorf("%w: kind %q", errBadOperatorInfo, info.Kind)
	}

	return nil
}
