package quant

import "fmt"

// Scheme identifies how affine parameters cover a quantized tensor.
// Keep these values stable; they are persisted in operator containers.
type Scheme uint8

const (
	// SchemePerTensorAffine applies a single scale and zero point to every
	// element of the tensor.
	SchemePerTensorAffine Scheme = 0
	// SchemePerChannelAffine gives each slice along the leading (output
	// channel) dimension its own scale and zero point.
	SchemePerChannelAffine Scheme = 1
)

func (s Scheme) String() string {
	switch s {
	case SchemePerTensorAffine:
		return "per-tensor-affine"
	case SchemePerChannelAffine:
		return "per-channel-affine"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// ParseScheme is the inverse of Scheme.String.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "per-tensor-affine":
		return SchemePerTensorAffine, nil
	case "per-channel-affine":
		return SchemePerChannelAffine, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}
}

// Quantized is a read-only view of a quantized weight tensor's affine
// parameters. The scalar accessors are only valid for per-tensor tensors and
// the channel accessors only for per-channel tensors; calling the wrong set
// panics, mirroring the scheme dispatch of the tensor libraries this package
// fronts.
type Quantized interface {
	Scheme() Scheme
	// Scale and ZeroPoint return the whole-tensor parameters of a
	// per-tensor-affine tensor.
	Scale() float32
	ZeroPoint() int32
	// ChannelScale and ChannelZeroPoint return the parameters of output
	// channel i of a per-channel-affine tensor.
	ChannelScale(i int) float32
	ChannelZeroPoint(i int) int32
	// Channels is the size of the leading (output channel) dimension.
	Channels() int
}

// PerTensor is the per-tensor-affine variant of Quantized.
type PerTensor struct {
	scale          float32
	zeroPoint      int32
	outputChannels int
}

// NewPerTensor describes a tensor whose outputChannels leading slices all
// share one scale and zero point.
func NewPerTensor(scale float32, zeroPoint int32, outputChannels int) PerTensor {
	return PerTensor{scale: scale, zeroPoint: zeroPoint, outputChannels: outputChannels}
}

func (t PerTensor) Scheme() Scheme   { return SchemePerTensorAffine }
func (t PerTensor) Scale() float32   { return t.scale }
func (t PerTensor) ZeroPoint() int32 { return t.zeroPoint }
func (t PerTensor) Channels() int    { return t.outputChannels }

func (t PerTensor) ChannelScale(i int) float32 {
	panic("quant: per-tensor tensor has no per-channel scales")
}

func (t PerTensor) ChannelZeroPoint(i int) int32 {
	panic("quant: per-tensor tensor has no per-channel zero points")
}

// PerChannel is the per-channel-affine variant of Quantized.
type PerChannel struct {
	scales     []float32
	zeroPoints []int32
}

// NewPerChannel describes a tensor with one scale and zero point per output
// channel. The two slices must have equal, non-zero length.
func NewPerChannel(scales []float32, zeroPoints []int32) (PerChannel, error) {
	if len(scales) != len(zeroPoints) {
		return PerChannel{}, fmt.Errorf("%w: %d scales, %d zero points",
			ErrChannelMismatch, len(scales), len(zeroPoints))
	}
	if len(scales) == 0 {
		return PerChannel{}, ErrNoChannels
	}
	return PerChannel{scales: scales, zeroPoints: zeroPoints}, nil
}

func (t PerChannel) Scheme() Scheme { return SchemePerChannelAffine }
func (t PerChannel) Channels() int  { return len(t.scales) }

func (t PerChannel) ChannelScale(i int) float32   { return t.scales[i] }
func (t PerChannel) ChannelZeroPoint(i int) int32 { return t.zeroPoints[i] }

func (t PerChannel) Scale() float32 {
	panic("quant: per-channel tensor has no scalar scale")
}

func (t PerChannel) ZeroPoint() int32 {
	panic("quant: per-channel tensor has no scalar zero point")
}
