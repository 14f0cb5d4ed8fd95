package quant

import "errors"

var (
	ErrUnsupportedScheme = errors.New("quant: unsupported quantization scheme")
	ErrInvalidScale      = errors.New("quant: scale must be positive and finite")
	ErrChannelMismatch   = errors.New("quant: per-channel scales and zero-points length mismatch")
	ErrNoChannels        = errors.New("quant: tensor has no output channels")
)
