package pwf

import "errors"

var (
	ErrInvalidMagic     = errors.New("invalid PWF magic")
	ErrUnsupportedMajor = errors.New("unsupported PWF major version")
	ErrCorruptFile      = errors.New("corrupt PWF file")
)
