// Package pwf implements the Packed Weights File format.
//
// PWF is a single-file, memory-mappable container for one prepacked
// quantized operator: its description, per-output-channel quantization
// parameters, repacked weight bytes and float bias. It describes data only
// and never implies runtime behaviour.
package pwf

import "unsafe"

const (
	// MagicPWF is the file magic for all PWF containers.
	// It is encoded as "PWF\0".
	MagicPWF = "PWF\x00"

	// Current Major Version: any change indicates a breaking format change.
	CurrentMajor uint16 = 1

	// Current Minor Version: versions may add new optional sections or fields.
	CurrentMinor uint16 = 0

	// FlagWeightDataAligned64 marks files whose WeightData payload starts
	// 64-byte aligned, for consumers that cast the mapping into wider views.
	FlagWeightDataAligned64 uint64 = 1 << 0
)

type SectionType uint32

const (
	SectionOperatorInfo  SectionType = 0x0001
	SectionChannelParams SectionType = 0x0002
	SectionWeightData    SectionType = 0x0003
	SectionBiasData      SectionType = 0x0004
)

type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
	Flags            uint64
}

type Section struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

const (
	pwfAlign = 8

	pwfHeaderSize  = 40
	pwfSectionSize = 24
)

func (h *Header) Valid() bool {
	if string(h.Magic[:]) != MagicPWF {
		return false
	}
	if h.HeaderSize < uint32(unsafe.Sizeof(Header{})) {
		return false
	}
	if h.SectionCount == 0 {
		return false
	}
	return true
}

func (h *Header) Compatible() bool {
	return h.Major == CurrentMajor
}
