package pwf

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/samcharles93/basalt/pkg/quant"
)

// ChannelParamsVersion is the section version for the ChannelParams payload.
const ChannelParamsVersion uint32 = 1

const chanParamsHeaderSize = 8

// The ChannelParams section stores the extracted per-output-channel
// quantization parameters:
//
//	u32 version
//	u32 channel count C
//	u8  zero_points[C]   (pre-biased by +128)
//	pad to 4-byte alignment
//	f32 scales[C]        (little-endian float bits)
var errBadChannelParams = errors.New("pwf: corrupt channel params section")

// EncodeChannelParamsSection builds a ChannelParams section payload (v1).
func EncodeChannelParamsSection(p quant.ChannelParams) ([]byte, error) {
	c := p.Channels()
	if c == 0 {
		return nil, errBadChannelParams
	}
	if len(p.ZeroPoints) != c {
		return nil, errBadChannelParams
	}
	for _, s := range p.Scales {
		if !(s > 0) || math.IsInf(float64(s), 1) {
			return nil, errBadChannelParams
		}
	}

	zpEnd, ok := addUint64(chanParamsHeaderSize, uint64(c))
	if !ok {
		return nil, errBadChannelParams
	}
	scalesOff, ok := align4Uint64(zpEnd)
	if !ok {
		return nil, errBadChannelParams
	}
	scaleBytes, ok := mulUint64(uint64(c), 4)
	if !ok {
		return nil, errBadChannelParams
	}
	total, ok := addUint64(scalesOff, scaleBytes)
	if !ok || total > uint64(int(^uint(0)>>1)) {
		return nil, errBadChannelParams
	}

	out := make([]byte, int(total))
	binary.LittleEndian.PutUint32(out[0:4], ChannelParamsVersion)
	binary.LittleEndian.PutUint32(out[4:8], uint32(c))
	copy(out[chanParamsHeaderSize:zpEnd], p.ZeroPoints)
	off := int(scalesOff)
	for _, s := range p.Scales {
		binary.LittleEndian.PutUint32(out[off:off+4], math.Float32bits(s))
		off += 4
	}
	return out, nil
}

// ParseChannelParamsSection validates and decodes a ChannelParams section
// payload. Pass it File.SectionData(File.Section(SectionChannelParams)).
// The returned tables are copies and stay valid after File.Close().
func ParseChannelParamsSection(sec []byte) (quant.ChannelParams, error) {
	if len(sec) < chanParamsHeaderSize {
		return quant.ChannelParams{}, ErrCorruptFile
	}
	version := binary.LittleEndian.Uint32(sec[0:4])
	if version != ChannelParamsVersion {
		return quant.ChannelParams{}, ErrCorruptFile
	}
	count := binary.LittleEndian.Uint32(sec[4:8])
	if count == 0 {
		return quant.ChannelParams{}, ErrCorruptFile
	}
	if uint64(count) > uint64(int(^uint(0)>>1)) {
		return quant.ChannelParams{}, ErrCorruptFile
	}
	c := uint64(count)

	zpEnd, ok := addUint64(chanParamsHeaderSize, c)
	if !ok {
		return quant.ChannelParams{}, ErrCorruptFile
	}
	scalesOff, ok := align4Uint64(zpEnd)
	if !ok {
		return quant.ChannelParams{}, ErrCorruptFile
	}
	scaleBytes, ok := mulUint64(c, 4)
	if !ok {
		return quant.ChannelParams{}, ErrCorruptFile
	}
	need, ok := addUint64(scalesOff, scaleBytes)
	if !ok || need > uint64(len(sec)) {
		return quant.ChannelParams{}, ErrCorruptFile
	}

	p := quant.ChannelParams{
		ZeroPoints: make([]uint8, int(c)),
		Scales:     make([]float32, int(c)),
	}
	copy(p.ZeroPoints, sec[chanParamsHeaderSize:zpEnd])
	off := int(scalesOff)
	for i := range p.Scales {
		s := math.Float32frombits(binary.LittleEndian.Uint32(sec[off : off+4]))
		if !(s > 0) || math.IsInf(float64(s), 1) {
			return quant.ChannelParams{}, ErrCorruptFile
		}
		p.Scales[i] = s
		off += 4
	}
	return p, nil
}

func mulUint64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > ^uint64(0)/b {
		return 0, false
	}
	return a * b, true
}

func addUint64(a, b uint64) (uint64, bool) {
	if a > ^uint64(0)-b {
		return 0, false
	}
	return a + b, true
}

func align4Uint64(n uint64) (uint64, bool) {
	if n > ^uint64(0)-3 {
		return 0, false
	}
	return (n + 3) &^ 3, true
}
