package pwf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BiasDataVersion is the section version for the BiasData payload.
const BiasDataVersion uint32 = 1

// EncodeBiasDataSection serialises the original float bias as little-endian
// float32 words. The bias is kept in float form because it is requantized
// against the runtime input scale, which is unknown at pack time.
func EncodeBiasDataSection(bias []float32) []byte {
	out := make([]byte, len(bias)*4)
	for i, b := range bias {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(b))
	}
	return out
}

// ParseBiasDataSection decodes a BiasData section payload. Every entry
// must be finite. The returned slice is a copy and stays valid after
// File.Close().
func ParseBiasDataSection(sec []byte) ([]float32, error) {
	if len(sec)%4 != 0 {
		return nil, ErrCorruptFile
	}
	bias := make([]float32, len(sec)/4)
	for i := range bias {
		b := math.Float32frombits(binary.LittleEndian.Uint32(sec[i*4 : i*4+4]))
		if math.IsNaN(float64(b)) || math.IsInf(float64(b), 0) {
			return nil, fmt.Errorf("%w: non-finite bias entry %d", ErrCorruptFile, i)
		}
		bias[i] = b
	}
	return bias, nil
}
