package pwf

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/basalt/pkg/quant"
)

func writeTestFile(t *testing.T, path string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	w, err := NewWriter(f)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	info, err := EncodeOperatorInfoSection(OperatorInfo{
		Name:           "fc1",
		Kind:           OpKindLinear,
		Scheme:         quant.SchemePerChannelAffine.String(),
		InputChannels:  3,
		OutputChannels: 2,
		OutputScale:    0.5,
		Activation:     quant.ActivationReLU.String(),
	})
	if err != nil {
		t.Fatalf("encode operator info: %v", err)
	}
	if err := w.WriteSection(SectionOperatorInfo, OperatorInfoVersion, info); err != nil {
		t.Fatalf("write operator info: %v", err)
	}
	params, err := EncodeChannelParamsSection(quant.ChannelParams{
		ZeroPoints: []uint8{133, 125},
		Scales:     []float32{0.1, 0.2},
	})
	if err != nil {
		t.Fatalf("encode channel params: %v", err)
	}
	if err := w.WriteSection(SectionChannelParams, ChannelParamsVersion, params); err != nil {
		t.Fatalf("write channel params: %v", err)
	}
	if err := w.WriteSection(SectionWeightData, 1, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("write weight data: %v", err)
	}
	if err := w.WriteSection(SectionBiasData, BiasDataVersion, EncodeBiasDataSection([]float32{0.5, -1.5})); err != nil {
		t.Fatalf("write bias data: %v", err)
	}
	if err := w.Finalise(); err != nil {
		t.Fatalf("finalise: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close writer file: %v", err)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fc1.pwf")
	writeTestFile(t, path)

	pf, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if cerr := pf.Close(); cerr != nil {
			t.Fatalf("close pwf file: %v", cerr)
		}
	}()

	if pf.Header == nil {
		t.Fatalf("missing header")
	}
	if pf.Header.HeaderSize != pwfHeaderSize {
		t.Fatalf("header size mismatch: got %d want %d", pf.Header.HeaderSize, pwfHeaderSize)
	}
	if pf.Header.SectionCount != 4 {
		t.Fatalf("section count = %d, want 4", pf.Header.SectionCount)
	}

	info, err := ParseOperatorInfoSection(pf.SectionData(pf.Section(SectionOperatorInfo)))
	if err != nil {
		t.Fatalf("parse operator info: %v", err)
	}
	if info.Kind != OpKindLinear || info.OutputChannels != 2 {
		t.Fatalf("operator info mismatch: %+v", info)
	}

	params, err := ParseChannelParamsSection(pf.SectionData(pf.Section(SectionChannelParams)))
	if err != nil {
		t.Fatalf("parse channel params: %v", err)
	}
	if params.Channels() != 2 || params.ZeroPoints[1] != 125 || params.Scales[1] != 0.2 {
		t.Fatalf("channel params mismatch: %+v", params)
	}

	weights := pf.SectionData(pf.Section(SectionWeightData))
	if !bytes.Equal(weights, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("weight data mismatch: %v", weights)
	}

	bias, err := ParseBiasDataSection(pf.SectionData(pf.Section(SectionBiasData)))
	if err != nil {
		t.Fatalf("parse bias data: %v", err)
	}
	if len(bias) != 2 || bias[0] != 0.5 || bias[1] != -1.5 {
		t.Fatalf("bias mismatch: %v", bias)
	}
}

func TestOpenReaderAtRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fc1.pwf")
	writeTestFile(t, path)

	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	defer func() { _ = rf.Close() }()

	st, err := rf.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	pf, err := OpenReaderAt(rf, st.Size())
	if err != nil {
		t.Fatalf("open readerat: %v", err)
	}
	defer func() { _ = pf.Close() }()

	if pf.mmapped {
		t.Fatalf("OpenReaderAt should not mmap")
	}
	if pf.Section(SectionWeightData) == nil {
		t.Fatalf("missing weight data section")
	}
}

func TestOpenRejectsCorruptFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.pwf")
	writeTestFile(t, good)
	raw, err := os.ReadFile(good)
	if err != nil {
		t.Fatalf("read good file: %v", err)
	}

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[0] = 'X'
		if _, err := OpenReaderAt(bytes.NewReader(bad), int64(len(bad))); !errors.Is(err, ErrInvalidMagic) {
			t.Fatalf("err = %v, want ErrInvalidMagic", err)
		}
	})

	t.Run("bad major version", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[4] = 0xFF
		if _, err := OpenReaderAt(bytes.NewReader(bad), int64(len(bad))); !errors.Is(err, ErrUnsupportedMajor) {
			t.Fatalf("err = %v, want ErrUnsupportedMajor", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		bad := raw[:len(raw)/2]
		if _, err := OpenReaderAt(bytes.NewReader(bad), int64(len(bad))); !errors.Is(err, ErrCorruptFile) {
			t.Fatalf("err = %v, want ErrCorruptFile", err)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, err := OpenReaderAt(bytes.NewReader(raw[:8]), 8); !errors.Is(err, ErrCorruptFile) {
			t.Fatalf("err = %v, want ErrCorruptFile", err)
		}
	})
}

func TestHeaderAndSectionEncodingLittleEndian(t *testing.T) {
	t.Parallel()

	h := Header{
		Magic:            [4]byte{'P', 'W', 'F', 0},
		Major:            0x1122,
		Minor:            0x3344,
		HeaderSize:       pwfHeaderSize,
		SectionCount:     7,
		SectionDirOffset: 0x0102030405060708,
		FileSize:         0x1112131415161718,
		Flags:            0x2122232425262728,
	}
	var hdrRaw [pwfHeaderSize]byte
	if !encodeHeader(hdrRaw[:], h) {
		t.Fatalf("encode header failed")
	}
	if hdrRaw[4] != 0x22 || hdrRaw[5] != 0x11 {
		t.Fatalf("major is not little-endian: %x", hdrRaw[4:6])
	}
	if hdrRaw[16] != 0x08 || hdrRaw[23] != 0x01 {
		t.Fatalf("section dir offset is not little-endian: %x", hdrRaw[16:24])
	}
	decodedH, ok := decodeHeader(hdrRaw[:])
	if !ok {
		t.Fatalf("decode header failed")
	}
	if decodedH != h {
		t.Fatalf("header round-trip mismatch: got %+v want %+v", decodedH, h)
	}

	s := Section{
		Type:    0x11223344,
		Version: 0x55667788,
		Offset:  0x0102030405060708,
		Size:    0x1112131415161718,
	}
	var secRaw [pwfSectionSize]byte
	if !encodeSection(secRaw[:], s) {
		t.Fatalf("encode section failed")
	}
	if secRaw[0] != 0x44 || secRaw[3] != 0x11 {
		t.Fatalf("section type is not little-endian: %x", secRaw[0:4])
	}
	if secRaw[8] != 0x08 || secRaw[15] != 0x01 {
		t.Fatalf("section offset is not little-endian: %x", secRaw[8:16])
	}
	decodedS, ok := decodeSection(secRaw[:])
	if !ok {
		t.Fatalf("decode section failed")
	}
	if decodedS != s {
		t.Fatalf("section round-trip mismatch: got %+v want %+v", decodedS, s)
	}
}

func TestChannelParamsSectionRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	good, err := EncodeChannelParamsSection(quant.ChannelParams{
		ZeroPoints: []uint8{1, 2, 3},
		Scales:     []float32{0.1, 0.2, 0.3},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := ParseChannelParamsSection(good[:4]); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("short payload err = %v, want ErrCorruptFile", err)
	}
	if _, err := ParseChannelParamsSection(good[:len(good)-2]); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("truncated payload err = %v, want ErrCorruptFile", err)
	}

	// Non-positive scales get rejected at both ends.
	if _, err := EncodeChannelParamsSection(quant.ChannelParams{
		ZeroPoints: []uint8{1},
		Scales:     []float32{0},
	}); err == nil {
		t.Fatal("encode should reject zero scale")
	}
}

func TestBiasDataSectionRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	if _, err := ParseBiasDataSection(make([]byte, 6)); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("ragged payload err = %v, want ErrCorruptFile", err)
	}

	// A non-finite bias cannot be quantized later, so it is treated as
	// corruption at parse time.
	nan := EncodeBiasDataSection([]float32{0.5, float32(math.NaN())})
	if _, err := ParseBiasDataSection(nan); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("NaN bias err = %v, want ErrCorruptFile", err)
	}
	inf := EncodeBiasDataSection([]float32{float32(math.Inf(-1))})
	if _, err := ParseBiasDataSection(inf); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("Inf bias err = %v, want ErrCorruptFile", err)
	}
}
