package gpmf

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// Boundary behavior from spec.md §8: Q15.16 of raw 0x0000_8000 decodes to
// 0.5; Q31.32 of raw 0x0000_0000_8000_0000 decodes to 0.5.
func TestDecodeNumericFixedPointBoundary(t *testing.T) {
	raw16 := make([]byte, 4)
	binary.BigEndian.PutUint32(raw16, 0x0000_8000)
	require.Equal(t, 0.5, decodeNumeric(raw16, 0, TypeQ1516))

	raw32 := make([]byte, 8)
	binary.BigEndian.PutUint64(raw32, 0x0000_0000_8000_0000)
	require.Equal(t, 0.5, decodeNumeric(raw32, 0, TypeQ3132))
}

func TestDecodeNumericFloatAndDouble(t *testing.T) {
	rawF := make([]byte, 4)
	binary.BigEndian.PutUint32(rawF, math.Float32bits(3.5))
	require.Equal(t, float64(float32(3.5)), decodeNumeric(rawF, 0, TypeFloat))

	rawD := make([]byte, 8)
	binary.BigEndian.PutUint64(rawD, math.Float64bits(-2.25))
	require.Equal(t, -2.25, decodeNumeric(rawD, 0, TypeDouble))
}

// formattedData on an unscaled signed-long record must preserve the
// integer's native bit pattern, not reinterpret it as a float (the
// writeNative/isFloatLike bug this module fixed).
func TestFormattedDataPreservesIntegerBits(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, uint32(int32(-12345)))

	out := formattedData(raw, TypeSignedLong, 4, 0, 1, nil)
	require.Len(t, out, 4)
	require.Equal(t, int32(-12345), int32(binary.NativeEndian.Uint32(out)))
}

func TestFormattedDataFloatRoundTrips(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, math.Float32bits(1.25))

	out := formattedData(raw, TypeFloat, 4, 0, 1, nil)
	require.Equal(t, float32(1.25), math.Float32frombits(binary.NativeEndian.Uint32(out)))
}

func TestScaledDataAppliesDivisor(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, uint32(int32(10_000_000)))

	out := scaledData(raw, TypeSignedLong, 4, 0, 1, []float64{1e7}, TypeDouble, nil)
	require.Len(t, out, 8)
	got := math.Float64frombits(binary.NativeEndian.Uint64(out))
	require.InDelta(t, 1.0, got, 1e-9)
}

func TestApplyScaleBroadcastVsPerElement(t *testing.T) {
	require.Equal(t, 5.0, applyScale(10, []float64{2}, 3))
	require.Equal(t, 2.0, applyScale(10, []float64{5, 2, 1}, 1))
	require.Equal(t, 10.0, applyScale(10, nil, 0))
}
