package gpmf_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetsuo/gpmf"
	"github.com/tetsuo/gpmf/provider"
)

func fcc(s string) gpmf.FourCC {
	var f gpmf.FourCC
	copy(f[:], s)
	return f
}

func klvRecord(key string, typ byte, structSize, repeat int, payload []byte) []byte {
	hdr := make([]byte, 8)
	copy(hdr[0:4], key)
	hdr[4] = typ
	hdr[5] = byte(structSize)
	binary.BigEndian.PutUint16(hdr[6:8], uint16(repeat))
	body := make([]byte, len(payload))
	copy(body, payload)
	if pad := (4 - len(body)%4) % 4; pad != 0 {
		body = append(body, make([]byte, pad)...)
	}
	return append(hdr, body...)
}

func i32BE(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

func u32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u64BE(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Concrete scenario 1: a flat GPS5 payload. One record, type SIGNED_LONG,
// struct_size 20 (5 int32 fields), repeat 10, scaled by
// {1e7,1e7,1e7,1e3,1e3}. Expect 10 samples spaced 0.1s apart, each an
// 8-byte-per-field (double) 40-byte buffer, latitude divided by 1e7.
func TestAssembleFlatGPS5(t *testing.T) {
	scal := klvRecord("SCAL", 'l', 4, 5, concatBytes(
		i32BE(10_000_000), i32BE(10_000_000), i32BE(10_000_000), i32BE(1_000), i32BE(1_000),
	))

	const n = 10
	var gps5Raw []byte
	lats := make([]int32, n)
	for i := 0; i < n; i++ {
		lat := int32(300_000_000 + i*100_000)
		lats[i] = lat
		gps5Raw = append(gps5Raw, concatBytes(
			i32BE(lat), i32BE(-900_000_00), i32BE(1000), i32BE(500), i32BE(600),
		)...)
	}
	gps5 := klvRecord("GPS5", 'l', 20, n, gps5Raw)

	payload := concatBytes(scal, gps5)
	buf := provider.NewBuffer([][]byte{payload}, []gpmf.TimeRange{{In: 0, Out: 1}})

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))

	key := fcc("GPS5")
	require.Equal(t, n, tl.SampleCount(key))

	for i := 0; i < n; i++ {
		s, ok := tl.Sample(key, i)
		require.True(t, ok)
		require.Len(t, s.Buffer, 40)
		require.InDelta(t, float64(i)*0.1, s.Time.Seconds(), 1e-9)

		gotLat := math.Float64frombits(binary.NativeEndian.Uint64(s.Buffer[0:8]))
		require.InDelta(t, float64(lats[i])/1e7, gotLat, 1e-9)
	}
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Concrete scenario 5: two payloads of GYRO, TSMP jumping 0->200 across
// STMP 0ns->1e9ns, should infer a rate of 200Hz within 1%.
func TestInferRateFromTSMPAndSTMP(t *testing.T) {
	p1 := concatBytes(
		klvRecord("STMP", 'J', 8, 1, u64BE(0)),
		klvRecord("TSMP", 'L', 4, 1, u32BE(0)),
		klvRecord("GYRO", 'f', 12, 1, make([]byte, 12)),
	)
	p2 := concatBytes(
		klvRecord("STMP", 'J', 8, 1, u64BE(1_000_000_000)),
		klvRecord("TSMP", 'L', 4, 1, u32BE(200)),
		klvRecord("GYRO", 'f', 12, 200, make([]byte, 12*200)),
	)

	buf := provider.NewBuffer([][]byte{p1, p2}, []gpmf.TimeRange{
		{In: 0, Out: 0.005},
		{In: 0.005, Out: 1.005},
	})

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))

	rate, err := tl.InferRate(fcc("GYRO"))
	require.NoError(t, err)
	require.InEpsilon(t, 200.0, rate, 0.01)
}

// Boundary: an empty timeline reports zero samples and NextSample fails.
func TestEmptyTimelineBoundary(t *testing.T) {
	tl := gpmf.NewTimeline()
	require.Equal(t, 0, tl.SampleCount(fcc("GYRO")))
	_, ok := tl.NextSample(fcc("GYRO"))
	require.False(t, ok)
	require.Empty(t, tl.Keys())
}

// Boundary: a single global payload (no per-frame times) produces samples
// stamped with the Global sentinel, not a numeric offset.
func TestSinglePayloadUDTABoundary(t *testing.T) {
	payload := klvRecord("GYRO", 'f', 12, 1, make([]byte, 12))
	buf := provider.NewBuffer([][]byte{payload}, nil)

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))
	require.Equal(t, 1, buf.PayloadCount())

	in, out, isGlobal, err := buf.PayloadTime(0)
	require.NoError(t, err)
	require.True(t, isGlobal)
	require.Equal(t, 0.0, in)
	require.Equal(t, 0.0, out)

	s, ok := tl.Sample(fcc("GYRO"), 0)
	require.True(t, ok)
	require.True(t, s.Time.Global())
}

func TestTimelineResetClearsState(t *testing.T) {
	payload := klvRecord("GYRO", 'f', 12, 3, make([]byte, 36))
	buf := provider.NewBuffer([][]byte{payload}, []gpmf.TimeRange{{In: 0, Out: 1}})

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))
	require.Equal(t, 3, tl.SampleCount(fcc("GYRO")))
	require.Contains(t, tl.Keys(), fcc("GYRO"))

	tl.Reset()
	require.Equal(t, 0, tl.SampleCount(fcc("GYRO")))
	require.Empty(t, tl.Keys())
}

// Invariant: repeat == 0 with a COMPLEX type normalizes to one emitted
// record end to end through Assemble, not just at the Reader layer.
func TestAssembleComplexZeroRepeatNormalizesToOne(t *testing.T) {
	typeDesc := klvRecord("TYPE", 'c', 1, 2, []byte("ll"))
	rec := klvRecord("ABC1", byte('?'), 8, 0, concatBytes(i32BE(1), i32BE(2)))
	payload := concatBytes(typeDesc, rec)

	buf := provider.NewBuffer([][]byte{payload}, []gpmf.TimeRange{{In: 0, Out: 1}})
	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))
	require.Equal(t, 1, tl.SampleCount(fcc("ABC1")))
}
