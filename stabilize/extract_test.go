package stabilize

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetsuo/gpmf"
	"github.com/tetsuo/gpmf/provider"
)

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

func putFloat32BE(dst []byte, v float32) {
	binary.BigEndian.PutUint32(dst, math.Float32bits(v))
}

// quatFramesBE encodes n copies of the quaternion (w, x, y, z) in GPMF's
// w,x,y,z record order, 16 bytes each.
func quatFramesBE(n int, w, x, y, z float32) []byte {
	out := make([]byte, 16*n)
	for i := 0; i < n; i++ {
		off := i * 16
		putFloat32BE(out[off:], w)
		putFloat32BE(out[off+4:], x)
		putFloat32BE(out[off+8:], y)
		putFloat32BE(out[off+12:], z)
	}
	return out
}

func vec3FramesBE(n int, x, y, z float32) []byte {
	out := make([]byte, 12*n)
	for i := 0; i < n; i++ {
		off := i * 12
		putFloat32BE(out[off:], x)
		putFloat32BE(out[off+4:], y)
		putFloat32BE(out[off+8:], z)
	}
	return out
}

func buildOrientationPayload(n int, gravX, gravY, gravZ float32) []byte {
	var buf []byte
	buf = append(buf, klvRecord("CORI", 'f', 16, n, quatFramesBE(n, 1, 0, 0, 0))...)
	buf = append(buf, klvRecord("IORI", 'f', 16, n, quatFramesBE(n, 1, 0, 0, 0))...)
	buf = append(buf, klvRecord("GRAV", 'f', 12, n, vec3FramesBE(n, gravX, gravY, gravZ))...)
	buf = append(buf, klvRecord("PRJT", 'c', 4, 1, []byte("EQUI"))...)
	return buf
}

// Scenario 4: all-zero GRAV gates AllOn as METADATA_GRAV_INVALID at the
// extraction layer, but still yields usable frames so a caller that
// downgrades to AntiShake (which never reads Grav) succeeds.
func TestExtractFramesReportsGravInvalidOnAllZeroGrav(t *testing.T) {
	const n = 5
	payload := buildOrientationPayload(n, 0, 0, 0)
	buf := provider.NewBuffer([][]byte{payload}, []gpmf.TimeRange{{In: 0, Out: 1}})

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))

	frames, status := ExtractFrames(tl, buf, "video.mp4")
	require.Equal(t, StatusGravInvalid, status)
	require.Len(t, frames, n)

	quats, fstatus := Stabilize(tl, buf, "video.mp4", ModeAllOn, true, 0, n, &StrategyCache{})
	require.Equal(t, StatusOK, fstatus)
	require.Len(t, quats, n)
}

func TestExtractFramesOKWithValidGrav(t *testing.T) {
	const n = 5
	payload := buildOrientationPayload(n, 0, 1, 0)
	buf := provider.NewBuffer([][]byte{payload}, []gpmf.TimeRange{{In: 0, Out: 1}})

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))

	frames, status := ExtractFrames(tl, buf, "video.mp4")
	require.Equal(t, StatusOK, status)
	require.Len(t, frames, n)
	require.Equal(t, Vector{0, 1, 0}, frames[0].Grav)
}
