package stabilize

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/tetsuo/gpmf"
)

// Status reports the outcome of extracting or fusing orientation frames.
type Status int

const (
	// StatusOK means every requested frame was produced.
	StatusOK Status = iota
	// StatusFailed means extraction could not proceed at all.
	StatusFailed
	// StatusGravInvalid means GRAV samples are all zero: stabilization
	// falls back to AntiShake, which does not need gravity.
	StatusGravInvalid
)

// hlRotStrategy latches which of the two gravity-alignment branches a
// video uses for its whole duration, chosen from its first frame.
type hlRotStrategy int

const (
	strategyUnknown hlRotStrategy = iota
	strategyNorthPole
	strategySouthPole
)

// StrategyCache holds the gravity-alignment branch chosen for a video,
// once. Passed alongside a frame slice rather than mutated into frame
// zero's struct field, so Fuse has no hidden state between calls on the
// same frame data.
type StrategyCache struct {
	strategy hlRotStrategy
}

// FrameData is one frame's worth of fused orientation inputs: the
// camera's CORI (relative rotation), IORI (image orientation), and GRAV
// (gravity vector), plus the playback rate needed by the CORI jitter
// filter.
type FrameData struct {
	TimestampNS int64
	FrameRate   float32 // frames per second adjusted for slow/fast playback; -1 if unknown
	CORI        Quaternion
	IORI        Quaternion
	Grav        Vector
}

// ExtractFrames reads CORI, IORI and GRAV samples out of tl and zips them
// into one FrameData per frame, grounded on extract_cori_iori_grav:
// sample counts are allowed to differ by at most two before the tracks
// are considered too divergent to trust, and a camera that dropped up to
// one GOP's worth of trailing samples is still accepted. sourcePath is
// consulted only for the legacy-proxy fisheye override (paths containing
// GPMF.mp4, or an FSFB projection) where IORI must be suppressed.
func ExtractFrames(tl *gpmf.Timeline, p gpmf.Provider, sourcePath string) ([]FrameData, Status) {
	keyCORI := fourcc("CORI")
	keyIORI := fourcc("IORI")
	keyGRAV := fourcc("GRAV")

	coriCount := tl.SampleCount(keyCORI)
	ioriCount := tl.SampleCount(keyIORI)
	gravCount := tl.SampleCount(keyGRAV)

	if gravCount == 0 {
		return nil, StatusFailed
	}

	sampleCount := minInt(coriCount, ioriCount, gravCount)
	largest := maxInt(coriCount, ioriCount, gravCount)
	if largest-sampleCount > 2 {
		return nil, StatusFailed
	}

	fps := 1.0
	frameCount := 1
	if num, den, count, err := p.VideoFrameRateAndCount(); err == nil && den != 0 {
		fps = float64(num) / float64(den)
		frameCount = int(count)
	}
	maxMissing := int(fps)
	if fps > float64(maxMissing) {
		maxMissing++
	}
	frameCountCompensated := frameCount - maxMissing
	if frameCountCompensated < 0 {
		frameCountCompensated = 0
	}
	if coriCount < frameCountCompensated || ioriCount < frameCountCompensated || gravCount < frameCountCompensated {
		return nil, StatusFailed
	}

	rateValue := -1
	if rate, ok := tl.Sample(fourcc("RATE"), 0); ok {
		s := strings.TrimRight(string(rate.Buffer), "\x00")
		if strings.Contains(s, "X") {
			if v, err := strconv.Atoi(strings.TrimSuffix(s, "X")); err == nil {
				rateValue = v
			}
		}
	}

	projectionType := ""
	if prjt, ok := tl.Sample(fourcc("PRJT"), 0); ok {
		projectionType = strings.TrimRight(string(prjt.Buffer), "\x00")
	} else {
		return nil, StatusFailed
	}

	suppressIORI := projectionType == "FSFB" || strings.Contains(sourcePath, "GPMF.mp4")

	output := make([]FrameData, sampleCount)
	allCoriZero := true
	for i := 0; i < sampleCount; i++ {
		s, ok := tl.Sample(keyCORI, i)
		if !ok {
			continue
		}
		w, x, y, z := float32At(s.Buffer, 0), float32At(s.Buffer, 1), float32At(s.Buffer, 2), float32At(s.Buffer, 3)
		output[i].TimestampNS = int64(s.Time.Seconds() * 1e9)
		if rateValue > -1 {
			output[i].FrameRate = float32(fps) / float32(rateValue)
		} else {
			output[i].FrameRate = -1
		}
		output[i].CORI = Quaternion{x, y, z, w}
		if w != 0 || x != 0 || y != 0 || z != 0 {
			allCoriZero = false
		}
	}
	if allCoriZero {
		return nil, StatusFailed
	}

	allIoriZero := true
	for i := 0; i < sampleCount; i++ {
		if suppressIORI {
			output[i].IORI = Identity()
			allIoriZero = false
			continue
		}
		s, ok := tl.Sample(keyIORI, i)
		if !ok {
			continue
		}
		w, x, y, z := float32At(s.Buffer, 0), float32At(s.Buffer, 1), float32At(s.Buffer, 2), float32At(s.Buffer, 3)
		output[i].IORI = Quaternion{x, y, z, w}
		if w != 0 || x != 0 || y != 0 || z != 0 {
			allIoriZero = false
		}
	}
	if allIoriZero {
		return nil, StatusFailed
	}

	allGravZero := true
	for i := 0; i < sampleCount; i++ {
		s, ok := tl.Sample(keyGRAV, i)
		if !ok {
			continue
		}
		x, y, z := float32At(s.Buffer, 0), float32At(s.Buffer, 1), float32At(s.Buffer, 2)
		output[i].Grav = Vector{x, y, z}
		if x != 0 || y != 0 || z != 0 {
			allGravZero = false
		}
	}
	if allGravZero {
		// CORI/IORI are still valid here; a caller downgrading to
		// AntiShake (which never reads Grav) needs real frames to fuse,
		// not nil.
		return output, StatusGravInvalid
	}

	return output, StatusOK
}

func float32At(buf []byte, i int) float32 {
	if (i+1)*4 > len(buf) {
		return 0
	}
	return math.Float32frombits(binary.NativeEndian.Uint32(buf[i*4:]))
}

func fourcc(s string) gpmf.FourCC {
	var f gpmf.FourCC
	copy(f[:], s)
	return f
}

func minInt(vs ...int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxInt(vs ...int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
