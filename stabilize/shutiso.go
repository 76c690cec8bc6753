package stabilize

import "github.com/tetsuo/gpmf"

// ShutterISOSample pairs a front/back dual-camera pair's per-frame
// shutter speed and ISO gain, used to judge exposure match between the
// two lenses of a 360 rig rather than for stabilization itself.
type ShutterISOSample struct {
	TimestampNS  int64
	FrontShutter float32
	BackShutter  float32
	FrontISOGain float32
	BackISOGain  float32
}

// ExtractShutterISO zips SHUT and ISOG samples from the front and back
// camera timelines of a dual-lens capture, grounded on
// GPMFFrameMetadata::extract_isog_shut. The front timeline's SHUT and ISOG
// sample counts must match; the back timeline's counts are not checked,
// and back samples are read at the same indices, leaving zero values
// where the back timeline has none.
func ExtractShutterISO(front, back *gpmf.Timeline) ([]ShutterISOSample, Status) {
	keyShut := fourcc("SHUT")
	keyIsog := fourcc("ISOG")

	shutCount := front.SampleCount(keyShut)
	isogCount := front.SampleCount(keyIsog)
	if shutCount != isogCount {
		return nil, StatusFailed
	}

	out := make([]ShutterISOSample, shutCount)
	for i := 0; i < shutCount; i++ {
		if s, ok := front.Sample(keyShut, i); ok {
			out[i].TimestampNS = int64(s.Time.Seconds() * 1e9)
			out[i].FrontShutter = float32At(s.Buffer, 0)
		}
		if s, ok := back.Sample(keyShut, i); ok {
			out[i].BackShutter = float32At(s.Buffer, 0)
		}
	}
	for i := 0; i < shutCount; i++ {
		if s, ok := front.Sample(keyIsog, i); ok {
			out[i].FrontISOGain = float32At(s.Buffer, 0)
		}
		if s, ok := back.Sample(keyIsog, i); ok {
			out[i].BackISOGain = float32At(s.Buffer, 0)
		}
	}

	if len(out) == 0 {
		return nil, StatusFailed
	}
	return out, StatusOK
}
