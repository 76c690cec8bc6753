package stabilize

import (
	"math"

	"github.com/tetsuo/gpmf"
)

// Mode selects which stabilization strategy Fuse applies, mirroring
// GPMFStabilizationState.
type Mode int

const (
	// ModeAllOff emits the identity quaternion for every frame.
	ModeAllOff Mode = iota
	// ModeAntiShake removes only high-frequency jitter.
	ModeAntiShake
	// ModeWorldLock holds the camera's absolute orientation.
	ModeWorldLock
	// ModeHorizonLevel keeps the horizon level without fully locking yaw.
	ModeHorizonLevel
	// ModeAllOn combines world lock, horizon level and gravity alignment.
	ModeAllOn
)

func coriFilterNeeded(f FrameData) bool { return f.FrameRate > -1 }

func asinNaNAvoid(x float32) float32 {
	if x > 1.0 {
		x = 1.0
	}
	return float32(math.Asin(float64(x)))
}

// coriFilter smooths CORI against the jitter a stationary or
// near-stationary camera picks up, measuring angular speed between
// consecutive frames and freezing the accumulated rotation once five
// frames in a row fall below the steady-state threshold.
func coriFilter(input []FrameData) []Quaternion {
	out := make([]Quaternion, len(input))
	prevQ := Identity()
	cur := Identity()
	nSteady := 0

	for i, f := range input {
		if f.FrameRate < 0 {
			out[i] = Identity()
			continue
		}
		cori := f.CORI
		r := cori.Mul(prevQ.Inverted())
		prevQ = cori

		rot := r.ToAxeAngle()
		speed := rot.W * 180.0 / math.Pi * f.FrameRate

		if speed < 0.5 {
			nSteady++
		} else {
			nSteady = 0
		}
		if nSteady < 5 {
			cur = r.Mul(cur)
		}
		out[i] = cur
	}
	return out
}

func getOrient(i int, input []FrameData, coriFiltered []Quaternion) Quaternion {
	cori := input[i].CORI
	if coriFilterNeeded(input[i]) {
		cori = coriFiltered[i]
	}
	camOrient := input[i].IORI.Mul(cori).Normalized()
	return camOrient.Inverse()
}

func processRollFromCameraOrient(camOrient, prevCamOrient, prevRollOrient Quaternion, prevAngle float32, index int) (Quaternion, float32) {
	const (
		rollMax      = float32(20 * math.Pi / 180)
		rollLock     = float32(20 * math.Pi / 180)
		rollStrength = float32(0.8)
	)

	var angle, camAngle float32
	if index > 0 {
		d := prevRollOrient.Inverse().Mul(camOrient.Inverse()).Mul(prevCamOrient).Mul(prevRollOrient)
		x := 2*d.X*d.Y - 2*d.Z*d.W
		y := 1 - 2*d.X*d.X - 2*d.Z*d.Z
		camAngle = float32(math.Atan2(float64(x), float64(y)))
		angle = prevAngle - camAngle
	} else {
		camAngle = prevAngle
		angle = prevAngle
	}
	angle *= rollStrength
	angle = clampF(angle, -rollMax, rollMax)
	if absF(camAngle) > rollLock {
		angle = prevAngle
	}
	newRoll := Quaternion{0, 0, float32(math.Sin(float64(angle / 2))), float32(math.Cos(float64(angle / 2)))}
	return newRoll, angle
}

func generateAntiShakeToIndex(input []FrameData, coriFiltered []Quaternion) []Quaternion {
	out := make([]Quaternion, len(input))
	prevCamOrient := Identity()
	prevRollOrient := Identity()
	prevAngle := float32(0)

	for i := range input {
		camOrient := getOrient(i, input, coriFiltered)
		roll, angle := processRollFromCameraOrient(camOrient, prevCamOrient, prevRollOrient, prevAngle, i)
		prevAngle = angle
		prevCamOrient = camOrient
		prevRollOrient = roll
		out[i] = camOrient.Mul(roll)
	}
	return out
}

func horizonLevelQuatForIndex(i int, input []FrameData, coriFiltered []Quaternion) Quaternion {
	grav := input[i].Grav.Normalized()
	x := Cross(Vector{0, 0, 1}, grav).Normalized()
	z := Cross(grav, x).Normalized()

	q := FromAxes(x.Neg(), grav, z)
	cori := input[i].CORI
	if coriFilterNeeded(input[i]) {
		cori = coriFiltered[i]
	}
	return cori.Inverted().Mul(q)
}

func generateWorldLockStabToIndex(input []FrameData, coriFiltered []Quaternion) []Quaternion {
	out := make([]Quaternion, len(input))
	orientFollow := Identity()

	for i := range input {
		stabIn := horizonLevelQuatForIndex(i, input, coriFiltered)
		d1 := orientFollow.Sub(stabIn).Magnitude()
		d2 := orientFollow.Add(stabIn).Magnitude()
		if d2 < d1 {
			stabIn = stabIn.Neg()
		}
		orientFollow = stabIn
		out[i] = stabIn
	}
	return out
}

func antiShake(frameIndex int, cori, iori Quaternion, input []FrameData, stab []Quaternion) Quaternion {
	camOrient := iori.Mul(cori)

	const halfIntegTime = 30
	iMin := maxInt(0, frameIndex-halfIntegTime)
	iMax := minInt(len(input)-2, frameIndex+halfIntegTime)

	q := Quaternion{}
	for n := iMin; n <= iMax; n++ {
		weight := float32(halfIntegTime + 1 - absInt(n-frameIndex))
		q = q.Add(stab[n].Scale(weight))
	}
	return camOrient.Mul(q.Normalized())
}

func worldLockOnly(cori, iori Quaternion) Quaternion {
	return iori.Mul(cori).Normalized()
}

func horizonLevelOnly(frameIndex int, cori, iori Quaternion, input []FrameData, stab []Quaternion) Quaternion {
	const halfIntegTime = 20
	iMin := maxInt(0, frameIndex-halfIntegTime)
	iMax := minInt(len(input)-2, frameIndex+halfIntegTime)

	q := Quaternion{}
	for n := iMin; n <= iMax; n++ {
		weight := float32(halfIntegTime + 1 - absInt(n-frameIndex))
		q = q.Add(stab[n].Scale(weight))
	}
	return iori.Mul(cori).Mul(q.Normalized())
}

func allOn(frameIndex int, cori, iori Quaternion, input []FrameData, cache *StrategyCache) Quaternion {
	camOrient := iori.Mul(cori).Normalized()
	grav := input[frameIndex].Grav

	gravInit := cori.Inverted().RotatedVector(grav).Normalized()

	if cache.strategy == strategyUnknown {
		// Locked in from the first frame and held for the whole video:
		// switching branches partway through produces a visible snap.
		if gravInit.Y > 0 {
			cache.strategy = strategyNorthPole
		} else {
			cache.strategy = strategySouthPole
		}
	}

	var gravRot Quaternion
	if cache.strategy == strategyNorthPole {
		axe := Cross(Vector{0, 1, 0}, gravInit)
		angle := asinNaNAvoid(axe.Length())
		if gravInit.Y < 0 {
			angle = float32(math.Pi) - angle
		}
		gravRot = FromAxisAngle(axe.Normalized(), angle)
	} else {
		axe := Cross(Vector{0, -1, 0}, gravInit)
		angle := asinNaNAvoid(axe.Length())
		if gravInit.Y > 0 {
			angle = float32(math.Pi) - angle
		}
		gravRot = FromAxisAngle(axe.Normalized(), angle).Mul(Quaternion{0, 0, 1, 0})
	}

	return camOrient.Mul(gravRot.Normalized())
}

// Fuse computes one stabilization quaternion per frame in [startFrame,
// startFrame+count), grounded on meld_cori_iori_grav_internal. applyIORI
// mirrors the original's two call paths: meld_cori_grav (image
// orientation ignored, applyIORI=false) versus meld_cori_iori_grav
// (applyIORI=true) — spec.md §9 resolves the distinction in favor of
// always exposing it as an explicit parameter rather than two near-
// identical exported entry points. cache must be reused across repeated
// calls against the same frame slice so the AllOn gravity-alignment
// branch stays consistent for the whole video.
func Fuse(frames []FrameData, mode Mode, applyIORI bool, startFrame, count int, cache *StrategyCache) ([]Quaternion, Status) {
	if len(frames) == 0 {
		return nil, StatusFailed
	}

	coriFiltered := coriFilter(frames)

	var stab []Quaternion
	switch mode {
	case ModeAntiShake:
		stab = generateAntiShakeToIndex(frames, coriFiltered)
	case ModeHorizonLevel:
		stab = generateWorldLockStabToIndex(frames, coriFiltered)
	}

	identity := Identity()

	if count > len(frames)-startFrame {
		count = len(frames) - startFrame
	}
	end := startFrame + count

	// Seed the gravity-alignment strategy from frame zero before any
	// requested window, so a mid-video Fuse call still picks the branch
	// the whole video committed to.
	if cache.strategy == strategyUnknown {
		allOn(0, frames[0].CORI, frames[0].IORI, frames, cache)
	}

	out := make([]Quaternion, 0, count)
	for i := startFrame; i < end; i++ {
		cori := frames[i].CORI
		if coriFilterNeeded(frames[i]) {
			cori = coriFiltered[i]
		}
		iori := identity
		if applyIORI {
			iori = frames[i].IORI
		}

		switch mode {
		case ModeAllOff:
			out = append(out, identity)
		case ModeAntiShake:
			out = append(out, antiShake(i, cori, iori, frames, stab))
		case ModeWorldLock:
			out = append(out, worldLockOnly(cori, iori))
		case ModeHorizonLevel:
			out = append(out, horizonLevelOnly(i, cori, iori, frames, stab))
		case ModeAllOn:
			out = append(out, allOn(i, cori, iori, frames, cache))
		default:
			return nil, StatusFailed
		}
	}

	return out, StatusOK
}

// Stabilize extracts orientation frames from tl and fuses them in one
// step, grounded on SphericalMetadataProvider::meld_cori_grav /
// meld_cori_iori_grav: a GRAV track that's present but all zero doesn't
// fail the whole request, it downgrades the requested mode to AntiShake,
// which doesn't need gravity at all.
func Stabilize(tl *gpmf.Timeline, p gpmf.Provider, sourcePath string, mode Mode, applyIORI bool, startFrame, count int, cache *StrategyCache) ([]Quaternion, Status) {
	frames, status := ExtractFrames(tl, p, sourcePath)
	switch status {
	case StatusOK:
	case StatusGravInvalid:
		mode = ModeAntiShake
	default:
		return nil, StatusFailed
	}
	return Fuse(frames, mode, applyIORI, startFrame, count, cache)
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absF(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
