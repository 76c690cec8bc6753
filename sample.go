package gpmf

// Time is either a stamped offset in seconds from the start of a
// provider's timeline, or the Global sentinel for udta/side-data
// samples that have no per-frame timing. Modeled as a sum type per the
// redesign note in spec.md §9 — callers must branch on Global() rather
// than comparing against the original's -999 sentinel float.
type Time struct {
	seconds float64
	global  bool
}

// Stamped constructs a Time at an absolute offset in seconds.
func Stamped(seconds float64) Time { return Time{seconds: seconds} }

// GlobalTime is the sentinel for samples with no per-frame timing.
var GlobalTime = Time{global: true}

// Global reports whether t is the global-time sentinel.
func (t Time) Global() bool { return t.global }

// Seconds returns the stamped offset. Calling it on the Global sentinel
// returns 0; callers must check Global first.
func (t Time) Seconds() float64 {
	if t.global {
		return 0
	}
	return t.seconds
}

func (t Time) add(secs float64) Time {
	if t.global {
		return t
	}
	return Stamped(t.seconds + secs)
}

// Sample is one materialized KLV record: a FourCC, its type, and the
// bytes already scaled and byte-order corrected for host use. Sample
// owns Buffer exclusively; Timeline releases it when the sample is
// dropped.
type Sample struct {
	Key               FourCC
	Type              Type
	TypeSize          int
	StructSize        int
	ElementsInStruct  int
	Repeat            int
	Count             int
	DeviceID          uint32
	DeviceName        string
	NestLevel         int
	Scale             []float64
	ComplexType       string
	Time              Time
	Rate              float64
	TSMP              uint32
	STMP              uint64
	Buffer            []byte
}
