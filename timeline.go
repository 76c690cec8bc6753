package gpmf

import (
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Provider supplies the raw KLV payloads a Timeline assembles. MP4/FFmpeg
// demuxing is not this package's concern — a Provider only has to hand
// back payload bytes and the time range each one covers.
type Provider interface {
	Open(path string) error
	OpenUDTA(path string) error
	Close() error
	Duration() (float64, error)
	VideoFrameRateAndCount() (num, den int32, count uint32, err error)
	PayloadCount() int
	PayloadSize(index int) int
	Payload(index int) ([]byte, error)
	PayloadTime(index int) (in, out float64, isGlobal bool, err error)
	SampleRate(key FourCC) float64
}

// TimeRange is a half-open [In, Out) span in seconds against a provider's
// timeline, or the Global sentinel range for a udta/side-data payload that
// carries no per-frame timing (spec.md's (GLOBAL_TIME, 0) pair, modeled
// here as an explicit flag rather than a magic -999 literal).
type TimeRange struct {
	In, Out float64
	Global  bool
}

// Timeline is the materialized result of walking every payload a
// Provider exposes: an arena of samples in payload-arrival order, plus
// per-key cursors and the provider's payload segment list. Samples keep
// their arena index stable even after a query sorts by time, per the
// redesign note in spec.md §9.
type Timeline struct {
	samples []Sample
	order   []int
	sorted  bool

	segments    []TimeRange
	rangeCursor int

	byKey       map[FourCC][]int
	cursors     map[FourCC]int
	emptyAdjust map[FourCC]int
}

// NewTimeline returns an empty Timeline ready for Assemble.
func NewTimeline() *Timeline {
	return &Timeline{cursors: map[FourCC]int{}}
}

// Recorder receives parse-progress counters from Assemble. Implementations
// typically wrap Prometheus collectors; nil disables metrics entirely, so
// the core package never has to import a metrics client directly. Callers
// that want Prometheus specifically wire github.com/prometheus/client_golang
// counters/histograms behind this interface at the call site (see
// cmd/gpmftimeline), keeping the dependency out of this package.
type Recorder interface {
	// PayloadParsed is called once per payload, after that payload's
	// samples have been materialized.
	PayloadParsed(d time.Duration)
	// SamplesEmitted is called once per payload with the count of
	// Samples it produced.
	SamplesEmitted(n int)
}

// AssembleOptions controls the optional logging and metrics wiring around
// an Assemble call. The zero value disables both.
type AssembleOptions struct {
	// Logger, when non-nil, receives one structured entry for the whole
	// Assemble call (run ID, payload count, duration) plus a warning
	// entry per payload that failed to parse.
	Logger *zap.Logger
	// Recorder, when non-nil, receives per-payload counters.
	Recorder Recorder
}

// Assemble walks every payload a Provider exposes and appends one or more
// Samples per non-container record encountered, skipping DEVC/STRM/DVID/
// DVNM records (consumed for device identity, never emitted themselves)
// and EMPT records (consumed for rate inference).
// When filter is non-nil only keys it contains are emitted. When window
// is non-nil, payloads entirely outside it are skipped.
func (tl *Timeline) Assemble(p Provider, filter []FourCC, window *TimeRange) error {
	return tl.AssembleWithOptions(p, filter, window, AssembleOptions{})
}

// AssembleWithOptions is Assemble with optional structured logging and
// metrics. Each call is tagged with a fresh run ID (github.com/google/uuid)
// used only in log fields, to correlate a single parse pass across lines —
// it never appears in the JSON export, whose shape is fixed by spec §6.
func (tl *Timeline) AssembleWithOptions(p Provider, filter []FourCC, window *TimeRange, opts AssembleOptions) error {
	runID := uuid.NewString()
	start := time.Now()

	type included struct {
		seg TimeRange
		buf []byte
	}

	var in []included
	for i := 0; i < p.PayloadCount(); i++ {
		pin, pout, isGlobal, err := p.PayloadTime(i)
		if err != nil {
			return err
		}
		if window != nil && !isGlobal && (pout < window.In || pin > window.Out) {
			continue
		}
		buf, err := p.Payload(i)
		if err != nil {
			return err
		}
		// Payload's contents are only guaranteed valid until the next
		// call, and providers may legitimately reuse an internal
		// buffer, so copy before handing it to a worker goroutine.
		cp := make([]byte, len(buf))
		copy(cp, buf)
		in = append(in, included{seg: TimeRange{In: pin, Out: pout, Global: isGlobal}, buf: cp})
	}

	results := make([][]Sample, len(in))
	deficits := make([]map[FourCC]int, len(in))
	var g errgroup.Group
	for idx := range in {
		idx := idx
		g.Go(func() error {
			payloadStart := time.Now()
			var perr error
			results[idx], deficits[idx], perr = parsePayload(in[idx].buf, in[idx].seg, in[idx].seg.Global, filter)
			if perr != nil && opts.Logger != nil {
				opts.Logger.Warn("payload parse failed", zap.String("run_id", runID), zap.Int("payload", idx), zap.Error(perr))
			}
			if opts.Recorder != nil {
				opts.Recorder.PayloadParsed(time.Since(payloadStart))
				opts.Recorder.SamplesEmitted(len(results[idx]))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if opts.Logger != nil {
			opts.Logger.Warn("assemble failed", zap.String("run_id", runID), zap.Error(err))
		}
		return err
	}

	if tl.emptyAdjust == nil {
		tl.emptyAdjust = map[FourCC]int{}
	}
	for i, item := range in {
		tl.segments = append(tl.segments, item.seg)
		tl.samples = append(tl.samples, results[i]...)
		for k, v := range deficits[i] {
			tl.emptyAdjust[k] += v
		}
	}
	tl.sorted = false
	tl.byKey = nil

	if opts.Logger != nil {
		opts.Logger.Info("assemble complete",
			zap.String("run_id", runID),
			zap.Int("payloads", len(in)),
			zap.Int("samples", len(tl.samples)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}

// parsePayload walks one payload's KLV records depth-first, skipping
// DEVC/STRM/DVID/DVNM/EMPT and emitting every other leaf as one or more
// Samples. It never touches Timeline state directly, so Assemble can run
// it concurrently across payloads. The returned map holds, per key, the
// EMPT-derived sample-count deficit (invariant 3: EMPT subtracts from the
// effective sample count used for rate inference only — it never changes
// how many Samples are actually emitted). A walk error ends the payload
// early; the samples emitted before it are returned along with the error.
func parsePayload(buf []byte, seg TimeRange, isGlobal bool, filter []FourCC) ([]Sample, map[FourCC]int, error) {
	var out []Sample
	var deficit map[FourCC]int
	r := NewReader(buf)
	deviceID := uint32(1)
	deviceName := ""
	for {
		ok, err := r.NextRecursive(true)
		if err != nil || !ok {
			return out, deficit, err
		}
		if r.Type().IsNest() {
			if r.Key() == KeyDevice {
				deviceID = 1
				deviceName = ""
			}
			continue
		}
		switch r.Key() {
		case KeyDeviceID:
			deviceID = decodeU32(r.RawData())
			continue
		case KeyDeviceName:
			deviceName = string(r.RawData())
			continue
		case KeyStream, KeyDevice, KeyEmpty:
			continue
		}
		if filter != nil && !containsKey(filter, r.Key()) {
			continue
		}
		if empt := r.emptyAdjust(); empt > 0 {
			if deficit == nil {
				deficit = map[FourCC]int{}
			}
			deficit[r.Key()] += empt
		}
		out = append(out, emitSamples(&r, seg.In, seg.Out, isGlobal, deviceID, deviceName)...)
	}
}

func containsKey(keys []FourCC, k FourCC) bool {
	for _, c := range keys {
		if c == k {
			return true
		}
	}
	return false
}

func decodeU32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// emitSamples produces the Sample(s) for one leaf record, grounded on
// GetNextSampleSegment/AddAssetTimeSample: string, complex and global-time
// records collapse their whole repeat count into a single Sample; numeric
// records are expanded into one Sample per repeat (one struct of
// elements each), evenly spaced across the payload's [in, out) span.
func emitSamples(r *Reader, in, out float64, isGlobal bool, deviceID uint32, deviceName string) []Sample {
	raw := r.RawData()
	t := r.Type()
	structSize := int(r.StructSize())
	repeat := int(r.Repeat())
	if repeat == 0 {
		repeat = 1
	}

	var complex *ComplexDescriptor
	complexType := ""
	if sib, ok := r.FindSibling(KeyType); ok {
		cd := parseComplexDescriptor(sib.RawData())
		if len(cd.Fields) > 0 {
			complex = &cd
			complexType = sib.rawString()
		}
	}

	var scale []float64
	if sib, ok := r.FindSibling(KeyScale); ok {
		scale = decodeScale(sib.RawData(), sib.Type(), int(sib.StructSize()), int(sib.Repeat()))
	}

	var tsmp uint32
	if sib, ok := r.FindSibling(KeyTotalSamples); ok {
		tsmp = decodeU32(sib.RawData())
	}
	var stmp uint64
	if sib, ok := r.FindSibling(KeySampleStamp); ok {
		stmp = decodeU64(sib.RawData())
	}
	var timo float64
	if sib, ok := r.FindSibling(KeyTimeOffset); ok {
		timo = decodeNumeric(sib.RawData(), 0, sib.Type())
	}

	elems := elementsInStruct(t, structSize, complex)
	dstType := TypeFloat
	if r.Key() == keyGPS5 {
		dstType = TypeDouble
	}
	typeSize := numericWidth(t)
	if typeSize == 0 {
		typeSize = sizeOfType(t)
	}

	// Invariant 4: once scaled, type/type_size/struct_size describe the
	// scaled numeric type (float, or double for GPS5), not the on-disk
	// one, so buffer_size == struct_size keeps holding for scaled samples.
	outType := t
	outStructSize := structSize
	if len(scale) > 0 {
		outType = dstType
		typeSize = numericWidth(dstType)
		outStructSize = elems * typeSize
	}

	duration := out - in
	rate := 0.0
	secsPerSample := 0.0
	if !isGlobal && duration > 0 && repeat > 0 {
		rate = float64(repeat) / duration
		secsPerSample = duration / float64(repeat)
	}

	collapse := isGlobal || t.IsComplex() || t.IsString()

	base := Sample{
		Key:              r.Key(),
		Type:             outType,
		TypeSize:         typeSize,
		StructSize:       outStructSize,
		ElementsInStruct: elems,
		DeviceID:         deviceID,
		DeviceName:       deviceName,
		NestLevel:        r.NestLevel(),
		Scale:            scale,
		ComplexType:      complexType,
		Rate:             rate,
		TSMP:             tsmp,
		STMP:             stmp,
	}

	if collapse {
		s := base
		s.Repeat = repeat
		s.Count = repeat
		if isGlobal {
			s.Time = GlobalTime
		} else {
			s.Time = Stamped(in + timo)
		}
		if len(scale) > 0 {
			s.Buffer = scaledData(raw, t, structSize, 0, repeat, scale, dstType, complex)
		} else {
			s.Buffer = formattedData(raw, t, structSize, 0, repeat, complex)
		}
		return []Sample{s}
	}

	out2 := make([]Sample, repeat)
	for g := 0; g < repeat; g++ {
		s := base
		s.Repeat = repeat
		s.Count = 1
		s.Time = Stamped(in + timo + float64(g)*secsPerSample)
		if len(scale) > 0 {
			s.Buffer = scaledData(raw, t, structSize, g, 1, scale, dstType, complex)
		} else {
			s.Buffer = formattedData(raw, t, structSize, g, 1, complex)
		}
		out2[g] = s
	}
	return out2
}

var keyGPS5 = fourcc("GPS5")

// rawString returns a record's raw payload bytes as a string, used to
// read a TYPE sibling's field-descriptor string.
func (r *Reader) rawString() string {
	return string(r.RawData())
}

func decodeScale(raw []byte, t Type, structSize, repeat int) []float64 {
	w := numericWidth(t)
	if w == 0 || structSize == 0 {
		return nil
	}
	n := (structSize * repeat) / w
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, decodeNumeric(raw, i*w, t))
	}
	return out
}

func sortKey(t Time) float64 {
	if t.Global() {
		return -999
	}
	return t.Seconds()
}

func (tl *Timeline) ensureSorted() {
	if tl.sorted {
		return
	}
	order := make([]int, len(tl.samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sortKey(tl.samples[order[a]].Time) < sortKey(tl.samples[order[b]].Time)
	})
	tl.order = order
	tl.sorted = true
}

func (tl *Timeline) keyIndices(key FourCC) []int {
	tl.ensureSorted()
	if tl.byKey == nil {
		tl.byKey = map[FourCC][]int{}
	}
	if idxs, ok := tl.byKey[key]; ok {
		return idxs
	}
	var idxs []int
	for _, i := range tl.order {
		if tl.samples[i].Key == key {
			idxs = append(idxs, i)
		}
	}
	tl.byKey[key] = idxs
	return idxs
}

// SampleCount returns how many samples are materialized for key.
func (tl *Timeline) SampleCount(key FourCC) int {
	return len(tl.keyIndices(key))
}

// Keys returns every distinct FourCC the timeline holds at least one
// sample for, in first-seen order.
func (tl *Timeline) Keys() []FourCC {
	seen := map[FourCC]bool{}
	var keys []FourCC
	for _, s := range tl.samples {
		if !seen[s.Key] {
			seen[s.Key] = true
			keys = append(keys, s.Key)
		}
	}
	return keys
}

// Sample returns the index'th sample for key, in time order.
func (tl *Timeline) Sample(key FourCC, index int) (Sample, bool) {
	idxs := tl.keyIndices(key)
	if index < 0 || index >= len(idxs) {
		return Sample{}, false
	}
	return tl.samples[idxs[index]], true
}

// NextSample returns key's samples one at a time in time order, advancing
// a per-key cursor. Reset rewinds every cursor to the start.
func (tl *Timeline) NextSample(key FourCC) (Sample, bool) {
	idxs := tl.keyIndices(key)
	c := tl.cursors[key]
	if c >= len(idxs) {
		return Sample{}, false
	}
	tl.cursors[key] = c + 1
	return tl.samples[idxs[c]], true
}

// NextTimeRange returns the payload segments assembled, one at a time, in
// assembly order, advancing its own independent cursor.
func (tl *Timeline) NextTimeRange() (TimeRange, bool) {
	if tl.rangeCursor >= len(tl.segments) {
		return TimeRange{}, false
	}
	seg := tl.segments[tl.rangeCursor]
	tl.rangeCursor++
	return seg, true
}

// Reset clears every sample, segment and cursor, returning the Timeline
// to the state NewTimeline produces — ready for a fresh Assemble.
func (tl *Timeline) Reset() {
	tl.samples = nil
	tl.order = nil
	tl.sorted = false
	tl.segments = nil
	tl.rangeCursor = 0
	tl.byKey = nil
	tl.cursors = map[FourCC]int{}
	tl.emptyAdjust = nil
}

// InferRate estimates a key's sample rate across the whole timeline,
// grounded on GetSampleRate: prefer the STMP hardware counter, scanned
// across decades until its candidate lands within 10% of the coarse
// repeat-count estimate, falling back to a least-squares fit of sample
// index against stamped time when no STMP counter is present.
func (tl *Timeline) InferRate(key FourCC) (float64, error) {
	idxs := tl.keyIndices(key)
	if len(idxs) == 0 {
		return 0, errKeyf(KindTypeNotFound, key)
	}
	first := tl.samples[idxs[0]]
	last := tl.samples[idxs[len(idxs)-1]]
	if first.Time.Global() || last.Time.Global() {
		return 0, errKeyf(KindNotValidForType, key)
	}

	total := 0
	for _, i := range idxs {
		total += tl.samples[i].Count
	}
	// EMPT-adjust the effective count for rate inference only, per
	// invariant 3 — it never affects what was actually emitted above.
	total -= tl.emptyAdjust[key]
	if total < 1 {
		total = 1
	}
	duration := last.Time.Seconds() - first.Time.Seconds()
	if duration <= 0 || total == 0 {
		return 0, errKeyf(KindTypeNotFound, key)
	}
	coarse := float64(total) / duration

	if last.STMP > first.STMP {
		delta := float64(last.STMP - first.STMP)
		for scale := 1e9; scale >= 1; scale /= 10 {
			candidate := scale / delta * float64(total-1)
			if candidate > 0 && math.Abs(candidate-coarse)/coarse < 0.10 {
				return candidate, nil
			}
		}
	}

	n := len(idxs)
	if n < 2 {
		return coarse, nil
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, idx := range idxs {
		x := float64(i)
		y := tl.samples[idx].Time.Seconds()
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return coarse, nil
	}
	slope := (nf*sumXY - sumX*sumY) / denom
	if slope <= 0 {
		return coarse, nil
	}
	return (1.0 / slope) * (float64(total) / nf), nil
}
