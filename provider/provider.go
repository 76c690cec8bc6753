// Package provider supplies concrete gpmf.Provider implementations.
// Demuxing a timed MP4 metadata track or an FFmpeg side-data stream is
// explicitly out of scope here: callers already have payload bytes (from
// whatever demuxer they use) and hand them to Buffer, or point UDTA at an
// MP4 file whose moov/udta atom carries a GPMF box, for the
// single-payload still-image case.
package provider

import (
	"fmt"

	"github.com/tetsuo/gpmf"
)

// Buffer is the simplest Provider: a fixed list of payloads the caller
// already extracted from a container, each with its own time range. It
// never opens a file itself — Open and OpenUDTA both fail — since its
// payloads are supplied at construction.
type Buffer struct {
	payloads [][]byte
	times    []gpmf.TimeRange
	rate     map[gpmf.FourCC]float64
}

// NewBuffer wraps payloads already demuxed by the caller. times must be
// the same length as payloads; pass nil to mark every payload as global
// (no per-frame timing), matching a still-image udta extraction.
func NewBuffer(payloads [][]byte, times []gpmf.TimeRange) *Buffer {
	b := &Buffer{payloads: payloads, rate: map[gpmf.FourCC]float64{}}
	if times == nil {
		b.times = make([]gpmf.TimeRange, len(payloads))
		for i := range b.times {
			b.times[i].Global = true
		}
		return b
	}
	b.times = times
	return b
}

// SetRate records a precomputed sample rate for key, returned verbatim by
// SampleRate instead of being inferred from the payload stream.
func (b *Buffer) SetRate(key gpmf.FourCC, rate float64) {
	b.rate[key] = rate
}

func (b *Buffer) Open(path string) error {
	return &gpmf.Error{Kind: gpmf.KindNotValidForType}
}

func (b *Buffer) OpenUDTA(path string) error {
	return &gpmf.Error{Kind: gpmf.KindNotValidForType}
}

func (b *Buffer) Close() error { return nil }

func (b *Buffer) Duration() (float64, error) {
	var d float64
	for _, t := range b.times {
		if t.Out > d {
			d = t.Out
		}
	}
	return d, nil
}

func (b *Buffer) VideoFrameRateAndCount() (int32, int32, uint32, error) {
	return 0, 0, 0, &gpmf.Error{Kind: gpmf.KindNotValidForType}
}

func (b *Buffer) PayloadCount() int { return len(b.payloads) }

func (b *Buffer) PayloadSize(i int) int {
	if i < 0 || i >= len(b.payloads) {
		return 0
	}
	return len(b.payloads[i])
}

func (b *Buffer) Payload(i int) ([]byte, error) {
	if i < 0 || i >= len(b.payloads) {
		return nil, gpmf.NewError(gpmf.KindMemory, fmt.Sprintf("payload %d out of range", i))
	}
	return b.payloads[i], nil
}

func (b *Buffer) PayloadTime(i int) (float64, float64, bool, error) {
	if i < 0 || i >= len(b.payloads) {
		return 0, 0, false, gpmf.NewError(gpmf.KindMemory, fmt.Sprintf("payload %d out of range", i))
	}
	return b.times[i].In, b.times[i].Out, b.times[i].Global, nil
}

func (b *Buffer) SampleRate(key gpmf.FourCC) float64 {
	return b.rate[key]
}
