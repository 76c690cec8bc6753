package provider

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/tetsuo/gpmf"
)

// UDTA reads a single GPMF payload out of an MP4 file's moov/udta atom —
// the layout GoPro still images and some clips use to carry metadata
// outside the timed track. Box headers are read the same way the
// original ISOBMFF reader does: a 4-byte size followed by a 4-byte type,
// with size == 1 meaning a 64-bit largesize follows and size == 0
// meaning the box runs to EOF.
type UDTA struct {
	path    string
	payload []byte
	rate    map[gpmf.FourCC]float64
}

// NewUDTA returns an unopened UDTA provider.
func NewUDTA() *UDTA {
	return &UDTA{rate: map[gpmf.FourCC]float64{}}
}

func (u *UDTA) Open(path string) error {
	return &gpmf.Error{Kind: gpmf.KindNotValidForType}
}

// OpenUDTA reads path and walks its top-level boxes looking for
// moov/udta/GPMF. It does not handle fragmented (moof-based) files.
func (u *UDTA) OpenUDTA(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return gpmf.NewError(gpmf.KindFileOpenFailed, err.Error())
	}
	moov, ok := findBox(buf, "moov")
	if !ok {
		return gpmf.NewError(gpmf.KindFileOpenFailed, fmt.Sprintf("no moov box in %s", path))
	}
	udta, ok := findBox(moov, "udta")
	if !ok {
		return gpmf.NewError(gpmf.KindFileOpenFailed, fmt.Sprintf("no udta box in %s", path))
	}
	gpmfBox, ok := findBox(udta, "GPMF")
	if !ok {
		return gpmf.NewError(gpmf.KindFileOpenFailed, fmt.Sprintf("no GPMF box in udta of %s", path))
	}
	u.path = path
	u.payload = gpmfBox
	return nil
}

func (u *UDTA) Close() error {
	u.payload = nil
	return nil
}

func (u *UDTA) Duration() (float64, error) { return 0, nil }

func (u *UDTA) VideoFrameRateAndCount() (int32, int32, uint32, error) {
	return 0, 0, 0, &gpmf.Error{Kind: gpmf.KindNotValidForType}
}

func (u *UDTA) PayloadCount() int {
	if u.payload == nil {
		return 0
	}
	return 1
}

func (u *UDTA) PayloadSize(i int) int {
	if i != 0 {
		return 0
	}
	return len(u.payload)
}

func (u *UDTA) Payload(i int) ([]byte, error) {
	if i != 0 || u.payload == nil {
		return nil, gpmf.NewError(gpmf.KindMemory, fmt.Sprintf("no such payload %d", i))
	}
	return u.payload, nil
}

func (u *UDTA) PayloadTime(i int) (float64, float64, bool, error) {
	if i != 0 || u.payload == nil {
		return 0, 0, false, gpmf.NewError(gpmf.KindMemory, fmt.Sprintf("no such payload %d", i))
	}
	return 0, 0, true, nil
}

func (u *UDTA) SampleRate(key gpmf.FourCC) float64 {
	return u.rate[key]
}

// findBox scans buf's immediate children for a box of the given
// four-character type and returns its body (header stripped).
func findBox(buf []byte, want string) ([]byte, bool) {
	pos := 0
	for pos+8 <= len(buf) {
		size := int(binary.BigEndian.Uint32(buf[pos:]))
		typ := string(buf[pos+4 : pos+8])
		hdr := 8
		switch size {
		case 0:
			size = len(buf) - pos
		case 1:
			if pos+16 > len(buf) {
				return nil, false
			}
			size = int(binary.BigEndian.Uint64(buf[pos+8:]))
			hdr = 16
		}
		if size < hdr || pos+size > len(buf) {
			return nil, false
		}
		if typ == want {
			return buf[pos+hdr : pos+size], true
		}
		pos += size
	}
	return nil, false
}
