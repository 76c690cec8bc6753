// Package gpmf parses the GoPro Metadata Format: a nested, self-describing
// big-endian KLV (key/length/value) stream embedded in MP4 and JPEG files.
package gpmf

import "fmt"

// FourCC is a four-character record key, stored in the byte order it
// appears in the stream.
type FourCC [4]byte

// String renders the FourCC as its four ASCII characters.
func (f FourCC) String() string {
	return string(f[:])
}

func fourcc(s string) FourCC {
	var f FourCC
	copy(f[:], s)
	return f
}

// Well-known sibling keys read by the parser when decoding a leaf record.
var (
	KeyType         = fourcc("TYPE")
	KeyScale        = fourcc("SCAL")
	KeyTotalSamples = fourcc("TSMP")
	KeySampleStamp  = fourcc("STMP")
	KeyTimeOffset   = fourcc("TIMO")
	KeyDeviceID     = fourcc("DVID")
	KeyDeviceName   = fourcc("DVNM")
	KeyStream       = fourcc("STRM")
	KeyDevice       = fourcc("DEVC")
	KeyEmpty        = fourcc("EMPT")
)

func (f FourCC) GoString() string {
	return fmt.Sprintf("FourCC(%q)", f.String())
}
