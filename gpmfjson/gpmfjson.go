// Package gpmfjson renders an assembled timeline as the nested JSON
// document external tools consume: one object per device, keyed by
// timestamp (or "GLOBAL" for samples with no per-frame timing), holding
// one object per FourCC sample. Grounded on
// GPMFAssetTrackTimeline::printJsonTimeline/Type2String/
// PrintfFormattedData, re-expressed as Go's encoding/json rather than a
// hand-rolled fprintf stream.
package gpmfjson

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/tetsuo/gpmf"
)

// Version is the export format's self-reported version string, the Go
// port's analogue of the original's VER_JSON.
const Version = "1"

// Options controls how much detail Export includes per sample.
type Options struct {
	// Minimal drops sampleSize, elementsInStruct, structSize,
	// sampleRepeat and sampleRate from the output.
	Minimal bool
	// Keys restricts the export to these record keys. Nil exports every
	// key the timeline holds.
	Keys []gpmf.FourCC
}

// Export walks every sample in tl and returns the JSON document described
// above. keys restricts the export to those FourCCs; pass nil (or set
// opts.Keys instead) to export every key the timeline holds.
func Export(tl *gpmf.Timeline, keys []gpmf.FourCC, opts Options) ([]byte, error) {
	root := map[string]interface{}{"VERSION": Version}

	if keys == nil {
		keys = opts.Keys
	}
	if keys == nil {
		keys = tl.Keys()
	}

	for _, key := range keys {
		count := tl.SampleCount(key)
		for i := 0; i < count; i++ {
			s, ok := tl.Sample(key, i)
			if !ok {
				continue
			}
			device, ok := root[s.DeviceName].(map[string]interface{})
			if !ok {
				device = map[string]interface{}{}
				root[s.DeviceName] = device
			}
			bucket := "GLOBAL"
			if !s.Time.Global() {
				bucket = formatTimestamp(s.Time.Seconds())
			}
			slot, ok := device[bucket].(map[string]interface{})
			if !ok {
				slot = map[string]interface{}{}
				device[bucket] = slot
			}
			slot[key.String()] = sampleFields(s, opts)
		}
	}

	return json.MarshalIndent(root, "", "  ")
}

func formatTimestamp(seconds float64) string {
	ms := int64(seconds * 1000)
	msec := ms % 1000
	totalSec := ms / 1000
	sec := totalSec % 60
	totalMin := totalSec / 60
	min := totalMin % 60
	hr := totalMin / 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hr, min, sec, msec)
}

func sampleFields(s gpmf.Sample, opts Options) map[string]interface{} {
	m := map[string]interface{}{}

	if !s.Time.Global() {
		if s.DeviceID == 1 {
			m["deviceID"] = s.DeviceID
		} else if s.DeviceID&0xff != 1 {
			m["sampleDeviceID"] = swappedFourCC(s.DeviceID)
		} else {
			m["deviceID"] = s.DeviceID
		}
		m["sampleDeviceName"] = s.DeviceName

		if !opts.Minimal {
			m["sampleSize"] = s.TypeSize
			m["elementsInStruct"] = s.ElementsInStruct
			m["structSize"] = s.StructSize
			m["sampleRepeat"] = s.Repeat
		}
	}

	if s.STMP != 0 {
		m["sampleSTMP"] = s.STMP
	}
	if s.Rate > 0 && !opts.Minimal {
		m["sampleRate"] = s.Rate
	}

	m["sampleSizeType"] = gpmf.TypeName(s.Type)
	m["sampleBuffer"] = bufferValue(s)
	m["sampleBufferSize"] = len(s.Buffer)
	return m
}

func swappedFourCC(id uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	b[0], b[3] = b[3], b[0]
	b[1], b[2] = b[2], b[1]
	return string(b[:])
}

// bufferValue decodes a sample's buffer into plain JSON values: a bare
// scalar when the buffer holds a single element, an array when it holds
// more, except for string types, which always render as one string.
func bufferValue(s gpmf.Sample) interface{} {
	if s.Type.IsString() {
		return string(trimNUL(s.Buffer))
	}

	scaled := len(s.Scale) > 0
	width := s.TypeSize
	if scaled {
		width = 4
		if s.ComplexType == "" && s.Key.String() == "GPS5" {
			width = 8
		}
	}
	if width == 0 {
		width = 1
	}

	decode := func(b []byte) interface{} {
		return decodeElement(b, s.Type, scaled)
	}

	if s.ComplexType != "" {
		fields := []byte(s.ComplexType)
		values := make([]interface{}, 0, len(fields)*s.Repeat)
		pos := 0
		for g := 0; g < s.Repeat; g++ {
			for _, f := range fields {
				ft := byteType(f)
				w := elementWidth(ft, scaled)
				if pos+w > len(s.Buffer) {
					break
				}
				values = append(values, decodeTyped(s.Buffer[pos:pos+w], ft, scaled))
				pos += w
			}
		}
		if s.Repeat > 1 {
			return values
		}
		if len(values) == 1 {
			return values[0]
		}
		return values
	}

	n := len(s.Buffer) / width
	if n <= 1 {
		if n == 0 {
			return ""
		}
		return decode(s.Buffer[:width])
	}
	bracket := (s.ElementsInStruct > 1 || s.Repeat > 1) &&
		(s.StructSize > 1 || (s.Type != gpmf.TypeStringUTF8 && s.Type != gpmf.TypeASCII))
	values := make([]interface{}, n)
	for i := 0; i < n; i++ {
		values[i] = decode(s.Buffer[i*width : (i+1)*width])
	}
	if !bracket {
		return values[0]
	}
	return values
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

func elementWidth(t gpmf.Type, scaled bool) int {
	if scaled {
		return 4
	}
	return typeWidth(t)
}

func typeWidth(t gpmf.Type) int {
	switch t {
	case gpmf.TypeSignedByte, gpmf.TypeUnsignedByte, gpmf.TypeASCII:
		return 1
	case gpmf.TypeSignedShort, gpmf.TypeUnsignedShort:
		return 2
	case gpmf.TypeFloat, gpmf.TypeFourCC, gpmf.TypeSignedLong, gpmf.TypeUnsignedLong, gpmf.TypeUnsignedHex, gpmf.TypeQ1516:
		return 4
	case gpmf.TypeDouble, gpmf.TypeSigned64, gpmf.TypeUnsigned64, gpmf.TypeQ3132:
		return 8
	default:
		return 1
	}
}

func byteType(c byte) gpmf.Type { return gpmf.Type(c) }

func decodeElement(b []byte, t gpmf.Type, scaled bool) interface{} {
	return decodeTyped(b, t, scaled)
}

func decodeTyped(b []byte, t gpmf.Type, scaled bool) interface{} {
	if scaled {
		switch len(b) {
		case 4:
			return math.Float32frombits(binary.NativeEndian.Uint32(b))
		case 8:
			return math.Float64frombits(binary.NativeEndian.Uint64(b))
		}
	}
	switch t {
	case gpmf.TypeSignedByte:
		return int8(b[0])
	case gpmf.TypeUnsignedByte:
		return b[0]
	case gpmf.TypeSignedShort:
		return int16(binary.NativeEndian.Uint16(b))
	case gpmf.TypeUnsignedShort:
		return binary.NativeEndian.Uint16(b)
	case gpmf.TypeSignedLong:
		return int32(binary.NativeEndian.Uint32(b))
	case gpmf.TypeUnsignedLong, gpmf.TypeUnsignedHex:
		return binary.NativeEndian.Uint32(b)
	case gpmf.TypeFloat, gpmf.TypeQ1516:
		return math.Float32frombits(binary.NativeEndian.Uint32(b))
	case gpmf.TypeDouble, gpmf.TypeQ3132:
		return math.Float64frombits(binary.NativeEndian.Uint64(b))
	case gpmf.TypeSigned64:
		return int64(binary.NativeEndian.Uint64(b))
	case gpmf.TypeUnsigned64:
		return binary.NativeEndian.Uint64(b)
	case gpmf.TypeFourCC:
		return string(b)
	default:
		return fmt.Sprintf("%x", b)
	}
}
