package gpmf

import (
	"encoding/binary"
	"math"
)

// numericWidth returns the on-disk width of one primitive numeric
// element of type t, or 0 if t has no direct numeric interpretation
// (strings, FourCC, GUID, UTC, XML, opaque sizes are copied verbatim
// instead of scaled).
func numericWidth(t Type) int {
	switch t {
	case TypeSignedByte, TypeUnsignedByte:
		return 1
	case TypeSignedShort, TypeUnsignedShort:
		return 2
	case TypeFloat, TypeSignedLong, TypeUnsignedLong, TypeUnsignedHex, TypeQ1516:
		return 4
	case TypeDouble, TypeSigned64, TypeUnsigned64, TypeQ3132:
		return 8
	default:
		return 0
	}
}

// decodeNumeric reads one big-endian numeric element of type t at pos
// and returns its value as float64. Q15.16 and Q31.32 are fixed-point:
// divide the signed integer by 2^16 / 2^32 respectively.
func decodeNumeric(raw []byte, pos int, t Type) float64 {
	switch t {
	case TypeSignedByte:
		return float64(int8(raw[pos]))
	case TypeUnsignedByte:
		return float64(raw[pos])
	case TypeSignedShort:
		return float64(int16(binary.BigEndian.Uint16(raw[pos:])))
	case TypeUnsignedShort:
		return float64(binary.BigEndian.Uint16(raw[pos:]))
	case TypeSignedLong:
		return float64(int32(binary.BigEndian.Uint32(raw[pos:])))
	case TypeUnsignedLong, TypeUnsignedHex:
		return float64(binary.BigEndian.Uint32(raw[pos:]))
	case TypeFloat:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw[pos:])))
	case TypeSigned64:
		return float64(int64(binary.BigEndian.Uint64(raw[pos:])))
	case TypeUnsigned64:
		return float64(binary.BigEndian.Uint64(raw[pos:]))
	case TypeDouble:
		return math.Float64frombits(binary.BigEndian.Uint64(raw[pos:]))
	case TypeQ1516:
		return float64(int32(binary.BigEndian.Uint32(raw[pos:]))) / 65536.0
	case TypeQ3132:
		return float64(int64(binary.BigEndian.Uint64(raw[pos:]))) / 4294967296.0
	default:
		return 0
	}
}

// elementsInStruct returns struct_size / size_of_type(type) for a
// primitive leaf, or struct_size / size_of_complex(descriptor) when a
// sibling TYPE descriptor is present.
func elementsInStruct(t Type, structSize int, complex *ComplexDescriptor) int {
	if complex != nil && complex.Size > 0 {
		return structSize / complex.Size
	}
	w := sizeOfType(t)
	if w == 0 {
		return 0
	}
	return structSize / w
}

// formattedDataSize is the byte size of count element-groups of a
// record, unscaled: count * struct_size.
func formattedDataSize(structSize, count int) int {
	return structSize * count
}

// formattedData copies count element-groups starting at offset,
// converting each numeric component from the on-disk big-endian
// encoding to the host's native byte order. Non-numeric types (string,
// FourCC, GUID, UTC, XML, opaque, complex without a usable descriptor)
// are copied verbatim. For a complex record, fields that lie past the end
// of raw are left zero.
func formattedData(raw []byte, t Type, structSize, offset, count int, complex *ComplexDescriptor) []byte {
	out := make([]byte, structSize*count)
	if complex != nil && len(complex.Fields) > 0 {
		formatComplex(raw, out, structSize, offset, count, complex)
		return out
	}
	w := numericWidth(t)
	if w == 0 {
		copy(out, raw[structSize*offset:structSize*offset+len(out)])
		return out
	}
	elems := structSize / w
	floatLike := isFloatLike(t)
	for i := 0; i < count*elems; i++ {
		src := offset*structSize + i*w
		v := decodeNumeric(raw, src, t)
		writeNative(out[i*w:], v, w, floatLike)
	}
	return out
}

func formatComplex(raw, out []byte, structSize, offset, count int, cx *ComplexDescriptor) {
	srcPos := offset * structSize
	dstPos := 0
	for g := 0; g < count; g++ {
		for _, ft := range cx.Fields {
			if srcPos+sizeOfType(ft) > len(raw) {
				return
			}
			w := numericWidth(ft)
			if w == 0 {
				w = sizeOfType(ft)
				copy(out[dstPos:dstPos+w], raw[srcPos:srcPos+w])
			} else {
				v := decodeNumeric(raw, srcPos, ft)
				writeNative(out[dstPos:], v, w, isFloatLike(ft))
			}
			srcPos += w
			dstPos += w
		}
	}
}

// isFloatLike reports whether type t's decoded numeric value should be
// stored as an IEEE-754 bit pattern rather than a truncated integer.
// Q15.16 and Q31.32 are fixed-point on disk but decodeNumeric already
// divides them into a plain float value, so they round-trip as floats
// from here on, same as FLOAT/DOUBLE.
func isFloatLike(t Type) bool {
	switch t {
	case TypeFloat, TypeDouble, TypeQ1516, TypeQ3132:
		return true
	default:
		return false
	}
}

func writeNative(dst []byte, v float64, width int, floatLike bool) {
	switch width {
	case 1:
		dst[0] = byte(int64(v))
	case 2:
		binary.NativeEndian.PutUint16(dst, uint16(int64(v)))
	case 4:
		if floatLike {
			binary.NativeEndian.PutUint32(dst, math.Float32bits(float32(v)))
		} else {
			binary.NativeEndian.PutUint32(dst, uint32(int64(v)))
		}
	case 8:
		if floatLike {
			binary.NativeEndian.PutUint64(dst, math.Float64bits(v))
		} else {
			binary.NativeEndian.PutUint64(dst, uint64(int64(v)))
		}
	}
}

// scaledDataSize is the byte size of count element-groups once scaled
// and reinterpreted as dstType (float32 by default, float64 for keys
// such as GPS5 that need the extra precision).
func scaledDataSize(dstType Type, elemsPerStruct, count int) int {
	return numericWidth(dstType) * elemsPerStruct * count
}

// scaledData copies count element-groups starting at offset, dividing
// each numeric component by its corresponding SCAL divisor (broadcast
// if SCAL has one element, else per-element) and reinterpreting the
// result as dstType.
func scaledData(raw []byte, t Type, structSize, offset, count int, scale []float64, dstType Type, complex *ComplexDescriptor) []byte {
	dstWidth := numericWidth(dstType)
	if dstWidth == 0 {
		dstWidth = 4
	}
	if complex != nil && len(complex.Fields) > 0 {
		elems := len(complex.Fields)
		out := make([]byte, dstWidth*elems*count)
		srcPos := offset * structSize
		dstPos := 0
		for g := 0; g < count; g++ {
			for i, ft := range complex.Fields {
				w := numericWidth(ft)
				v := decodeNumeric(raw, srcPos, ft)
				v = applyScale(v, scale, i)
				writeNative(out[dstPos:], v, dstWidth, true)
				srcPos += w
				dstPos += dstWidth
			}
		}
		return out
	}

	w := numericWidth(t)
	if w == 0 {
		w = structSize
	}
	elems := structSize / w
	if elems == 0 {
		elems = 1
	}
	out := make([]byte, dstWidth*elems*count)
	for i := 0; i < count*elems; i++ {
		src := offset*structSize + i*w
		v := decodeNumeric(raw, src, t)
		v = applyScale(v, scale, i%elems)
		writeNative(out[i*dstWidth:], v, dstWidth, true)
	}
	return out
}

func applyScale(v float64, scale []float64, idx int) float64 {
	if len(scale) == 0 {
		return v
	}
	if len(scale) == 1 {
		return v / scale[0]
	}
	if idx < len(scale) {
		return v / scale[idx]
	}
	return v
}
