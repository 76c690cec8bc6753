package gpmf

// ComplexDescriptor is the expanded form of a sibling TYPE record: one
// Type per field of a COMPLEX-tagged struct, plus the total byte width.
type ComplexDescriptor struct {
	Fields []Type
	Size   int
}

// parseComplexDescriptor walks a TYPE sibling's string, one character
// per field, the way the original's complex-type expansion does —
// summing each character's primitive size and failing (size 0) on any
// unrecognized tag.
func parseComplexDescriptor(s []byte) ComplexDescriptor {
	d := ComplexDescriptor{Fields: make([]Type, 0, len(s))}
	for _, c := range s {
		t := Type(c)
		sz := sizeOfType(t)
		if sz == 0 {
			return ComplexDescriptor{}
		}
		d.Fields = append(d.Fields, t)
		d.Size += sz
	}
	return d
}

// sizeOfComplex returns the total byte width described by a TYPE
// sibling's descriptor string, or 0 if the descriptor is malformed.
func sizeOfComplex(s []byte) int {
	return parseComplexDescriptor(s).Size
}
