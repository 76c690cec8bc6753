package gpmf

import "encoding/binary"

const maxDepth = 16

type frame struct {
	returnPos      int
	end            int
	prevLevelStart int
}

// Reader is a cursor over an immutable KLV byte buffer. It carries the
// current offset, the current nest level's bound, and the last-read
// header. A Reader value is cheap to copy — copying forks the walker
// without disturbing the original, used to look up a sibling record
// without losing the caller's position.
type Reader struct {
	buf []byte
	pos int
	end int

	key        FourCC
	typ        Type
	structSize uint8
	repeat     uint16
	dataStart  int
	dataEnd    int
	valid      bool

	stack          [maxDepth]frame
	depth          int
	pendingDescend bool
	autoDepth      int
	curLevelStart  int
}

// NewReader positions a Reader at the start of buf. It does not itself
// validate the first header; call Next to do that.
func NewReader(buf []byte) Reader {
	return Reader{buf: buf, end: len(buf)}
}

// Fork returns an independent copy of the reader at its current
// position, for sibling lookups that must not disturb the caller.
func (r *Reader) Fork() Reader {
	return *r
}

// Key returns the current record's FourCC.
func (r *Reader) Key() FourCC { return r.key }

// Type returns the current record's type tag.
func (r *Reader) Type() Type { return r.typ }

// StructSize returns the current record's struct_size field.
func (r *Reader) StructSize() uint8 { return r.structSize }

// Repeat returns the current record's repeat field, normalized per
// invariant 2: repeat == 0 with a COMPLEX type is reported as 1.
func (r *Reader) Repeat() uint16 {
	if r.repeat == 0 && r.typ.IsComplex() {
		return 1
	}
	return r.repeat
}

// NestLevel returns the current depth, 0 at the top level.
func (r *Reader) NestLevel() int { return r.depth }

// PayloadSampleCount returns the current record's repeat count adjusted
// for a sibling EMPT record, if present: repeat - empt_adjust, per
// spec.md §4.1. EMPT drops trailing padding from a payload's count; it
// never changes how many Samples the assembler actually emits (invariant
// 3 reserves that adjustment for rate inference alone).
func (r *Reader) PayloadSampleCount() int {
	return int(r.Repeat()) - r.emptyAdjust()
}

// emptyAdjust returns the current record's sibling EMPT count, or 0.
func (r *Reader) emptyAdjust() int {
	sib, ok := r.FindSibling(KeyEmpty)
	if !ok {
		return 0
	}
	return int(decodeU32(sib.RawData()))
}

// RawData returns the current record's payload bytes (unexpanded,
// still network byte order).
func (r *Reader) RawData() []byte {
	n := int(r.structSize) * int(r.Repeat())
	if n > r.dataEnd-r.dataStart {
		n = r.dataEnd - r.dataStart
	}
	return r.buf[r.dataStart : r.dataStart+n]
}

// Next advances to the next sibling record at the current level.
func (r *Reader) next(tolerant bool) (bool, error) {
	malformed := 0
	for {
		if r.end-r.pos < 8 {
			if r.pos >= r.end {
				return false, nil
			}
			return false, errKind(KindBufferEnd)
		}
		key := FourCC{r.buf[r.pos], r.buf[r.pos+1], r.buf[r.pos+2], r.buf[r.pos+3]}
		typ := Type(r.buf[r.pos+4])
		structSize := r.buf[r.pos+5]
		repeat := binary.BigEndian.Uint16(r.buf[r.pos+6:])

		if structSize == 0 && repeat == 0 && typ == 0 && key == (FourCC{}) {
			// Degenerate header: an all-zero, zero-length record. Tolerate
			// one by skipping the full 8-byte header it occupies.
			malformed++
			if !tolerant || malformed > 1 {
				return false, errKind(KindBadStructure)
			}
			r.pos += 8
			continue
		}

		dataLen := int(structSize) * int(repeat)
		padded := (dataLen + 3) &^ 3
		dataStart := r.pos + 8
		dataEnd := dataStart + padded
		if dataEnd > r.end {
			return false, errKind(KindBadStructure)
		}

		r.key = key
		r.typ = typ
		r.structSize = structSize
		r.repeat = repeat
		r.dataStart = dataStart
		r.dataEnd = dataEnd
		r.valid = true
		r.pos = dataEnd
		return true, nil
	}
}

// Next advances to the next sibling record at the current level,
// reporting false (with a nil error) at the end of the level.
func (r *Reader) Next() (bool, error) {
	return r.next(false)
}

// NextRecursive performs a depth-first walk, descending into nests as
// they are encountered (GPMF_RECURSE_LEVELS in the original). Tolerant
// enables single-malformed-record recovery at every level.
func (r *Reader) NextRecursive(tolerant bool) (bool, error) {
	if r.pendingDescend {
		if r.depth >= maxDepth {
			return false, errKind(KindBadStructure)
		}
		r.Enter()
		r.autoDepth++
		r.pendingDescend = false
	}
	for {
		ok, err := r.next(tolerant)
		if err != nil {
			return false, err
		}
		if ok {
			if r.typ == TypeNest {
				r.pendingDescend = true
			}
			return true, nil
		}
		if r.autoDepth == 0 {
			return false, nil
		}
		r.Exit()
		r.autoDepth--
	}
}

// Enter descends into the current record's payload as a nest of child
// records. It does not check that the reader is positioned on a record;
// callers call Enter after a successful Next. Panics when nesting would
// exceed maxDepth; NextRecursive checks the depth first and reports
// KindBadStructure instead, so only a direct caller can trigger it.
func (r *Reader) Enter() {
	if r.depth >= maxDepth {
		panic("gpmf: nest depth exceeds maxDepth")
	}
	r.stack[r.depth] = frame{returnPos: r.pos, end: r.end, prevLevelStart: r.curLevelStart}
	r.depth++
	r.pos = r.dataStart
	r.end = r.dataEnd
	r.curLevelStart = r.dataStart
}

// Exit returns to the sibling level the matching Enter was called from.
func (r *Reader) Exit() {
	if r.depth == 0 {
		panic("gpmf: Exit without matching Enter")
	}
	r.depth--
	f := r.stack[r.depth]
	r.pos = f.returnPos
	r.end = f.end
	r.curLevelStart = f.prevLevelStart
}

// FindNext scans forward from the current position at the current
// level for a record with the given key, leaving the reader positioned
// on it. It never descends into nests.
func (r *Reader) FindNext(key FourCC) (bool, error) {
	for {
		ok, err := r.next(false)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if r.key == key {
			return true, nil
		}
	}
}

// FindPrev scans the current level from its start up to (but not
// including) the reader's entry position for the last record with the
// given key — used to look up sibling descriptors (TYPE, SCAL, TSMP,
// STMP, DVID, DVNM) that precede the record currently being decoded.
func (r *Reader) FindPrev(key FourCC) (Reader, bool) {
	scan := Reader{buf: r.buf, pos: r.levelStart(), end: r.pos}
	var found Reader
	ok := false
	for {
		n, err := scan.next(false)
		if err != nil || !n {
			break
		}
		if scan.key == key {
			found = scan
			ok = true
		}
	}
	return found, ok
}

// levelStart returns the offset the current level began at.
func (r *Reader) levelStart() int {
	return r.curLevelStart
}

// FindSibling scans the whole current level — both before and after the
// reader's entry position — for a record with the given key. Sibling
// descriptors (TYPE, SCAL, TSMP, STMP) are expected to appear at most
// once per level, so direction doesn't matter; this is simpler and more
// robust than a strictly-backward scan for that lookup.
func (r *Reader) FindSibling(key FourCC) (Reader, bool) {
	scan := Reader{buf: r.buf, pos: r.levelStart(), end: r.end}
	var found Reader
	ok := false
	for {
		n, err := scan.next(false)
		if err != nil || !n {
			break
		}
		if scan.key == key {
			found = scan
			ok = true
		}
	}
	return found, ok
}
