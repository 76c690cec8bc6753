package gpmf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func record(key string, typ byte, structSize int, repeat int, payload []byte) []byte {
	hdr := make([]byte, 8)
	copy(hdr[0:4], key)
	hdr[4] = typ
	hdr[5] = byte(structSize)
	binary.BigEndian.PutUint16(hdr[6:8], uint16(repeat))
	body := make([]byte, len(payload))
	copy(body, payload)
	if pad := (4 - len(body)%4) % 4; pad != 0 {
		body = append(body, make([]byte, pad)...)
	}
	return append(hdr, body...)
}

func nest(key string, children ...[]byte) []byte {
	var body []byte
	for _, c := range children {
		body = append(body, c...)
	}
	return record(key, byte(TypeNest), 1, len(body), body)
}

func concatAll(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestReaderWalksSiblingsAndNests(t *testing.T) {
	buf := nest("DEVC",
		record("DVID", byte(TypeUnsignedLong), 4, 1, []byte{0, 0, 0, 7}),
		record("STMP", byte(TypeUnsigned64), 8, 1, make([]byte, 8)),
	)

	r := NewReader(buf)
	ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "DEVC", r.Key().String())
	require.True(t, r.Type().IsNest())

	r.Enter()
	ok, err = r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "DVID", r.Key().String())

	ok, err = r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "STMP", r.Key().String())

	ok, err = r.Next()
	require.NoError(t, err)
	require.False(t, ok)
	r.Exit()

	ok, err = r.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

// Invariant 2: repeat == 0 with a COMPLEX type normalizes to 1.
func TestRepeatNormalizesComplexZero(t *testing.T) {
	buf := record("ABC1", byte(TypeComplex), 4, 0, nil)
	r := NewReader(buf)
	ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(1), r.Repeat())
}

func TestPayloadSampleCountSubtractsEmpt(t *testing.T) {
	buf := concatAll(
		record("ACCL", byte(TypeSignedShort), 6, 10, make([]byte, 60)),
		record("EMPT", byte(TypeUnsignedLong), 4, 1, []byte{0, 0, 0, 3}),
	)
	r := NewReader(buf)
	ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ACCL", r.Key().String())
	require.Equal(t, 7, r.PayloadSampleCount())
}

// Tolerant mode skips exactly one malformed (all-zero) header before
// giving up; a second consecutive malformed header fails BadStructure.
func TestNextRecursiveTolerantSkipsOneMalformedRecord(t *testing.T) {
	good := record("ACCL", byte(TypeSignedShort), 2, 1, []byte{0, 1})
	buf := concatAll(make([]byte, 8), good)

	r := NewReader(buf)
	ok, err := r.NextRecursive(true)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ACCL", r.Key().String())
}

func TestFindSiblingLocatesPrecedingDescriptor(t *testing.T) {
	buf := concatAll(
		record("SCAL", byte(TypeSignedLong), 4, 1, []byte{0, 0, 0, 10}),
		record("ACCL", byte(TypeSignedLong), 4, 1, []byte{0, 0, 0, 20}),
	)
	r := NewReader(buf)
	ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ACCL", r.Key().String())

	sib, found := r.FindSibling(KeyScale)
	require.True(t, found)
	require.Equal(t, "SCAL", sib.Key().String())
}
