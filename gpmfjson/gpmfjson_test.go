package gpmfjson_test

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetsuo/gpmf"
	"github.com/tetsuo/gpmf/gpmfjson"
	"github.com/tetsuo/gpmf/provider"
)

func fcc(s string) gpmf.FourCC {
	var f gpmf.FourCC
	copy(f[:], s)
	return f
}

func klvRecord(key string, typ byte, structSize, repeat int, payload []byte) []byte {
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

// Concrete scenario 6: one ACCL record, type SIGNED_SHORT, struct_size 6
// (3 fields), repeat 200, in 0.0s / out 1.0s. Expect 200 distinct
// timestamp buckets, each holding one ACCL entry whose decoded buffer is
// a 3-element array.
func TestExportACCLRoundTrip(t *testing.T) {
	const n = 200
	accl := klvRecord("ACCL", 's', 6, n, make([]byte, 6*n))
	buf := provider.NewBuffer([][]byte{accl}, []gpmf.TimeRange{{In: 0, Out: 1}})

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))
	require.Equal(t, n, tl.SampleCount(fcc("ACCL")))

	out, err := gpmfjson.Export(tl, nil, gpmfjson.Options{})
	require.NoError(t, err)

	var root map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &root))
	require.Equal(t, "1", root["VERSION"])

	device, ok := root[""].(map[string]interface{})
	require.True(t, ok, "expected the default (unnamed) device bucket")
	require.Len(t, device, n)

	for _, v := range device {
		slot := v.(map[string]interface{})
		entry, ok := slot["ACCL"].(map[string]interface{})
		require.True(t, ok)
		arr, ok := entry["sampleBuffer"].([]interface{})
		require.True(t, ok, "expected an array sampleBuffer")
		require.Len(t, arr, 3)
		require.Equal(t, float64(6), entry["sampleBufferSize"])
	}
}

func TestExportNilKeysDefaultsToAllTimelineKeys(t *testing.T) {
	gyro := klvRecord("GYRO", 'f', 12, 2, make([]byte, 24))
	accl := klvRecord("ACCL", 's', 6, 2, make([]byte, 12))
	buf := provider.NewBuffer([][]byte{gyro, accl}, []gpmf.TimeRange{{In: 0, Out: 1}, {In: 1, Out: 2}})

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))

	out, err := gpmfjson.Export(tl, nil, gpmfjson.Options{})
	require.NoError(t, err)

	var root map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &root))
	device := root[""].(map[string]interface{})

	var sawGYRO, sawACCL bool
	for _, v := range device {
		slot := v.(map[string]interface{})
		if _, ok := slot["GYRO"]; ok {
			sawGYRO = true
		}
		if _, ok := slot["ACCL"]; ok {
			sawACCL = true
		}
	}
	require.True(t, sawGYRO)
	require.True(t, sawACCL)
}

func TestExportMinimalDropsSizeFields(t *testing.T) {
	gyro := klvRecord("GYRO", 'f', 12, 1, make([]byte, 12))
	buf := provider.NewBuffer([][]byte{gyro}, []gpmf.TimeRange{{In: 0, Out: 1}})

	tl := gpmf.NewTimeline()
	require.NoError(t, tl.Assemble(buf, nil, nil))

	out, err := gpmfjson.Export(tl, []gpmf.FourCC{fcc("GYRO")}, gpmfjson.Options{Minimal: true})
	require.NoError(t, err)

	var root map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &root))
	device := root[""].(map[string]interface{})
	var entry map[string]interface{}
	for _, v := range device {
		slot := v.(map[string]interface{})
		entry = slot["GYRO"].(map[string]interface{})
	}
	require.NotContains(t, entry, "sampleSize")
	require.NotContains(t, entry, "elementsInStruct")
	require.NotContains(t, entry, "structSize")
	require.NotContains(t, entry, "sampleRepeat")
}
