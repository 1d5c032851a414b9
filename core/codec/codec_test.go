package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedIntRoundTrip(t *testing.T) {
	e := NewEncoder(0)
	e.WriteU8(0xAB)
	e.WriteU16(0xBEEF)
	e.WriteU32(0xDEADBEEF)
	e.WriteU64(0x0123456789ABCDEF)
	e.WriteI32(-12345)
	e.WriteI64(-9223372036854775808)

	d := NewDecoder(e.Bytes())

	u8, err := d.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), u8)

	u16, err := d.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), u16)

	u32, err := d.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := d.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789ABCDEF), u64)

	i32, err := d.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(-12345), i32)

	i64, err := d.ReadI64()
	require.NoError(t, err)
	assert.Equal(t, int64(-9223372036854775808), i64)

	assert.True(t, d.Done())
}

func TestVarintBoundary(t *testing.T) {
	e250 := NewEncoder(0)
	e250.WriteVarintU32(250)
	assert.Len(t, e250.Bytes(), 1)
	assert.Equal(t, byte(250), e250.Bytes()[0])

	e251 := NewEncoder(0)
	e251.WriteVarintU32(251)
	assert.Len(t, e251.Bytes(), 5)
	assert.Equal(t, byte(0xFB), e251.Bytes()[0])
}

func TestVarintWireExactness(t *testing.T) {
	e5 := NewEncoder(0)
	e5.WriteVarintU32(5)
	assert.Equal(t, []byte{0x05}, e5.Bytes())

	e300 := NewEncoder(0)
	e300.WriteVarintU32(300)
	assert.Equal(t, []byte{0xFB, 0x2C, 0x01, 0x00, 0x00}, e300.Bytes())
}

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 250, 251, 252, 300, 65535, 1 << 20, 0xFFFFFFFF} {
		e := NewEncoder(0)
		e.WriteVarintU32(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadVarintU32()
		require.NoError(t, err)
		assert.Equal(t, v, got, "round trip of %d", v)
		assert.True(t, d.Done())
	}
}

func TestVarintForwardCompatSentinels(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want uint32
	}{
		{"u16-compat", []byte{0xFC, 0x34, 0x12}, 0x1234},
		{"u32-compat", []byte{0xFD, 0x04, 0x03, 0x02, 0x01}, 0x01020304},
		{"u64-compat-small", []byte{0xFE, 0x2A, 0, 0, 0, 0, 0, 0, 0}, 42},
		{"u128-compat-small", []byte{0xFF, 0x2A, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 42},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecoder(tc.buf)
			got, err := d.ReadVarintU32()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestVarintOverflowRejected(t *testing.T) {
	// u64-compat carrying a value above u32 range must be rejected.
	buf := []byte{0xFE, 0, 0, 0, 0, 1, 0, 0, 0}
	d := NewDecoder(buf)
	_, err := d.ReadVarintU32()
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "hello", "unicode: 日本語 ✅"} {
		e := NewEncoder(0)
		e.WriteString(s)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadString()
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestStringTruncatedInput(t *testing.T) {
	e := NewEncoder(0)
	e.WriteString("truncate me")
	truncated := e.Bytes()[:len(e.Bytes())-3]
	d := NewDecoder(truncated)
	_, err := d.ReadString()
	assert.Error(t, err)
}

func TestStringInvalidUTF8(t *testing.T) {
	e := NewEncoder(0)
	e.WriteU64(3)
	e.WriteBytes([]byte{0xff, 0xfe, 0xfd})
	d := NewDecoder(e.Bytes())
	_, err := d.ReadString()
	assert.Error(t, err)
}

func TestOptionStringRoundTrip(t *testing.T) {
	e := NewEncoder(0)
	s := "present"
	e.WriteOptionString(&s)
	e.WriteOptionString(nil)

	d := NewDecoder(e.Bytes())
	got, err := d.ReadOptionString()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "present", *got)

	got2, err := d.ReadOptionString()
	require.NoError(t, err)
	assert.Nil(t, got2)
}

func TestOptionTagRejectsInvalidValue(t *testing.T) {
	d := NewDecoder([]byte{2})
	_, err := d.ReadOptionTag()
	assert.Error(t, err)
}

func TestStringPairSeqRoundTrip(t *testing.T) {
	pairs := [][2]string{{"k1", "v1"}, {"k2", "v2"}, {"empty", ""}}
	e := NewEncoder(0)
	e.WriteStringPairSeq(pairs)

	d := NewDecoder(e.Bytes())
	got, err := d.ReadStringPairSeq()
	require.NoError(t, err)
	assert.Equal(t, pairs, got)
}

func TestDateTimeRoundTrip(t *testing.T) {
	cases := []DateTime{
		{Secs: 0, Nsecs: 0},
		{Secs: 1700000000, Nsecs: 123456789},
		{Secs: -1, Nsecs: 999999999},
	}
	for _, dt := range cases {
		e := NewEncoder(0)
		e.WriteDateTime(dt)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadDateTime()
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}
}

func TestDateTimeRejectsOutOfRangeNsecs(t *testing.T) {
	e := NewEncoder(0)
	e.WriteI64(0)
	e.WriteU32(1_000_000_000)
	d := NewDecoder(e.Bytes())
	_, err := d.ReadDateTime()
	assert.Error(t, err)
}

func TestFromUnixMillisFlooredDivision(t *testing.T) {
	cases := []struct {
		ms   int64
		secs int64
		ns   uint32
	}{
		{0, 0, 0},
		{1500, 1, 500_000_000},
		{-1500, -2, 500_000_000}, // floored division: -1500/1000 floors to -2, remainder 500ms
		{-1, -1, 999_000_000},
	}
	for _, tc := range cases {
		dt := FromUnixMillis(tc.ms)
		assert.Equal(t, tc.secs, dt.Secs, "ms=%d", tc.ms)
		assert.Equal(t, tc.ns, dt.Nsecs, "ms=%d", tc.ms)
		require.NoError(t, dt.Validate())
	}
}
