package hashes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetHex(t *testing.T) {
	var s Set
	require.NoError(t, s.SetHex(CRC32, "deadbeef"))
	assert.True(t, s.Has(CRC32))
	assert.False(t, s.Has(MD5))
	assert.Equal(t, "deadbeef", s.Hex(CRC32))
	assert.Equal(t, []Kind{CRC32}, s.KindsPresent())
}

func TestSetWrongLength(t *testing.T) {
	var s Set
	assert.Error(t, s.Set(CRC32, []byte{0x01}))
}

func TestCompareMatch(t *testing.T) {
	var a, b Set
	require.NoError(t, a.SetHex(CRC32, "deadbeef"))
	require.NoError(t, a.SetHex(MD5, "00000000000000000000000000000000"[:32]))
	require.NoError(t, b.SetHex(CRC32, "deadbeef"))

	assert.Equal(t, Match, a.Compare(b))
	assert.Equal(t, Match, b.Compare(a))
}

func TestCompareMismatch(t *testing.T) {
	var a, b Set
	require.NoError(t, a.SetHex(CRC32, "deadbeef"))
	require.NoError(t, b.SetHex(CRC32, "cafebabe"))

	assert.Equal(t, Mismatch, a.Compare(b))
	assert.Equal(t, Mismatch, b.Compare(a))
}

func TestCompareNoCommon(t *testing.T) {
	var a, b Set
	require.NoError(t, a.SetHex(CRC32, "deadbeef"))
	require.NoError(t, b.SetHex(MD5, "0123456789abcdef0123456789abcdef"))

	assert.Equal(t, NoCommon, a.Compare(b))
	assert.Equal(t, NoCommon, b.Compare(a))
}

func TestCRC32LE(t *testing.T) {
	var s Set
	require.NoError(t, s.SetHex(CRC32, "01020304"))
	v, ok := s.CRC32LE()
	require.True(t, ok)
	assert.Equal(t, uint32(0x04030201), v)
}

func TestEmpty(t *testing.T) {
	var s Set
	assert.True(t, s.Empty())
	require.NoError(t, s.SetHex(SHA1, "0123456789abcdef0123456789abcdef01234567"))
	assert.False(t, s.Empty())
}

func TestCovers(t *testing.T) {
	var full, crcOnly, other Set
	require.NoError(t, full.SetHex(CRC32, "deadbeef"))
	require.NoError(t, full.SetHex(MD5, "00000000000000000000000000000000"))
	require.NoError(t, crcOnly.SetHex(CRC32, "deadbeef"))
	require.NoError(t, other.SetHex(MD5, "00000000000000000000000000000000"))

	assert.True(t, full.Covers(crcOnly))
	assert.False(t, crcOnly.Covers(full))
	assert.False(t, crcOnly.Covers(other))
	assert.True(t, crcOnly.Covers(crcOnly))
}
