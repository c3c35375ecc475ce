package hashindex

import (
	"testing"

	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSet(t *testing.T, crcHex string) hashes.Set {
	t.Helper()
	var h hashes.Set
	require.NoError(t, h.SetHex(hashes.CRC32, crcHex))
	return h
}

func TestAddAndLookupByDigest(t *testing.T) {
	x := New()
	ref := Ref{Archive: "set/game.zip", Index: 0, Role: game.ROM, Location: LocationSet}
	x.Add(ref, 4, mustSet(t, "deadbeef"))

	got := x.Lookup(mustSet(t, "deadbeef"))
	require.Len(t, got, 1)
	assert.Equal(t, ref, got[0])

	assert.Empty(t, x.Lookup(mustSet(t, "00000000")))
}

func TestLookupSizeCRCFallback(t *testing.T) {
	x := New()
	ref := Ref{Archive: "extra/donor.zip", Index: 2, Role: game.ROM, Location: LocationExtra}
	x.Add(ref, 1024, mustSet(t, "cafef00d"))

	crc, ok := mustSet(t, "cafef00d").Get(hashes.CRC32)
	require.True(t, ok)

	got := x.LookupSizeCRC(1024, crc)
	require.Len(t, got, 1)
	assert.Equal(t, ref, got[0])

	assert.Empty(t, x.LookupSizeCRC(2048, crc))
}

func TestRemoveDropsArchiveReferences(t *testing.T) {
	x := New()
	x.Add(Ref{Archive: "a.zip", Role: game.ROM, Location: LocationSet}, 4, mustSet(t, "deadbeef"))
	x.Add(Ref{Archive: "b.zip", Role: game.ROM, Location: LocationSet}, 4, mustSet(t, "deadbeef"))

	x.Remove("a.zip")

	got := x.Lookup(mustSet(t, "deadbeef"))
	require.Len(t, got, 1)
	assert.Equal(t, "b.zip", got[0].Archive)
}

func TestLocationDistinguishesOldFromSet(t *testing.T) {
	x := New()
	x.Add(Ref{Archive: "old/game.zip", Role: game.ROM, Location: LocationOld}, 4, mustSet(t, "deadbeef"))

	got := x.Lookup(mustSet(t, "deadbeef"))
	require.Len(t, got, 1)
	assert.Equal(t, LocationOld, got[0].Location)
}
