package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return Open(store)
}

func TestGameRoundTrip(t *testing.T) {
	db := openTestDB(t)

	a := &game.Game{Name: "a", Description: "Game A"}
	a.ROM.Files = []file.Descriptor{{Name: "a.bin", Size: 1024}}
	a.ROM.Files[0].Hashes.SetHex(0, "deadbeef")
	a.ROM.Clones = []string{"b"}

	b := &game.Game{Name: "b", Description: "Game B (clone of A)"}
	b.ROM.ParentName = "a"
	b.ROM.Files = []file.Descriptor{{Name: "a.bin", Size: 1024, Where: file.InParent}}

	require.NoError(t, db.PutGames([]*game.Game{a, b}))

	list, err := db.ListGames()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, list)

	got, err := db.GetGame("b")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ROM.ParentName)
	assert.Equal(t, file.InParent, got.ROM.Files[0].Where)

	gotA, err := db.GetGame("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, gotA.ROM.Clones)
	h, ok := gotA.ROM.Files[0].Hashes.Get(0)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", hexString(h))
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

func TestProgAndDat(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SetProg(Prog{Name: "MAME", Version: "0.250"}))
	p, err := db.Prog()
	require.NoError(t, err)
	assert.Equal(t, "MAME", p.Name)
	assert.Equal(t, "0.250", p.Version)

	entries := []DatEntry{{Name: "mame.dat", Description: "MAME", Version: "0.250"}}
	require.NoError(t, db.SetDatEntries(entries))
	got, err := db.DatEntries()
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestListByKind(t *testing.T) {
	db := openTestDB(t)

	g := &game.Game{Name: "g"}
	g.Sample.Files = []file.Descriptor{{Name: "s.wav"}}
	g.Disks = []game.Disk{{Name: "disk1"}}

	plain := &game.Game{Name: "plain"}

	require.NoError(t, db.PutGames([]*game.Game{g, plain}))

	samples, err := db.ListByKind(KindSample)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, samples)

	disks, err := db.ListByKind(KindDisk)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, disks)
}

func TestDetectorAbsent(t *testing.T) {
	db := openTestDB(t)
	name, blob, err := db.Detector()
	require.NoError(t, err)
	assert.Equal(t, "", name)
	assert.Nil(t, blob)
}
