package catalog

import (
	"strings"
	"testing"

	"github.com/bodgit/ckmame/ckerr"
	"github.com/bodgit/ckmame/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestParentResolution(t *testing.T) {
	const dat = `
emulator (
	name "testmame"
	version "0.250"
)
game (
	name parent
	description "Parent Game"
	rom ( name "a.bin" size 1024 crc deadbeef )
)
game (
	name child
	description "Child Game (clone)"
	romof parent
	rom ( name "a.bin" size 1024 crc deadbeef )
)
`
	res, err := Ingest(strings.NewReader(dat))
	require.NoError(t, err)
	require.Empty(t, res.Dangling)
	require.Len(t, res.Games, 2)

	assert.Equal(t, "testmame", res.Prog.Name)

	byName := map[string]int{}
	for i, g := range res.Games {
		byName[g.Name] = i
	}

	parent := res.Games[byName["parent"]]
	child := res.Games[byName["child"]]

	assert.Equal(t, []string{"child"}, parent.ROM.Clones)
	assert.Equal(t, file.InParent, child.ROM.Files[0].Where)
}

func TestSelfParentClearsToRoot(t *testing.T) {
	const dat = `
game (
	name loopy
	romof loopy
	rom ( name "a.bin" size 1 crc 00000000 )
)
`
	res, err := Ingest(strings.NewReader(dat))
	require.NoError(t, err)
	require.Len(t, res.Games, 1)
	assert.Equal(t, "", res.Games[0].ROM.ParentName)
}

func TestDanglingParentReported(t *testing.T) {
	const dat = `
game (
	name orphan
	romof nonexistent
	rom ( name "a.bin" size 1 crc 00000000 )
)
`
	res, err := Ingest(strings.NewReader(dat))
	require.NoError(t, err)
	assert.Equal(t, []string{"nonexistent"}, res.Dangling)
	assert.Equal(t, file.InZip, res.Games[0].ROM.Files[0].Where)
}

func TestROMDeduplicationAlternateName(t *testing.T) {
	const dat = `
game (
	name g
	rom ( name "a.bin" merge "m.bin" size 1024 crc deadbeef )
	rom ( name "b.bin" merge "m.bin" size 1024 crc deadbeef )
	rom ( name "a.bin" size 1024 crc deadbeef )
)
`
	res, err := Ingest(strings.NewReader(dat))
	require.NoError(t, err)
	require.Len(t, res.Games, 1)
	files := res.Games[0].ROM.Files
	require.Len(t, files, 1)
	assert.Equal(t, "a.bin", files[0].Name)
	assert.Equal(t, []string{"b.bin"}, files[0].Alternates)
}

func TestUnterminatedGameBlockWarns(t *testing.T) {
	const dat = `
game (
	name truncated
	rom ( name "a.bin" size 1 crc 00000000 )
`
	res, err := Ingest(strings.NewReader(dat))
	require.NoError(t, err)
	require.Len(t, res.Games, 1)
	assert.NotEmpty(t, res.Warnings)
}

func TestOverlongLineIsSkippedNotFatal(t *testing.T) {
	long := strings.Repeat("x", maxLineLength+1)
	dat := "game (\n" +
		"\tname before\n" +
		"\tdescription \"" + long + "\"\n" +
		"\trom ( name \"a.bin\" size 1 crc 00000000 )\n" +
		")\n" +
		"game (\n" +
		"\tname after\n" +
		"\trom ( name \"b.bin\" size 1 crc 00000000 )\n" +
		")\n"

	res, err := Ingest(strings.NewReader(dat))
	require.NoError(t, err)
	require.Len(t, res.Games, 2, "parsing must resume after the overlong line, not stop dead")

	byName := map[string]int{}
	for i, g := range res.Games {
		byName[g.Name] = i
	}
	assert.Empty(t, res.Games[byName["before"]].Description, "the overlong description line itself was skipped")
	require.Len(t, res.Games[byName["after"]].ROM.Files, 1, "content after the overlong line must still be parsed")

	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "8 KiB") {
			found = true
		}
	}
	assert.True(t, found, "expected a warning naming the skipped overlong line")
}

func TestDuplicateGameNameIsFatal(t *testing.T) {
	const dat = `
game (
	name dup
)
game (
	name dup
)
`
	_, err := Ingest(strings.NewReader(dat))
	require.Error(t, err)
	kind, ok := ckerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ckerr.Def, kind)
}
