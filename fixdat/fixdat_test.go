package fixdat

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bodgit/ckmame/check"
	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/hashes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSkipsGamesWithNothingMissing(t *testing.T) {
	checksByGame := map[string][]check.FileCheck{
		"complete": {{Result: check.OK, Expected: file.Descriptor{Name: "a.bin"}}},
		"broken":   {{Result: check.Missing, Expected: file.Descriptor{Name: "b.bin", Size: 10}}},
	}

	d := Build("myset", "My ROM set", []string{"complete", "broken"}, checksByGame)
	require.Len(t, d.Games, 1)
	assert.Equal(t, "broken", d.Games[0].Name)
	require.Len(t, d.Games[0].ROMs, 1)
	assert.Equal(t, "b.bin", d.Games[0].ROMs[0].Name)
	assert.Equal(t, uint64(10), d.Games[0].ROMs[0].Size)
}

func TestWriteProducesValidXML(t *testing.T) {
	var h hashes.Set
	require.NoError(t, h.SetHex(hashes.CRC32, "deadbeef"))

	d := Datafile{
		Header: Header{Name: "fix_myset", Description: "fixdat"},
		Games: []Game{{
			Name: "game1",
			ROMs: []ROM{{Name: "rom1.bin", Size: 4, CRC: h.Hex(hashes.CRC32)}},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, d))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<game name="game1">`)
	assert.Contains(t, out, `crc="deadbeef"`)
}
