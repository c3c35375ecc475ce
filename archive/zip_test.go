package archive

import (
	"archive/zip"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/hashes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestOpenZipPopulatesCRC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.zip")
	writeZip(t, path, map[string]string{"a.bin": "hello"})

	a, err := OpenZip(path, ROM, ReadOnly, 0)
	require.NoError(t, err)
	defer a.Close()

	files := a.Files()
	require.Len(t, files, 1)
	assert.True(t, files[0].Hashes.Has(hashes.CRC32))
}

func TestZipArchiveRenameThenCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.zip")
	writeZip(t, path, map[string]string{"wrong.bin": "hello"})

	a, err := OpenZip(path, ROM, ReadWrite, 0)
	require.NoError(t, err)

	require.NoError(t, a.FileRename(0, "right.bin"))
	require.NoError(t, a.Commit())
	require.NoError(t, a.Close())

	reopened, err := OpenZip(path, ROM, ReadOnly, 0)
	require.NoError(t, err)
	defer reopened.Close()

	files := reopened.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "right.bin", files[0].Name)
}

func TestZipArchiveDeleteAllCollapsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.zip")
	writeZip(t, path, map[string]string{"only.bin": "hello"})

	a, err := OpenZip(path, ROM, ReadWrite, 0)
	require.NoError(t, err)
	require.NoError(t, a.FileDelete(0))
	require.NoError(t, a.Commit())
	require.NoError(t, a.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestZipArchiveCopyFromDonor(t *testing.T) {
	donorPath := filepath.Join(t.TempDir(), "donor.zip")
	writeZip(t, donorPath, map[string]string{"c.bin": "payload"})

	targetPath := filepath.Join(t.TempDir(), "target.zip")

	donor, err := OpenZip(donorPath, ROM, ReadOnly, 0)
	require.NoError(t, err)
	defer donor.Close()

	a, err := OpenZip(targetPath, ROM, ReadWrite, 0)
	require.NoError(t, err)

	_, err = a.FileCopy(-1, donor, 0, "c.bin", 0, -1)
	require.NoError(t, err)
	require.NoError(t, a.Commit())
	require.NoError(t, a.Close())

	reopened, err := OpenZip(targetPath, ROM, ReadOnly, 0)
	require.NoError(t, err)
	defer reopened.Close()

	rc, err := reopened.FileOpen(0)
	require.NoError(t, err)
	defer rc.Close()
	got, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestZipArchiveIntegrityCheckMarksBrokenOnBadData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "bad.bin", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte("original"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	corrupt(t, path, "original", "tampered")

	a, err := OpenZip(path, ROM, ReadOnly, IntegrityCheck)
	require.NoError(t, err)
	defer a.Close()

	files := a.Files()
	require.Len(t, files, 1)
	assert.Equal(t, file.Broken, files[0].Status)
}

// corrupt flips bytes in a stored (uncompressed) zip entry's data
// without touching its header, so the entry's declared CRC-32 no
// longer matches its content.
func corrupt(t *testing.T, path, from, to string) {
	t.Helper()
	require.Equal(t, len(from), len(to))

	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	idx := indexOf(b, []byte(from))
	require.GreaterOrEqual(t, idx, 0)
	copy(b[idx:idx+len(to)], to)

	require.NoError(t, ioutil.WriteFile(path, b, 0o644))
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
