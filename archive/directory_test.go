package archive

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirArchiveAddEmptyThenCommit(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenDir(dir, ROM, ReadWrite, 0)
	require.NoError(t, err)

	idx, err := a.FileAddEmpty("new.bin")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	require.NoError(t, a.Commit())

	fi, err := os.Stat(filepath.Join(dir, "new.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size())
}

func TestDirArchiveRenameIsZeroCopy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "old.bin"), []byte("data"), 0o644))

	a, err := OpenDir(dir, ROM, ReadWrite, 0)
	require.NoError(t, err)
	require.NoError(t, a.FileRename(0, "new.bin"))
	require.NoError(t, a.Commit())

	_, err = os.Stat(filepath.Join(dir, "old.bin"))
	assert.True(t, os.IsNotExist(err))
	got, err := ioutil.ReadFile(filepath.Join(dir, "new.bin"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestDirArchiveCommitRemovesEmptyDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "game")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "only.bin"), []byte("x"), 0o644))

	a, err := OpenDir(dir, ROM, ReadWrite, 0)
	require.NoError(t, err)
	require.NoError(t, a.FileDelete(0))
	require.NoError(t, a.Commit())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestDirArchiveKeepEmptyFlagPreservesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "game")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "only.bin"), []byte("x"), 0o644))

	a, err := OpenDir(dir, ROM, ReadWrite, KeepEmpty)
	require.NoError(t, err)
	require.NoError(t, a.FileDelete(0))
	require.NoError(t, a.Commit())

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestDirArchiveFileCopyPadsShortDonor(t *testing.T) {
	dir := t.TempDir()
	donorDir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(donorDir, "short.bin"), []byte("ab"), 0o644))

	donor, err := OpenDir(donorDir, ROM, ReadOnly, 0)
	require.NoError(t, err)

	a, err := OpenDir(dir, ROM, ReadWrite, 0)
	require.NoError(t, err)

	_, err = a.FileCopy(-1, donor, 0, "padded.bin", 0, 5)
	require.NoError(t, err)
	require.NoError(t, a.Commit())

	got, err := ioutil.ReadFile(filepath.Join(dir, "padded.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 0, 0, 0}, got)
}

func TestDirArchiveRollbackDiscardsStagedAdd(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenDir(dir, ROM, ReadWrite, 0)
	require.NoError(t, err)

	_, err = a.FileAddEmpty("staged.bin")
	require.NoError(t, err)
	require.NoError(t, a.Rollback())
	assert.Empty(t, a.Files())
}

func TestDirArchiveRollbackRestoresRenamedName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a.bin"), []byte("x"), 0o644))

	a, err := OpenDir(dir, ROM, ReadWrite, 0)
	require.NoError(t, err)

	require.NoError(t, a.FileRename(0, "b.bin"))
	assert.Equal(t, "b.bin", a.Files()[0].Name)

	require.NoError(t, a.Rollback())
	assert.Equal(t, "a.bin", a.Files()[0].Name)

	_, err = os.Stat(filepath.Join(dir, "a.bin"))
	assert.NoError(t, err)
}

func TestDirArchiveNameCollisionRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a.bin"), []byte("x"), 0o644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "b.bin"), []byte("y"), 0o644))

	a, err := OpenDir(dir, ROM, ReadWrite, 0)
	require.NoError(t, err)

	idxA := 0
	if a.Files()[0].Name != "a.bin" {
		idxA = 1
	}

	err = a.FileRename(idxA, "b.bin")
	assert.ErrorIs(t, err, errDirNameCollides)
}
