package fix

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/bodgit/ckmame/archive"
	"github.com/bodgit/ckmame/check"
	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/hashindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanOrdersInsertsBeforeDeletes(t *testing.T) {
	checks := []check.FileCheck{
		{Result: check.Old, ArchiveIndex: 0},
		{Result: check.NameErr, ArchiveIndex: 1, Expected: file.Descriptor{Name: "a.bin"}},
	}

	items := Plan(checks, Options{})
	require.Len(t, items, 2)
	assert.Equal(t, Rename, items[0].Action)
	assert.Equal(t, Delete, items[1].Action)
}

func TestPlanSkipsOldWhenKeepOldDuplicate(t *testing.T) {
	checks := []check.FileCheck{{Result: check.Old, ArchiveIndex: 0}}
	items := Plan(checks, Options{KeepOldDuplicate: true})
	assert.Empty(t, items)
}

func TestPlanMarksExtraDonorForDeletionWhenRequested(t *testing.T) {
	checks := []check.FileCheck{{
		Result:   check.Copied,
		Expected: file.Descriptor{Name: "a.bin"},
		Donor:    &hashindex.Ref{Archive: "extra", Index: 0, Location: hashindex.LocationExtra},
	}}

	items := Plan(checks, Options{DeleteFound: true})
	require.Len(t, items, 1)
	assert.True(t, items[0].DeleteDonor)

	items = Plan(checks, Options{DeleteFound: false})
	require.Len(t, items, 1)
	assert.False(t, items[0].DeleteDonor)
}

func TestExecuteRename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "wrong.bin"), []byte("hello"), 0o644))

	arc, err := archive.OpenDir(dir, archive.ROM, archive.ReadWrite, 0)
	require.NoError(t, err)

	items := []Item{{Action: Rename, SourceIndex: 0, DestName: "a.bin"}}
	require.NoError(t, Execute(arc, items, nil, nil, nil))

	_, err = os.Stat(filepath.Join(dir, "a.bin"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "wrong.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteCopyFromDonor(t *testing.T) {
	setDir := t.TempDir()
	donorDir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(donorDir, "c.bin"), []byte("payload"), 0o644))

	arc, err := archive.OpenDir(setDir, archive.ROM, archive.ReadWrite, 0)
	require.NoError(t, err)

	donorOpened := false
	opener := func(path string) (archive.Archive, error) {
		donorOpened = true
		return archive.OpenDir(path, archive.ROM, archive.ReadOnly, 0)
	}

	items := []Item{{
		Action:   Copy,
		DestName: "c.bin",
		Donor:    &hashindex.Ref{Archive: donorDir, Index: 0},
	}}

	require.NoError(t, Execute(arc, items, opener, nil, nil))
	assert.True(t, donorOpened)

	got, err := ioutil.ReadFile(filepath.Join(setDir, "c.bin"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestExecuteCopyDeletesDonorWhenRequested(t *testing.T) {
	setDir := t.TempDir()
	donorDir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(donorDir, "c.bin"), []byte("payload"), 0o644))

	arc, err := archive.OpenDir(setDir, archive.ROM, archive.ReadWrite, 0)
	require.NoError(t, err)

	opener := func(path string) (archive.Archive, error) {
		return archive.OpenDir(path, archive.ROM, archive.ReadWrite, 0)
	}

	items := []Item{{
		Action:      Copy,
		DestName:    "c.bin",
		Donor:       &hashindex.Ref{Archive: donorDir, Index: 0},
		DeleteDonor: true,
	}}

	require.NoError(t, Execute(arc, items, opener, nil, nil))

	_, err = os.Stat(filepath.Join(donorDir, "c.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteDelete(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "old.bin"), []byte("stale"), 0o644))

	arc, err := archive.OpenDir(dir, archive.ROM, archive.ReadWrite, 0)
	require.NoError(t, err)

	items := []Item{{Action: Delete, SourceIndex: 0}}
	require.NoError(t, Execute(arc, items, nil, nil, nil))

	_, err = os.Stat(filepath.Join(dir, "old.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteMoveNeededPromotesFileAndDeletesSource(t *testing.T) {
	setDir := t.TempDir()
	neededDir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(setDir, "stray.bin"), []byte("payload"), 0o644))

	arc, err := archive.OpenDir(setDir, archive.ROM, archive.ReadWrite, 0)
	require.NoError(t, err)

	needed, err := archive.OpenDir(neededDir, archive.ROM, archive.ReadWrite, 0)
	require.NoError(t, err)

	items := []Item{{Action: MoveNeeded, SourceIndex: 0, DestName: "stray.bin"}}
	require.NoError(t, Execute(arc, items, nil, nil, needed))

	_, err = os.Stat(filepath.Join(setDir, "stray.bin"))
	assert.True(t, os.IsNotExist(err), "promoted file must be removed from its original archive")

	got, err := ioutil.ReadFile(filepath.Join(neededDir, "stray.bin"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestUnmatchedIndices(t *testing.T) {
	files := []archive.File{
		{Descriptor: file.Descriptor{Name: "a.bin"}},
		{Descriptor: file.Descriptor{Name: "unknown.bin"}},
	}
	checks := []check.FileCheck{{ArchiveIndex: 0}}

	assert.Equal(t, []int{1}, UnmatchedIndices(files, checks))
}
