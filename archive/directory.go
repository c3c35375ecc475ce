package archive

import (
	"errors"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/bodgit/ckmame/ckerr"
	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/hashes"
	"github.com/bodgit/plumbing"
)

var (
	errDirIndexRange   = errors.New("archive: file index out of range")
	errDirNameCollides = errors.New("archive: destination name collides with an existing or pending file")
)

// dirEntry is one member of a directory archive: a regular file
// directly inside the directory.
type dirEntry struct {
	file.Descriptor
	state      ArchiveState
	change     *Change
	dataPath   string // the file currently backing this entry's bytes
	pendingNew string // staging path for an add/replace, moved into place on Commit
}

// DirArchive is the plain-directory implementation of Archive: every
// regular file directly inside root is one entry (spec.md §4.D treats
// a leaf directory the same way a zip treats its member files).
type DirArchive struct {
	root     string
	fileType FileType
	flags    Flags
	mode     Mode

	entries []dirEntry
}

// OpenDir opens root as a directory archive. A non-existent root is
// allowed in ReadWrite mode; it is created as soon as a file is staged
// into it (FileAddEmpty or FileCopy).
func OpenDir(root string, ft FileType, mode Mode, flags Flags) (*DirArchive, error) {
	a := &DirArchive{root: root, fileType: ft, mode: mode, flags: flags}

	infos, err := os.ReadDir(root)
	switch {
	case err == nil:
		// fall through
	case os.IsNotExist(err) && mode == ReadWrite:
		return a, nil
	default:
		return nil, ckerr.New(ckerr.File, root, "", err)
	}

	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		fi, err := info.Info()
		if err != nil {
			return nil, ckerr.New(ckerr.File, root, info.Name(), err)
		}

		d := file.Descriptor{
			Name:   info.Name(),
			Size:   uint64(fi.Size()),
			MTime:  fi.ModTime(),
			Status: file.OK,
			Where:  file.InZip,
		}

		path := filepath.Join(root, info.Name())

		if flags&IntegrityCheck != 0 {
			// A plain directory carries no embedded checksum to
			// verify against (unlike a zip entry's stored CRC-32);
			// IntegrityCheck instead eagerly computes the digest set
			// so later catalog comparisons don't need to reopen and
			// rehash every file.
			h, err := hashFile(path)
			if err != nil {
				return nil, ckerr.New(ckerr.File, root, info.Name(), err)
			}
			d.Hashes = h
		}

		a.entries = append(a.entries, dirEntry{
			Descriptor: d,
			state:      InGame,
			dataPath:   path,
		})
	}

	return a, nil
}

func hashFile(path string) (hashes.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return hashes.Set{}, err
	}
	defer f.Close()

	return ComputeHashes(f)
}

// Name returns the archive's root directory.
func (a *DirArchive) Name() string { return a.root }

// FileType returns the archive's declared content type.
func (a *DirArchive) FileType() FileType { return a.fileType }

// Files returns the current view of every entry.
func (a *DirArchive) Files() []File {
	out := make([]File, len(a.entries))
	for i, e := range a.entries {
		out[i] = File{Descriptor: e.Descriptor, State: e.state}
	}
	return out
}

func (a *DirArchive) names(excluding int) map[string]bool {
	m := make(map[string]bool, len(a.entries))
	for i, e := range a.entries {
		if i == excluding || e.state == Deleted {
			continue
		}
		m[e.Name] = true
	}
	return m
}

// FileOpen opens entry i's current content: its staged replacement
// file if one is pending, otherwise the file on disk.
func (a *DirArchive) FileOpen(i int) (io.ReadCloser, error) {
	if i < 0 || i >= len(a.entries) {
		return nil, errDirIndexRange
	}
	e := &a.entries[i]
	path := e.dataPath
	if e.pendingNew != "" {
		path = e.pendingNew
	}
	if path == "" {
		return ioutil.NopCloser(nil), nil
	}
	return os.Open(path)
}

// FileAddEmpty stages a new, zero-length entry, materialised
// immediately as an empty staging file so FileOpen and a later Commit
// behave uniformly with FileCopy.
func (a *DirArchive) FileAddEmpty(name string) (int, error) {
	if a.names(-1)[name] {
		return -1, errDirNameCollides
	}

	tmp, err := a.stageTemp(name)
	if err != nil {
		return -1, err
	}
	tmp.Close()

	a.entries = append(a.entries, dirEntry{
		Descriptor: file.Descriptor{Name: name, Where: file.InZip},
		state:      Added,
		change:     &Change{Destination: FileInfo{Name: name, DataFileName: tmp.Name()}},
		pendingNew: tmp.Name(),
	})
	return len(a.entries) - 1, nil
}

func (a *DirArchive) stageTemp(name string) (*os.File, error) {
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return nil, ckerr.New(ckerr.File, a.root, "", err)
	}
	path, err := makeTmpName(a.root, name)
	if err != nil {
		return nil, ckerr.New(ckerr.File, a.root, name, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, ckerr.New(ckerr.File, a.root, name, err)
	}
	return f, nil
}

// FileCopy stages dstIndex (or a new entry, if dstIndex < 0) to
// contain a byte range copied from src's entry srcIndex. The bytes are
// always copied into a staging file here, even when the range covers a
// whole file that FileRename could have moved instead; FileCopy does
// not detect that case.
func (a *DirArchive) FileCopy(dstIndex int, src Archive, srcIndex int, name string, start, length int64) (int, error) {
	var rc io.ReadCloser
	rc, err := src.FileOpen(srcIndex)
	if err != nil {
		return -1, err
	}
	defer rc.Close()

	if start > 0 {
		if _, err := io.CopyN(ioutil.Discard, rc, start); err != nil {
			return -1, err
		}
	}
	var r io.Reader = rc
	if length >= 0 {
		r = plumbing.PaddedReader(io.LimitReader(rc, length), length, 0)
	}

	if dstIndex < 0 {
		if a.names(-1)[name] {
			return -1, errDirNameCollides
		}
		tmp, err := a.stageTemp(name)
		if err != nil {
			return -1, err
		}
		if _, err := io.Copy(tmp, r); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return -1, ckerr.New(ckerr.File, a.root, name, err)
		}
		tmp.Close()

		a.entries = append(a.entries, dirEntry{
			Descriptor: file.Descriptor{Name: name, Where: file.InZip},
			state:      Added,
			change:     &Change{Destination: FileInfo{Name: name, DataFileName: tmp.Name()}},
			pendingNew: tmp.Name(),
		})
		return len(a.entries) - 1, nil
	}

	if dstIndex >= len(a.entries) {
		return -1, errDirIndexRange
	}
	if a.names(dstIndex)[name] {
		return -1, errDirNameCollides
	}

	e := &a.entries[dstIndex]
	tmp, err := a.stageTemp(name)
	if err != nil {
		return -1, err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return -1, ckerr.New(ckerr.File, a.root, name, err)
	}
	tmp.Close()

	if e.change == nil {
		e.change = &Change{Original: FileInfo{Name: e.Name, DataFileName: e.dataPath}}
	}
	e.change.Destination = FileInfo{Name: name, DataFileName: tmp.Name()}
	e.Name = name
	e.pendingNew = tmp.Name()
	return dstIndex, nil
}

// FileDelete stages entry i for deletion.
func (a *DirArchive) FileDelete(i int) error {
	if i < 0 || i >= len(a.entries) {
		return errDirIndexRange
	}
	e := &a.entries[i]
	if e.change == nil {
		e.change = &Change{Original: FileInfo{Name: e.Name, DataFileName: e.dataPath}}
	} else {
		e.change.Destination = FileInfo{}
	}
	e.state = Deleted
	return nil
}

// FileRename stages entry i to be renamed to name without touching its
// data file, so Commit emits it as a pure rename (ChangeRenamed).
func (a *DirArchive) FileRename(i int, name string) error {
	if i < 0 || i >= len(a.entries) {
		return errDirIndexRange
	}
	if a.names(i)[name] {
		return errDirNameCollides
	}
	e := &a.entries[i]
	dataFile := e.dataPath
	if e.pendingNew != "" {
		dataFile = e.pendingNew
	}
	if e.change == nil {
		e.change = &Change{Original: FileInfo{Name: e.Name, DataFileName: dataFile}}
	}
	e.change.Destination = FileInfo{Name: name, DataFileName: dataFile}
	e.Name = name
	return nil
}

// Commit applies every staged mutation: deletions are removed,
// renames are os.Rename'd in place, and adds/replacements are
// os.Rename'd from their staging path to their final name. Entries
// are processed in order; on the first failure the remaining entries
// are left exactly as they were (spec.md §9, same resolution as the
// zip backend).
func (a *DirArchive) Commit() error {
	if a.mode != ReadWrite {
		return ckerr.New(ckerr.File, a.root, "", errors.New("archive opened read-only"))
	}
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return ckerr.New(ckerr.File, a.root, "", err)
	}

	var kept []dirEntry
	for _, e := range a.entries {
		if e.state == Deleted {
			if e.dataPath != "" {
				if err := os.Remove(e.dataPath); err != nil && !os.IsNotExist(err) {
					return ckerr.New(ckerr.File, a.root, e.Name, err)
				}
			}
			continue
		}

		finalPath := filepath.Join(a.root, e.Name)

		switch {
		case e.pendingNew != "":
			if err := os.Rename(e.pendingNew, finalPath); err != nil {
				return ckerr.New(ckerr.File, a.root, e.Name, err)
			}
			if e.change != nil && e.change.Kind() == ChangeReplaced && e.dataPath != "" && e.dataPath != finalPath {
				os.Remove(e.dataPath)
			}
		case e.change != nil && e.change.Kind() == ChangeRenamed:
			oldPath := e.dataPath
			if err := os.Rename(oldPath, finalPath); err != nil {
				return ckerr.New(ckerr.File, a.root, e.Name, err)
			}
		}

		e.dataPath = finalPath
		e.pendingNew = ""
		e.state = InGame
		e.change = nil

		if fi, err := os.Stat(finalPath); err == nil {
			e.Size = uint64(fi.Size())
			e.MTime = fi.ModTime()
		}

		kept = append(kept, e)
	}

	a.entries = kept

	if len(kept) == 0 && a.flags&KeepEmpty == 0 {
		removeEmptyParents(a.root, a.flags&TopLevelOnly != 0)
	}

	return nil
}

// Rollback discards every staged change, removing any orphaned
// staging files.
func (a *DirArchive) Rollback() error {
	var kept []dirEntry
	for _, e := range a.entries {
		if e.pendingNew != "" {
			os.Remove(e.pendingNew)
		}
		if e.state == Added {
			continue
		}
		if e.change != nil {
			e.Name = e.change.Original.Name
		}
		e.state = InGame
		e.change = nil
		e.pendingNew = ""
		kept = append(kept, e)
	}
	a.entries = kept
	return nil
}

// Close is a no-op for the directory backend; it has no open file
// handles to release between calls.
func (a *DirArchive) Close() error {
	return nil
}
