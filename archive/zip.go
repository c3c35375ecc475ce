package archive

import (
	"archive/zip"
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"errors"
	"hash/crc32"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/bodgit/ckmame/ckerr"
	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/hashes"
	"github.com/klauspost/compress/flate"
)

// newDeflateWriter is the faster klauspost/compress flate
// implementation, registered as each Commit's zip writer's DEFLATE
// codec.
func newDeflateWriter(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.DefaultCompression)
}

var (
	errZipClosed       = errors.New("archive: zip archive is closed")
	errZipIndexRange   = errors.New("archive: file index out of range")
	errZipNameCollides = errors.New("archive: destination name collides with an existing or pending file")
)

// zipSource describes where the bytes for one staged entry come
// from: either zero-copy from an already-open zip.File, or an
// arbitrary reader opened on demand, optionally restricted to a byte
// range.
type zipSource struct {
	zipFile       *zip.File
	open          func() (io.ReadCloser, error)
	start, length int64 // length < 0 means "to EOF"
}

type zipEntry struct {
	file.Descriptor
	state  ArchiveState
	change *Change
	source zipSource
}

// ZipArchive is the zip-backed implementation of Archive.
type ZipArchive struct {
	path     string
	fileType FileType
	flags    Flags
	mode     Mode

	reader  *zip.ReadCloser
	entries []zipEntry
}

// OpenZip opens path as a zip archive. If the file does not exist and
// mode is ReadWrite, a new, empty archive is created on Commit.
func OpenZip(path string, ft FileType, mode Mode, flags Flags) (*ZipArchive, error) {
	a := &ZipArchive{path: path, fileType: ft, mode: mode, flags: flags}

	r, err := zip.OpenReader(path)
	switch {
	case err == nil:
		a.reader = r
	case os.IsNotExist(err) && mode == ReadWrite:
		// A brand new archive; entries stays empty.
	default:
		return nil, ckerr.New(ckerr.Zip, path, "", err)
	}

	if a.reader != nil {
		for _, f := range a.reader.File {
			d := file.Descriptor{
				Name:   f.Name,
				Size:   f.UncompressedSize64,
				MTime:  f.Modified,
				Status: file.OK,
				Where:  file.InZip,
			}
			_ = d.Hashes.Set(hashes.CRC32, crc32Bytes(f.CRC32))

			if flags&IntegrityCheck != 0 {
				ok, err := verifyZipEntry(f)
				if err != nil {
					a.reader.Close()
					return nil, ckerr.New(ckerr.ZipFile, path, f.Name, err)
				}
				if !ok {
					d.Status = file.Broken
				}
			}

			a.entries = append(a.entries, zipEntry{
				Descriptor: d,
				state:      InGame,
				source:     zipSource{zipFile: f, length: -1},
			})
		}
	}

	return a, nil
}

// crc32Bytes renders a zip CRC-32 value (a plain uint32) in the
// big-endian byte form hashes.Set stores, per hashes.go's endianness
// note.
func crc32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func verifyZipEntry(f *zip.File) (bool, error) {
	rc, err := f.Open()
	if err != nil {
		return false, err
	}
	defer rc.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, rc); err != nil {
		if errors.Is(err, zip.ErrChecksum) {
			return false, nil
		}
		return false, err
	}
	return h.Sum32() == f.CRC32, nil
}

// Name returns the archive's path.
func (a *ZipArchive) Name() string { return a.path }

// FileType returns the archive's declared content type.
func (a *ZipArchive) FileType() FileType { return a.fileType }

// Files returns the current, post-pending-change view of every
// non-deleted entry plus staged deletions (so callers can still see
// what is about to disappear).
func (a *ZipArchive) Files() []File {
	out := make([]File, len(a.entries))
	for i, e := range a.entries {
		out[i] = File{Descriptor: e.Descriptor, State: e.state}
	}
	return out
}

func (a *ZipArchive) names(excluding int) map[string]bool {
	m := make(map[string]bool, len(a.entries))
	for i, e := range a.entries {
		if i == excluding || e.state == Deleted {
			continue
		}
		m[e.Name] = true
	}
	return m
}

// FileOpen returns a reader over entry i's current content, whatever
// its pending state.
func (a *ZipArchive) FileOpen(i int) (io.ReadCloser, error) {
	if i < 0 || i >= len(a.entries) {
		return nil, errZipIndexRange
	}
	return a.entries[i].source.openRange()
}

func (s zipSource) openRange() (io.ReadCloser, error) {
	var rc io.ReadCloser
	var err error
	switch {
	case s.zipFile != nil:
		rc, err = s.zipFile.Open()
	case s.open != nil:
		rc, err = s.open()
	default:
		rc = ioutil.NopCloser(bytes.NewReader(nil))
	}
	if err != nil {
		return nil, err
	}

	if s.start <= 0 && s.length < 0 {
		return rc, nil
	}

	if s.start > 0 {
		if _, err := io.CopyN(ioutil.Discard, rc, s.start); err != nil {
			rc.Close()
			return nil, err
		}
	}
	if s.length < 0 {
		return rc, nil
	}
	return readCloserLimit{Reader: io.LimitReader(rc, s.length), Closer: rc}, nil
}

type readCloserLimit struct {
	io.Reader
	io.Closer
}

// FileAddEmpty stages a new, zero-length entry.
func (a *ZipArchive) FileAddEmpty(name string) (int, error) {
	if a.names(-1)[name] {
		return -1, errZipNameCollides
	}
	a.entries = append(a.entries, zipEntry{
		Descriptor: file.Descriptor{Name: name, Where: file.InZip},
		state:      Added,
		change:     &Change{Destination: FileInfo{Name: name, DataFileName: name}},
		source:     zipSource{length: -1},
	})
	return len(a.entries) - 1, nil
}

// FileCopy stages dstIndex (or a new entry, if dstIndex < 0) to
// contain a byte range copied from src's entry srcIndex.
func (a *ZipArchive) FileCopy(dstIndex int, src Archive, srcIndex int, name string, start, length int64) (int, error) {
	srcZip, ok := src.(*ZipArchive)

	var open func() (io.ReadCloser, error)
	var zf *zip.File
	if ok && start == 0 && length < 0 && srcIndex < len(srcZip.entries) && srcZip.entries[srcIndex].source.zipFile != nil {
		// Zero-copy zip-to-zip.
		zf = srcZip.entries[srcIndex].source.zipFile
	} else {
		open = func() (io.ReadCloser, error) {
			return src.FileOpen(srcIndex)
		}
	}

	srcSource := zipSource{zipFile: zf, open: open, start: start, length: length}

	if dstIndex < 0 {
		if a.names(-1)[name] {
			return -1, errZipNameCollides
		}
		a.entries = append(a.entries, zipEntry{
			Descriptor: file.Descriptor{Name: name, Where: file.InZip},
			state:      Added,
			change:     &Change{Destination: FileInfo{Name: name, DataFileName: name}},
			source:     srcSource,
		})
		return len(a.entries) - 1, nil
	}

	if dstIndex >= len(a.entries) {
		return -1, errZipIndexRange
	}
	if a.names(dstIndex)[name] {
		return -1, errZipNameCollides
	}

	e := &a.entries[dstIndex]
	if e.change == nil {
		e.change = &Change{Original: FileInfo{Name: e.Name, DataFileName: e.Name}}
	}
	e.change.Destination = FileInfo{Name: name, DataFileName: name}
	e.Name = name
	e.source = srcSource
	return dstIndex, nil
}

// FileDelete stages entry i for deletion.
func (a *ZipArchive) FileDelete(i int) error {
	if i < 0 || i >= len(a.entries) {
		return errZipIndexRange
	}
	e := &a.entries[i]
	if e.change == nil {
		e.change = &Change{Original: FileInfo{Name: e.Name, DataFileName: e.Name}}
	} else {
		e.change.Destination = FileInfo{}
	}
	e.state = Deleted
	return nil
}

// FileRename stages entry i to be renamed to name, preserving its
// data.
func (a *ZipArchive) FileRename(i int, name string) error {
	if i < 0 || i >= len(a.entries) {
		return errZipIndexRange
	}
	if a.names(i)[name] {
		return errZipNameCollides
	}
	e := &a.entries[i]
	if e.change == nil {
		e.change = &Change{Original: FileInfo{Name: e.Name, DataFileName: e.Name}}
	}
	e.change.Destination = FileInfo{Name: name, DataFileName: e.change.Original.DataFileName}
	e.Name = name
	return nil
}

// Commit rewrites the archive to a temporary file containing every
// non-deleted entry and atomically renames it into place. Because the
// live file is never touched until the final rename, a failure partway
// through leaves the archive exactly as it was (the zip backend's
// "zip-native rollback", spec.md §4.D).
func (a *ZipArchive) Commit() error {
	if a.mode != ReadWrite {
		return ckerr.New(ckerr.Zip, a.path, "", errors.New("archive opened read-only"))
	}

	tmp, err := ioutil.TempFile(filepath.Dir(a.path), filepath.Base(a.path)+".tmp-*")
	if err != nil {
		return ckerr.New(ckerr.File, a.path, "", err)
	}
	tmpName := tmp.Name()
	abort := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, newDeflateWriter)

	var kept []zipEntry
	for _, e := range a.entries {
		if e.state == Deleted {
			continue
		}

		if e.source.zipFile != nil && e.source.start == 0 && e.source.length < 0 && e.Name == e.source.zipFile.Name {
			if err := zw.Copy(e.source.zipFile); err != nil {
				return abort(ckerr.New(ckerr.ZipFile, a.path, e.Name, err))
			}
		} else {
			w, err := zw.Create(e.Name)
			if err != nil {
				return abort(ckerr.New(ckerr.ZipFile, a.path, e.Name, err))
			}
			rc, err := e.source.openRange()
			if err != nil {
				return abort(ckerr.New(ckerr.ZipFile, a.path, e.Name, err))
			}
			_, err = io.Copy(w, rc)
			rc.Close()
			if err != nil {
				return abort(ckerr.New(ckerr.ZipFile, a.path, e.Name, err))
			}
		}

		e.state = InGame
		e.change = nil
		kept = append(kept, e)
	}

	if err := zw.Close(); err != nil {
		return abort(ckerr.New(ckerr.Zip, a.path, "", err))
	}
	if err := tmp.Close(); err != nil {
		return abort(ckerr.New(ckerr.File, a.path, "", err))
	}

	if len(kept) == 0 && a.flags&KeepEmpty == 0 {
		os.Remove(tmpName)
		if a.reader != nil {
			a.reader.Close()
			a.reader = nil
		}
		if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
			return ckerr.New(ckerr.File, a.path, "", err)
		}
		removeEmptyParents(filepath.Dir(a.path), a.flags&TopLevelOnly != 0)
		a.entries = nil
		return nil
	}

	if err := os.Rename(tmpName, a.path); err != nil {
		return abort(ckerr.New(ckerr.File, a.path, "", err))
	}

	if a.reader != nil {
		a.reader.Close()
	}
	r, err := zip.OpenReader(a.path)
	if err != nil {
		return ckerr.New(ckerr.Zip, a.path, "", err)
	}
	a.reader = r

	byName := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		byName[f.Name] = f
	}
	for idx := range kept {
		if f, ok := byName[kept[idx].Name]; ok {
			kept[idx].source = zipSource{zipFile: f, length: -1}
			kept[idx].MTime = f.Modified
			kept[idx].Hashes = hashes.Set{}
			_ = kept[idx].Hashes.Set(hashes.CRC32, crc32Bytes(f.CRC32))
		}
	}
	a.entries = kept

	return nil
}

// Rollback discards every staged change.
func (a *ZipArchive) Rollback() error {
	var kept []zipEntry
	for _, e := range a.entries {
		if e.change != nil && !e.change.Original.IsSet() {
			continue // a staged Add with no counterpart on disk
		}
		if e.change != nil && a.reader != nil {
			for _, f := range a.reader.File {
				if f.Name == e.change.Original.Name {
					e.Name = f.Name
					e.source = zipSource{zipFile: f, length: -1}
					break
				}
			}
		}
		e.state = InGame
		e.change = nil
		kept = append(kept, e)
	}
	a.entries = kept
	return nil
}

// Close closes the underlying zip reader, if any.
func (a *ZipArchive) Close() error {
	if a.reader != nil {
		err := a.reader.Close()
		a.reader = nil
		return err
	}
	return nil
}

// ComputeHashes recomputes MD5/SHA-1 for an entry; used by callers
// that need more than the zip format's built-in CRC-32, e.g. the
// match engine's own confirmation pass.
func ComputeHashes(r io.Reader) (hashes.Set, error) {
	var h hashes.Set
	crcH := crc32.NewIEEE()
	md5H := md5.New()
	sha1H := sha1.New()
	mw := io.MultiWriter(crcH, md5H, sha1H)
	if _, err := io.Copy(mw, r); err != nil {
		return h, err
	}
	_ = h.Set(hashes.CRC32, crcH.Sum(nil))
	_ = h.Set(hashes.MD5, md5H.Sum(nil))
	_ = h.Set(hashes.SHA1, sha1H.Sum(nil))
	return h, nil
}
