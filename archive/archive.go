/*
Package archive implements the mutable archive abstraction (spec.md
§4.D): a uniform, transactional view over either a zip container or a
plain directory, supporting add/delete/rename/replace with
all-or-nothing commit.
*/
package archive

import (
	"io"
	"time"

	"github.com/bodgit/ckmame/file"
)

// FileType is what kind of ROM-set member an archive holds.
type FileType int

const (
	// ROM archives hold a game's ROM files.
	ROM FileType = iota
	// Sample archives hold a game's sample files.
	Sample
	// Disk archives hold CHD-style disk images.
	Disk
)

// Flags modify archive lifecycle behaviour.
type Flags int

const (
	// KeepEmpty prevents a directory backend from removing an
	// archive that ends up with no files after commit.
	KeepEmpty Flags = 1 << iota
	// TopLevelOnly prevents a directory backend from removing
	// empty parent directories above the archive itself.
	TopLevelOnly
	// IntegrityCheck verifies every entry's stored CRC against
	// recomputed data when the archive is opened, marking failing
	// entries file.Broken (spec.md §4.D).
	IntegrityCheck
)

// Mode selects whether an archive is opened for reading only or for
// reading and mutation.
type Mode int

const (
	// ReadOnly opens an archive for inspection only.
	ReadOnly Mode = iota
	// ReadWrite opens an archive for mutation; Commit/Rollback are
	// only meaningful in this mode.
	ReadWrite
)

// ArchiveState is a file's role within the pending-change log:
// already present, staged for addition, or staged for deletion
// (spec.md §3's archive File "where" values, distinct from a
// catalog file.Where).
type ArchiveState int

const (
	InGame ArchiveState = iota
	Added
	Deleted
)

// FileInfo names one side of a Change: a file's name and, for the
// directory backend, the on-disk data file backing it. Both fields
// empty encodes "not set".
type FileInfo struct {
	Name         string
	DataFileName string
}

// IsSet reports whether fi names anything.
func (fi FileInfo) IsSet() bool {
	return fi.Name != ""
}

// ChangeKind classifies a Change by which of its two FileInfo sides
// are set and, for the directory backend, whether they share a data
// file.
type ChangeKind int

const (
	// NoChange means the file is exactly as it was when opened.
	NoChange ChangeKind = iota
	// ChangeAdded means Original is empty, Destination is set.
	ChangeAdded
	// ChangeDeleted means Destination is empty, Original is set.
	ChangeDeleted
	// ChangeRenamed means both are set and (directory backend
	// only) their data file names coincide: no bytes moved.
	ChangeRenamed
	// ChangeReplaced means both are set but the data differs.
	ChangeReplaced
)

// Change is one pending mutation, keyed by the file index it applies
// to.
type Change struct {
	Original    FileInfo
	Destination FileInfo
	MTime       time.Time
}

// Kind classifies the change.
func (c Change) Kind() ChangeKind {
	switch {
	case !c.Original.IsSet() && !c.Destination.IsSet():
		return NoChange
	case !c.Original.IsSet():
		return ChangeAdded
	case !c.Destination.IsSet():
		return ChangeDeleted
	case c.Original.DataFileName != "" && c.Original.DataFileName == c.Destination.DataFileName:
		return ChangeRenamed
	default:
		return ChangeReplaced
	}
}

// File is one archive entry: its catalog-shaped descriptor plus its
// pending-change state.
type File struct {
	file.Descriptor
	State ArchiveState
}

// Archive is the contract both backends implement (spec.md §4.D).
// Index i in every method refers to the position within the slice
// Files() returns; an implementation must keep that position stable
// across calls within one open archive, even across pending
// mutations, until Commit or Rollback.
type Archive interface {
	// Name is the archive's path.
	Name() string
	FileType() FileType
	Files() []File

	FileOpen(i int) (io.ReadCloser, error)

	// FileAddEmpty stages a new, empty entry named name and
	// returns its index.
	FileAddEmpty(name string) (int, error)

	// FileCopy stages dstIndex (or, if dstIndex < 0, a new entry)
	// to contain length bytes (or, if length < 0, every
	// remaining byte) of source archive src's entry srcIndex,
	// starting at byte start, under the given destination name.
	// src may be the archive itself.
	FileCopy(dstIndex int, src Archive, srcIndex int, name string, start, length int64) (int, error)

	FileDelete(i int) error

	// FileRename stages index i to be renamed to name without
	// altering its data, after verifying name will not collide
	// with any other file's post-commit name.
	FileRename(i int, name string) error

	// Commit applies every staged change in the order issued. On
	// the first failure, remaining changes are left unapplied and
	// the error names the archive and file that failed; already-applied
	// changes are not automatically undone (spec.md §9's first
	// Open Question, resolved in DESIGN.md).
	Commit() error

	// Rollback discards every staged change, restoring Files() to
	// what it reported when the archive was opened.
	Rollback() error

	Close() error
}

// ErrNotOpen and friends are defined alongside each backend; this
// file only holds the shared vocabulary.
