/*
Package fix implements the mutation planner and executor (spec.md
§4.J): given a game's per-file classifications, produce a minimal,
ordered sequence of archive mutations that converges the on-disk set
toward the catalog, then apply it through the archive abstraction.
*/
package fix

import (
	"github.com/bodgit/ckmame/archive"
	"github.com/bodgit/ckmame/check"
	"github.com/bodgit/ckmame/hashindex"
)

// Action is one kind of mutation a Plan item requests.
type Action int

const (
	// Rename moves an in-place file to its expected name.
	Rename Action = iota
	// ExtractLong copies the valid leading subsection of an
	// oversized file into the archive under the expected name; the
	// original is then quarantined.
	ExtractLong
	// Copy pulls a byte-identical donor file into the archive.
	Copy
	// Delete removes a file already superseded by the old database.
	Delete
	// Quarantine moves a file the catalog does not expect at all
	// into the sibling "garbage" archive (spec.md §4.J, "unknown
	// file in archive").
	Quarantine
	// MoveNeeded moves a file that is unmatched here but whose
	// hash some other, not-yet-rechecked game's descriptor still
	// wants into the ".needed" sidecar, so a second traversal can
	// pick it up as a donor (spec.md line 128's "items promoted
	// into the needed pool during pass one").
	MoveNeeded
)

func (a Action) String() string {
	switch a {
	case Rename:
		return "rename"
	case ExtractLong:
		return "extract-long"
	case Copy:
		return "copy"
	case Delete:
		return "delete"
	case Quarantine:
		return "quarantine"
	default:
		return "move-needed"
	}
}

// Item is one planned mutation.
type Item struct {
	Action Action

	// SourceIndex is the archive index the mutation reads from:
	// the misnamed/oversized/superfluous file for Rename,
	// ExtractLong, Delete and Quarantine.
	SourceIndex int

	// DestName is the file's expected name, for Rename, ExtractLong
	// and Copy.
	DestName string

	// Size is the expected byte count, used by ExtractLong to know
	// how much of the oversized source to keep.
	Size uint64

	// Donor identifies where Copy should pull bytes from.
	Donor *hashindex.Ref

	// DeleteDonor marks a Copy item's donor file for deletion once
	// the copy lands, per spec.md §4.J's "mark donor for possible
	// deletion if delete-found" (only ever set for an extra-directory
	// donor: the set/needed/old pools are never mutated this way).
	DeleteDonor bool
}

// Options mirrors the subset of spec.md §6's configuration record
// that changes what the planner decides, as opposed to how the
// executor talks to archives.
type Options struct {
	MoveLong         bool
	DeleteFound      bool
	KeepOldDuplicate bool
}

// Plan turns a game's file classifications into an ordered mutation
// list: renames and copies before deletes, matching spec.md §4.J's
// "inserts/renames before deletes" ordering within one archive.
func Plan(checks []check.FileCheck, opts Options) []Item {
	var inserts, deletes []Item

	for _, fc := range checks {
		switch fc.Result {
		case check.OK, check.NoDump, check.Missing:
			// No mutation: OK needs none, NoDump is accounted for by
			// the catalog itself, Missing has nothing to act on.
		case check.NameErr:
			inserts = append(inserts, Item{
				Action:      Rename,
				SourceIndex: fc.ArchiveIndex,
				DestName:    fc.Expected.Name,
			})
		case check.Long:
			if opts.MoveLong {
				inserts = append(inserts, Item{
					Action:      ExtractLong,
					SourceIndex: fc.ArchiveIndex,
					DestName:    fc.Expected.Name,
					Size:        fc.Expected.Size,
				})
			}
		case check.Copied:
			donor := fc.Donor
			inserts = append(inserts, Item{
				Action:      Copy,
				DestName:    fc.Expected.Name,
				Donor:       donor,
				DeleteDonor: opts.DeleteFound && donor != nil && donor.Location == hashindex.LocationExtra,
			})
		case check.Old:
			if !opts.KeepOldDuplicate {
				deletes = append(deletes, Item{
					Action:      Delete,
					SourceIndex: fc.ArchiveIndex,
				})
			}
		}
	}

	return append(inserts, deletes...)
}

// UnmatchedIndices returns every archive index in files that no
// FileCheck claimed as its match, i.e. content the catalog doesn't
// expect at all. The caller quarantines these (spec.md §4.J).
func UnmatchedIndices(files []archive.File, checks []check.FileCheck) []int {
	matched := make(map[int]bool, len(checks))
	for _, fc := range checks {
		if fc.ArchiveIndex >= 0 {
			matched[fc.ArchiveIndex] = true
		}
	}

	var out []int
	for i, f := range files {
		if f.State == archive.Deleted || matched[i] {
			continue
		}
		out = append(out, i)
	}
	return out
}
