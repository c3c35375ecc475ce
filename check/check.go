/*
Package check implements the per-game matcher (spec.md §4.I): for
each expected file, classify what is actually present against the
game's own archive, its ancestors' archives, and the in-memory hash
index, then aggregate the per-file classifications into one game
status.
*/
package check

import (
	"io"

	"github.com/bodgit/ckmame/archive"
	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashes"
	"github.com/bodgit/ckmame/hashindex"
)

// Result is one expected file's classification.
type Result int

const (
	// OK means the expected file is present, correctly named, the
	// right size and hashes.
	OK Result = iota
	// NoDump means the catalog itself records no dump exists.
	NoDump
	// NameErr means the content is present under the wrong name
	// (spec.md §4.I step 3).
	NameErr
	// Long means a larger file's size-prefix matches (step 4).
	Long
	// Copied means a byte-identical donor was found elsewhere in the
	// set, needed pool or an extra directory (step 5).
	Copied
	// Old means a byte-identical copy exists only in the old
	// reference database (step 5).
	Old
	// Missing means no candidate was found anywhere (step 6).
	Missing
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case NoDump:
		return "no-dump"
	case NameErr:
		return "namerr"
	case Long:
		return "long"
	case Copied:
		return "copied"
	case Old:
		return "old"
	default:
		return "missing"
	}
}

// FileCheck is one expected file's classification result.
type FileCheck struct {
	Expected      file.Descriptor
	ExpectedIndex int
	Result        Result

	// ArchiveIndex is the matched candidate's index within the
	// archive Result's doc names (the game's own or an ancestor's),
	// or -1 if Result came from the hash index or found nothing.
	ArchiveIndex int

	// Donor is set when Result is Copied or Old: where the matching
	// byte-identical content was found.
	Donor *hashindex.Ref
}

// GameStatus aggregates a role view's file classifications.
type GameStatus int

const (
	// Correct means every file is OK or NoDump.
	Correct GameStatus = iota
	// Fixable means nothing is Missing, but the game is neither Correct
	// nor StatusOld: at least one file is NameErr, Long or Copied, or
	// Old alongside other results.
	Fixable
	// Partial means at least one file is Missing, but not every
	// non-NoDump file is.
	Partial
	// StatusOld means every non-NoDump file classified as Old: the
	// whole game duplicates content already retired to the old
	// database.
	StatusOld
	// StatusMissing means every non-NoDump file is Missing.
	StatusMissing
)

func (s GameStatus) String() string {
	switch s {
	case Correct:
		return "correct"
	case Fixable:
		return "fixable"
	case Partial:
		return "partial"
	case StatusOld:
		return "old"
	default:
		return "missing"
	}
}

// ArchiveLookup resolves the archive that should physically hold a
// file at provenance where: the game's own archive for file.InZip, or
// the ancestor archive where.Up() generations up. ok is false if no
// such archive could be opened (e.g. an ancestor game has no on-disk
// archive at all).
type ArchiveLookup func(where file.Where) (archive.Archive, bool, error)

// ClassifyGame runs spec.md §4.I's six-step algorithm over every file
// in v, then aggregates into a GameStatus.
func ClassifyGame(v *game.RoleView, lookup ArchiveLookup, x *hashindex.Index) (GameStatus, []FileCheck, error) {
	checks := make([]FileCheck, 0, len(v.Files))

	for i, e := range v.Files {
		fc, err := classifyOne(e, i, lookup, x)
		if err != nil {
			return StatusMissing, nil, err
		}
		checks = append(checks, fc)
	}

	return aggregate(checks), checks, nil
}

func classifyOne(e file.Descriptor, index int, lookup ArchiveLookup, x *hashindex.Index) (FileCheck, error) {
	fc := FileCheck{Expected: e, ExpectedIndex: index, ArchiveIndex: -1}

	if e.Status == file.NoDump {
		fc.Result = NoDump
		return fc, nil
	}

	arc, ok, err := lookup(e.Where)
	if err != nil {
		return fc, err
	}
	if ok {
		files := arc.Files()

		if idx := findByName(files, e.EffectiveName()); idx >= 0 {
			h, err := candidateHashes(arc, idx, files[idx], e.Hashes)
			if err == nil && files[idx].Size == e.Size && h.Compare(e.Hashes) == hashes.Match {
				fc.Result = OK
				fc.ArchiveIndex = idx
				return fc, nil
			}
		}

		if idx, ok := findByHash(arc, files, e); ok {
			fc.Result = NameErr
			fc.ArchiveIndex = idx
			return fc, nil
		}

		if e.SizeKnown() {
			if idx, ok := findLongMatch(arc, files, e); ok {
				fc.Result = Long
				fc.ArchiveIndex = idx
				return fc, nil
			}
		}
	}

	result, donor := classifyViaIndex(e, x)
	fc.Result = result
	fc.Donor = donor
	return fc, nil
}

func findByName(files []archive.File, name string) int {
	for i, f := range files {
		if f.State == archive.Deleted {
			continue
		}
		if f.Name == name {
			return i
		}
	}
	return -1
}

// candidateHashes returns hash information for candidate i sufficient
// to compare against want: the archive's already-known digest (e.g. a
// zip entry's stored CRC-32) if it covers every algorithm want carries,
// otherwise a full rehash. Without this escalation a candidate whose
// only known digest doesn't overlap want's algorithms at all would
// compare NoCommon and be accepted as if it were Match (the ground
// truth, original_source/src/archive_file_compare_hashes.c, always
// forces archive_file_compute_hashes in that case before comparing).
func candidateHashes(arc archive.Archive, i int, cand archive.File, want hashes.Set) (hashes.Set, error) {
	if !cand.Hashes.Empty() && cand.Hashes.Covers(want) {
		return cand.Hashes, nil
	}
	rc, err := arc.FileOpen(i)
	if err != nil {
		return hashes.Set{}, err
	}
	defer rc.Close()
	return archive.ComputeHashes(rc)
}

// findByHash scans every candidate in the archive, ignoring name, for
// one whose hashes match e (spec.md §4.I step 3).
func findByHash(arc archive.Archive, files []archive.File, e file.Descriptor) (int, bool) {
	for i, f := range files {
		if f.State == archive.Deleted {
			continue
		}
		if f.Size != e.Size {
			continue
		}
		h, err := candidateHashes(arc, i, f, e.Hashes)
		if err != nil {
			continue
		}
		if h.Compare(e.Hashes) == hashes.Match {
			return i, true
		}
	}
	return -1, false
}

// findLongMatch looks for a candidate strictly larger than e whose
// first e.Size bytes hash to e's digest (spec.md §4.I step 4).
func findLongMatch(arc archive.Archive, files []archive.File, e file.Descriptor) (int, bool) {
	for i, f := range files {
		if f.State == archive.Deleted || f.Size <= e.Size {
			continue
		}
		rc, err := arc.FileOpen(i)
		if err != nil {
			continue
		}
		h, err := archive.ComputeHashes(io.LimitReader(rc, int64(e.Size)))
		rc.Close()
		if err != nil {
			continue
		}
		if h.Compare(e.Hashes) == hashes.Match {
			return i, true
		}
	}
	return -1, false
}

// classifyViaIndex consults the in-memory hash index once no match
// was found within the expected archive (spec.md §4.I steps 5-6).
func classifyViaIndex(e file.Descriptor, x *hashindex.Index) (Result, *hashindex.Ref) {
	if x == nil {
		return Missing, nil
	}

	refs := x.Lookup(e.Hashes)
	if len(refs) == 0 && e.SizeKnown() {
		if crc, ok := e.Hashes.Get(hashes.CRC32); ok {
			refs = x.LookupSizeCRC(e.Size, crc)
		}
	}
	if len(refs) == 0 {
		return Missing, nil
	}

	for _, r := range refs {
		if r.Location != hashindex.LocationOld {
			ref := r
			return Copied, &ref
		}
	}

	ref := refs[0]
	return Old, &ref
}

// aggregate derives a GameStatus from a game's per-file results
// (spec.md §4.I: "Game status then aggregates file statuses"; the
// precise partition is an Open Question resolved in DESIGN.md).
func aggregate(checks []FileCheck) GameStatus {
	if len(checks) == 0 {
		return Correct
	}

	var nOK, nNoDump, nOld, nMissing, nOther int
	for _, fc := range checks {
		switch fc.Result {
		case OK:
			nOK++
		case NoDump:
			nNoDump++
		case Old:
			nOld++
		case Missing:
			nMissing++
		default:
			nOther++
		}
	}

	relevant := len(checks) - nNoDump

	switch {
	case nOK+nNoDump == len(checks):
		return Correct
	case relevant > 0 && nOld == relevant:
		return StatusOld
	case relevant > 0 && nMissing == relevant:
		return StatusMissing
	case nMissing > 0:
		return Partial
	default:
		return Fixable
	}
}
