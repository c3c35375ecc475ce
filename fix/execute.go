package fix

import (
	"errors"

	"github.com/bodgit/ckmame/archive"
)

// ErrDonorUnavailable is returned when a Copy item's donor archive
// cannot be opened.
var ErrDonorUnavailable = errors.New("fix: donor archive unavailable")

// DonorOpener resolves a hashindex.Ref's archive path to an open
// Archive the executor can copy from. The caller owns closing
// archives it opens; Execute never calls Close on donors, so the same
// donor can be reused across many Copy items in one sweep. When an
// item's DeleteDonor is set, the returned Archive must have been
// opened ReadWrite, since Execute stages a delete against it and
// commits that separately, after arc's own Commit succeeds.
type DonorOpener func(path string) (archive.Archive, error)

// Garbage receives files quarantined by ExtractLong (the original,
// now-superseded oversized file) or by an explicit Quarantine item.
// It is typically a sibling per-game "garbage" archive opened by the
// caller, per original_source/src/garbage.c.
type Garbage interface {
	FileCopy(dstIndex int, src archive.Archive, srcIndex int, name string, start, length int64) (int, error)
	Commit() error
}

// Execute applies items to arc in order, then commits arc. On the
// first failure the remaining items are left unapplied and arc is not
// committed; already-applied items stand (spec.md §9, same resolution
// as the archive abstraction's own Commit). needed receives files a
// MoveNeeded item promotes into the ".needed" sidecar; it may be nil
// only if no item in items is a MoveNeeded.
func Execute(arc archive.Archive, items []Item, openDonor DonorOpener, garbage, needed Garbage) error {
	var donorDeletes []func() error

	for _, item := range items {
		var err error

		switch item.Action {
		case Rename:
			err = arc.FileRename(item.SourceIndex, item.DestName)

		case ExtractLong:
			if _, err = arc.FileCopy(-1, arc, item.SourceIndex, item.DestName, 0, int64(item.Size)); err != nil {
				break
			}
			if garbage != nil {
				_, err = garbage.FileCopy(-1, arc, item.SourceIndex, item.DestName, 0, -1)
			}
			if err == nil {
				err = arc.FileDelete(item.SourceIndex)
			}

		case Copy:
			if item.Donor == nil || openDonor == nil {
				err = ErrDonorUnavailable
				break
			}
			var donorArc archive.Archive
			donorArc, err = openDonor(item.Donor.Archive)
			if err != nil {
				break
			}
			if _, err = arc.FileCopy(-1, donorArc, item.Donor.Index, item.DestName, 0, -1); err != nil {
				break
			}
			if item.DeleteDonor {
				donorIndex := item.Donor.Index
				donorDeletes = append(donorDeletes, func() error {
					if err := donorArc.FileDelete(donorIndex); err != nil {
						return err
					}
					return donorArc.Commit()
				})
			}

		case Delete:
			err = arc.FileDelete(item.SourceIndex)

		case Quarantine:
			if garbage != nil {
				_, err = garbage.FileCopy(-1, arc, item.SourceIndex, item.DestName, 0, -1)
			}
			if err == nil {
				err = arc.FileDelete(item.SourceIndex)
			}

		case MoveNeeded:
			if needed != nil {
				_, err = needed.FileCopy(-1, arc, item.SourceIndex, item.DestName, 0, -1)
			}
			if err == nil {
				err = arc.FileDelete(item.SourceIndex)
			}
		}

		if err != nil {
			return err
		}
	}

	if err := arc.Commit(); err != nil {
		return err
	}
	for _, deleteDonor := range donorDeletes {
		if err := deleteDonor(); err != nil {
			return err
		}
	}
	if garbage != nil {
		if err := garbage.Commit(); err != nil {
			return err
		}
	}
	if needed != nil {
		return needed.Commit()
	}
	return nil
}
