/*
Package file implements the file descriptor data model shared by the
reference catalog and the archive abstraction (spec.md §3): a name,
optional merge name, size, hash set, mtime, lifecycle status and
provenance ("where").
*/
package file

import (
	"time"

	"github.com/bodgit/ckmame/hashes"
)

// Status is the lifecycle status of a catalog entry.
type Status int

const (
	// OK is a normal, dumped ROM.
	OK Status = iota
	// BadDump means the catalog author flagged this dump as
	// suspect.
	BadDump
	// NoDump means no dump of this ROM is known to exist.
	NoDump
	// Broken is set by the archive abstraction's integrity-check
	// mode (spec.md §4.D) when a stored CRC fails to match
	// recomputed data. It is not one of the three statuses a
	// catalog entry can carry (spec.md §3) but a fourth, archive-
	// local runtime status.
	Broken
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case BadDump:
		return "baddump"
	case NoDump:
		return "nodump"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}

// Where describes a file's provenance relative to its game. InZip
// means the file lives in the game's own archive. Positive values
// are the distance up the parent chain (InParent == 1,
// InGrandparent == 2, ...), satisfying "where[child][i] ==
// where[parent][matching] + 1". The remaining, non-catalog roles used
// while sweeping the on-disk set are negative sentinels.
type Where int

// InZip is the file's provenance when it is present in its own
// game's archive.
const InZip Where = 0

// InParent is the file's provenance when it is inherited, unmodified,
// from the immediate parent game.
const InParent Where = 1

// Roles a file can hold while the on-disk set is being swept; these
// never appear in a catalog record, only in check/fix bookkeeping.
const (
	Romset Where = -1 - iota
	Needed
	Extra
	Old
)

// IsAncestor reports whether w represents "inherited from an
// ancestor N generations up", i.e. w >= InParent.
func (w Where) IsAncestor() bool {
	return w >= InParent
}

// Up returns the Where a file one generation further inherited would
// carry: w.Up() == w+1 when w is InZip or an ancestor distance.
func (w Where) Up() Where {
	return w + 1
}

func (w Where) String() string {
	switch {
	case w == InZip:
		return "in-zip"
	case w == Romset:
		return "romset"
	case w == Needed:
		return "needed"
	case w == Extra:
		return "extra"
	case w == Old:
		return "old"
	case w.IsAncestor():
		return "ancestor"
	default:
		return "unknown"
	}
}

// UnknownSize marks a Descriptor whose Size is not known.
const UnknownSize = ^uint64(0)

// Descriptor describes one expected or encountered file.
type Descriptor struct {
	Name      string
	MergeName string
	Size      uint64
	Hashes    hashes.Set
	MTime     time.Time
	Status    Status
	Where     Where

	// Alternates holds additional names that are known to be
	// byte-identical to this file, recorded by the catalog
	// ingester's ROM de-duplication rule (spec.md §4.C) when a
	// later ROM in the same game shares size, hashes and merge
	// name but not the name.
	Alternates []string
}

// SizeKnown reports whether d.Size holds a known size.
func (d Descriptor) SizeKnown() bool {
	return d.Size != UnknownSize
}

// EffectiveName returns the name this file takes when inherited from
// a parent (its MergeName), falling back to Name when no merge name
// is set.
func (d Descriptor) EffectiveName() string {
	if d.MergeName != "" {
		return d.MergeName
	}
	return d.Name
}

// Mergeable reports whether d and other share a name and every hash
// algorithm present in both agrees (spec.md §3).
func (d Descriptor) Mergeable(other Descriptor) bool {
	if d.Name != other.Name {
		return false
	}
	return d.Hashes.Compare(other.Hashes) != hashes.Mismatch
}
