/*
Package hashindex implements the in-memory multi-index the matcher
uses to find a donor byte-for-byte identical to a missing ROM
anywhere in the tree (spec.md §4.B): a mapping from (algorithm,
digest) to a set of references, plus a secondary (size, partial-CRC)
index for disambiguating ROMs with a known size but missing hashes.
*/
package hashindex

import (
	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashes"
)

// Location classifies where a Ref's archive sits relative to the set
// being checked, so the matcher can tell a donor worth copying
// (spec.md §4.I's COPIED) from a stale duplicate worth deleting (OLD).
type Location int

const (
	// LocationSet is the ROM set being checked itself (another
	// game's archive).
	LocationSet Location = iota
	// LocationNeeded is the sidecar ".needed" directory holding
	// files kept for a not-yet-resolved parent.
	LocationNeeded
	// LocationExtra is a user-supplied extra donor directory.
	LocationExtra
	// LocationOld is the old reference database's tree.
	LocationOld
)

// Ref identifies one file occurrence: which archive, which index
// within it, whether it is a rom or sample file, and where that
// archive sits relative to the set being checked.
type Ref struct {
	Archive  string
	Index    int
	Role     game.Role
	Location Location
}

type digestKey struct {
	kind   hashes.Kind
	digest string
}

type sizeCRCKey struct {
	size uint64
	crc  string
}

// Index is populated incrementally as archives are first scanned
// (spec.md §5) and is not safe for concurrent use. It is not a
// singleton: each New call returns an independent Index.
type Index struct {
	byDigest  map[digestKey][]Ref
	bySizeCRC map[sizeCRCKey][]Ref
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		byDigest:  make(map[digestKey][]Ref),
		bySizeCRC: make(map[sizeCRCKey][]Ref),
	}
}

// Add records ref as holding the given size and digest set. spec.md
// §9's conservative default for the BROKEN-as-donor open question is
// enforced by callers simply never calling Add for a broken file.
func (x *Index) Add(ref Ref, size uint64, h hashes.Set) {
	for _, k := range h.KindsPresent() {
		b, _ := h.Get(k)
		key := digestKey{kind: k, digest: string(b)}
		x.byDigest[key] = append(x.byDigest[key], ref)
	}

	if crc, ok := h.Get(hashes.CRC32); ok {
		key := sizeCRCKey{size: size, crc: string(crc)}
		x.bySizeCRC[key] = append(x.bySizeCRC[key], ref)
	}
}

// Lookup tries h's digests in CRC32, MD5, SHA1 order and returns the
// Refs indexed under the first one that has any
// (original_source/file_by_hash.c's fallback order). Only that one
// digest is compared: the other digests of a returned Ref are not
// checked against h.
func (x *Index) Lookup(h hashes.Set) []Ref {
	for _, k := range []hashes.Kind{hashes.CRC32, hashes.MD5, hashes.SHA1} {
		b, ok := h.Get(k)
		if !ok {
			continue
		}
		if refs := x.byDigest[digestKey{kind: k, digest: string(b)}]; len(refs) > 0 {
			return refs
		}
	}
	return nil
}

// LookupSizeCRC returns every Ref with the given size whose CRC-32
// matches, used to disambiguate a ROM that is known by size and CRC
// alone.
func (x *Index) LookupSizeCRC(size uint64, crc []byte) []Ref {
	return x.bySizeCRC[sizeCRCKey{size: size, crc: string(crc)}]
}

// Remove drops every reference into the named archive, used when an
// archive's contents have been invalidated by a mutation and must be
// rescanned.
func (x *Index) Remove(archive string) {
	for k, refs := range x.byDigest {
		x.byDigest[k] = filterRefs(refs, archive)
	}
	for k, refs := range x.bySizeCRC {
		x.bySizeCRC[k] = filterRefs(refs, archive)
	}
}

func filterRefs(refs []Ref, archive string) []Ref {
	out := refs[:0]
	for _, r := range refs {
		if r.Archive != archive {
			out = append(out, r)
		}
	}
	return out
}
