/*
Package sweep implements the top-level orchestration (spec.md §4.K /
§5): walk the resolved game set, classify and optionally fix each one,
respecting a cooperative cancellation flag checked between archives,
and accumulate the three append-only delete lists (superfluous /
needed / extra).
*/
package sweep

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bodgit/ckmame/archive"
	"github.com/bodgit/ckmame/check"
	"github.com/bodgit/ckmame/dircache"
	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/fix"
	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashes"
	"github.com/bodgit/ckmame/hashindex"
	"github.com/pkg/errors"
)

// Config is the subset of spec.md §6's configuration record that
// changes how the sweep itself behaves, as opposed to how the fix
// planner decides what to do once a classification is in hand.
type Config struct {
	RomDirectory string
	RomsZipped   bool
	Fix          bool

	// CompleteGamesOnly skips fixing a game whose classification is
	// check.Partial: some files resolve, some are genuinely Missing,
	// so fixing it would still leave an incomplete game (spec.md §6's
	// complete-games-only, tracing FIX_COMPLETE_GAMES in the original:
	// "complete in old or complete in roms").
	CompleteGamesOnly bool

	Options fix.Options

	// DirCache, if set, is invalidated for any directory donor a Copy
	// item deletes from (spec.md §5: a mutation "changes a directory's
	// contents out from under the cache"). May be nil.
	DirCache *dircache.Cache
}

// GameReport is one game's outcome from a sweep pass.
type GameReport struct {
	Name   string
	Status check.GameStatus
	ROM    []check.FileCheck
	Sample []check.FileCheck
	Fixed  bool
	Err    error
}

// ExtraFile is one unmatched file found inside an otherwise-legitimate
// game archive: content the catalog does not expect at all, alongside
// content that does (so, unlike Superfluous, the whole archive is
// never a deletion candidate).
type ExtraFile struct {
	Archive string
	Index   int
	Name    string
}

// DeleteLists are the three append-only worklists spec.md §5
// describes: populated during traversal, executed once at the end via
// Cleanup.
type DeleteLists struct {
	// Superfluous holds whole archives/directories with no catalog
	// game name at all: safe to remove outright.
	Superfluous []string

	// Needed lists the current contents of the rom directory's
	// ".needed" sidecar (spec.md §6), traced from the original's
	// final `list_directory(needed_dir, "")` pass; this repository
	// does not attempt the original's deeper "still needed elsewhere"
	// reachability analysis (see DESIGN.md), so these are reported as
	// cleanup candidates, not deleted automatically by Cleanup.
	Needed []string

	// Extra holds unmatched files inside otherwise-legitimate game
	// archives, found during a check-only pass (no Fix): a Fix pass
	// quarantines these itself, inline, as it commits each game's other
	// changes, so Extra only accumulates when nothing has touched the
	// archive yet (spec.md §4.J, "unknown file in archive").
	Extra []ExtraFile
}

// Sweep holds the shared, process-wide state one sweep pass
// coordinates: the hash index and a cooperative cancellation flag.
type Sweep struct {
	cfg       Config
	index     *hashindex.Index
	cancelled int32

	deletes DeleteLists

	ancestorCache map[string]archive.Archive

	// wanted indexes every hash the catalog names anywhere in the
	// current game set, built fresh at the start of each Run; an
	// unmatched archive file whose hash appears here is promoted to
	// the needed pool instead of quarantined, since some other game
	// (possibly not yet rechecked) still wants those bytes.
	wanted *hashindex.Index

	// neededPromoted records whether this Run's first traversal moved
	// anything into the needed pool, gating the second traversal
	// spec.md line 128 requires.
	neededPromoted bool
}

// New returns a Sweep ready to Run over a resolved game set.
func New(cfg Config, index *hashindex.Index) *Sweep {
	return &Sweep{cfg: cfg, index: index, ancestorCache: make(map[string]archive.Archive)}
}

// Cancel requests the sweep stop at the next archive boundary,
// per spec.md §5's cooperative cancellation model.
func (s *Sweep) Cancel() {
	atomic.StoreInt32(&s.cancelled, 1)
}

func (s *Sweep) isCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) != 0
}

// Run classifies (and, if Config.Fix is set, fixes) every game in
// games, in order, stopping early if Cancel was called. A per-game
// failure is recorded in that game's report and traversal continues;
// only a failure rescanning the ".needed" sidecar between the passes,
// or listing the rom directory or the sidecar at the end, aborts the
// whole run.
//
// Two full traversals happen when fixing: the first applies primary
// plans, promoting any archive content this run doesn't need but some
// other game's descriptor still names into the ".needed" sidecar
// (spec.md line 128); the second re-classifies and re-fixes every game
// pass one left Fixable or StatusMissing, now that those promoted
// files have been rescanned into the hash index as donors.
func (s *Sweep) Run(games []*game.Game) ([]GameReport, error) {
	reports := make([]GameReport, 0, len(games))

	byName := make(map[string]*game.Game, len(games))
	for _, g := range games {
		byName[g.Name] = g
	}

	s.wanted = hashindex.New()
	for _, g := range games {
		for i, f := range g.ROM.Files {
			if f.Hashes.Empty() {
				continue
			}
			s.wanted.Add(hashindex.Ref{Archive: g.Name, Index: i, Role: game.ROM, Location: hashindex.LocationSet}, f.Size, f.Hashes)
		}
	}
	s.neededPromoted = false

	known := make(map[string]bool, len(games))

	for _, g := range games {
		if s.isCancelled() {
			break
		}

		known[g.Name] = true
		reports = append(reports, s.checkOneGame(g, byName))
	}

	s.closeAncestorCache()

	if s.cfg.Fix && s.neededPromoted && !s.isCancelled() {
		if err := s.rescanNeeded(); err != nil {
			return reports, errors.Wrap(err, "sweep: rescanning .needed sidecar after first pass")
		}

		for i, g := range games {
			if s.isCancelled() {
				break
			}
			switch reports[i].Status {
			case check.Fixable, check.StatusMissing:
				reports[i] = s.checkOneGame(g, byName)
			}
		}

		s.closeAncestorCache()
	}

	if err := s.findSuperfluous(known); err != nil {
		return reports, errors.Wrap(err, "sweep: scanning rom directory for superfluous archives")
	}

	if err := s.findNeeded(); err != nil {
		return reports, errors.Wrap(err, "sweep: scanning .needed sidecar directory")
	}

	return reports, nil
}

// rescanNeeded indexes the ".needed" sidecar's current contents (just
// populated by pass one's MoveNeeded items) as LocationNeeded donors,
// so pass two's checkOneGame calls can find them.
func (s *Sweep) rescanNeeded() error {
	dir := filepath.Join(s.cfg.RomDirectory, ".needed")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := hashindex.Scan(s.index, dir, game.ROM, hashindex.LocationNeeded, s.cfg.DirCache); err != nil {
		return err
	}

	// Scan indexes only leaf sub-directories and zip files; the plain
	// files MoveNeeded writes directly into dir are indexed here.
	arc, err := archive.OpenDir(dir, archive.ROM, archive.ReadOnly, 0)
	if err != nil {
		return err
	}
	defer arc.Close()
	for i, f := range arc.Files() {
		h, err := fileHashes(arc, i, f)
		if err != nil {
			return err
		}
		s.index.Add(hashindex.Ref{Archive: dir, Index: i, Role: game.ROM, Location: hashindex.LocationNeeded}, f.Size, h)
	}
	return nil
}

func (s *Sweep) checkOneGame(g *game.Game, byName map[string]*game.Game) GameReport {
	rep := GameReport{Name: g.Name}

	mode := archive.ReadOnly
	if s.cfg.Fix {
		mode = archive.ReadWrite
	}

	arc, err := s.openGameArchive(g.Name, mode)
	if err != nil {
		rep.Err = err
		return rep
	}
	defer arc.Close()

	romStatus, romChecks, err := check.ClassifyGame(&g.ROM, s.lookupFor(g, game.ROM, arc, byName), s.index)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Status = romStatus
	rep.ROM = romChecks

	// Snapshot before fix.Execute mutates arc: UnmatchedIndices must
	// line up against the same listing romChecks was computed from,
	// since a commit can renumber entries.
	preFixFiles := arc.Files()

	if len(g.Sample.Files) > 0 {
		sampleArc, err := s.openSampleArchive(g.Name, mode)
		if err == nil {
			defer sampleArc.Close()
			_, sampleChecks, err := check.ClassifyGame(&g.Sample, s.lookupFor(g, game.Sample, sampleArc, byName), s.index)
			if err == nil {
				rep.Sample = sampleChecks
			}
		}
	}

	if s.cfg.Fix && !(s.cfg.CompleteGamesOnly && romStatus == check.Partial) {
		items := fix.Plan(romChecks, s.cfg.Options)

		var garbage, needed archive.Archive
		if unmatched := fix.UnmatchedIndices(preFixFiles, romChecks); len(unmatched) > 0 {
			for _, idx := range unmatched {
				h, herr := fileHashes(arc, idx, preFixFiles[idx])
				action := fix.Quarantine
				if herr == nil && len(s.wanted.Lookup(h)) > 0 {
					action = fix.MoveNeeded
				}

				switch action {
				case fix.MoveNeeded:
					if needed == nil {
						var err error
						needed, err = s.openNeededArchive()
						if err != nil {
							rep.Err = err
							return rep
						}
						defer needed.Close()
					}
					s.neededPromoted = true
				default:
					if garbage == nil {
						var err error
						garbage, err = s.openGarbageArchive(g.Name)
						if err != nil {
							rep.Err = err
							return rep
						}
						defer garbage.Close()
					}
				}

				items = append(items, fix.Item{
					Action:      action,
					SourceIndex: idx,
					DestName:    preFixFiles[idx].Name,
				})
			}
		}

		if len(items) > 0 {
			if err := fix.Execute(arc, items, s.openDonor, garbage, needed); err != nil {
				rep.Err = err
				return rep
			}
			rep.Fixed = true

			if s.cfg.DirCache != nil {
				for _, item := range items {
					if item.DeleteDonor && item.Donor != nil {
						_ = s.cfg.DirCache.Invalidate(item.Donor.Archive)
					}
				}
			}
		}
	} else {
		// Check-only pass (or a Partial game skipped by
		// CompleteGamesOnly): nothing mutates the archive, so these
		// are reported as cleanup candidates rather than quarantined
		// immediately.
		for _, idx := range fix.UnmatchedIndices(preFixFiles, romChecks) {
			s.deletes.Extra = append(s.deletes.Extra, ExtraFile{
				Archive: g.Name,
				Index:   idx,
				Name:    preFixFiles[idx].Name,
			})
		}
	}

	return rep
}

// openGarbageArchive opens (creating if necessary) the sibling archive
// that receives files Execute quarantines: content the catalog does
// not expect at all, kept out of the real rom tree but not destroyed
// outright (spec.md §4.J, tracing original_source/src/garbage.c).
func (s *Sweep) openGarbageArchive(name string) (archive.Archive, error) {
	dir := filepath.Join(s.cfg.RomDirectory, ".unknown")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if s.cfg.RomsZipped {
		return archive.OpenZip(filepath.Join(dir, name+".zip"), archive.ROM, archive.ReadWrite, 0)
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return archive.OpenDir(path, archive.ROM, archive.ReadWrite, 0)
}

// openNeededArchive opens (creating if necessary) the flat ".needed"
// sidecar directory a MoveNeeded item promotes content into: plain
// files directly inside it rather than one sub-archive per game,
// matching original_source/src/ckmame.cc's single needed_dir tree and
// findNeeded's/rescanNeeded's expectations of that same shape.
func (s *Sweep) openNeededArchive() (archive.Archive, error) {
	dir := filepath.Join(s.cfg.RomDirectory, ".needed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return archive.OpenDir(dir, archive.ROM, archive.ReadWrite, 0)
}

// fileHashes returns the best available digest set for archive index i
// without rehashing a file the archive already knows the digest for
// (e.g. a zip entry's embedded CRC-32), mirroring check.candidateHashes.
func fileHashes(arc archive.Archive, i int, f archive.File) (hashes.Set, error) {
	if !f.Hashes.Empty() {
		return f.Hashes, nil
	}
	rc, err := arc.FileOpen(i)
	if err != nil {
		return hashes.Set{}, err
	}
	defer rc.Close()
	return archive.ComputeHashes(rc)
}

// lookupFor builds an ArchiveLookup that resolves file.InZip to arc
// itself and ancestor distances 1/2 to the parent/grandparent game's
// own archive, opened lazily and cached for the rest of the sweep
// (spec.md §4.C's RoleView only carries parent and grandparent names,
// so no deeper ancestor distance is representable).
func (s *Sweep) lookupFor(g *game.Game, role game.Role, arc archive.Archive, byName map[string]*game.Game) check.ArchiveLookup {
	v := g.View(role)

	return func(where file.Where) (archive.Archive, bool, error) {
		switch where {
		case file.InZip:
			return arc, true, nil
		case file.InParent:
			if v.ParentName == "" {
				return nil, false, nil
			}
			a, err := s.ancestorArchive(v.ParentName)
			return a, a != nil, err
		case file.Where(2):
			if v.GrandparentName == "" {
				return nil, false, nil
			}
			a, err := s.ancestorArchive(v.GrandparentName)
			return a, a != nil, err
		default:
			return nil, false, nil
		}
	}
}

func (s *Sweep) ancestorArchive(name string) (archive.Archive, error) {
	if a, ok := s.ancestorCache[name]; ok {
		return a, nil
	}
	a, err := s.openGameArchive(name, archive.ReadOnly)
	if err != nil {
		s.ancestorCache[name] = nil
		return nil, nil
	}
	s.ancestorCache[name] = a
	return a, nil
}

func (s *Sweep) closeAncestorCache() {
	for _, a := range s.ancestorCache {
		if a != nil {
			a.Close()
		}
	}
	s.ancestorCache = make(map[string]archive.Archive)
}

func (s *Sweep) openGameArchive(name string, mode archive.Mode) (archive.Archive, error) {
	if s.cfg.RomsZipped {
		return archive.OpenZip(filepath.Join(s.cfg.RomDirectory, name+".zip"), archive.ROM, mode, 0)
	}
	return archive.OpenDir(filepath.Join(s.cfg.RomDirectory, name), archive.ROM, mode, 0)
}

func (s *Sweep) openSampleArchive(name string, mode archive.Mode) (archive.Archive, error) {
	if s.cfg.RomsZipped {
		return archive.OpenZip(filepath.Join(s.cfg.RomDirectory, name+".zip"), archive.Sample, mode, 0)
	}
	return archive.OpenDir(filepath.Join(s.cfg.RomDirectory, name), archive.Sample, mode, 0)
}

func (s *Sweep) openDonor(path string) (archive.Archive, error) {
	mode := archive.ReadOnly
	if s.cfg.Options.DeleteFound {
		mode = archive.ReadWrite
	}
	if s.cfg.RomsZipped {
		return archive.OpenZip(path, archive.ROM, mode, 0)
	}
	return archive.OpenDir(path, archive.ROM, mode, 0)
}

// findSuperfluous records every archive in the rom directory that has
// no corresponding catalog game name at all (spec.md §4.J: "superfluous
// archive/directory with no matched files").
func (s *Sweep) findSuperfluous(known map[string]bool) error {
	entries, err := os.ReadDir(s.cfg.RomDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			// Sidecar directories (.needed, .unknown) and the cache
			// database live alongside the game archives but are never
			// themselves deletion candidates.
			continue
		}
		base := name
		if s.cfg.RomsZipped {
			if filepath.Ext(name) != ".zip" {
				continue
			}
			base = name[:len(name)-len(".zip")]
		} else if !e.IsDir() {
			continue
		}

		if !known[base] {
			s.deletes.Superfluous = append(s.deletes.Superfluous, filepath.Join(s.cfg.RomDirectory, name))
		}
	}

	return nil
}

// findNeeded lists every regular file currently sitting in the rom
// directory's ".needed" sidecar, traced from the original's final
// `list_directory(needed_dir, "")` pass (original_source/src/ckmame.cc).
// Unlike findSuperfluous, nothing here judges whether an entry is
// still required elsewhere; Cleanup leaves these files in place.
func (s *Sweep) findNeeded() error {
	root := filepath.Join(s.cfg.RomDirectory, ".needed")

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		s.deletes.Needed = append(s.deletes.Needed, path)
		return nil
	})
}

// DeleteLists returns the accumulated append-only worklists for the
// caller to execute once the sweep has finished.
func (s *Sweep) DeleteLists() DeleteLists {
	return s.deletes
}

// Cleanup executes the Superfluous worklist (spec.md §5: "executed
// once at the end"), removing every whole archive/directory that
// matched no catalog game name at all. Needed and Extra are left for
// the caller to report or act on separately: Needed because this
// repository doesn't attempt the original's reachability analysis
// (see DESIGN.md), and Extra because it was already handled, per
// game, by the in-place Quarantine items checkOneGame adds to a Fix
// pass's plan — Cleanup's Extra entries exist only for a check-only
// run, where nothing has touched the archive yet.
func (s *Sweep) Cleanup() error {
	for _, path := range s.deletes.Superfluous {
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "sweep: removing superfluous %s", path)
		}
	}
	return nil
}
