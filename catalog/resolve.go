package catalog

import (
	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashes"
)

const hashesMismatch = hashes.Mismatch

// lostChild is a queued game waiting on one or both of its
// romof/sampleof parents to resolve (spec.md §4.C).
type lostChild struct {
	g          *game.Game
	needROM    bool
	needSample bool
}

// resolveFamilies implements the two-pass worklist: iterate until a
// full pass makes no progress, then report whatever is left as
// dangling parents.
func resolveFamilies(games []*game.Game) (dangling []string) {
	byName := make(map[string]*game.Game, len(games))
	for _, g := range games {
		g.ROM.ClearSelfParent(g.Name)
		g.Sample.ClearSelfParent(g.Name)
		byName[g.Name] = g
	}

	var queue []*lostChild
	for _, g := range games {
		lc := &lostChild{g: g}
		lc.needROM = g.ROM.ParentName != ""
		lc.needSample = g.Sample.ParentName != ""
		if lc.needROM || lc.needSample {
			queue = append(queue, lc)
		}
	}

	for {
		progress := false
		var remaining []*lostChild

		for _, lc := range queue {
			if lc.needROM {
				if resolveOne(byName, lc.g, game.ROM) {
					lc.needROM = false
					progress = true
				}
			}
			if lc.needSample {
				if resolveOne(byName, lc.g, game.Sample) {
					lc.needSample = false
					progress = true
				}
			}
			if lc.needROM || lc.needSample {
				remaining = append(remaining, lc)
			}
		}

		queue = remaining
		if !progress || len(queue) == 0 {
			break
		}
	}

	for _, lc := range queue {
		if lc.needROM {
			dangling = append(dangling, lc.g.ROM.ParentName)
		}
		if lc.needSample {
			dangling = append(dangling, lc.g.Sample.ParentName)
		}
	}

	return dangling
}

// resolveOne attempts the "family meeting" for one role view of one
// child; it returns false if the parent is itself still lost.
func resolveOne(byName map[string]*game.Game, child *game.Game, role game.Role) bool {
	cv := child.View(role)
	parent, ok := byName[cv.ParentName]
	if !ok {
		return false
	}

	pv := parent.View(role)
	if pv.IsLost() {
		return false
	}

	pv.Clones = append(pv.Clones, child.Name)
	cv.GrandparentName = pv.ParentName

	for i := range cv.Files {
		cf := &cv.Files[i]
		if cf.Where != file.InZip {
			continue
		}
		effective := cf.EffectiveName()
		for _, pf := range pv.Files {
			if pf.Name == effective && cf.Hashes.Compare(pf.Hashes) != hashesMismatch {
				cf.Where = pf.Where.Up()
				break
			}
		}
	}

	return true
}
