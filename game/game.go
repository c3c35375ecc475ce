/*
Package game implements the reference-catalog game record (spec.md
§3): a unique name, optional description, parallel rom/sample role
views each carrying parent/grandparent names, an ordered file list and
a clone-name list, plus an ordered disk list.
*/
package game

import (
	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/hashes"
)

// Role selects which of a game's two parallel hierarchies a RoleView
// belongs to.
type Role int

const (
	// ROM is the role view for a game's ROM files.
	ROM Role = iota
	// Sample is the role view for a game's sample files.
	Sample
)

func (r Role) String() string {
	if r == Sample {
		return "sample"
	}
	return "rom"
}

// Disk describes one disk image: a name and its digest set.
type Disk struct {
	Name   string
	Hashes hashes.Set
}

// RoleView holds one role's (rom or sample) family relationships and
// file list.
type RoleView struct {
	ParentName      string
	GrandparentName string
	Files           []file.Descriptor
	Clones          []string
}

// Game is one entry in the reference catalog.
type Game struct {
	Name        string
	Description string
	DatNo       int

	ROM    RoleView
	Sample RoleView

	Disks []Disk
}

// View returns a pointer to the role view named by r, so callers can
// write generic code over either hierarchy.
func (g *Game) View(r Role) *RoleView {
	if r == Sample {
		return &g.Sample
	}
	return &g.ROM
}

// ClearSelfParent implements spec.md §3's silent cycle break: a game
// whose own name is given as its romof/sampleof parent is treated as
// a root instead.
func (v *RoleView) ClearSelfParent(name string) {
	if v.ParentName == name {
		v.ParentName = ""
	}
}

// IsLost reports whether v's parent is set but not yet resolved,
// i.e. every one of v's own files is still at file.InZip (spec.md
// §4.C: "all its own ROMs have where == IN-ZIP").
func (v RoleView) IsLost() bool {
	if v.ParentName == "" {
		return false
	}
	for _, f := range v.Files {
		if f.Where != file.InZip {
			return false
		}
	}
	return true
}
