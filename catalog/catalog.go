package catalog

import (
	"fmt"
	"io"

	"github.com/bodgit/ckmame/ckerr"
	"github.com/bodgit/ckmame/game"
)

// Result is everything Ingest produces from one datfile stream.
type Result struct {
	Games    []*game.Game
	Prog     Prog
	Warnings []string

	// Dangling holds the parent names that never resolved after the
	// worklist converged (spec.md §4.C): reported, not fatal.
	Dangling []string
}

// Ingest parses a listinfo-style datfile from r, builds the game set
// and resolves the romof/sampleof family DAG. A true cycle of length
// >= 2 is reported through Dangling, never as an error. Ingest returns
// an error only when reading r fails or when two games share a name.
func Ingest(r io.Reader) (*Result, error) {
	p := newParser(r)
	games, prog, warnings, err := p.parse()
	if err != nil {
		return nil, ckerr.New(ckerr.Def, "", "", err)
	}

	if dup := findDuplicateName(games); dup != "" {
		return nil, ckerr.New(ckerr.Def, "", "", fmt.Errorf("duplicate game name %q", dup))
	}

	dangling := resolveFamilies(games)

	return &Result{
		Games:    games,
		Prog:     prog,
		Warnings: warnings,
		Dangling: dangling,
	}, nil
}

func findDuplicateName(games []*game.Game) string {
	seen := make(map[string]bool, len(games))
	for _, g := range games {
		if seen[g.Name] {
			return g.Name
		}
		seen[g.Name] = true
	}
	return ""
}
