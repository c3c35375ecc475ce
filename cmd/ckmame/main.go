package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/bodgit/ckmame/catalog"
	"github.com/bodgit/ckmame/check"
	"github.com/bodgit/ckmame/dircache"
	"github.com/bodgit/ckmame/fix"
	"github.com/bodgit/ckmame/fixdat"
	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashindex"
	"github.com/bodgit/ckmame/kvstore"
	"github.com/bodgit/ckmame/sweep"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func defaultRomDBPath() string {
	path, err := xdg.CacheFile(filepath.Join("ckmame", "romdb.sqlite3"))
	if err != nil {
		return "romdb.sqlite3"
	}
	return path
}

func openDB(c *cli.Context, flag string, readOnly bool) (*kvstore.DB, error) {
	path := c.String(flag)
	if path == "" {
		return nil, nil
	}
	open := kvstore.OpenSQLiteStore
	if readOnly {
		open = kvstore.OpenSQLiteStoreReadOnly
	}
	store, err := open(path)
	if err != nil {
		return nil, err
	}
	return kvstore.Open(store), nil
}

// importDat ingests a listinfo datfile into the romdb, per spec.md
// §4.C/§6's /prog and game-list records.
func importDat(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer f.Close()

	result, err := catalog.Ingest(f)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(color.Error, color.YellowString("warning:"), w)
	}
	for _, d := range result.Dangling {
		fmt.Fprintln(color.Error, color.YellowString("warning:"), "dangling parent", d)
	}

	db, err := openDB(c, "romdb-name", false)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer db.Close()

	if err := db.PutGames(result.Games); err != nil {
		return cli.NewExitError(err, 1)
	}

	if err := db.SetProg(kvstore.Prog{Name: result.Prog.Name, Version: result.Prog.Version}); err != nil {
		return cli.NewExitError(err, 1)
	}

	if err := recordDatEntry(db, c.Args().First(), result.Prog); err != nil {
		return cli.NewExitError(err, 1)
	}

	fmt.Printf("imported %d games\n", len(result.Games))
	return nil
}

// recordDatEntry appends (or replaces, by name) this import's entry in
// the /dat list (spec.md §6: "list of (name, description, version) dat
// entries"), keyed by the datfile's own basename since the catalog
// format carries no dat-level description distinct from the emulator
// block.
func recordDatEntry(db *kvstore.DB, path string, prog catalog.Prog) error {
	entries, err := db.DatEntries()
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	entry := kvstore.DatEntry{Name: name, Description: prog.Name, Version: prog.Version}

	replaced := false
	for i, e := range entries {
		if e.Name == name {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	return db.SetDatEntries(entries)
}

func loadGames(db *kvstore.DB, names []string) ([]*game.Game, error) {
	games := make([]*game.Game, 0, len(names))
	for _, name := range names {
		g, err := db.GetGame(name)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

func defaultDirCachePath() string {
	path, err := xdg.CacheFile(filepath.Join("ckmame", ".ckmame.db"))
	if err != nil {
		return ".ckmame.db"
	}
	return path
}

func buildIndex(c *cli.Context, romDir string) (*hashindex.Index, *dircache.Cache, error) {
	idx := hashindex.New()

	cache, err := dircache.Manager(c.String("cache-db"))
	if err != nil {
		return nil, nil, err
	}

	for _, dir := range c.StringSlice("extra-directories") {
		if err := hashindex.Scan(idx, dir, game.ROM, hashindex.LocationExtra, cache); err != nil {
			return nil, nil, err
		}
	}

	if old := c.String("olddb-name"); old != "" {
		if err := hashindex.Scan(idx, old, game.ROM, hashindex.LocationOld, cache); err != nil {
			return nil, nil, err
		}
	}

	needed := filepath.Join(romDir, ".needed")
	if _, err := os.Stat(needed); err == nil {
		if err := hashindex.Scan(idx, needed, game.ROM, hashindex.LocationNeeded, cache); err != nil {
			return nil, nil, err
		}
	}

	return idx, cache, nil
}

// runCheck implements the core "check, and optionally fix" pass
// spec.md §4.K/§6 describe.
func runCheck(c *cli.Context) error {
	db, err := openDB(c, "romdb-name", true)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if db == nil {
		return cli.NewExitError("romdb-name is required", 1)
	}
	defer db.Close()

	var names []string
	if gl := c.String("game-list"); gl != "" {
		b, err := os.ReadFile(gl)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		for _, line := range splitLines(string(b)) {
			if line != "" {
				names = append(names, line)
			}
		}
	} else {
		names, err = db.ListGames()
		if err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	games, err := loadGames(db, names)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	romDir := c.String("rom-directory")

	idx, cache, err := buildIndex(c, romDir)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer cache.Close()

	sw := sweep.New(sweep.Config{
		RomDirectory:      romDir,
		RomsZipped:        c.Bool("roms-zipped"),
		Fix:               c.Bool("fix"),
		CompleteGamesOnly: c.Bool("complete-games-only"),
		DirCache:          cache,
		Options: fix.Options{
			MoveLong:         true,
			DeleteFound:      c.Bool("move-from-extra"),
			KeepOldDuplicate: c.Bool("keep-old-duplicate"),
		},
	}, idx)

	reports, err := sw.Run(games)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	checksByGame := make(map[string][]check.FileCheck, len(reports))
	for _, r := range reports {
		checksByGame[r.Name] = r.ROM
	}

	printReports(c, reports)

	lists := sw.DeleteLists()
	if c.Bool("report-summary") || c.Bool("verbose") {
		for _, path := range lists.Superfluous {
			fmt.Printf("superfluous %s\n", path)
		}
		for _, e := range lists.Extra {
			fmt.Printf("unknown file %s in %s\n", e.Name, e.Archive)
		}
	}
	if c.Bool("superfluous") {
		if err := sw.Cleanup(); err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	if out := c.String("fixdat"); out != "" {
		names := make([]string, 0, len(reports))
		for _, r := range reports {
			names = append(names, r.Name)
		}
		d := fixdat.Build("ckmame-fixdat", "still missing after check", names, checksByGame)

		f, err := os.Create(out)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		defer f.Close()

		if err := fixdat.Write(f, d); err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	return nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, trimCR(s[start:i]))
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, trimCR(s[start:]))
	}
	return out
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

func printReports(c *cli.Context, reports []sweep.GameReport) {
	showSummary := c.Bool("report-summary") || !anyDetailFlag(c)

	if showSummary {
		var correct, fixable, partial, old, missing int
		for _, r := range reports {
			switch r.Status {
			case check.Correct:
				correct++
			case check.Fixable:
				fixable++
			case check.Partial:
				partial++
			case check.StatusOld:
				old++
			case check.StatusMissing:
				missing++
			}
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Status", "Games"})
		table.Append([]string{"correct", humanize.Comma(int64(correct))})
		table.Append([]string{"fixable", humanize.Comma(int64(fixable))})
		table.Append([]string{"partial", humanize.Comma(int64(partial))})
		table.Append([]string{"old", humanize.Comma(int64(old))})
		table.Append([]string{"missing", humanize.Comma(int64(missing))})
		table.Render()
	}

	for _, r := range reports {
		if !shouldReport(c, r.Status) {
			continue
		}

		line := fmt.Sprintf("%-20s %s", r.Name, r.Status)
		switch r.Status {
		case check.Correct:
			fmt.Println(color.GreenString(line))
		case check.StatusMissing:
			fmt.Println(color.RedString(line))
		default:
			fmt.Println(color.YellowString(line))
		}

		if r.Err != nil {
			fmt.Fprintln(color.Error, color.RedString("  error: %v", r.Err))
		}

		if c.Bool("report-detailed") {
			for _, fc := range r.ROM {
				size := humanize.Bytes(fc.Expected.Size)
				fmt.Printf("  %-20s %-8s %s\n", fc.Expected.EffectiveName(), fc.Result, size)
			}
		}

		if c.Bool("verbose") && r.Fixed {
			for _, fc := range r.ROM {
				switch fc.Result {
				case check.NameErr, check.Long, check.Copied, check.Old:
					fmt.Printf("  fixed %-20s (%s)\n", fc.Expected.EffectiveName(), fc.Result)
				}
			}
		}
	}
}

func anyDetailFlag(c *cli.Context) bool {
	return c.Bool("report-correct") || c.Bool("report-detailed") ||
		c.Bool("report-fixable") || c.Bool("report-missing")
}

func shouldReport(c *cli.Context, status check.GameStatus) bool {
	if !anyDetailFlag(c) {
		return true
	}
	switch status {
	case check.Correct:
		return c.Bool("report-correct")
	case check.Fixable, check.Partial:
		return c.Bool("report-fixable")
	case check.StatusMissing:
		return c.Bool("report-missing")
	default:
		return true
	}
}

func main() {
	app := cli.NewApp()

	app.Name = "ckmame"
	app.Usage = "check and repair an arcade ROM set against a reference catalog"
	app.Version = "1.0.0"

	checkFlags := []cli.Flag{
		&cli.StringFlag{Name: "romdb-name", Usage: "reference catalog database", Value: defaultRomDBPath()},
		&cli.StringFlag{Name: "olddb-name", Usage: "old/retired reference database"},
		&cli.StringFlag{Name: "rom-directory", Usage: "ROM set directory", Value: "roms"},
		&cli.StringSliceFlag{Name: "extra-directories", Usage: "additional donor directories"},
		&cli.StringFlag{Name: "game-list", Usage: "file listing game names to check, one per line"},
		&cli.StringFlag{Name: "cache-db", Usage: "persistent donor-directory listing cache", Value: defaultDirCachePath()},
		&cli.StringFlag{Name: "fixdat", Usage: "write an XML fixdat of still-missing ROMs to `PATH`"},
		&cli.BoolFlag{Name: "fix", Usage: "repair the ROM set in place"},
		&cli.BoolFlag{Name: "complete-games-only", Usage: "do not fix games that would still have missing files (partial games)"},
		&cli.BoolFlag{Name: "keep-old-duplicate", Usage: "do not delete files duplicated in the old database"},
		&cli.BoolFlag{Name: "move-from-extra", Usage: "delete donor files from extra directories after copying"},
		&cli.BoolFlag{Name: "superfluous", Usage: "delete archives/directories with no matching game (default: report only)"},
		&cli.BoolFlag{Name: "roms-zipped", Usage: "ROM set archives are zip files rather than directories", Value: true},
		&cli.BoolFlag{Name: "report-correct"},
		&cli.BoolFlag{Name: "report-detailed"},
		&cli.BoolFlag{Name: "report-fixable"},
		&cli.BoolFlag{Name: "report-missing"},
		&cli.BoolFlag{Name: "report-summary"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "import",
			Usage:     "import a listinfo datfile into the reference database",
			ArgsUsage: "DATFILE",
			Action:    importDat,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "romdb-name", Usage: "reference catalog database", Value: defaultRomDBPath()},
			},
		},
		{
			Name:   "check",
			Usage:  "check (and optionally fix) a ROM set against the reference database",
			Action: runCheck,
			Flags:  checkFlags,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
