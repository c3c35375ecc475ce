package kvstore

import (
	"errors"
	"sort"
	"strings"

	"github.com/bodgit/ckmame/game"
)

// Well-known key names and prefixes, spec.md §6.
const (
	keyList     = "/list"
	keyListKind = "/list/"
	keyProg     = "/prog"
	keyDat      = "/dat"
	keyDetector = "/detector"
)

// Kind names used under /list/<kind>.
const (
	KindGame   = "game"
	KindDisk   = "disk"
	KindSample = "sample"
)

// ErrDanglingParent describes a romof/sampleof parent that never
// resolves, spec.md §4.C. No DB method returns or records it; the
// catalog ingester reports such parents in catalog.Result.Dangling.
var ErrDanglingParent = errors.New("kvstore: dangling parent reference")

// Prog is the /prog record: emulator name and version.
type Prog struct {
	Name    string
	Version string
}

// DatEntry is one entry of the /dat list.
type DatEntry struct {
	Name        string
	Description string
	Version     string
}

// DB is the typed façade over a Store, encoding and decoding games
// and metadata per spec.md §6.
type DB struct {
	store Store
}

// Open wraps an already-open Store.
func Open(store Store) *DB {
	return &DB{store: store}
}

// Close closes the underlying store.
func (db *DB) Close() error {
	return db.store.Close()
}

func joinStrings(ss []string) []byte {
	return []byte(strings.Join(ss, "\n"))
}

func splitStrings(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	return strings.Split(string(b), "\n")
}

// PutGame stores g as a single-game batch. The catalog ingester
// writes the whole resolved game set once via PutGames instead; this
// is for callers (tests, incremental tools) that maintain one game at
// a time against an already-populated database.
func (db *DB) PutGame(g *game.Game) error {
	names, err := db.ListGames()
	if err != nil {
		return err
	}
	gs := []*game.Game{g}
	for _, name := range names {
		if name == g.Name {
			continue
		}
		other, err := db.GetGame(name)
		if err != nil {
			return err
		}
		gs = append(gs, other)
	}
	return db.PutGames(gs)
}

// PutGames stores every game in gs in a single atomic batch and
// rebuilds /list and /list/<kind> from gs. Games created by the
// catalog ingester are written once, as a complete set, matching
// spec.md §3's game lifecycle.
func (db *DB) PutGames(gs []*game.Game) error {
	names := make([]string, 0, len(gs))
	hasSample := make(map[string]bool)
	hasDisk := make(map[string]bool)

	return db.store.Batch(func(b *Batch) error {
		for _, g := range gs {
			enc, err := EncodeGame(g)
			if err != nil {
				return err
			}
			if err := b.Put(g.Name, enc); err != nil {
				return err
			}
			names = append(names, g.Name)
			if len(g.Sample.Files) > 0 {
				hasSample[g.Name] = true
			}
			if len(g.Disks) > 0 {
				hasDisk[g.Name] = true
			}
		}

		sort.Strings(names)
		if err := b.Put(keyList, joinStrings(names)); err != nil {
			return err
		}
		if err := b.Put(keyListKind+KindGame, joinStrings(names)); err != nil {
			return err
		}
		if err := b.Put(keyListKind+KindSample, joinStrings(sortedKeys(hasSample))); err != nil {
			return err
		}
		return b.Put(keyListKind+KindDisk, joinStrings(sortedKeys(hasDisk)))
	})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GetGame reads back a single game record.
func (db *DB) GetGame(name string) (*game.Game, error) {
	b, err := db.store.Get(name)
	if err != nil {
		return nil, err
	}
	return DecodeGame(name, b)
}

// ListGames returns the sorted /list of every game name.
func (db *DB) ListGames() ([]string, error) {
	b, err := db.store.Get(keyList)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return splitStrings(b), nil
}

// ListByKind returns the sorted /list/<kind> of member names.
func (db *DB) ListByKind(kind string) ([]string, error) {
	b, err := db.store.Get(keyListKind + kind)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return splitStrings(b), nil
}

// SetProg stores the /prog record.
func (db *DB) SetProg(p Prog) error {
	w := &writer{}
	if err := w.writeString(p.Name); err != nil {
		return err
	}
	if err := w.writeString(p.Version); err != nil {
		return err
	}
	return db.store.Put(keyProg, w.buf.Bytes())
}

// Prog reads back the /prog record.
func (db *DB) Prog() (Prog, error) {
	b, err := db.store.Get(keyProg)
	if err != nil {
		return Prog{}, err
	}
	r := &reader{r: newByteReader(b)}
	var p Prog
	if p.Name, err = r.readString(); err != nil {
		return p, err
	}
	p.Version, err = r.readString()
	return p, err
}

// SetDatEntries stores the /dat record.
func (db *DB) SetDatEntries(entries []DatEntry) error {
	w := &writer{}
	w.writeU32(uint32(len(entries)))
	for _, e := range entries {
		if err := w.writeString(e.Name); err != nil {
			return err
		}
		if err := w.writeString(e.Description); err != nil {
			return err
		}
		if err := w.writeString(e.Version); err != nil {
			return err
		}
	}
	return db.store.Put(keyDat, w.buf.Bytes())
}

// DatEntries reads back the /dat record.
func (db *DB) DatEntries() ([]DatEntry, error) {
	b, err := db.store.Get(keyDat)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := &reader{r: newByteReader(b)}
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]DatEntry, n)
	for i := range out {
		if out[i].Name, err = r.readString(); err != nil {
			return nil, err
		}
		if out[i].Description, err = r.readString(); err != nil {
			return nil, err
		}
		if out[i].Version, err = r.readString(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetDetector stores the optional named header-detector blob.
func (db *DB) SetDetector(name string, blob []byte) error {
	w := &writer{}
	if err := w.writeString(name); err != nil {
		return err
	}
	w.buf.Write(blob)
	return db.store.Put(keyDetector, w.buf.Bytes())
}

// Detector reads back the header-detector blob, or ("", nil, nil) if
// none was stored.
func (db *DB) Detector() (string, []byte, error) {
	b, err := db.store.Get(keyDetector)
	if errors.Is(err, ErrNotFound) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	r := &reader{r: newByteReader(b)}
	name, err := r.readString()
	if err != nil {
		return "", nil, err
	}
	rest := make([]byte, r.r.Len())
	if _, err := r.r.Read(rest); err != nil {
		return "", nil, err
	}
	return name, rest, nil
}
