package catalog

import (
	"fmt"
	"io"

	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashes"
)

// parserState is the parser's block state: top level, an emulator
// block, a game block, or a discarded history block.
type parserState int

const (
	stateTop parserState = iota
	stateEmulator
	stateGame
	stateHistory
)

// Prog is the emulator-block's name/version pair, destined for
// kvstore.Prog.
type Prog struct {
	Name    string
	Version string
}

// parser turns a token stream into games, a Prog record and a list of
// recoverable warnings. Nothing it encounters is fatal; structural
// impossibilities (an unterminated game block at EOF) are reported as
// a warning, not an error, per spec.md §4.C.
type parser struct {
	lex   *lexer
	games []*game.Game
	prog  Prog

	Warnings []string
}

func newParser(r io.Reader) *parser {
	return &parser{lex: newLexer(r)}
}

func (p *parser) warnf(format string, args ...interface{}) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}

// parse consumes the whole stream.
func (p *parser) parse() ([]*game.Game, Prog, []string, error) {
	state := stateTop
	var cur *game.Game

	for {
		nWarnings := len(p.lex.Warnings)
		tokens, ok := p.lex.next()
		if state == stateHistory {
			// Overlong lines skipped inside a history block draw no
			// warning either.
			p.lex.Warnings = p.lex.Warnings[:nWarnings]
		}
		if !ok {
			break
		}
		if len(tokens) == 0 {
			continue
		}

		switch state {
		case stateTop:
			switch tokens[0].text {
			case "game", "machine", "resource":
				cur = &game.Game{}
				state = stateGame
			case "emulator":
				state = stateEmulator
			case "history":
				state = stateHistory
			case ")":
				// stray close at top level; ignore.
			default:
				p.warnf("unrecognized top-level keyword %q", tokens[0].text)
			}

		case stateHistory:
			// history blocks are discarded entirely, spec.md §6:
			// no warning is generated for anything inside one.
			if tokens[0].text == ")" {
				state = stateTop
			}

		case stateEmulator:
			if tokens[0].text == ")" {
				state = stateTop
				break
			}
			p.consumeEmulatorLine(tokens)

		case stateGame:
			if tokens[0].text == ")" {
				p.games = append(p.games, cur)
				cur = nil
				state = stateTop
				break
			}
			p.consumeGameLine(cur, tokens)
		}
	}

	if state == stateGame && cur != nil {
		p.warnf("unterminated game block %q at end of input", cur.Name)
		p.games = append(p.games, cur)
	}

	p.Warnings = append(p.Warnings, p.lex.Warnings...)

	return p.games, p.prog, p.Warnings, p.lex.Err()
}

func (p *parser) consumeEmulatorLine(tokens []token) {
	if len(tokens) < 2 {
		return
	}
	switch tokens[0].text {
	case "name":
		p.prog.Name = tokens[1].text
	case "version":
		p.prog.Version = tokens[1].text
	}
}

func (p *parser) consumeGameLine(g *game.Game, tokens []token) {
	key := tokens[0].text
	rest := tokens[1:]

	switch key {
	case "name":
		if len(rest) > 0 {
			g.Name = rest[0].text
		}
	case "description":
		if len(rest) > 0 {
			g.Description = rest[0].text
		}
	case "romof":
		if len(rest) > 0 {
			g.ROM.ParentName = rest[0].text
		}
	case "sampleof":
		if len(rest) > 0 {
			g.Sample.ParentName = rest[0].text
		}
	case "sample":
		if len(rest) > 0 {
			addSample(&g.Sample, rest[0].text)
		}
	case "rom":
		d, err := parseFileFields(rest)
		if err != nil {
			p.warnf("game %q: bad rom entry: %v", g.Name, err)
			return
		}
		addROM(&g.ROM, d)
	case "disk":
		d, err := parseFileFields(rest)
		if err != nil {
			p.warnf("game %q: bad disk entry: %v", g.Name, err)
			return
		}
		g.Disks = append(g.Disks, game.Disk{Name: d.Name, Hashes: d.Hashes})
	case "archive":
		// Historical multi-part archive grouping; carries no
		// information this catalog's game model tracks separately.
	default:
		p.warnf("game %q: unrecognized keyword %q", g.Name, key)
	}
}

// parseFileFields reads a parenthesized "key value key value ... )"
// field list as used by both rom and disk entries.
func parseFileFields(tokens []token) (file.Descriptor, error) {
	var d file.Descriptor

	i := 0
	if i < len(tokens) && tokens[i].text == "(" {
		i++
	}

	for i < len(tokens) {
		key := tokens[i].text
		if key == ")" {
			break
		}
		if i+1 >= len(tokens) {
			return d, fmt.Errorf("key %q missing a value", key)
		}
		val := tokens[i+1].text
		i += 2

		switch key {
		case "name":
			d.Name = val
		case "merge":
			d.MergeName = val
		case "size":
			var size uint64
			if _, err := fmt.Sscanf(val, "%d", &size); err != nil {
				return d, fmt.Errorf("bad size %q: %w", val, err)
			}
			d.Size = size
		case "crc":
			if err := d.Hashes.SetHex(hashes.CRC32, val); err != nil {
				return d, fmt.Errorf("bad crc %q: %w", val, err)
			}
		case "md5":
			if err := d.Hashes.SetHex(hashes.MD5, val); err != nil {
				return d, fmt.Errorf("bad md5 %q: %w", val, err)
			}
		case "sha1":
			if err := d.Hashes.SetHex(hashes.SHA1, val); err != nil {
				return d, fmt.Errorf("bad sha1 %q: %w", val, err)
			}
		case "flags", "status":
			switch val {
			case "baddump":
				d.Status = file.BadDump
			case "nodump":
				d.Status = file.NoDump
			}
		}
	}

	if d.Name == "" {
		return d, fmt.Errorf("missing name")
	}

	return d, nil
}

// addROM applies spec.md §4.C's ROM de-duplication rule when adding d
// to v.
func addROM(v *game.RoleView, d file.Descriptor) {
	for i := range v.Files {
		existing := &v.Files[i]

		if existing.Name == d.Name && existing.Size == d.Size && existing.Hashes.Compare(d.Hashes) == hashes.Match {
			return
		}

		if existing.Size == d.Size && existing.Hashes.Compare(d.Hashes) == hashes.Match &&
			existing.MergeName == d.MergeName && existing.Name != d.Name {
			existing.Alternates = append(existing.Alternates, d.Name)
			return
		}
	}
	v.Files = append(v.Files, d)
}

// addSample appends a bare sample name as a minimal file.Descriptor;
// samples in a listinfo dump carry no size or hash, only a name.
func addSample(v *game.RoleView, name string) {
	for _, f := range v.Files {
		if f.Name == name {
			return
		}
	}
	v.Files = append(v.Files, file.Descriptor{Name: name})
}
