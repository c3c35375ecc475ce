/*
Package fixdat renders the ROMs a sweep pass left missing into the
XML datfile format (spec.md §6's "Fixdat output"), suitable for
feeding to a downloader that understands the same listinfo-derived
<datafile> shape the catalog itself was ingested from.
*/
package fixdat

import (
	"encoding/xml"
	"io"

	"github.com/bodgit/ckmame/check"
	"github.com/bodgit/ckmame/hashes"
)

// Datafile is the XML document root.
type Datafile struct {
	XMLName xml.Name `xml:"datafile"`
	Header  Header   `xml:"header"`
	Games   []Game   `xml:"game"`
}

// Header names the fixdat itself, distinguishing it from the datfile
// it was derived from.
type Header struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
}

// Game is one game still carrying at least one missing ROM.
type Game struct {
	Name string `xml:"name,attr"`
	ROMs []ROM  `xml:"rom"`
}

// ROM is one still-missing ROM entry.
type ROM struct {
	Name string `xml:"name,attr"`
	Size uint64 `xml:"size,attr"`
	CRC  string `xml:"crc,attr,omitempty"`
	MD5  string `xml:"md5,attr,omitempty"`
	SHA1 string `xml:"sha1,attr,omitempty"`
}

// fromChecks returns the fixdat game listing name's Missing results,
// and whether there was any.
func fromChecks(name string, checks []check.FileCheck) (Game, bool) {
	g := Game{Name: name}

	for _, fc := range checks {
		if fc.Result != check.Missing {
			continue
		}
		e := fc.Expected
		g.ROMs = append(g.ROMs, ROM{
			Name: e.EffectiveName(),
			Size: e.Size,
			CRC:  e.Hashes.Hex(hashes.CRC32),
			MD5:  e.Hashes.Hex(hashes.MD5),
			SHA1: e.Hashes.Hex(hashes.SHA1),
		})
	}

	return g, len(g.ROMs) > 0
}

// Build collects one Game entry per name in names whose ROM checks
// contain at least one Missing result.
func Build(name, description string, names []string, checksByGame map[string][]check.FileCheck) Datafile {
	d := Datafile{Header: Header{Name: name, Description: description}}

	for _, n := range names {
		if g, ok := fromChecks(n, checksByGame[n]); ok {
			d.Games = append(d.Games, g)
		}
	}

	return d
}

// Write marshals d to w as an indented XML document with the
// standard declaration, matching the datfile format's usual on-disk
// shape.
func Write(w io.Writer, d Datafile) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(d); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n"))
	return err
}
