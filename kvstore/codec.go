package kvstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/bodgit/ckmame/file"
	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashes"
)

// writer implements the wire encoding from spec.md §6: length-prefixed
// strings (u16 length + bytes, no terminator), u16/u32 little-endian,
// arrays as a u32 count followed by elements.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeString(s string) error {
	if len(s) > 0xffff {
		return fmt.Errorf("kvstore: string too long to encode (%d bytes)", len(s))
	}
	w.writeU16(uint16(len(s)))
	w.buf.WriteString(s)
	return nil
}

func (w *writer) writeStrings(ss []string) error {
	w.writeU32(uint32(len(ss)))
	for _, s := range ss {
		if err := w.writeString(s); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeHashes(h hashes.Set) {
	kinds := h.KindsPresent()
	w.buf.WriteByte(byte(len(kinds)))
	for _, k := range kinds {
		w.buf.WriteByte(byte(k))
		b, _ := h.Get(k)
		w.buf.Write(b)
	}
}

func (w *writer) writeFile(f file.Descriptor) error {
	if err := w.writeString(f.Name); err != nil {
		return err
	}
	if err := w.writeString(f.MergeName); err != nil {
		return err
	}
	w.writeU64(f.Size)
	w.writeHashes(f.Hashes)
	w.writeU64(uint64(f.MTime.Unix()))
	w.writeU16(uint16(f.Status))
	w.writeU32(uint32(int32(f.Where)))
	return w.writeStrings(f.Alternates)
}

func (w *writer) writeRoleView(v game.RoleView) error {
	if err := w.writeString(v.ParentName); err != nil {
		return err
	}
	if err := w.writeString(v.GrandparentName); err != nil {
		return err
	}
	if err := w.writeStrings(v.Clones); err != nil {
		return err
	}
	w.writeU32(uint32(len(v.Files)))
	for _, f := range v.Files {
		if err := w.writeFile(f); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeDisk(d game.Disk) error {
	if err := w.writeString(d.Name); err != nil {
		return err
	}
	w.writeHashes(d.Hashes)
	return nil
}

// EncodeGame encodes a full game record per spec.md §6.
func EncodeGame(g *game.Game) ([]byte, error) {
	w := &writer{}
	if err := w.writeString(g.Description); err != nil {
		return nil, err
	}
	w.writeU32(uint32(g.DatNo))
	if err := w.writeRoleView(g.ROM); err != nil {
		return nil, err
	}
	if err := w.writeRoleView(g.Sample); err != nil {
		return nil, err
	}
	w.writeU32(uint32(len(g.Disks)))
	for _, d := range g.Disks {
		if err := w.writeDisk(d); err != nil {
			return nil, err
		}
	}
	return w.buf.Bytes(), nil
}

type reader struct {
	r *bytes.Reader
}

func newByteReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

func (r *reader) readU16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (r *reader) readU32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *reader) readU64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *reader) readString() (string, error) {
	n, err := r.readU16()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) readStrings() ([]string, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	ss := make([]string, n)
	for i := range ss {
		if ss[i], err = r.readString(); err != nil {
			return nil, err
		}
	}
	return ss, nil
}

func (r *reader) readHashes() (hashes.Set, error) {
	var h hashes.Set
	n, err := r.r.ReadByte()
	if err != nil {
		return h, err
	}
	for i := byte(0); i < n; i++ {
		kb, err := r.r.ReadByte()
		if err != nil {
			return h, err
		}
		k := hashes.Kind(kb)
		b := make([]byte, k.Size())
		if _, err := io.ReadFull(r.r, b); err != nil {
			return h, err
		}
		if err := h.Set(k, b); err != nil {
			return h, err
		}
	}
	return h, nil
}

func (r *reader) readFile() (file.Descriptor, error) {
	var f file.Descriptor
	var err error
	if f.Name, err = r.readString(); err != nil {
		return f, err
	}
	if f.MergeName, err = r.readString(); err != nil {
		return f, err
	}
	if f.Size, err = r.readU64(); err != nil {
		return f, err
	}
	if f.Hashes, err = r.readHashes(); err != nil {
		return f, err
	}
	mtime, err := r.readU64()
	if err != nil {
		return f, err
	}
	f.MTime = time.Unix(int64(mtime), 0).UTC()
	status, err := r.readU16()
	if err != nil {
		return f, err
	}
	f.Status = file.Status(status)
	where, err := r.readU32()
	if err != nil {
		return f, err
	}
	f.Where = file.Where(int32(where))
	if f.Alternates, err = r.readStrings(); err != nil {
		return f, err
	}
	return f, nil
}

func (r *reader) readRoleView() (game.RoleView, error) {
	var v game.RoleView
	var err error
	if v.ParentName, err = r.readString(); err != nil {
		return v, err
	}
	if v.GrandparentName, err = r.readString(); err != nil {
		return v, err
	}
	if v.Clones, err = r.readStrings(); err != nil {
		return v, err
	}
	n, err := r.readU32()
	if err != nil {
		return v, err
	}
	v.Files = make([]file.Descriptor, n)
	for i := range v.Files {
		if v.Files[i], err = r.readFile(); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (r *reader) readDisk() (game.Disk, error) {
	var d game.Disk
	var err error
	if d.Name, err = r.readString(); err != nil {
		return d, err
	}
	if d.Hashes, err = r.readHashes(); err != nil {
		return d, err
	}
	return d, nil
}

// DecodeGame decodes a game record previously produced by EncodeGame.
func DecodeGame(name string, b []byte) (*game.Game, error) {
	r := &reader{r: bytes.NewReader(b)}
	g := &game.Game{Name: name}
	var err error
	if g.Description, err = r.readString(); err != nil {
		return nil, err
	}
	datNo, err := r.readU32()
	if err != nil {
		return nil, err
	}
	g.DatNo = int(datNo)
	if g.ROM, err = r.readRoleView(); err != nil {
		return nil, err
	}
	if g.Sample, err = r.readRoleView(); err != nil {
		return nil, err
	}
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	g.Disks = make([]game.Disk, n)
	for i := range g.Disks {
		if g.Disks[i], err = r.readDisk(); err != nil {
			return nil, err
		}
	}
	return g, nil
}
