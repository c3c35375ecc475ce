package hashindex

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/ckmame/archive"
	"github.com/bodgit/ckmame/dircache"
	"github.com/bodgit/ckmame/game"
	"github.com/bodgit/ckmame/hashes"
	"github.com/bodgit/rom"
)

// Scan walks root, a user-supplied extra-directory or an old-db
// reference tree (spec.md §4.B/§6), and adds every file it finds to
// x under the given role. root's immediate zip files are opened via
// github.com/bodgit/rom; root's leaf directories are scanned directly
// and consulted against cache, a per-tree dircache.Cache, so a donor
// tree whose directories haven't changed since the last sweep isn't
// rehashed file by file. cache may be nil, in which case every leaf
// directory is rehashed unconditionally.
func Scan(x *Index, root string, role game.Role, loc Location, cache *dircache.Cache) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		if info.IsDir() {
			leaf, err := isLeafDir(path)
			if err != nil {
				return err
			}
			if !leaf {
				return nil
			}
			if err := scanLeafDir(x, path, info, role, loc, cache); err != nil {
				return err
			}
			return filepath.SkipDir
		}

		if strings.EqualFold(filepath.Ext(path), ".zip") {
			return scanZip(x, path, role, loc)
		}

		return nil
	})
}

// isLeafDir reports whether dir contains at least one regular file
// and no sub-directories, i.e. it looks like a per-game directory
// rather than an organizational folder.
func isLeafDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	sawFile := false
	for _, e := range entries {
		if e.IsDir() {
			return false, nil
		}
		sawFile = true
	}
	return sawFile, nil
}

func scanZip(x *Index, path string, role game.Role, loc Location) error {
	r, err := rom.NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for i, name := range r.Files() {
		size, err := r.Size(name)
		if err != nil {
			return err
		}

		var h hashes.Set
		for _, pair := range []struct {
			kind hashes.Kind
			algo rom.Checksum
		}{
			{hashes.CRC32, rom.CRC32},
			{hashes.MD5, rom.MD5},
			{hashes.SHA1, rom.SHA1},
		} {
			sum, err := r.Checksum(name, pair.algo)
			if err != nil {
				continue
			}
			_ = h.Set(pair.kind, sum)
		}

		x.Add(Ref{Archive: path, Index: i, Role: role, Location: loc}, size, h)
	}

	return nil
}

// scanLeafDir indexes every regular file directly inside dir, reusing
// cache's record for dir if its mtime still matches what was stored
// there; entries are visited in sorted name order, matching
// archive.OpenDir's os.ReadDir-derived ordering, so Ref.Index lines up
// with the index a later archive.OpenDir(dir, ...) would assign.
func scanLeafDir(x *Index, dir string, dirInfo os.FileInfo, role game.Role, loc Location, cache *dircache.Cache) error {
	if cache != nil {
		if cached, ok := cache.Lookup(dir, dirInfo.ModTime()); ok {
			for i, e := range cached {
				x.Add(Ref{Archive: dir, Index: i, Role: role, Location: loc}, e.Size, e.Hashes)
			}
			return nil
		}
	}

	names, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	entries := make([]dircache.Entry, 0, len(names))
	for i, name := range names {
		if name.IsDir() {
			continue
		}
		path := filepath.Join(dir, name.Name())

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		h, err := archive.ComputeHashes(f)
		f.Close()
		if err != nil {
			return err
		}

		fi, err := name.Info()
		if err != nil {
			return err
		}
		size := uint64(fi.Size())

		x.Add(Ref{Archive: dir, Index: i, Role: role, Location: loc}, size, h)
		entries = append(entries, dircache.Entry{Name: name.Name(), Size: size, MTime: fi.ModTime(), Hashes: h})
	}

	if cache != nil {
		return cache.Store(dir, dirInfo.ModTime(), entries)
	}
	return nil
}
