/*
Package ckerr defines the error-kind taxonomy shared by every core
component (spec.md §7): each failure carries a Kind plus optional
archive/file context so a single reporting surface can prefix that
context without losing the underlying cause.
*/
package ckerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies where an error originated.
type Kind int

const (
	// Zip is an archive-format level error.
	Zip Kind = iota
	// ZipFile is an error operating on one entry of a zip archive.
	ZipFile
	// File is a filesystem error.
	File
	// DB is a key/value store error.
	DB
	// Def is a catalog-definition error.
	Def
	// Str is a system error with errno-style detail.
	Str
)

func (k Kind) String() string {
	switch k {
	case Zip:
		return "zip"
	case ZipFile:
		return "zipfile"
	case File:
		return "file"
	case DB:
		return "db"
	case Def:
		return "def"
	default:
		return "system"
	}
}

// Error wraps an underlying cause with a Kind and optional
// archive/file-within-archive context.
type Error struct {
	Kind    Kind
	Archive string
	File    string
	Err     error
}

// New wraps err with the given kind and context. If err is nil, New
// returns nil.
func New(kind Kind, archive, file string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Archive: archive, File: file, Err: errors.WithStack(err)}
}

func (e *Error) Error() string {
	switch {
	case e.Archive != "" && e.File != "":
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Archive, e.File, e.Err)
	case e.Archive != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Archive, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err if it (or something it wraps) is a
// *Error, and ok=true. Otherwise it returns ok=false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
