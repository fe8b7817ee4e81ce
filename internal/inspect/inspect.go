// Package inspect defines the capability libbundler needs from a binary
// format: list the libraries a binary loads, read its own install name and
// search directories, and rewrite each of those records in place.
//
// Implementations must make every mutation atomic per file: a failed call
// leaves the previous file contents intact.
package inspect

import (
	"context"
	"slices"
)

// LoadKind distinguishes the flavours of dependency records.
type LoadKind int

const (
	LoadNormal LoadKind = iota
	LoadWeak
	LoadReexport
	LoadLazy
	LoadUpward
)

func (k LoadKind) String() string {
	switch k {
	case LoadWeak:
		return "weak"
	case LoadReexport:
		return "reexport"
	case LoadLazy:
		return "lazy"
	case LoadUpward:
		return "upward"
	}
	return "load"
}

// Reference is one declared dependency record. Path is kept verbatim, tokens
// included, since rewrites match on it exactly.
type Reference struct {
	Path           string
	Kind           LoadKind
	CurrentVersion string
	CompatVersion  string
}

// Binary is the metadata of one inspected file.
type Binary struct {
	Path       string
	ID         string // install name, empty for executables
	References []Reference
	RPaths     []string
}

// HasReference reports whether p is declared verbatim.
func (b *Binary) HasReference(p string) bool {
	return slices.ContainsFunc(b.References, func(r Reference) bool { return r.Path == p })
}

// HasRPath reports whether dir is declared verbatim.
func (b *Binary) HasRPath(dir string) bool {
	return slices.Contains(b.RPaths, dir)
}

type Inspector interface {
	Inspect(ctx context.Context, path string) (*Binary, error)
	ChangeReference(ctx context.Context, path, old, new string) error
	ChangeID(ctx context.Context, path, id string) error
	AddRPath(ctx context.Context, path, dir string) error
	DeleteRPath(ctx context.Context, path, dir string) error
}
