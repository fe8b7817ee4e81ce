package bundle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnresolvable        = errors.New("unresolvable dependency")
	ErrInspection          = errors.New("inspection failed")
	ErrNamingCollision     = errors.New("naming collision")
	ErrCopy                = errors.New("copy failed")
	ErrRewrite             = errors.New("rewrite failed")
	ErrDestinationConflict = errors.New("destination exists with different content")
)

// UnresolvableError reports a declared reference that does not designate an
// existing file.
type UnresolvableError struct {
	Consumer   string
	Reference  string
	Candidates []string
}

func (err *UnresolvableError) Error() string {
	msg := fmt.Sprintf("%s: %v %q", err.Consumer, ErrUnresolvable, err.Reference)
	switch len(err.Candidates) {
	case 0:
		return msg + " (no search directories)"
	case 1:
		if err.Candidates[0] == err.Reference {
			return msg
		}
	}
	return msg + " (tried " + strings.Join(err.Candidates, ", ") + ")"
}

func (*UnresolvableError) Is(target error) bool {
	return target == ErrUnresolvable
}

// InspectionError reports a binary whose metadata could not be read.
type InspectionError struct {
	Path string
	Err  error
}

func (err *InspectionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrInspection, err.Path, err.Err)
}

func (err *InspectionError) Unwrap() error { return err.Err }

func (*InspectionError) Is(target error) bool {
	return target == ErrInspection
}

// CollisionError reports distinct libraries planned to the same destination.
type CollisionError struct {
	Destination string
	Sources     []string
}

func (err *CollisionError) Error() string {
	lines := []string{fmt.Sprintf("%v: %d libraries map to %s", ErrNamingCollision, len(err.Sources), err.Destination)}
	for _, s := range err.Sources {
		lines = append(lines, "- "+s)
	}
	return strings.Join(lines, "\n")
}

func (*CollisionError) Is(target error) bool {
	return target == ErrNamingCollision
}

// CopyError reports a library that could not be copied into the bundle.
type CopyError struct {
	Source      string
	Destination string
	Err         error
}

func (err *CopyError) Error() string {
	return fmt.Sprintf("%v: %s -> %s: %v", ErrCopy, err.Source, err.Destination, err.Err)
}

func (err *CopyError) Unwrap() error { return err.Err }

func (*CopyError) Is(target error) bool {
	return target == ErrCopy
}

// RewriteError reports a load command that could not be rewritten.
type RewriteError struct {
	Rewrite *Rewrite
	Err     error
}

func (err *RewriteError) Error() string {
	rw := err.Rewrite
	if rw.Kind == RewriteIdentity {
		return fmt.Sprintf("%v: %s: identity %q -> %q: %v", ErrRewrite, rw.Target, rw.Old, rw.New, err.Err)
	}
	return fmt.Sprintf("%v: %s: reference %q -> %q: %v", ErrRewrite, rw.Target, rw.Old, rw.New, err.Err)
}

func (err *RewriteError) Unwrap() error { return err.Err }

func (*RewriteError) Is(target error) bool {
	return target == ErrRewrite
}

// RPathError reports a search directory change on the executable that failed.
type RPathError struct {
	Change *RPathChange
	Err    error
}

func (err *RPathError) Error() string {
	return fmt.Sprintf("%v: %s: %s search directory %q: %v", ErrRewrite, err.Change.Target, err.Change.Op, err.Change.Dir, err.Err)
}

func (err *RPathError) Unwrap() error { return err.Err }

func (*RPathError) Is(target error) bool {
	return target == ErrRewrite
}
