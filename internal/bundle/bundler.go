// Package bundle computes the closure of shared libraries an executable loads,
// plans where each bundlable library goes, and applies the copies and load
// command rewrites that make the executable self-contained.
package bundle

import (
	"context"
	"fmt"

	"github.com/libbundler/libbundler/internal/inspect"
	"github.com/libbundler/libbundler/internal/logging"
)

// DefaultLibDir is relative to the executable's directory.
const DefaultLibDir = "../Libraries"

type Bundler struct {
	inspector  inspect.Inspector
	rules      *Rules
	libDir     string
	logger     *logging.Logger
	strict     bool
	keepRPaths bool
	jobs       int
	progress   bool
	wd         string
}

func New() *Bundler {
	return &Bundler{
		rules:  DefaultRules(),
		libDir: DefaultLibDir,
		logger: logging.NewNop(),
		jobs:   1,
	}
}

func (b *Bundler) WithInspector(i inspect.Inspector) *Bundler {
	b.inspector = i
	return b
}

func (b *Bundler) WithRules(r *Rules) *Bundler {
	b.rules = r
	return b
}

func (b *Bundler) WithLibDir(dir string) *Bundler {
	b.libDir = dir
	return b
}

func (b *Bundler) WithLogger(l *logging.Logger) *Bundler {
	b.logger = l
	return b
}

// WithStrict makes discovery abort on the first error.
func (b *Bundler) WithStrict(yes bool) *Bundler {
	b.strict = yes
	return b
}

// WithKeepRPaths preserves the executable's existing search directories.
func (b *Bundler) WithKeepRPaths(yes bool) *Bundler {
	b.keepRPaths = yes
	return b
}

// WithJobs bounds how many libraries are mutated concurrently. Values below
// one mean one.
func (b *Bundler) WithJobs(n int) *Bundler {
	b.jobs = n
	return b
}

// WithProgress draws a progress bar on stderr while applying.
func (b *Bundler) WithProgress(yes bool) *Bundler {
	b.progress = yes
	return b
}

// WithWorkingDir sets the directory relative references resolve against.
// Defaults to the process working directory.
func (b *Bundler) WithWorkingDir(dir string) *Bundler {
	b.wd = dir
	return b
}

// Bundle runs discovery, planning and apply for executable. Nothing is
// mutated when discovery or planning fail.
func (b *Bundler) Bundle(ctx context.Context, executable string) (*Plan, error) {
	g, err := b.Discover(ctx, executable)
	if err != nil {
		return nil, err
	}
	p, err := b.Plan(g)
	if err != nil {
		return nil, err
	}
	return p, b.Apply(ctx, p)
}

func (b *Bundler) check() error {
	if b.inspector == nil {
		return fmt.Errorf("bundler: no inspector configured")
	}
	return nil
}
