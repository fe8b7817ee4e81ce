package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/libbundler/libbundler/internal/inspect"
)

type pending struct {
	node *Node
	bin  *inspect.Binary
}

// Discover walks the dependency graph breadth-first from executable. It never
// mutates anything. Unresolvable references and unreadable binaries are
// collected and returned joined together with the partial graph; in strict
// mode the first one ends the walk.
func (b *Bundler) Discover(ctx context.Context, executable string) (*Graph, error) {
	if err := b.check(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(executable)
	if err != nil {
		return nil, err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, &InspectionError{Path: abs, Err: err}
	}
	bin, err := b.inspector.Inspect(ctx, real)
	if err != nil {
		return nil, &InspectionError{Path: real, Err: err}
	}

	wd := b.wd
	if wd == "" {
		if wd, err = os.Getwd(); err != nil {
			return nil, err
		}
	}

	root := &Node{
		Kind:         KindExecutable,
		OriginalPath: executable,
		Path:         real,
		ID:           bin.ID,
		RPaths:       bin.RPaths,
	}
	g := &Graph{Root: root}
	res := &resolver{root: root, rules: b.rules, wd: wd}
	reg := newRegistry()

	var errs []error
	fail := func(err error) bool {
		b.logger.Warnf("%v", err)
		errs = append(errs, err)
		return b.strict
	}

	toProcess := []pending{{node: root, bin: bin}}
	for len(toProcess) > 0 {
		if err := ctx.Err(); err != nil {
			return g, err
		}

		var next pending
		next, toProcess = toProcess[0], toProcess[1:]
		seen := map[string]struct{}{}

		for _, ref := range next.bin.References {
			if _, ok := seen[ref.Path]; ok {
				continue
			}
			seen[ref.Path] = struct{}{}

			c, excluded, err := res.resolve(next.node, ref.Path)
			if err != nil {
				if fail(err) {
					return g, errors.Join(errs...)
				}
				continue
			}
			if c.path == root.Path {
				b.logger.Debugf("%s: %s refers to the executable, ignored", next.node.Path, ref.Path)
				continue
			}

			n, inserted := reg.insert(&Node{
				Kind:         KindLibrary,
				OriginalPath: ref.Path,
				Path:         c.path,
				Excluded:     excluded,
			})
			g.Edges = append(g.Edges, &Edge{
				Consumer:       next.node,
				Reference:      ref.Path,
				Dependency:     n,
				SearchDir:      c.dir,
				SearchDirOwner: c.dirOwner,
			})
			if !inserted {
				continue
			}
			g.Nodes = append(g.Nodes, n)

			if n.Excluded {
				b.logger.Debugf("%s: %s excluded", next.node.Path, n.Path)
				continue
			}
			b.logger.Debugf("%s: %s -> %s", next.node.Path, ref.Path, n.Path)

			nbin, err := b.inspector.Inspect(ctx, n.Path)
			if err != nil {
				if fail(&InspectionError{Path: n.Path, Err: err}) {
					return g, errors.Join(errs...)
				}
				continue
			}
			n.ID = nbin.ID
			n.RPaths = nbin.RPaths
			toProcess = append(toProcess, pending{node: n, bin: nbin})
		}
	}

	b.logger.Infof("discovered %d libraries, %d bundlable", reg.len(), len(g.Bundlable()))
	return g, errors.Join(errs...)
}
