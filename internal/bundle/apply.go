package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	ocp_fs "github.com/libbundler/libbundler/internal/fs"
	"github.com/libbundler/libbundler/internal/logging"
	"github.com/libbundler/libbundler/internal/progress"
)

// invalidator is implemented by caching inspectors.
type invalidator interface {
	Invalidate(path string)
}

type applier struct {
	*Bundler
	plan *Plan
	bar  *progress.Bar

	mu         sync.Mutex
	errs       []error
	failed     map[*Node]struct{} // not copied
	incomplete map[*Node]struct{} // copied, some rewrite failed
}

// Apply copies the planned libraries and rewrites every pending load command.
// Libraries are mutated with up to jobs workers, the executable last. Errors
// do not stop the remaining steps and are returned joined.
func (b *Bundler) Apply(ctx context.Context, p *Plan) error {
	if err := b.check(); err != nil {
		return err
	}

	a := &applier{Bundler: b, plan: p, failed: map[*Node]struct{}{}, incomplete: map[*Node]struct{}{}}
	if b.progress {
		a.bar = progress.NewStderr(a.steps(), "bundling")
	}
	defer a.bar.Finish()

	a.copyAll(ctx)
	a.rewriteLibraries(ctx)
	a.rewriteTarget(ctx, p.Graph.Root, p.Graph.Root.Path, p.ForTarget(p.Graph.Root.Path))
	a.changeRPaths(ctx)

	return errors.Join(a.errs...)
}

func (a *applier) steps() int {
	n := len(a.plan.RPaths)
	for _, c := range a.plan.Copies {
		if !c.InPlace {
			n++
		}
	}
	for _, rw := range a.plan.Rewrites {
		if !rw.Done {
			n++
		}
	}
	return n
}

func (a *applier) record(failed *Node, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
	if failed != nil {
		a.failed[failed] = struct{}{}
	}
}

func (a *applier) hasFailed(n *Node) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.failed[n]
	return ok
}

func (a *applier) markIncomplete(n *Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.incomplete[n] = struct{}{}
}

func (a *applier) isIncomplete(n *Node) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.incomplete[n]
	return ok
}

func (a *applier) group() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(max(a.jobs, 1))
	return g
}

func (a *applier) copyAll(ctx context.Context) {
	g := a.group()
	for _, c := range a.plan.Copies {
		if c.InPlace {
			continue
		}
		g.Go(func() error {
			if err := a.copy(ctx, c); err != nil {
				a.logger.Errorf("%v", err)
				a.record(c.Node, err)
			}
			a.bar.Add(1)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *applier) copy(ctx context.Context, c *Copy) error {
	fail := func(err error) error {
		return &CopyError{Source: c.Source, Destination: c.Destination, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	exists, err := ocp_fs.Exists(c.Destination)
	if err != nil {
		return fail(err)
	}
	if exists {
		same, err := ocp_fs.SameContent(c.Source, c.Destination)
		if err != nil {
			return fail(err)
		}
		if same {
			a.logger.Debugf("%s: already present", c.Destination)
			return nil
		}
		if c.Node.ID != "" {
			id := AnchorLoader.Join(filepath.Base(c.Destination))
			if bin, err := a.inspector.Inspect(ctx, c.Destination); err == nil && bin.ID == id {
				a.logger.Debugf("%s: bundled earlier", c.Destination)
				return nil
			}
		}
		return fail(ErrDestinationConflict)
	}

	if err := os.MkdirAll(filepath.Dir(c.Destination), 0o755); err != nil {
		return fail(err)
	}
	if err := ocp_fs.CopyFile(c.Source, c.Destination); err != nil {
		return fail(err)
	}
	if inv, ok := a.inspector.(invalidator); ok {
		inv.Invalidate(c.Destination)
	}
	a.logger.Infof("copied %s -> %s", c.Source, c.Destination)
	return nil
}

func (a *applier) rewriteLibraries(ctx context.Context) {
	g := a.group()
	for _, c := range a.plan.Copies {
		rws := a.plan.ForTarget(c.Destination)
		g.Go(func() error {
			a.rewriteTarget(ctx, c.Node, c.Destination, rws)
			return nil
		})
	}
	_ = g.Wait()
}

// rewriteTarget applies the rewrites of one file in order. The executable is
// never pointed at a copy whose own rewrites failed, so a re-run still finds
// the original library.
func (a *applier) rewriteTarget(ctx context.Context, consumer *Node, target string, rws []*Rewrite) {
	log := a.logger.With("target", target)
	for _, rw := range rws {
		if rw.Done {
			continue
		}

		var err error
		switch {
		case a.hasFailed(consumer):
			err = &RewriteError{Rewrite: rw, Err: fmt.Errorf("%s was not copied", consumer.Path)}
		case rw.Dependency != nil && a.hasFailed(rw.Dependency):
			err = &RewriteError{Rewrite: rw, Err: fmt.Errorf("dependency %s was not copied", rw.Dependency.Path)}
		case rw.Dependency != nil && consumer.Kind == KindExecutable && a.isIncomplete(rw.Dependency):
			err = &RewriteError{Rewrite: rw, Err: fmt.Errorf("dependency %s was not fully rewritten", rw.Dependency.Path)}
		default:
			err = a.rewrite(ctx, log, rw)
		}
		if err != nil {
			log.Errorf("%v", err)
			a.record(nil, err)
			if consumer.Kind == KindLibrary {
				a.markIncomplete(consumer)
			}
		}
		a.bar.Add(1)
	}
}

// rewrite re-inspects the target first so a command that already holds the
// new value is left alone.
func (a *applier) rewrite(ctx context.Context, log *logging.Logger, rw *Rewrite) error {
	bin, err := a.inspector.Inspect(ctx, rw.Target)
	if err != nil {
		return &RewriteError{Rewrite: rw, Err: err}
	}

	switch rw.Kind {
	case RewriteIdentity:
		if bin.ID == rw.New {
			log.Debugf("identity already %s", rw.New)
			return nil
		}
		err = a.inspector.ChangeID(ctx, rw.Target, rw.New)
	default:
		if !bin.HasReference(rw.Old) {
			if bin.HasReference(rw.New) {
				log.Debugf("reference already %s", rw.New)
				return nil
			}
			return &RewriteError{Rewrite: rw, Err: fmt.Errorf("reference %q not found", rw.Old)}
		}
		err = a.inspector.ChangeReference(ctx, rw.Target, rw.Old, rw.New)
	}
	if err != nil {
		return &RewriteError{Rewrite: rw, Err: err}
	}

	log.Debugf("%s %s -> %s", rw.Kind, rw.Old, rw.New)
	return nil
}

func (a *applier) changeRPaths(ctx context.Context) {
	for _, ch := range a.plan.RPaths {
		if err := a.changeRPath(ctx, ch); err != nil {
			a.logger.Errorf("%v", err)
			a.record(nil, err)
		}
		a.bar.Add(1)
	}
}

func (a *applier) changeRPath(ctx context.Context, ch *RPathChange) error {
	bin, err := a.inspector.Inspect(ctx, ch.Target)
	if err != nil {
		return &RPathError{Change: ch, Err: err}
	}

	switch ch.Op {
	case RPathAdd:
		if bin.HasRPath(ch.Dir) {
			return nil
		}
		err = a.inspector.AddRPath(ctx, ch.Target, ch.Dir)
	case RPathDelete:
		if !bin.HasRPath(ch.Dir) {
			return nil
		}
		err = a.inspector.DeleteRPath(ctx, ch.Target, ch.Dir)
	}
	if err != nil {
		return &RPathError{Change: ch, Err: err}
	}

	a.logger.Debugf("%s: %s search directory %s", ch.Target, ch.Op, ch.Dir)
	return nil
}
