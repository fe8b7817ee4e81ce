package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/akedrou/textdiff"

	"github.com/libbundler/libbundler/internal/bundle"
)

// loadCommands is a textual view of the records a plan can change.
type loadCommands struct {
	id     string
	refs   []string
	rpaths []string
}

func (lc loadCommands) String() string {
	var b strings.Builder
	if lc.id != "" {
		fmt.Fprintf(&b, "id %s\n", lc.id)
	}
	for _, r := range lc.refs {
		fmt.Fprintf(&b, "load %s\n", r)
	}
	for _, r := range lc.rpaths {
		fmt.Fprintf(&b, "rpath %s\n", r)
	}
	return b.String()
}

// Diff writes a unified diff of the planned load command changes for every
// file the plan touches. Files without changes are omitted.
func Diff(w io.Writer, p *bundle.Plan) error {
	g := p.Graph

	type file struct {
		node       *bundle.Node
		from, to   string
		before     loadCommands
		rewrites   []*bundle.Rewrite
		rpathEdits []*bundle.RPathChange
	}

	files := []*file{{node: g.Root, from: g.Root.Path, to: g.Root.Path, rpathEdits: p.RPaths}}
	for _, c := range p.Copies {
		files = append(files, &file{node: c.Node, from: c.Source, to: c.Destination})
	}

	for _, f := range files {
		f.before = loadCommands{id: f.node.ID, rpaths: f.node.RPaths}
		for _, e := range g.EdgesFrom(f.node) {
			f.before.refs = append(f.before.refs, e.Reference)
		}
		f.rewrites = p.ForTarget(f.to)

		after := f.before
		after.refs = append([]string(nil), f.before.refs...)
		after.rpaths = append([]string(nil), f.before.rpaths...)

		for _, rw := range f.rewrites {
			if rw.Done {
				continue
			}
			switch rw.Kind {
			case bundle.RewriteIdentity:
				after.id = rw.New
			default:
				for i := range after.refs {
					if after.refs[i] == rw.Old {
						after.refs[i] = rw.New
					}
				}
			}
		}
		for _, ch := range f.rpathEdits {
			switch ch.Op {
			case bundle.RPathAdd:
				after.rpaths = append(after.rpaths, ch.Dir)
			case bundle.RPathDelete:
				after.rpaths = remove(after.rpaths, ch.Dir)
			}
		}

		if d := textdiff.Unified(f.from, f.to, f.before.String(), after.String()); d != "" {
			if _, err := io.WriteString(w, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func remove(ss []string, s string) []string {
	out := ss[:0]
	for _, x := range ss {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
