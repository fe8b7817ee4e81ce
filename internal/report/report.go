// Package report renders a discovered closure and its plan for humans and
// machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/olekukonko/tablewriter"

	"github.com/libbundler/libbundler/internal/bundle"
)

type Format int

const (
	Table Format = iota
	JSON
	YAML
)

type Library struct {
	Path        string        `json:"path"`
	Reference   string        `json:"reference"`
	Status      bundle.Status `json:"status"`
	ID          string        `json:"id,omitempty"`
	Destination string        `json:"destination,omitempty"`
}

type Edge struct {
	Consumer  string `json:"consumer"`
	Reference string `json:"reference"`
	Resolved  string `json:"resolved"`
	Excluded  bool   `json:"excluded,omitempty"`
}

type Report struct {
	Executable string    `json:"executable"`
	LibDir     string    `json:"lib_dir,omitempty"`
	Pending    bool      `json:"pending"`
	Libraries  []Library `json:"libraries"`
	Edges      []Edge    `json:"edges,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
}

// New summarizes g. p may be nil when planning failed; edges are only listed
// when verbose is set.
func New(g *bundle.Graph, p *bundle.Plan, verbose bool, errs ...error) *Report {
	r := &Report{Executable: g.Root.Path, Libraries: []Library{}}
	if p != nil {
		r.LibDir = p.LibDir
		r.Pending = p.Pending()
	}

	for _, n := range g.Nodes {
		r.Libraries = append(r.Libraries, Library{
			Path:        n.Path,
			Reference:   n.OriginalPath,
			Status:      p.Status(n),
			ID:          n.ID,
			Destination: n.BundledPath,
		})
	}

	if verbose {
		for _, e := range g.Edges {
			r.Edges = append(r.Edges, Edge{
				Consumer:  e.Consumer.Path,
				Reference: e.Reference,
				Resolved:  e.Dependency.Path,
				Excluded:  e.Dependency.Excluded,
			})
		}
	}

	for _, err := range errs {
		if err == nil {
			continue
		}
		r.Errors = append(r.Errors, unjoin(err)...)
	}
	return r
}

func (r *Report) Write(w io.Writer, f Format) error {
	switch f {
	case JSON:
		bs, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(bs))
		return err
	case YAML:
		bs, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(bs)
		return err
	}
	return r.table(w)
}

func (r *Report) table(w io.Writer) error {
	fmt.Fprintf(w, "executable: %s\n", r.Executable)
	if r.LibDir != "" {
		fmt.Fprintf(w, "library directory: %s\n", r.LibDir)
	}

	t := tablewriter.NewWriter(w)
	t.Header("Library", "Status", "Destination")
	for _, l := range r.Libraries {
		if err := t.Append(l.Path, string(l.Status), r.rel(l.Destination)); err != nil {
			return err
		}
	}
	if err := t.Render(); err != nil {
		return err
	}

	if len(r.Edges) > 0 {
		t := tablewriter.NewWriter(w)
		t.Header("Consumer", "Reference", "Resolved")
		for _, e := range r.Edges {
			resolved := e.Resolved
			if e.Excluded {
				resolved += " (excluded)"
			}
			if err := t.Append(e.Consumer, e.Reference, resolved); err != nil {
				return err
			}
		}
		if err := t.Render(); err != nil {
			return err
		}
	}

	for _, e := range r.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	return nil
}

// rel shortens destinations inside the library directory.
func (r *Report) rel(dest string) string {
	if dest == "" || r.LibDir == "" {
		return dest
	}
	if rel, err := filepath.Rel(r.LibDir, dest); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.Join(filepath.Base(r.LibDir), rel)
	}
	return dest
}

func unjoin(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var msgs []string
		for _, e := range j.Unwrap() {
			msgs = append(msgs, unjoin(e)...)
		}
		return msgs
	}
	return []string{err.Error()}
}
