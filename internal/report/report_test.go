package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/libbundler/libbundler/internal/bundle"
	"github.com/libbundler/libbundler/internal/report"
	"github.com/libbundler/libbundler/internal/test/fakebin"
	"github.com/libbundler/libbundler/internal/test/tempfs"
)

const libSystem = "/usr/lib/libSystem.B.dylib"

func plan(t *testing.T) (string, *bundle.Graph, *bundle.Plan) {
	t.Helper()

	root := tempfs.New(t, nil)
	path := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }
	for rel, s := range map[string]fakebin.Spec{
		"bin/E":          {References: []string{path("lib/libA.dylib"), libSystem}, RPaths: []string{"/opt/stale"}},
		"lib/libA.dylib": {ID: path("lib/libA.dylib"), References: []string{libSystem}},
	} {
		if err := fakebin.Write(path(rel), s); err != nil {
			t.Fatal(err)
		}
	}

	b := bundle.New().WithInspector(fakebin.New()).WithWorkingDir(root)
	g, err := b.Discover(t.Context(), path("bin/E"))
	if err != nil {
		t.Fatal(err)
	}
	p, err := b.Plan(g)
	if err != nil {
		t.Fatal(err)
	}
	return root, g, p
}

func TestJSON(t *testing.T) {
	root, g, p := plan(t)

	var buf bytes.Buffer
	if err := report.New(g, p, true).Write(&buf, report.JSON); err != nil {
		t.Fatal(err)
	}

	var act report.Report
	if err := json.Unmarshal(buf.Bytes(), &act); err != nil {
		t.Fatal(err)
	}

	exp := report.Report{
		Executable: filepath.Join(root, "bin", "E"),
		LibDir:     filepath.Join(root, "Libraries"),
		Pending:    true,
		Libraries: []report.Library{
			{
				Path:        filepath.Join(root, "lib", "libA.dylib"),
				Reference:   filepath.Join(root, "lib", "libA.dylib"),
				Status:      bundle.StatusBundle,
				ID:          filepath.Join(root, "lib", "libA.dylib"),
				Destination: filepath.Join(root, "Libraries", "libA.dylib"),
			},
			{Path: libSystem, Reference: libSystem, Status: bundle.StatusExcluded},
		},
		Edges: []report.Edge{
			{Consumer: filepath.Join(root, "bin", "E"), Reference: filepath.Join(root, "lib", "libA.dylib"), Resolved: filepath.Join(root, "lib", "libA.dylib")},
			{Consumer: filepath.Join(root, "bin", "E"), Reference: libSystem, Resolved: libSystem, Excluded: true},
			{Consumer: filepath.Join(root, "lib", "libA.dylib"), Reference: libSystem, Resolved: libSystem, Excluded: true},
		},
	}
	if diff := cmp.Diff(exp, act); diff != "" {
		t.Fatalf("unexpected report (-want, +got):\n%s", diff)
	}
}

func TestYAML(t *testing.T) {
	_, g, p := plan(t)

	var buf bytes.Buffer
	if err := report.New(g, p, false).Write(&buf, report.YAML); err != nil {
		t.Fatal(err)
	}

	for _, exp := range []string{"status: bundle", "status: excluded", "pending: true"} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("expected %q in:\n%s", exp, buf.String())
		}
	}
	if strings.Contains(buf.String(), "edges:") {
		t.Errorf("edges listed without verbose:\n%s", buf.String())
	}
}

func TestTable(t *testing.T) {
	_, g, p := plan(t)

	var buf bytes.Buffer
	err := report.New(g, p, true, errors.Join(errors.New("first"), errors.New("second"))).Write(&buf, report.Table)
	if err != nil {
		t.Fatal(err)
	}

	for _, exp := range []string{
		"excluded",
		"Libraries/libA.dylib",
		libSystem,
		"(excluded)",
		"error: first\n",
		"error: second\n",
	} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("expected %q in:\n%s", exp, buf.String())
		}
	}
}

func TestNilPlan(t *testing.T) {
	_, g, _ := plan(t)
	for _, n := range g.Nodes {
		n.BundledPath = ""
	}

	r := report.New(g, nil, false)
	if r.LibDir != "" || r.Pending {
		t.Fatalf("unexpected plan data: %+v", r)
	}
	if exp, act := bundle.StatusBundle, r.Libraries[0].Status; exp != act {
		t.Fatalf("expected %s, got %s", exp, act)
	}
}

func TestDiff(t *testing.T) {
	root, _, p := plan(t)

	var buf bytes.Buffer
	if err := report.Diff(&buf, p); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, exp := range []string{
		"--- " + filepath.Join(root, "lib", "libA.dylib"),
		"+++ " + filepath.Join(root, "Libraries", "libA.dylib"),
		"-id " + filepath.Join(root, "lib", "libA.dylib"),
		"+id @loader_path/libA.dylib",
		"-load " + filepath.Join(root, "lib", "libA.dylib"),
		"+load @executable_path/../Libraries/libA.dylib",
		"-rpath /opt/stale",
		"+rpath @executable_path/../Libraries",
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected %q in:\n%s", exp, out)
		}
	}
	if strings.Contains(out, "-load "+libSystem) {
		t.Errorf("excluded reference rewritten:\n%s", out)
	}
}
