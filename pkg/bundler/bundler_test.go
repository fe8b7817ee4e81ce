package bundler_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/libbundler/libbundler/internal/test/fakebin"
	"github.com/libbundler/libbundler/internal/test/tempfs"
	"github.com/libbundler/libbundler/pkg/bundler"
)

func TestBundle(t *testing.T) {
	root := tempfs.New(t, nil)
	exe := filepath.Join(root, "bin/tool")
	lib := filepath.Join(root, "opt/libfoo.dylib")

	for path, s := range map[string]fakebin.Spec{
		exe: {References: []string{lib, "/usr/lib/libSystem.B.dylib"}},
		lib: {ID: lib},
	} {
		if err := fakebin.Write(path, s); err != nil {
			t.Fatal(err)
		}
	}

	b, err := bundler.NewWithInspector(fakebin.New())
	if err != nil {
		t.Fatal(err)
	}
	plan, err := b.Bundle(t.Context(), exe)
	if err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(root, "Libraries/libfoo.dylib")
	s, err := fakebin.Read(dest)
	if err != nil {
		t.Fatal(err)
	}
	if exp := "@loader_path/libfoo.dylib"; s.ID != exp {
		t.Fatalf("expected id %s, got %s", exp, s.ID)
	}
	if n := plan.Graph.Node(lib); n == nil || n.BundledPath != dest {
		t.Fatalf("expected %s to be planned to %s", lib, dest)
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	root := tempfs.New(t, nil)
	exe := filepath.Join(root, "bin/tool")
	if err := fakebin.Write(exe, fakebin.Spec{References: []string{"@rpath/libgone.dylib"}}); err != nil {
		t.Fatal(err)
	}

	b, err := bundler.NewWithInspector(fakebin.New())
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Bundle(t.Context(), exe)
	if !errors.Is(err, bundler.ErrUnresolvable) {
		t.Fatalf("expected unresolvable error, got %v", err)
	}
	var ue *bundler.UnresolvableError
	if !errors.As(err, &ue) || ue.Reference != "@rpath/libgone.dylib" {
		t.Fatalf("expected unresolvable @rpath/libgone.dylib, got %v", err)
	}
}

func TestLogger(t *testing.T) {
	root := tempfs.New(t, nil)
	exe := filepath.Join(root, "bin/tool")
	if err := fakebin.Write(exe, fakebin.Spec{References: []string{"/usr/lib/libSystem.B.dylib"}}); err != nil {
		t.Fatal(err)
	}

	b, err := bundler.NewWithInspector(fakebin.New())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	b.WithLogger(bundler.NewLogger(bundler.LoggerConfig{Level: bundler.LevelDebug, Format: bundler.FormatJSON, Output: &buf}))

	if _, err := b.Discover(t.Context(), exe); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"level":"info"`)) {
		t.Fatalf("expected JSON log lines, got:\n%s", buf.String())
	}
}
