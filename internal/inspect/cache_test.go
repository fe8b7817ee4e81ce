package inspect_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/libbundler/libbundler/internal/inspect"
	"github.com/libbundler/libbundler/internal/test/fakebin"
	"github.com/libbundler/libbundler/internal/test/tempfs"
)

func TestCacheServesRepeatedInspections(t *testing.T) {
	root := tempfs.New(t, nil)
	lib := filepath.Join(root, "libA.dylib")
	if err := fakebin.Write(lib, fakebin.Spec{ID: "/opt/lib/libA.dylib", References: []string{"/opt/lib/libB.dylib"}}); err != nil {
		t.Fatal(err)
	}

	fake := fakebin.New()
	c, err := inspect.NewCache(fake, 0)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Inspect(t.Context(), lib); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	fake.Reset()

	bin, err := c.Inspect(t.Context(), lib)
	if err != nil {
		t.Fatal(err)
	}

	if act := fake.Inspections(lib); act != 0 {
		t.Fatalf("expected cached result, got %d inspections", act)
	}

	exp := []inspect.Reference{{Path: "/opt/lib/libB.dylib"}}
	if diff := cmp.Diff(exp, bin.References); diff != "" {
		t.Fatalf("unexpected references (-want, +got):\n%s", diff)
	}
}

func TestCacheEvictsOnMutation(t *testing.T) {
	root := tempfs.New(t, nil)
	lib := filepath.Join(root, "libA.dylib")
	if err := fakebin.Write(lib, fakebin.Spec{ID: "/opt/lib/libA.dylib"}); err != nil {
		t.Fatal(err)
	}

	fake := fakebin.New()
	c, err := inspect.NewCache(fake, 4)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Inspect(t.Context(), lib); err != nil {
		t.Fatal(err)
	}
	if err := c.ChangeID(t.Context(), lib, "@loader_path/libA.dylib"); err != nil {
		t.Fatal(err)
	}

	bin, err := c.Inspect(t.Context(), lib)
	if err != nil {
		t.Fatal(err)
	}
	if bin.ID != "@loader_path/libA.dylib" {
		t.Fatalf("stale identity %q", bin.ID)
	}
	if exp, act := 2, fake.Inspections(lib); exp != act {
		t.Fatalf("expected %d inspections, got %d", exp, act)
	}
}

func TestCacheDoesNotCacheErrors(t *testing.T) {
	root := tempfs.New(t, map[string]string{"garbage": "not json"})
	path := filepath.Join(root, "garbage")

	fake := fakebin.New()
	c, err := inspect.NewCache(fake, 4)
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if _, err := c.Inspect(t.Context(), path); err == nil {
			t.Fatal("expected error")
		}
	}
	if exp, act := 2, fake.Inspections(path); exp != act {
		t.Fatalf("expected %d inspections, got %d", exp, act)
	}
}
