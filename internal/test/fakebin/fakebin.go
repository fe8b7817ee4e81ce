// Package fakebin implements inspect.Inspector over small JSON files that
// stand in for Mach-O binaries in tests. The metadata lives inside the file,
// so copying a fake binary copies its load commands too.
package fakebin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/libbundler/libbundler/internal/inspect"
)

// Spec is the on-disk content of a fake binary.
type Spec struct {
	ID         string   `json:"id,omitempty"`
	References []string `json:"references,omitempty"`
	RPaths     []string `json:"rpaths,omitempty"`
	Payload    string   `json:"payload,omitempty"`
}

// Write creates (or replaces) a fake binary at path.
func Write(path string, s Spec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	bs, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, bs, 0o755)
}

// Read parses the fake binary at path.
func Read(path string) (Spec, error) {
	var s Spec
	bs, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(bs, &s); err != nil {
		return s, fmt.Errorf("%s: not a fake binary: %w", path, err)
	}
	return s, nil
}

type Mutation struct {
	Op   string
	Path string
	Old  string
	New  string
}

// Inspector records every call so tests can assert on mutation counts.
type Inspector struct {
	mu          sync.Mutex
	inspections map[string]int
	mutations   []Mutation
	failOn      map[string]error
}

func New() *Inspector {
	return &Inspector{inspections: map[string]int{}, failOn: map[string]error{}}
}

// FailOn makes every mutation of path fail with err.
func (i *Inspector) FailOn(path string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failOn[path] = err
}

func (i *Inspector) Mutations() []Mutation {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.mutations)
}

func (i *Inspector) Inspections(path string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inspections[path]
}

func (i *Inspector) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.inspections = map[string]int{}
	i.mutations = nil
}

func (i *Inspector) Inspect(_ context.Context, path string) (*inspect.Binary, error) {
	i.mu.Lock()
	i.inspections[path]++
	i.mu.Unlock()

	s, err := Read(path)
	if err != nil {
		return nil, err
	}

	bin := &inspect.Binary{Path: path, ID: s.ID, RPaths: slices.Clone(s.RPaths)}
	for _, r := range s.References {
		bin.References = append(bin.References, inspect.Reference{Path: r, Kind: inspect.LoadNormal})
	}
	return bin, nil
}

func (i *Inspector) ChangeReference(_ context.Context, path, old, new string) error {
	return i.mutate(Mutation{Op: "change", Path: path, Old: old, New: new}, func(s *Spec) error {
		idx := slices.Index(s.References, old)
		if idx < 0 {
			return fmt.Errorf("%s: no reference %q", path, old)
		}
		s.References[idx] = new
		return nil
	})
}

func (i *Inspector) ChangeID(_ context.Context, path, id string) error {
	return i.mutate(Mutation{Op: "id", Path: path, New: id}, func(s *Spec) error {
		if s.ID == "" {
			return fmt.Errorf("%s: not a shared library", path)
		}
		s.ID = id
		return nil
	})
}

func (i *Inspector) AddRPath(_ context.Context, path, dir string) error {
	return i.mutate(Mutation{Op: "add_rpath", Path: path, New: dir}, func(s *Spec) error {
		if slices.Contains(s.RPaths, dir) {
			return fmt.Errorf("%s: would duplicate path %q", path, dir)
		}
		s.RPaths = append(s.RPaths, dir)
		return nil
	})
}

func (i *Inspector) DeleteRPath(_ context.Context, path, dir string) error {
	return i.mutate(Mutation{Op: "delete_rpath", Path: path, Old: dir}, func(s *Spec) error {
		idx := slices.Index(s.RPaths, dir)
		if idx < 0 {
			return fmt.Errorf("%s: no rpath %q", path, dir)
		}
		s.RPaths = slices.Delete(s.RPaths, idx, idx+1)
		return nil
	})
}

func (i *Inspector) mutate(m Mutation, f func(*Spec) error) error {
	i.mu.Lock()
	err := i.failOn[m.Path]
	i.mu.Unlock()
	if err != nil {
		return err
	}

	s, err := Read(m.Path)
	if err != nil {
		return err
	}
	if err := f(&s); err != nil {
		return err
	}

	bs, err := json.Marshal(s)
	if err != nil {
		return err
	}

	tmp := m.Path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o755); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.Path); err != nil {
		return err
	}

	i.mu.Lock()
	i.mutations = append(i.mutations, m)
	i.mu.Unlock()
	return nil
}
