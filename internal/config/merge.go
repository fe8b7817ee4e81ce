package config

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"

	"gopkg.in/yaml.v3"
)

// Merge combines configuration files into one YAML document. Directories are
// walked for *.yaml and *.yml files in lexical order. Nested mappings merge
// key by key; any other value from a later file replaces the earlier one,
// or is an error when conflictError is set and the values differ.
func Merge(paths []string, conflictError bool) ([]byte, error) {
	var files []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %w", p, err)
		}
		if !fi.IsDir() {
			files = append(files, p)
			continue
		}
		if err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			switch filepath.Ext(path) {
			case ".yaml", ".yml":
				if !d.IsDir() {
					files = append(files, path)
				}
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	docs := make([]map[string]any, 0, len(files))
	for _, f := range files {
		bs, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %w", f, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(bs, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration file %v: %w", f, err)
		}
		docs = append(docs, doc)
	}

	merged := map[string]any{}
	for _, doc := range docs {
		if err := mergeInto(merged, doc, "", conflictError); err != nil {
			return nil, err
		}
	}

	bs, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %w", err)
	}
	return bs, nil
}

func mergeInto(dst, src map[string]any, path string, conflictError bool) error {
	for _, key := range slices.Sorted(maps.Keys(src)) { // sorted for deterministic conflict errors
		value := src[key]
		existing, ok := dst[key]
		if !ok {
			dst[key] = value
			continue
		}

		em, ok1 := existing.(map[string]any)
		vm, ok2 := value.(map[string]any)
		if ok1 && ok2 {
			if err := mergeInto(em, vm, path+"/"+key, conflictError); err != nil {
				return err
			}
			continue
		}

		if conflictError && !reflect.DeepEqual(existing, value) {
			return fmt.Errorf("conflict for config path %s", path+"/"+key)
		}
		dst[key] = value
	}
	return nil
}
