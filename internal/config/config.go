package config

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
)

// Root is the configuration file of libbundler. Every field is optional and
// command line flags take precedence over it.
type Root struct {
	// Exclude replaces the default system prefixes. An empty list excludes
	// nothing; leaving it out keeps the defaults.
	Exclude         []string `json:"exclude,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	LibDir          string   `json:"lib_dir,omitempty"`
	KeepRPaths      bool     `json:"keep_rpaths,omitempty"`
	Strict          bool     `json:"strict,omitempty"`
	Jobs            int      `json:"jobs,omitempty" minimum:"1"`
	Format          string   `json:"format,omitempty" enum:"table,json,yaml"`
	Log             *Log     `json:"log,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

type Log struct {
	Level  string `json:"level,omitempty" enum:"debug,info,warn,error"`
	Format string `json:"format,omitempty" enum:"text,json"`

	_ struct{} `additionalProperties:"false"`
}

// Excludes returns the configured prefixes and whether the file set them at
// all.
func (r *Root) Excludes() ([]string, bool) {
	return r.Exclude, r.Exclude != nil
}

// LibDirOr returns the configured library directory or def.
func (r *Root) LibDirOr(def string) string {
	return cmp.Or(r.LibDir, def)
}

// JobsOr returns the configured job count or def.
func (r *Root) JobsOr(def int) int {
	return cmp.Or(r.Jobs, def)
}

func (r *Root) LogLevel() string {
	if r.Log == nil {
		return ""
	}
	return r.Log.Level
}

func (r *Root) LogFormat() string {
	if r.Log == nil {
		return ""
	}
	return r.Log.Format
}

func (r *Root) validate() error {
	for _, p := range r.ExcludePatterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			return fmt.Errorf("exclude_patterns: invalid pattern %q: %w", p, err)
		}
	}
	if slices.Contains(r.Exclude, "") {
		return fmt.Errorf("exclude: empty prefix")
	}
	return nil
}

// Validate checks data against the configuration schema.
func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}
	if config == nil { // empty file
		return nil
	}

	return rootSchema.Validate(config)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	root, err = Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return root, nil
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := root.validate(); err != nil {
		return nil, err
	}

	return &root, nil
}

// Load parses the given files, or the directories walked recursively, as one
// configuration. Later files override earlier ones.
func Load(paths []string) (*Root, error) {
	switch len(paths) {
	case 0:
		return &Root{}, nil
	case 1:
		if fi, err := os.Stat(paths[0]); err == nil && !fi.IsDir() {
			return ParseFile(paths[0])
		}
	}

	bs, err := Merge(paths, false)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}
