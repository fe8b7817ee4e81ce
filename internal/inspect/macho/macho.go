// Package macho reads dyld load commands with debug/macho and rewrites them
// with the system install_name_tool.
package macho

import (
	"bytes"
	"context"
	"debug/macho"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ocp_fs "github.com/libbundler/libbundler/internal/fs"
	"github.com/libbundler/libbundler/internal/inspect"
	"github.com/libbundler/libbundler/internal/logging"
)

const (
	lcReqDyld         = 0x80000000
	lcLoadDylib       = 0xc
	lcIDDylib         = 0xd
	lcLoadWeakDylib   = 0x18 | lcReqDyld
	lcRPath           = 0x1c | lcReqDyld
	lcReexportDylib   = 0x1f | lcReqDyld
	lcLazyLoadDylib   = 0x20
	lcLoadUpwardDylib = 0x23 | lcReqDyld
)

// DefaultTool is looked up on PATH by New.
const DefaultTool = "install_name_tool"

var ErrToolNotFound = errors.New("install_name_tool not found")

// Inspector is the production inspect.Inspector.
type Inspector struct {
	tool   string
	logger *logging.Logger
}

// New locates install_name_tool on PATH. Reading works without the tool, so
// callers that only list may ignore ErrToolNotFound and use the returned
// value anyway.
func New() (*Inspector, error) {
	i := &Inspector{logger: logging.NewNop()}
	path, err := exec.LookPath(DefaultTool)
	if err != nil {
		return i, fmt.Errorf("%w: %w", ErrToolNotFound, err)
	}
	i.tool = path
	return i, nil
}

// WithTool overrides the rewrite tool path.
func (i *Inspector) WithTool(path string) *Inspector {
	i.tool = path
	return i
}

func (i *Inspector) WithLogger(l *logging.Logger) *Inspector {
	i.logger = l
	return i
}

func (i *Inspector) Inspect(_ context.Context, path string) (*inspect.Binary, error) {
	f, closer, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer closer()

	b, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.Path = path
	return b, nil
}

func (i *Inspector) ChangeReference(ctx context.Context, path, old, new string) error {
	return i.run(ctx, path, "-change", old, new)
}

func (i *Inspector) ChangeID(ctx context.Context, path, id string) error {
	return i.run(ctx, path, "-id", id)
}

func (i *Inspector) AddRPath(ctx context.Context, path, dir string) error {
	return i.run(ctx, path, "-add_rpath", dir)
}

func (i *Inspector) DeleteRPath(ctx context.Context, path, dir string) error {
	return i.run(ctx, path, "-delete_rpath", dir)
}

// run applies the tool to a temporary copy of path and renames the copy into
// place only on success.
func (i *Inspector) run(ctx context.Context, path string, args ...string) error {
	if i.tool == "" {
		return ErrToolNotFound
	}

	tmp, err := ocp_fs.TempCopy(path, filepath.Dir(path))
	if err != nil {
		return err
	}
	defer os.Remove(tmp) // no-op once renamed

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, i.tool, append(args, tmp)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	i.logger.Debugf("%s %s %s", filepath.Base(i.tool), strings.Join(args, " "), path)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s %s: %w", DefaultTool, args[0], err)
		}
		return fmt.Errorf("%s %s: %w: %s", DefaultTool, args[0], err, msg)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		i.logger.Debugf("%s: %s", path, msg)
	}

	if err := os.Chmod(tmp, fi.Mode().Perm()); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// open returns the first architecture of a universal binary, or the thin file.
func open(path string) (*macho.File, func(), error) {
	ff, err := macho.OpenFat(path)
	switch {
	case err == nil:
		if len(ff.Arches) == 0 {
			ff.Close()
			return nil, nil, errors.New("universal binary without architectures")
		}
		return ff.Arches[0].File, func() { ff.Close() }, nil
	case !errors.Is(err, macho.ErrNotFat):
		var fe *macho.FormatError
		if !errors.As(err, &fe) {
			return nil, nil, err
		}
	}

	f, err := macho.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func decode(f *macho.File) (*inspect.Binary, error) {
	var b inspect.Binary
	bo := f.ByteOrder

	for _, l := range f.Loads {
		raw := l.Raw()
		if len(raw) < 8 {
			continue
		}

		cmd := bo.Uint32(raw)
		switch cmd {
		case lcIDDylib:
			ref, err := dylib(raw, bo)
			if err != nil {
				return nil, err
			}
			b.ID = ref.Path
		case lcLoadDylib, lcLoadWeakDylib, lcReexportDylib, lcLazyLoadDylib, lcLoadUpwardDylib:
			ref, err := dylib(raw, bo)
			if err != nil {
				return nil, err
			}
			ref.Kind = kind(cmd)
			b.References = append(b.References, ref)
		case lcRPath:
			if len(raw) < 12 {
				return nil, errors.New("truncated LC_RPATH")
			}
			p, err := cstring(raw, bo.Uint32(raw[8:]))
			if err != nil {
				return nil, fmt.Errorf("LC_RPATH: %w", err)
			}
			b.RPaths = append(b.RPaths, p)
		}
	}

	return &b, nil
}

func dylib(raw []byte, bo binary.ByteOrder) (inspect.Reference, error) {
	if len(raw) < 24 {
		return inspect.Reference{}, errors.New("truncated dylib command")
	}
	name, err := cstring(raw, bo.Uint32(raw[8:]))
	if err != nil {
		return inspect.Reference{}, fmt.Errorf("dylib command: %w", err)
	}
	return inspect.Reference{
		Path:           name,
		CurrentVersion: version(bo.Uint32(raw[16:])),
		CompatVersion:  version(bo.Uint32(raw[20:])),
	}, nil
}

func kind(cmd uint32) inspect.LoadKind {
	switch cmd {
	case lcLoadWeakDylib:
		return inspect.LoadWeak
	case lcReexportDylib:
		return inspect.LoadReexport
	case lcLazyLoadDylib:
		return inspect.LoadLazy
	case lcLoadUpwardDylib:
		return inspect.LoadUpward
	}
	return inspect.LoadNormal
}

func cstring(raw []byte, off uint32) (string, error) {
	if int(off) >= len(raw) {
		return "", fmt.Errorf("string offset %d out of range", off)
	}
	s := raw[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), nil
}

// version formats the packed xxxx.yy.zz encoding.
func version(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>16, (v>>8)&0xff, v&0xff)
}
