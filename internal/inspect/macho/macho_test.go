package macho

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libbundler/libbundler/internal/inspect"
)

type loadCmd struct {
	cmd  uint32
	name string
	cur  uint32
	comp uint32
}

// synth builds a minimal little-endian 64-bit Mach-O with only dylib and
// rpath load commands.
func synth(fileType uint32, cmds ...loadCmd) []byte {
	var body bytes.Buffer
	for _, c := range cmds {
		var hdrLen int
		if c.cmd == lcRPath {
			hdrLen = 12
		} else {
			hdrLen = 24
		}
		size := hdrLen + len(c.name) + 1
		size = (size + 7) &^ 7

		buf := make([]byte, size)
		binary.LittleEndian.PutUint32(buf[0:], c.cmd)
		binary.LittleEndian.PutUint32(buf[4:], uint32(size))
		binary.LittleEndian.PutUint32(buf[8:], uint32(hdrLen))
		if c.cmd != lcRPath {
			binary.LittleEndian.PutUint32(buf[16:], c.cur)
			binary.LittleEndian.PutUint32(buf[20:], c.comp)
		}
		copy(buf[hdrLen:], c.name)
		body.Write(buf)
	}

	hdr := make([]byte, 32)
	binary.LittleEndian.PutUint32(hdr[0:], 0xfeedfacf)
	binary.LittleEndian.PutUint32(hdr[4:], 0x0100000c) // arm64
	binary.LittleEndian.PutUint32(hdr[12:], fileType)
	binary.LittleEndian.PutUint32(hdr[16:], uint32(len(cmds)))
	binary.LittleEndian.PutUint32(hdr[20:], uint32(body.Len()))

	return append(hdr, body.Bytes()...)
}

func writeFile(t *testing.T, name string, bs []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, bs, 0o755))
	return p
}

func TestInspectDylib(t *testing.T) {
	path := writeFile(t, "libA.dylib", synth(6,
		loadCmd{cmd: lcIDDylib, name: "/opt/x/lib/libA.1.dylib", cur: 0x010203, comp: 0x010000},
		loadCmd{cmd: lcLoadDylib, name: "@rpath/libB.dylib", cur: 0x020000, comp: 0x010000},
		loadCmd{cmd: lcLoadWeakDylib, name: "/usr/lib/libSystem.B.dylib"},
		loadCmd{cmd: lcReexportDylib, name: "@loader_path/libC.dylib"},
		loadCmd{cmd: lcRPath, name: "@loader_path/../lib"},
		loadCmd{cmd: lcRPath, name: "/opt/x/lib"},
	))

	b, err := (&Inspector{}).Inspect(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, path, b.Path)
	require.Equal(t, "/opt/x/lib/libA.1.dylib", b.ID)
	require.Equal(t, []inspect.Reference{
		{Path: "@rpath/libB.dylib", Kind: inspect.LoadNormal, CurrentVersion: "2.0.0", CompatVersion: "1.0.0"},
		{Path: "/usr/lib/libSystem.B.dylib", Kind: inspect.LoadWeak, CurrentVersion: "0.0.0", CompatVersion: "0.0.0"},
		{Path: "@loader_path/libC.dylib", Kind: inspect.LoadReexport, CurrentVersion: "0.0.0", CompatVersion: "0.0.0"},
	}, b.References)
	require.Equal(t, []string{"@loader_path/../lib", "/opt/x/lib"}, b.RPaths)
}

func TestInspectExecutableHasNoID(t *testing.T) {
	path := writeFile(t, "tool", synth(2,
		loadCmd{cmd: lcLoadDylib, name: "/opt/x/lib/libA.dylib"},
	))

	b, err := (&Inspector{}).Inspect(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, b.ID)
	require.Len(t, b.References, 1)
	require.Empty(t, b.RPaths)
}

func TestInspectRejectsNonMachO(t *testing.T) {
	path := writeFile(t, "README", []byte("#!/bin/sh\necho not a binary\n"))

	_, err := (&Inspector{}).Inspect(context.Background(), path)
	require.Error(t, err)
	require.Contains(t, err.Error(), path)
}

func TestInspectMissingFile(t *testing.T) {
	_, err := (&Inspector{}).Inspect(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestVersion(t *testing.T) {
	require.Equal(t, "1311.100.3", version(1311<<16|100<<8|3))
}

// fakeTool writes a shell script standing in for install_name_tool. It logs
// its arguments and appends a marker to the file it was asked to patch.
func fakeTool(t *testing.T, exit int) (tool, log string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unsupported")
	}
	dir := t.TempDir()
	log = filepath.Join(dir, "calls.log")
	tool = filepath.Join(dir, "install_name_tool")
	script := "#!/bin/sh\n" +
		"echo \"$@\" >> " + log + "\n" +
		"for last; do :; done\n" +
		"echo patched >> \"$last\"\n" +
		"echo 'warning: changes invalidate signature' >&2\n"
	if exit != 0 {
		script += "echo 'fatal: no room' >&2\nexit 1\n"
	}
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))
	return tool, log
}

func TestMutationsRunToolOnCopy(t *testing.T) {
	tool, log := fakeTool(t, 0)
	path := writeFile(t, "libA.dylib", []byte("orig\n"))
	require.NoError(t, os.Chmod(path, 0o555))

	i := (&Inspector{}).WithTool(tool)
	ctx := context.Background()

	require.NoError(t, i.ChangeReference(ctx, path, "/opt/x/libB.dylib", "@loader_path/libB.dylib"))
	require.NoError(t, i.ChangeID(ctx, path, "@loader_path/libA.dylib"))
	require.NoError(t, i.AddRPath(ctx, path, "@executable_path/../Libraries"))
	require.NoError(t, i.DeleteRPath(ctx, path, "/opt/x/lib"))

	bs, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "orig\npatched\npatched\npatched\npatched\n", string(bs))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o555), fi.Mode().Perm())

	calls, err := os.ReadFile(log)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(calls)), "\n")
	require.Len(t, lines, 4)
	for i, prefix := range []string{
		"-change /opt/x/libB.dylib @loader_path/libB.dylib ",
		"-id @loader_path/libA.dylib ",
		"-add_rpath @executable_path/../Libraries ",
		"-delete_rpath /opt/x/lib ",
	} {
		require.True(t, strings.HasPrefix(lines[i], prefix), "call %d: %q", i, lines[i])
		require.NotContains(t, lines[i], " "+path, "tool must patch a copy")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary copies left behind")
}

func TestMutationFailureLeavesFileIntact(t *testing.T) {
	tool, _ := fakeTool(t, 1)
	path := writeFile(t, "libA.dylib", []byte("orig\n"))

	err := (&Inspector{}).WithTool(tool).ChangeID(context.Background(), path, "@loader_path/libA.dylib")
	require.Error(t, err)
	require.Contains(t, err.Error(), "fatal: no room")

	bs, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "orig\n", string(bs))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestMutationWithoutTool(t *testing.T) {
	path := writeFile(t, "libA.dylib", []byte("orig\n"))
	err := (&Inspector{}).ChangeID(context.Background(), path, "x")
	require.ErrorIs(t, err, ErrToolNotFound)
}
