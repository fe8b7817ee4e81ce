package fs

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ownerWrite is added to copied files so the rewrite tools can patch them;
// system libraries are frequently installed read-only.
const ownerWrite = 0o200

// CopyFile copies src to dst atomically: the content is written to a temporary
// file next to dst which is then renamed over it. dst gets the mode of src
// plus owner write permission.
func CopyFile(src, dst string) error {
	tmp, err := TempCopy(src, filepath.Dir(dst))
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// TempCopy copies src into a new temporary file in dir and returns its path.
// The caller owns the returned file.
func TempCopy(src, dir string) (string, error) {
	sf, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer sf.Close()

	si, err := sf.Stat()
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(src)+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, sf); err != nil {
		return "", err
	}
	if err := tmp.Chmod(si.Mode().Perm() | ownerWrite); err != nil {
		return "", err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return "", err
	}

	committed = true
	return tmpName, nil
}

// SameContent reports whether the two files have identical bytes.
func SameContent(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if ai.Size() != bi.Size() {
		return false, nil
	}

	ha, err := hashFile(a)
	if err != nil {
		return false, err
	}
	hb, err := hashFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ha, hb), nil
}

// Exists reports whether path exists. Errors other than "not exist" are
// returned.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, err
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
