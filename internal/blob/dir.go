package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirStore writes objects below a local directory. The server exposes the
// directory under BaseURL.
type DirStore struct {
	dir     string
	baseURL string
}

func NewDirStore(dir, baseURL string) *DirStore {
	return &DirStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storageErr("write file", err)
	}
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(dst, filepath.Clean(s.dir)+string(filepath.Separator)) {
		return "", storageErr("write file", os.ErrInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", storageErr("create dir", err)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", storageErr("create temp file", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", storageErr("write file", err)
	}
	if err := f.Close(); err != nil {
		return "", storageErr("close file", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", storageErr("rename file", err)
	}
	return s.baseURL + "/" + key, nil
}
