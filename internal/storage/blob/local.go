package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type localStore struct {
	root string
}

type sidecar struct {
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func newLocalStore(dir string) (*localStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "./data/reports"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &localStore{root: dir}, nil
}

func (s *localStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ObjectInfo{}, err
	}

	tmp, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return ObjectInfo{}, err
	}
	defer os.Remove(tmp.Name())
	size, err := io.Copy(tmp, body)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return ObjectInfo{}, err
	}

	meta, err := json.Marshal(sidecar{ContentType: opts.ContentType, Size: size, Metadata: opts.Metadata})
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.WriteFile(path+".meta", meta, 0o640); err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: size, ContentType: opts.ContentType, Metadata: opts.Metadata}, nil
}

func (s *localStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	raw, err := os.ReadFile(path + ".meta")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("decode metadata for %s: %w", key, err)
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	return file, ObjectInfo{Key: key, Size: meta.Size, ContentType: meta.ContentType, Metadata: meta.Metadata}, nil
}

// resolve maps a key onto the archive root, refusing keys that escape it.
func (s *localStore) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key: %q", key)
	}
	return filepath.Join(s.root, cleaned), nil
}
