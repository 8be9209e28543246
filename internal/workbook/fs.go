package workbook

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	blobSuffix = ".sz"
	// nameFile holds the uploaded file name next to the blob.
	nameFile = "name"
)

type fsBackend struct {
	root string
}

func newFSBackend(dir string) (*fsBackend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("workbook directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fsBackend{root: dir}, nil
}

func (b *fsBackend) write(_ context.Context, handle Handle, obj object) error {
	dir := filepath.Join(b.root, handle.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, nameFile), []byte(obj.name), 0o644); err != nil {
		return err
	}
	tmp := filepath.Join(dir, obj.key+blobSuffix+".tmp")
	if err := os.WriteFile(tmp, obj.blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, obj.key+blobSuffix))
}

func (b *fsBackend) read(_ context.Context, handle Handle) (object, error) {
	dir := filepath.Join(b.root, handle.String())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return object{}, notFound(handle)
		}
		return object{}, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, blobSuffix) {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return object{}, err
		}
		obj := object{key: strings.TrimSuffix(name, blobSuffix), blob: blob}
		original, err := os.ReadFile(filepath.Join(dir, nameFile))
		switch {
		case err == nil:
			obj.name = strings.TrimSpace(string(original))
		case !errors.Is(err, fs.ErrNotExist):
			return object{}, err
		}
		return obj, nil
	}
	return object{}, notFound(handle)
}
