package workbook

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/sheetseries/internal/config"
	"github.com/smallbiznis/sheetseries/internal/sheet"
	"go.uber.org/zap"
)

// Store keeps uploaded and fetched workbooks addressable by handle.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (Handle, error)
	Get(ctx context.Context, handle Handle) (*sheet.Workbook, error)
	Sheets(ctx context.Context, handle Handle) ([]string, error)
	Preview(ctx context.Context, handle Handle, sheetName string) (sheet.Grid, error)
}

// backend persists one compressed blob per handle. The blob is keyed by the
// slugged name; the original name travels with it because a CSV's sheet is
// named after its file stem.
type backend interface {
	write(ctx context.Context, handle Handle, obj object) error
	read(ctx context.Context, handle Handle) (object, error)
}

type object struct {
	key  string
	name string
	blob []byte
}

type store struct {
	backend backend
	log     *zap.Logger
}

// NewStore picks the backend named by cfg.Workbooks.Driver.
func NewStore(cfg config.Config, log *zap.Logger) (Store, error) {
	wc := cfg.Workbooks
	var (
		b   backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(wc.Driver)) {
	case "", "fs":
		b, err = newFSBackend(wc.Dir)
	case "minio":
		b, err = newMinioBackend(wc)
	default:
		return nil, fmt.Errorf("unsupported workbook store %q", wc.Driver)
	}
	if err != nil {
		return nil, err
	}
	return &store{backend: b, log: log.Named("workbook.store")}, nil
}

// NewFSStore returns a filesystem store rooted at dir.
func NewFSStore(dir string, log *zap.Logger) (Store, error) {
	b, err := newFSBackend(dir)
	if err != nil {
		return nil, err
	}
	return &store{backend: b, log: log.Named("workbook.store")}, nil
}

func (s *store) Put(ctx context.Context, name string, data []byte) (Handle, error) {
	if !sheet.IsSupported(name) {
		return "", fmt.Errorf("%w: %q", sheet.ErrUnsupportedFormat, filepath.Ext(name))
	}
	handle := NewHandle()
	obj := object{
		key:  StoredName(name),
		name: filepath.Base(strings.TrimSpace(name)),
		blob: snappy.Encode(nil, data),
	}
	if err := s.backend.write(ctx, handle, obj); err != nil {
		return "", fmt.Errorf("store workbook: %w", err)
	}
	s.log.Debug("workbook stored",
		zap.String("handle", handle.String()),
		zap.String("key", obj.key),
		zap.String("file", obj.name),
		zap.Int("bytes", len(data)),
	)
	return handle, nil
}

func (s *store) Get(ctx context.Context, handle Handle) (*sheet.Workbook, error) {
	if _, err := ParseHandle(handle.String()); err != nil {
		return nil, err
	}
	obj, err := s.backend.read(ctx, handle)
	if err != nil {
		return nil, err
	}
	data, err := snappy.Decode(nil, obj.blob)
	if err != nil {
		return nil, fmt.Errorf("decode workbook %s: %w", handle, err)
	}
	name := obj.name
	if name == "" {
		name = obj.key
	}
	return sheet.Open(name, data)
}

func (s *store) Sheets(ctx context.Context, handle Handle) ([]string, error) {
	wb, err := s.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	return wb.SheetNames(), nil
}

func (s *store) Preview(ctx context.Context, handle Handle, sheetName string) (sheet.Grid, error) {
	wb, err := s.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	sh, err := wb.Sheet(sheetName)
	if err != nil {
		return nil, err
	}
	return sh.Grid.Compact(), nil
}

// StoredName slugs the file stem and keeps the lower-cased extension.
func StoredName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	ext := strings.ToLower(filepath.Ext(base))
	stem := slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "workbook"
	}
	return stem + ext
}

func notFound(handle Handle) error {
	return fmt.Errorf("%w: %s", ErrNotFound, handle)
}

// IsNotFound reports whether err means the handle names nothing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
