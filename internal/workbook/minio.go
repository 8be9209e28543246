package workbook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	minioCreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/smallbiznis/sheetseries/internal/config"
)

type minioBackend struct {
	client *minio.Client
	bucket string
}

func newMinioBackend(cfg config.WorkbookStoreConfig) (*minioBackend, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("object storage credentials are not configured")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = "minio:9000"
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("object storage bucket is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  minioCreds.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioBackend{client: client, bucket: bucket}, nil
}

// originalNameMeta is stored escaped; object metadata is ASCII only.
const originalNameMeta = "Original-Name"

func (b *minioBackend) write(ctx context.Context, handle Handle, obj object) error {
	key := path.Join(handle.String(), obj.key+blobSuffix)
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(obj.blob), int64(len(obj.blob)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{originalNameMeta: url.PathEscape(obj.name)},
	})
	return err
}

func (b *minioBackend) read(ctx context.Context, handle Handle) (object, error) {
	// cancelling stops the lister goroutine once a blob is found
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{Prefix: handle.String() + "/", Recursive: true}
	for obj := range b.client.ListObjects(ctx, b.bucket, opts) {
		if obj.Err != nil {
			return object{}, obj.Err
		}
		if !strings.HasSuffix(obj.Key, blobSuffix) {
			continue
		}
		reader, err := b.client.GetObject(ctx, b.bucket, obj.Key, minio.GetObjectOptions{})
		if err != nil {
			return object{}, err
		}
		info, err := reader.Stat()
		if err != nil {
			reader.Close()
			return object{}, err
		}
		blob, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return object{}, err
		}
		name, err := url.PathUnescape(info.UserMetadata[originalNameMeta])
		if err != nil {
			name = ""
		}
		return object{
			key:  strings.TrimSuffix(path.Base(obj.Key), blobSuffix),
			name: name,
			blob: blob,
		}, nil
	}
	return object{}, notFound(handle)
}
