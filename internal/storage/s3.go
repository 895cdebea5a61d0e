package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/starford/mailblog/internal/checksum"
)

// S3Config holds the connection settings for an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3 implements Provider on an S3-compatible bucket. Directories are key
// prefixes, so RemoveDir only checks that nothing is left under one.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ Provider = (*S3)(nil)

// NewS3 creates an S3 provider.
func NewS3(cfg S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init s3 client: %w", err)
	}
	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3) key(p string) (string, error) {
	cleaned := path.Clean("/" + p)[1:]
	if strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return "", fmt.Errorf("storage: invalid artifact path: %s", p)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	if cleaned == "" {
		return s.prefix, nil
	}
	return s.prefix + "/" + cleaned, nil
}

// Write uploads content unless the stored object already has the same ETag.
func (s *S3) Write(ctx context.Context, p string, content []byte) error {
	key, err := s.key(p)
	if err != nil {
		return err
	}
	if info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err == nil {
		if checksum.MatchesETag(info.ETag, content) {
			return nil
		}
	}
	ctype := mime.TypeByExtension(path.Ext(key))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: ctype, SendContentMd5: true})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

// List returns the object names directly under dir.
func (s *S3) List(ctx context.Context, dir string) ([]string, error) {
	key, err := s.key(dir)
	if err != nil {
		return nil, err
	}
	prefix := key
	if prefix != "" {
		prefix += "/"
	}
	var out []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// Delete removes the object at p.
func (s *S3) Delete(ctx context.Context, p string) error {
	key, err := s.key(p)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("storage: delete %s: not found", key)
		}
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// RemoveDir fails if any object remains under dir.
func (s *S3) RemoveDir(ctx context.Context, dir string) error {
	names, err := s.List(ctx, dir)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return fmt.Errorf("%w: %s", ErrDirNotEmpty, dir)
	}
	return nil
}
