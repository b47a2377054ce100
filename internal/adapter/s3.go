package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// S3Store implements RemoteStore on an S3 compatible bucket. Directories are
// key prefixes marked by a zero-byte "prefix/" object.
type S3Store struct {
	client *minio.Client
	bucket string
}

// parseS3Target splits http(s)://host[:port]/bucket
func parseS3Target(target string) (endpoint, bucket string, secure bool, err error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", false, fmt.Errorf("invalid S3 target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false, fmt.Errorf("invalid S3 target %q: scheme must be http or https", target)
	}
	bucket = strings.Trim(u.Path, "/")
	if bucket == "" || strings.Contains(bucket, "/") {
		return "", "", false, fmt.Errorf("invalid S3 target %q: expected a single bucket path", target)
	}
	return u.Host, bucket, u.Scheme == "https", nil
}

// NewS3Store creates an S3 store. username and password are the access and
// secret keys.
func NewS3Store(target, accessKey, secretKey string) (*S3Store, error) {
	endpoint, bucket, secure, err := parseS3Target(target)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &S3Store{client: client, bucket: bucket}, nil
}

// objectKey maps a remote path to an object key
func objectKey(p string) string {
	return strings.TrimPrefix(cleanPath(p), "/")
}

// dirPrefix maps a remote directory to the prefix of its children
func dirPrefix(dir string) string {
	key := objectKey(dir)
	if key == "" {
		return ""
	}
	return key + "/"
}

// childEntry converts a listed key under prefix into a directory entry
func childEntry(prefix, key string) (entry, bool) {
	name := strings.TrimPrefix(key, prefix)
	if name == "" {
		return entry{}, false
	}
	if strings.HasSuffix(name, "/") {
		return entry{Name: strings.TrimSuffix(name, "/"), Dir: true}, true
	}
	return entry{Name: name}, true
}

func (s *S3Store) listDirectory(ctx context.Context, dir string) ([]entry, error) {
	prefix := dirPrefix(dir)
	var entries []entry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, obj.Err)
		}
		if e, ok := childEntry(prefix, obj.Key); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *S3Store) makeDirectory(ctx context.Context, dir string) error {
	_, err := s.client.PutObject(ctx, s.bucket, dirPrefix(dir), bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to create directory marker %s: %w", dir, err)
	}
	return nil
}

// DirectoryExists reports whether p has a marker or children
func (s *S3Store) DirectoryExists(ctx context.Context, p string) (bool, error) {
	return directoryExists(ctx, s, p)
}

// EnsureDirectory writes a marker for each missing prefix of p
func (s *S3Store) EnsureDirectory(ctx context.Context, p string) error {
	return walkDirectory(ctx, s, p)
}

// FileExists reports whether the object for p is listed under its parent
func (s *S3Store) FileExists(ctx context.Context, p string) (bool, error) {
	return fileExists(ctx, s, p)
}

// ReadFile downloads the object for p
func (s *S3Store) ReadFile(ctx context.Context, p string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.readError(p, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.readError(p, err)
	}
	logrus.Debugf("Read %d bytes from s3://%s/%s", len(data), s.bucket, objectKey(p))
	return data, nil
}

func (s *S3Store) readError(p string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("failed to read %s: %w", p, ErrNotFound)
	}
	return fmt.Errorf("failed to read %s: %w", p, err)
}

// WriteFile uploads data as the object for p
func (s *S3Store) WriteFile(ctx context.Context, p string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(p), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	logrus.Debugf("Wrote %d bytes to s3://%s/%s", len(data), s.bucket, objectKey(p))
	return nil
}
