package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RequiredBuckets must exist before cloud mode can store files.
var RequiredBuckets = []string{string(KindAssets), string(KindThumbs)}

type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PublicURL string
}

// Bucket stores files in S3-compatible object storage. Objects live in the
// "assets" and "thumbs" buckets under {userID}/projects/{projectID}/. A path
// is recorded as "{bucket}/{key}".
type Bucket struct {
	client    *minio.Client
	publicURL string
	userID    string
}

func NewBucket(cfg BucketConfig) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &Bucket{client: client, publicURL: strings.TrimRight(cfg.PublicURL, "/")}, nil
}

// ForUser returns a copy whose keys are prefixed by userID.
func (b *Bucket) ForUser(userID string) *Bucket {
	return &Bucket{client: b.client, publicURL: b.publicURL, userID: userID}
}

// MissingBuckets reports which required buckets do not exist.
func (b *Bucket) MissingBuckets(ctx context.Context) ([]string, error) {
	missing := []string{}
	for _, name := range RequiredBuckets {
		ok, err := b.client.BucketExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check bucket %s: %w", name, err)
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// EnsureBuckets creates any missing required bucket.
func (b *Bucket) EnsureBuckets(ctx context.Context) error {
	missing, err := b.MissingBuckets(ctx)
	if err != nil {
		return err
	}
	for _, name := range missing {
		if err := b.client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

func (b *Bucket) projectPrefix(projectID string) string {
	return b.userID + "/projects/" + projectID + "/"
}

func (b *Bucket) url(kind Kind, projectID, key, name string) string {
	if b.publicURL != "" {
		return b.publicURL + "/" + string(kind) + "/" + key
	}
	return AssetURL(projectID, kind, name)
}

func (b *Bucket) Save(ctx context.Context, kind Kind, projectID, fileName string, r io.Reader, size int64, contentType string) (Object, error) {
	if b.userID == "" {
		return Object{}, errors.New("object storage is not bound to a user")
	}
	name, err := CleanName(fileName)
	if err != nil {
		return Object{}, err
	}
	if !kind.Valid() {
		return Object{}, ErrInvalidName
	}
	key := b.projectPrefix(projectID) + string(kind) + "/" + name
	if _, err := b.client.PutObject(ctx, string(kind), key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Object{Path: string(kind) + "/" + key, URL: b.url(kind, projectID, key, name)}, nil
}

func (b *Bucket) TrashPath(projectID string, kind Kind, activePath string) string {
	name := activePath
	if i := strings.LastIndex(activePath, "/"); i >= 0 {
		name = activePath[i+1:]
	}
	return string(kind) + "/" + b.projectPrefix(projectID) + "trash/" + string(kind) + "/" + name
}

func splitObjectPath(path string) (string, string, error) {
	bucket, key, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object path %q", path)
	}
	return bucket, key, nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (b *Bucket) Exists(ctx context.Context, path string) (bool, error) {
	bucket, key, err := splitObjectPath(path)
	if err != nil {
		return false, err
	}
	if _, err := b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Move copies the object then removes the source. Object stores have no
// rename.
func (b *Bucket) Move(ctx context.Context, src, dst string) error {
	srcBucket, srcKey, err := splitObjectPath(src)
	if err != nil {
		return err
	}
	dstBucket, dstKey, err := splitObjectPath(dst)
	if err != nil {
		return err
	}
	if ok, err := b.Exists(ctx, src); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	if ok, err := b.Exists(ctx, dst); err != nil {
		return err
	} else if ok {
		return ErrDestinationExists
	}
	if _, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := b.client.RemoveObject(ctx, srcBucket, srcKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}

func (b *Bucket) Remove(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	bucket, key, err := splitObjectPath(path)
	if err != nil {
		return err
	}
	if err := b.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return err
	}
	return nil
}

func (b *Bucket) RemoveProject(ctx context.Context, projectID string) error {
	if b.userID == "" {
		return errors.New("object storage is not bound to a user")
	}
	prefix := b.projectPrefix(projectID)
	for _, bucket := range RequiredBuckets {
		for obj := range b.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				return fmt.Errorf("list %s/%s: %w", bucket, prefix, obj.Err)
			}
			if err := b.client.RemoveObject(ctx, bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
				return fmt.Errorf("remove %s/%s: %w", bucket, obj.Key, err)
			}
		}
	}
	return nil
}

func (b *Bucket) previewKey(projectID string) string {
	return b.projectPrefix(projectID) + "preview.webp"
}

func (b *Bucket) WritePreview(ctx context.Context, projectID string, data []byte, contentType string) error {
	if b.userID == "" {
		return errors.New("object storage is not bound to a user")
	}
	_, err := b.client.PutObject(ctx, string(KindThumbs), b.previewKey(projectID), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType, CacheControl: "no-store"})
	if err != nil {
		return fmt.Errorf("upload preview: %w", err)
	}
	return nil
}

func (b *Bucket) OpenPreview(ctx context.Context, projectID string) (io.ReadCloser, error) {
	rc, _, err := b.open(ctx, string(KindThumbs), b.previewKey(projectID))
	return rc, err
}

func (b *Bucket) Open(ctx context.Context, projectID string, kind Kind, fileName string) (io.ReadCloser, Info, error) {
	name, err := CleanName(fileName)
	if err != nil || !kind.Valid() {
		return nil, Info{}, ErrNotFound
	}
	return b.open(ctx, string(kind), b.projectPrefix(projectID)+string(kind)+"/"+name)
}

func (b *Bucket) open(ctx context.Context, bucket, key string) (io.ReadCloser, Info, error) {
	obj, err := b.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Info{}, err
	}
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, err
	}
	return obj, Info{Size: st.Size, ContentType: st.ContentType}, nil
}
