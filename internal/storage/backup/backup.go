// Package backup keeps collection exports in a MinIO/S3 bucket under "<owner>/<name>".
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"gametrack/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	namePrefix  = "gametrack-backup-"
	contentType = "application/json"
)

var (
	ErrInvalidName = errors.New("invalid backup name")

	nameRe = regexp.MustCompile(`^gametrack-backup-\d{4}-\d{2}-\d{2}-\d+\.json$`)
)

type Object struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

func Name(day time.Time, n int) string {
	return fmt.Sprintf("%s%s-%d.json", namePrefix, day.UTC().Format(time.DateOnly), n)
}

// DayPrefix is the name prefix shared by every backup taken on day.
func DayPrefix(day time.Time) string {
	return namePrefix + day.UTC().Format(time.DateOnly) + "-"
}

func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

func objectKey(owner, name string) (string, error) {
	if owner == "" || strings.ContainsAny(owner, `/\`) || !ValidName(name) {
		return "", ErrInvalidName
	}
	return owner + "/" + name, nil
}

type Minio struct {
	client *minio.Client
	bucket string
}

func NewMinio(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Minio, error) {
	const op = "storage.backup.NewMinio"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: init minio client: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: check bucket: %w", op, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: create bucket: %w", op, err)
		}
	}

	return &Minio{client: client, bucket: bucket}, nil
}

func (m *Minio) Put(ctx context.Context, owner, name string, data []byte) error {
	const op = "storage.backup.Put"

	key, err := objectKey(owner, name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrCreateFailed, err)
	}
	return nil
}

func (m *Minio) List(ctx context.Context, owner string) ([]Object, error) {
	const op = "storage.backup.List"

	if owner == "" || strings.ContainsAny(owner, `/\`) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidName)
	}

	objects := []Object{}
	for info := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: owner + "/" + namePrefix}) {
		if info.Err != nil {
			return nil, fmt.Errorf("%s: %w", op, info.Err)
		}
		objects = append(objects, Object{
			Name:         path.Base(info.Key),
			Size:         info.Size,
			LastModified: info.LastModified.UTC(),
		})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	return objects, nil
}

func (m *Minio) Get(ctx context.Context, owner, name string) ([]byte, error) {
	const op = "storage.backup.Get"

	key, err := objectKey(owner, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}
