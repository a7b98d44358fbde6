package files

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"scribe/api/internal/filesync"
)

// MinioPort serves uploads from an S3-compatible bucket.
type MinioPort struct {
	client *minio.Client
	bucket string
}

func NewMinioPort(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioPort, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &MinioPort{client: client, bucket: bucket}, nil
}

func (p *MinioPort) ListUploadedFiles(ctx context.Context) ([]filesync.UploadedFile, error) {
	var files []filesync.UploadedFile
	for object := range p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list bucket %s: %w", p.bucket, object.Err)
		}
		files = append(files, filesync.UploadedFile{
			ID:   fileID(object.Key),
			Name: object.Key,
			Path: object.Key,
			Size: object.Size,
		})
	}
	return files, nil
}

func (p *MinioPort) ReadFileAsText(ctx context.Context, path string) (string, error) {
	object, err := p.client.GetObject(ctx, p.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get object %s: %w", path, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", path, err)
	}
	return string(data), nil
}
