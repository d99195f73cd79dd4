package fsxs3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mchuluq/whatsapp-microservice/pkg/fsx"
)

// S3FileSystem implements fsx.FileSystemWithPresign using an S3 bucket
type S3FileSystem struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string // Key prefix applied to every path
}

var _ fsx.FileSystemWithPresign = (*S3FileSystem)(nil)

// NewS3FileSystem creates a new S3-backed file system
// prefix: optional key prefix (e.g., "media"); pass "" for none
func NewS3FileSystem(client *s3.Client, bucket string, prefix string) *S3FileSystem {
	return &S3FileSystem{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		prefix:    prefix,
	}
}

// ============================================================================
// FileReader Implementation
// ============================================================================

func (fs *S3FileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	out, err := fs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("file not found: %s", p)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (fs *S3FileSystem) Stat(ctx context.Context, p string) (fsx.FileInfo, error) {
	out, err := fs.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return fsx.FileInfo{}, fmt.Errorf("file not found: %s", p)
		}
		return fsx.FileInfo{}, fmt.Errorf("failed to stat object: %w", err)
	}

	return fsx.FileInfo{
		Name:        path.Base(p),
		Size:        aws.ToInt64(out.ContentLength),
		ModTime:     aws.ToTime(out.LastModified),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    out.Metadata,
	}, nil
}

func (fs *S3FileSystem) Exists(ctx context.Context, p string) (bool, error) {
	_, err := fs.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// ============================================================================
// FileWriter Implementation
// ============================================================================

func (fs *S3FileSystem) WriteFile(ctx context.Context, p string, data []byte) error {
	_, err := fs.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(fs.bucket),
		Key:         aws.String(fs.key(p)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(detectContentType(p)),
	})
	if err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// ============================================================================
// FileDeleter Implementation
// ============================================================================

func (fs *S3FileSystem) DeleteFile(ctx context.Context, p string) error {
	// S3 deletes are idempotent; a missing key is not an error
	_, err := fs.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// ============================================================================
// PathOperations Implementation
// ============================================================================

func (fs *S3FileSystem) Join(elem ...string) string {
	return path.Join(elem...)
}

// ============================================================================
// PresignedURLGenerator Implementation
// ============================================================================

func (fs *S3FileSystem) GetPresignedDownloadURL(ctx context.Context, p string, expiration time.Duration) (string, error) {
	req, err := fs.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(fs.key(p)),
	}, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, nil
}

// ============================================================================
// Helper Methods
// ============================================================================

// key maps a logical path onto the configured bucket prefix
func (fs *S3FileSystem) key(p string) string {
	if fs.prefix == "" {
		return p
	}
	return path.Join(fs.prefix, p)
}

// isNotFound reports whether err is an S3 missing-key error. GetObject
// raises NoSuchKey while HeadObject reports a bare 404 NotFound.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

// detectContentType detects MIME type from the key extension
func detectContentType(p string) string {
	switch path.Ext(p) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
