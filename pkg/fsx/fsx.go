// Package fsx defines storage abstractions for media payloads. Backends
// store attachment bytes under opaque keys; pkg/fsx/fsxlocal keeps them on
// disk and pkg/fsx/fsxs3 keeps them in S3.
package fsx

import (
	"context"
	"time"
)

// FileInfo represents information about a stored file
type FileInfo struct {
	Name        string            // Base name of the file
	Size        int64             // File size in bytes
	ModTime     time.Time         // Modification time
	ContentType string            // MIME type (when available)
	Metadata    map[string]string // Additional metadata
}

// FileReader provides read-only operations
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// FileWriter provides write operations
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

// FileDeleter provides deletion operations
type FileDeleter interface {
	DeleteFile(ctx context.Context, path string) error
}

// PathOperations provides path manipulation functionality
type PathOperations interface {
	Join(elem ...string) string
}

// PresignedURLGenerator provides presigned URL generation. Backends that
// cannot mint URLs (local disk) simply do not implement it; callers
// type-assert and fall back to reading the bytes inline.
type PresignedURLGenerator interface {
	// GetPresignedDownloadURL generates a presigned URL for downloading a file
	GetPresignedDownloadURL(ctx context.Context, path string, expiration time.Duration) (string, error)
}

// FileSystem combines all file operations
type FileSystem interface {
	FileReader
	FileWriter
	FileDeleter
	PathOperations
}

// FileSystemWithPresign combines standard file operations with presigned URL generation
type FileSystemWithPresign interface {
	FileSystem
	PresignedURLGenerator
}
