package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when an artifact does not exist
var ErrNotFound = errors.New("artifact not found")

// Storage keeps exported report files produced by background jobs
type Storage interface {
	// Upload stores data and returns its storage path
	Upload(ctx context.Context, jobID, filename string, data io.Reader) (string, error)

	// Download opens the artifact at storagePath
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes the artifact at storagePath
	Delete(ctx context.Context, storagePath string) error
}

// Type selects the storage backend
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
)

// Config holds storage settings
type Config struct {
	Type         Type
	LocalPath    string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string // optional, for S3 compatible services
	AWSAccessKey string
	AWSSecretKey string
}

// New creates a storage backend from cfg
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case TypeS3:
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// storagePath derives exports/<jobID>/<filename>, flattening any path separators in the name
func storagePath(jobID, filename string) string {
	name := filepath.Base(filename)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return fmt.Sprintf("exports/%s/%s", jobID, name)
}

// ContentType guesses the MIME type of an export file
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	}
	return "application/octet-stream"
}
