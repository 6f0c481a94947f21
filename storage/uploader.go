// Package storage abstracts object storage for user-supplied assets such as
// tournament logos.
package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader stores and removes binary objects by key. Keys are
// caller-chosen paths, e.g. "tournaments/42/logo".
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}
