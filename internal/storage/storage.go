// Package storage manages per-video scratch directories and optional
// delivery of finished contact sheets to S3. It defines the Storage
// interface (port) with implementations for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage provides scratch space for intermediate thumbnail files and
// optional persistent delivery of finished sheets.
type Storage interface {
	// CreateScratch creates a collision-free scratch directory for one
	// video run and returns its path. Each pipeline run owns its
	// scratch directory exclusively.
	CreateScratch(name string) (string, error)

	// RemoveScratch deletes a scratch directory and its contents.
	RemoveScratch(path string) error

	// UploadSheet uploads a finished contact sheet and returns its URL.
	// Returns ErrS3NotConfigured when no S3 backend is configured.
	UploadSheet(ctx context.Context, key string, data io.Reader) (url string, err error)
}
