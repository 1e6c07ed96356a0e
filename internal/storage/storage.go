// Package storage persists processed recipe images and returns the URL
// they are served from.
//
// Two backends exist: S3 (or any S3-compatible service) for production and
// a local directory for development. Callers only see Store.
package storage

import "context"

// Store saves image bytes and reports reachability.
type Store interface {
	// Save stores data under a freshly generated key and returns its
	// public URL.
	Save(ctx context.Context, data []byte, contentType string) (string, error)
	// Ping checks that the backend can currently be reached.
	Ping(ctx context.Context) error
	// Name identifies the backend in logs and the health report ("s3", "local").
	Name() string
}

// CacheControl is set on every S3 object; keys are never reused, so the
// objects can be cached for a year.
const CacheControl = "max-age=31536000"

// KeyPrefix is the S3 key prefix for recipe images.
const KeyPrefix = "recipes/"
