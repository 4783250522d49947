// Package constants provides shared constants used across the codebase.
package constants

// Handler limits
const (
	// MaxUploadSize is the maximum multipart upload size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// MaxImagesPerRequest bounds the number of images in a single resolve request
	MaxImagesPerRequest = 200
)

// DefaultOwner is used when a request does not name an owner.
const DefaultOwner = "default"
