// Package constants provides shared constants used across the codebase.
package constants

// Similarity search constants
const (
	// DefaultSimilarK is the default number of nearest gallery descriptors returned
	DefaultSimilarK = 5

	// MaxSimilarK caps the k accepted by the similar endpoint
	MaxSimilarK = 100
)

// Processing constants
const (
	// MaxImageDimension is the longest side images are downscaled to before extraction
	MaxImageDimension = 1920
)

// Server constants
const (
	// DefaultPort is the default HTTP listen port
	DefaultPort = 8080

	// MaxUploadSize is the maximum multipart upload size in bytes (50MB)
	MaxUploadSize = 50 << 20
)
