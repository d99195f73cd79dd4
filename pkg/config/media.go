package config

import "time"

// MediaConfig configures attachment resolution and storage.
type MediaConfig struct {
	// Storage is "local" or "s3".
	Storage string

	// Dir is the local storage root (local storage only).
	Dir string

	// AWSRegion and Bucket configure S3 storage.
	AWSRegion string
	Bucket    string

	// SnapshotURLs stores a copy of URL-referenced media instead of
	// passing the URL through to the bridge.
	SnapshotURLs bool

	// MaxSize bounds accepted attachment payloads in bytes.
	MaxSize int64

	// URLTTL is the lifetime of presigned links to stored media.
	URLTTL time.Duration
}

func loadMediaConfig() MediaConfig {
	return MediaConfig{
		Storage:      getEnv("MEDIA_STORAGE", "local"),
		Dir:          getEnv("MEDIA_DIR", "./media"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		Bucket:       getEnv("AWS_BUCKET", "dispatch-media"),
		SnapshotURLs: getEnvBool("MEDIA_SNAPSHOT_URLS", false),
		MaxSize:      getEnvInt64("MEDIA_MAX_SIZE", 16*1024*1024),
		URLTTL:       getEnvDuration("MEDIA_URL_TTL", 15*time.Minute),
	}
}
