package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database drivers understood by OpenRepositories.
const (
	DatabaseDriverPostgres = "postgres"
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverMemory   = "memory"
)

// Blob store drivers understood by storage.Open.
const (
	BlobDriverFilesystem = "fs"
	BlobDriverS3         = "s3"
	BlobDriverMemory     = "memory"
)

// Background removal backends.
const (
	RemoverBorder = "border"
	RemoverRemote = "remote"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	JWTSecret   string
	CORSOrigins []string

	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string

	BlobDriver        string
	StoragePath       string
	StorageBaseURL    string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PathStyle       bool
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string
	MaxUploadBytes    int64
	DefaultLocale     string
	RecoveryGrace     time.Duration
	RecoveryInterval  time.Duration

	Remover          string
	RemoverURL       string
	RemoverTolerance int

	DerivationWorkers int
	StepTimeout       time.Duration
	OptimizedMaxEdge  int
	ThumbnailMaxEdge  int
	PaletteSize       int

	CanvasWidth  int
	CanvasHeight int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DatabaseDriverSQLite)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnv("SQLITE_PATH", "./wardrobe.db"),

		BlobDriver:        strings.ToLower(getEnv("BLOB_DRIVER", BlobDriverFilesystem)),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		S3Bucket:          os.Getenv("BLOB_S3_BUCKET"),
		S3Region:          getEnv("BLOB_S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("BLOB_S3_ENDPOINT"),
		S3PathStyle:       strings.EqualFold(os.Getenv("BLOB_S3_PATH_STYLE"), "true"),
		S3AccessKeyID:     os.Getenv("BLOB_S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("BLOB_S3_SECRET_ACCESS_KEY"),
		S3PublicBaseURL:   os.Getenv("BLOB_S3_PUBLIC_BASE_URL"),
		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "en"),
		RecoveryGrace:     time.Second * time.Duration(getEnvInt("RECOVERY_GRACE_SECONDS", 300)),
		RecoveryInterval:  time.Second * time.Duration(getEnvInt("RECOVERY_INTERVAL_SECONDS", 30)),

		Remover:          strings.ToLower(getEnv("BG_REMOVER", RemoverBorder)),
		RemoverURL:       os.Getenv("BG_REMOVER_URL"),
		RemoverTolerance: getEnvInt("BG_TOLERANCE", 48),

		DerivationWorkers: getEnvInt("DERIVATION_WORKERS", 4),
		StepTimeout:       time.Second * time.Duration(getEnvInt("DERIVATION_STEP_TIMEOUT_SECONDS", 60)),
		OptimizedMaxEdge:  getEnvInt("OPTIMIZED_MAX_EDGE", 1600),
		ThumbnailMaxEdge:  getEnvInt("THUMBNAIL_MAX_EDGE", 300),
		PaletteSize:       getEnvInt("PALETTE_SIZE", 5),

		CanvasWidth:  getEnvInt("CANVAS_WIDTH", 1080),
		CanvasHeight: getEnvInt("CANVAS_HEIGHT", 1440),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case DatabaseDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DatabaseDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DatabaseDriverMemory:
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	switch c.BlobDriver {
	case BlobDriverFilesystem, BlobDriverMemory:
	case BlobDriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("BLOB_S3_BUCKET is required for the s3 blob driver")
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}

	switch c.Remover {
	case RemoverBorder:
	case RemoverRemote:
		if c.RemoverURL == "" {
			return fmt.Errorf("BG_REMOVER_URL is required for the remote remover")
		}
	default:
		return fmt.Errorf("unknown BG_REMOVER %q", c.Remover)
	}

	if c.DerivationWorkers <= 0 {
		return fmt.Errorf("DERIVATION_WORKERS must be positive")
	}
	if c.ThumbnailMaxEdge <= 0 || c.OptimizedMaxEdge < c.ThumbnailMaxEdge {
		return fmt.Errorf("THUMBNAIL_MAX_EDGE must be positive and not exceed OPTIMIZED_MAX_EDGE")
	}
	if c.PaletteSize <= 0 {
		return fmt.Errorf("PALETTE_SIZE must be positive")
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return fmt.Errorf("CANVAS_WIDTH and CANVAS_HEIGHT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
