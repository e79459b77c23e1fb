package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Supabase  SupabaseConfig
	ImageHost ImageHostConfig
	Scheduler SchedulerConfig
	RoutesDir string
	DBPath    string
	LogPath   string
	LogLevel  string
}

type SupabaseConfig struct {
	URL     string
	AnonKey string
	DBURL   string
}

// ImageHostConfig selects the image-hosting backend. Provider is either
// "cloudinary" (unsigned upload preset) or "s3".
type ImageHostConfig struct {
	Provider     string
	CloudName    string
	UploadPreset string
	S3           S3Config
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Supabase: SupabaseConfig{
			URL:     os.Getenv("SUPABASE_URL"),
			AnonKey: os.Getenv("SUPABASE_ANON_KEY"),
			DBURL:   os.Getenv("SUPABASE_DB_URL"),
		},
		ImageHost: ImageHostConfig{
			Provider:     getEnv("IMAGE_HOST", "cloudinary"),
			CloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
			UploadPreset: os.Getenv("CLOUDINARY_UPLOAD_PRESET"),
			S3: S3Config{
				Bucket:          os.Getenv("S3_BUCKET"),
				Region:          getEnv("S3_REGION", "us-east-1"),
				Endpoint:        os.Getenv("S3_ENDPOINT"),
				AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			},
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("MAINTENANCE_CRON"),
		},
		RoutesDir: getEnv("ROUTES_DIR", "config/routes"),
		DBPath:    getEnv("DB_PATH", "casalista.db"),
		LogPath:   getEnv("LOG_PATH", "daemon.log"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}

	if interval := os.Getenv("MAINTENANCE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
