package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Storage    StorageConfig    `json:"storage"`
	GCS        GCSConfig        `json:"gcs"`
	S3         S3Config         `json:"s3"`
	Gotenberg  GotenbergConfig  `json:"gotenberg"`
	Generation GenerationConfig `json:"generation"`
}

type ServerConfig struct {
	Port         string   `json:"port"`
	Environment  string   `json:"environment"`
	BaseURL      string   `json:"base_url"`
	AllowOrigins []string `json:"allow_origins"`
}

func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

const (
	StorageGCS   = "gcs"
	StorageS3    = "s3"
	StorageLocal = "local"
)

type StorageConfig struct {
	Backend  string `json:"backend"`
	LocalDir string `json:"local_dir"`
}

type GCSConfig struct {
	BucketName      string `json:"bucket_name"`
	ProjectID       string `json:"project_id"`
	CredentialsPath string `json:"credentials_path"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
}

type GotenbergConfig struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

type GenerationConfig struct {
	Timezone        string        `json:"timezone"`
	Locale          string        `json:"locale"`
	DefaultFontSize float64       `json:"default_font_size"`
	ImportMaxSize   int64         `json:"import_max_size"`
	ImportTimeout   time.Duration `json:"import_timeout"`
	WorkDir         string        `json:"work_dir"`
	Parallelism     int           `json:"parallelism"`
	JobWorkers      int           `json:"job_workers"`
	CleanupMaxAge   time.Duration `json:"cleanup_max_age"`
}

func (d *DatabaseConfig) DSN() string {
	// Cloud SQL Unix socket
	if len(d.Host) > 0 && d.Host[0] == '/' {
		return fmt.Sprintf("%s:%s@unix(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.DBName)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// Load reads the environment, after applying envFile if it exists. An empty
// envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		slog.Debug("no env file, using process environment", "path", envFile)
	}

	var errs []error
	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			BaseURL:      getEnv("BASE_URL", ""),
			AllowOrigins: parseAllowOrigins(),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "df_tplgen"),
		},
		Storage: StorageConfig{
			Backend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
			LocalDir: getEnv("STORAGE_LOCAL_DIR", "data/blobs"),
		},
		GCS: GCSConfig{
			BucketName:      getEnv("GCS_BUCKET_NAME", ""),
			ProjectID:       getEnv("GOOGLE_CLOUD_PROJECT", ""),
			CredentialsPath: getEnv("GCS_CREDENTIALS_PATH", ""),
		},
		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", "eu-west-1"),
			Bucket:    getEnv("S3_BUCKET", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		Gotenberg: GotenbergConfig{
			URL:     getEnv("GOTENBERG_URL", "http://localhost:3000"),
			Timeout: getDuration("CONVERSION_TIMEOUT", 30*time.Second, &errs),
		},
		Generation: GenerationConfig{
			Timezone:        getEnv("GENERATION_TIMEZONE", "Europe/Lisbon"),
			Locale:          getEnv("GENERATION_LOCALE", "pt-PT"),
			DefaultFontSize: getFloat("OVERLAY_DEFAULT_FONT_SIZE", 10, &errs),
			ImportMaxSize:   int64(getInt("IMPORT_MAX_SIZE_MB", 10, &errs)) << 20,
			ImportTimeout:   getDuration("IMPORT_TIMEOUT", 2*time.Minute, &errs),
			WorkDir:         getEnv("WORK_DIR", os.TempDir()),
			Parallelism:     getInt("GENERATION_PARALLELISM", 4, &errs),
			JobWorkers:      getInt("IMPORT_WORKERS", 4, &errs),
			CleanupMaxAge:   getDuration("CLEANUP_MAX_AGE", 24*time.Hour, &errs),
		},
	}

	if err := config.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageLocal:
	case StorageGCS:
		if c.GCS.BucketName == "" {
			return errors.New("GCS_BUCKET_NAME is required for the gcs backend")
		}
	case StorageS3:
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if _, err := time.LoadLocation(c.Generation.Timezone); err != nil {
		return fmt.Errorf("GENERATION_TIMEZONE: %w", err)
	}
	if c.Generation.DefaultFontSize <= 0 {
		return errors.New("OVERLAY_DEFAULT_FONT_SIZE must be positive")
	}
	if c.Generation.ImportMaxSize <= 0 {
		return errors.New("IMPORT_MAX_SIZE_MB must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func parseAllowOrigins() []string {
	if origins := os.Getenv("ALLOW_ORIGINS"); origins != "" {
		var allowOrigins []string
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowOrigins = append(allowOrigins, trimmed)
			}
		}
		return allowOrigins
	}

	// FRONTEND_URL_* are still honoured for older deployments
	var allowOrigins []string
	for _, key := range []string{"FRONTEND_URL_1", "FRONTEND_URL_2"} {
		if url := getEnv(key, ""); url != "" {
			allowOrigins = append(allowOrigins, url)
		}
	}
	if len(allowOrigins) == 0 {
		allowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}
	return allowOrigins
}
