package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Match    MatchConfig    `yaml:"match"`
	Redact   RedactConfig   `yaml:"redact"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string        `yaml:"models_dir"`
	DetectionThreshold float64       `yaml:"detection_threshold"`
	MaxPixelArea       int           `yaml:"max_pixel_area"`
	InferenceTimeout   time.Duration `yaml:"inference_timeout"`
	WorkerCount        int           `yaml:"worker_count"`
}

type MatchConfig struct {
	// DistanceThreshold is the maximum cosine distance accepted as a match.
	DistanceThreshold float64 `yaml:"distance_threshold"`
	// TieMargin: two distinct students closer than this at the best score
	// resolve to no match.
	TieMargin float64 `yaml:"tie_margin"`
}

type RedactConfig struct {
	Mode         string  `yaml:"mode"` // gaussian | pixelate
	MarginPct    float64 `yaml:"margin_pct"`
	SigmaDivisor float64 `yaml:"sigma_divisor"`
	BlockDivisor int     `yaml:"block_divisor"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable
// overrides. A .env file in the working directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.MaxPixelArea == 0 {
		cfg.Vision.MaxPixelArea = 16_000_000 // ~16MP ceiling before downscale
	}
	if cfg.Vision.InferenceTimeout == 0 {
		cfg.Vision.InferenceTimeout = 10 * time.Second
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 4
	}
	if cfg.Match.DistanceThreshold == 0 {
		cfg.Match.DistanceThreshold = 0.65
	}
	if cfg.Match.TieMargin == 0 {
		cfg.Match.TieMargin = 0.05
	}
	if cfg.Redact.Mode == "" {
		cfg.Redact.Mode = "gaussian"
	}
	if cfg.Redact.MarginPct == 0 {
		cfg.Redact.MarginPct = 0.1
	}
	if cfg.Redact.SigmaDivisor == 0 {
		cfg.Redact.SigmaDivisor = 8
	}
	if cfg.Redact.BlockDivisor == 0 {
		cfg.Redact.BlockDivisor = 12
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CG_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("CG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("CG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("CG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("CG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CG_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CG_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("CG_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("CG_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("CG_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("CG_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("CG_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
	if v := os.Getenv("CG_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Match.DistanceThreshold = f
		}
	}
}
