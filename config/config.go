package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Epicflow EpicflowConfig `yaml:"epicflow"`
	Archive  ArchiveConfig  `yaml:"archive"`
	SAS      SASConfig      `yaml:"sas"`
	Driver   DriverConfig   `yaml:"driver"`
	Channels ChannelsConfig `yaml:"channels"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type EpicflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ArchiveConfig describes the XMM-Newton Science Archive endpoint and the
// download policy applied to every fetched product.
type ArchiveConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Factor      float64       `yaml:"factor"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// SASConfig locates the external toolkit installation. The paths replace
// the SAS_DIR/SAS_CCFPATH/HEADAS environment variables the toolkit
// otherwise expects; every subprocess gets them injected explicitly.
type SASConfig struct {
	Dir         string        `yaml:"dir"`
	CCFPath     string        `yaml:"ccf_path"`
	HeadasDir   string        `yaml:"headas_dir"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// DriverConfig controls the batch driver that runs the full pipeline over
// a set of observations.
type DriverConfig struct {
	DataDir          string  `yaml:"data_dir"`
	ScriptsDir       string  `yaml:"scripts_dir"`
	ObservationsFile string  `yaml:"observations_file"`
	ResultsLog       string  `yaml:"results_log"`
	ResultsDB        string  `yaml:"results_db"`
	MaxWorkers       int     `yaml:"max_workers"`
	Rate             float64 `yaml:"rate"`
	DetectionLevel   float64 `yaml:"detection_level"`
	TimeWindow       float64 `yaml:"time_window"`
	GoodTimeRatio    float64 `yaml:"good_time_ratio"`
	BoxSize          int     `yaml:"box_size"`
}

type ChannelsConfig struct {
	ResultsBuffer int `yaml:"results_buffer"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Archive: ArchiveConfig{
			Timeout: 5 * time.Minute,
			Retry: RetryConfig{
				MaxAttempts: 4,
				BaseDelay:   2 * time.Second,
				MaxDelay:    2 * time.Minute,
				Factor:      2,
			},
			RateLimit: RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2},
		},
		SAS: SASConfig{
			ToolTimeout: 30 * time.Minute,
		},
		Driver: DriverConfig{
			MaxWorkers:     1,
			DetectionLevel: 10,
			TimeWindow:     100,
			GoodTimeRatio:  1.0,
			BoxSize:        3,
		},
		Channels: ChannelsConfig{ResultsBuffer: 64},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	// The toolkit install locations may come from the environment the
	// operator already has for interactive SAS sessions.
	if config.SAS.Dir == "" {
		config.SAS.Dir = strings.TrimSpace(os.Getenv("SAS_DIR"))
	}
	if config.SAS.CCFPath == "" {
		config.SAS.CCFPath = strings.TrimSpace(os.Getenv("SAS_CCFPATH"))
	}
	if config.SAS.HeadasDir == "" {
		config.SAS.HeadasDir = strings.TrimSpace(os.Getenv("HEADAS"))
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Epicflow.Name == "" {
		return fmt.Errorf("epicflow.name is required")
	}

	if cfg.Epicflow.Version == "" {
		return fmt.Errorf("epicflow.version is required")
	}

	if cfg.Archive.BaseURL == "" {
		return fmt.Errorf("archive.base_url is required")
	}

	if cfg.Archive.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("archive.retry.max_attempts must be greater than 0")
	}

	if cfg.Archive.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("archive.rate_limit.requests_per_second must be greater than 0")
	}

	if cfg.SAS.ToolTimeout <= 0 {
		return fmt.Errorf("sas.tool_timeout must be greater than 0")
	}

	// Development machines may run with a partial toolkit; deployed
	// environments may not.
	if IsProductionLike(AppEnvironment()) {
		if cfg.SAS.Dir == "" {
			return fmt.Errorf("sas.dir (or SAS_DIR) is required in %s", AppEnvironment())
		}
		if cfg.SAS.CCFPath == "" {
			return fmt.Errorf("sas.ccf_path (or SAS_CCFPATH) is required in %s", AppEnvironment())
		}
	}

	if cfg.Driver.MaxWorkers <= 0 {
		return fmt.Errorf("driver.max_workers must be greater than 0")
	}

	if cfg.Driver.Rate < 0 {
		return fmt.Errorf("driver.rate must not be negative; zero applies each instrument's default threshold")
	}

	if cfg.Channels.ResultsBuffer <= 0 {
		return fmt.Errorf("channels.results_buffer must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
	}

	return nil
}
