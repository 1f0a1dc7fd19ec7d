package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Keywords    KeywordsConfig `toml:"keywords"`
	Output      OutputConfig   `toml:"output"`
	Browser     BrowserConfig  `toml:"browser"`
	Crawl       CrawlConfig    `toml:"crawl"`
	Cookies     CookiesConfig  `toml:"cookies"`
	Images      ImagesConfig   `toml:"images"`
	Logging     LoggingConfig  `toml:"logging"`
}

// KeywordsConfig controls where search keywords are read from
type KeywordsConfig struct {
	File string `toml:"file" validate:"required"` // Plain-text file, one keyword per line, # comments skipped
}

// OutputConfig controls where run artifacts are written
type OutputConfig struct {
	Dir string `toml:"dir" validate:"required"` // Base directory; each run gets a timestamped subdirectory
}

// BrowserConfig contains browser session settings
type BrowserConfig struct {
	PoolSize   int     `toml:"pool_size" validate:"gte=1,lte=20"` // Number of pooled sessions, created eagerly at startup
	Headless   bool    `toml:"headless"`                          // Pooled sessions run headless; the recovery session is always visible
	UserAgent  string  `toml:"user_agent"`
	NoSandbox  bool    `toml:"no_sandbox"`
	DisableGPU bool    `toml:"disable_gpu"`
	NavRate    float64 `toml:"nav_rate" validate:"gte=0"` // Page navigations per second across all sessions; 0 disables pacing
}

// CrawlConfig contains crawl engine settings
type CrawlConfig struct {
	MaxRows          int           `toml:"max_rows" validate:"gte=1"`          // Row cap per (keyword, range) task
	FetchAttempts    int           `toml:"fetch_attempts" validate:"gte=1"`    // Render-wait attempts before the task fails
	RecoveryAttempts int           `toml:"recovery_attempts" validate:"gte=1"` // Automated cookie-reload attempts before manual login
	RenderTimeout    time.Duration `toml:"render_timeout"`                     // Wait for the results table per attempt
	PollInterval     time.Duration `toml:"poll_interval"`                      // Guard and manual-login polling interval
	Screenshots      bool          `toml:"screenshots"`                        // Capture a viewport screenshot per page
}

// CookiesConfig contains session persistence settings
type CookiesConfig struct {
	Dir string `toml:"dir"` // Directory holding persisted cookie files
	Key string `toml:"key"` // Name of the persisted session
}

// ImagesConfig contains product image download settings
type ImagesConfig struct {
	Enabled         bool          `toml:"enabled"`
	MaxImageSize    int64         `toml:"max_image_size"` // Bytes
	DownloadTimeout time.Duration `toml:"download_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the configuration defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Keywords: KeywordsConfig{
			File: "Keywords.txt",
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Browser: BrowserConfig{
			PoolSize:   2,
			Headless:   true,
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			NoSandbox:  false,
			DisableGPU: true,
			NavRate:    0.5,
		},
		Crawl: CrawlConfig{
			MaxRows:          500,
			FetchAttempts:    5,
			RecoveryAttempts: 5,
			RenderTimeout:    60 * time.Second,
			PollInterval:     5 * time.Second,
			Screenshots:      true,
		},
		Cookies: CookiesConfig{
			Dir: ".",
			Key: "cookies",
		},
		Images: ImagesConfig{
			Enabled:         true,
			MaxImageSize:    10 * 1024 * 1024, // 10MB
			DownloadTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration from a TOML file, layered over defaults,
// with environment variables applied last.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration constraints
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VENDO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if file := os.Getenv("VENDO_KEYWORDS_FILE"); file != "" {
		config.Keywords.File = file
	}

	if dir := os.Getenv("VENDO_OUTPUT_DIR"); dir != "" {
		config.Output.Dir = dir
	}

	if poolSize := os.Getenv("VENDO_BROWSER_POOL_SIZE"); poolSize != "" {
		if n, err := strconv.Atoi(poolSize); err == nil {
			config.Browser.PoolSize = n
		}
	}
	if headless := os.Getenv("VENDO_BROWSER_HEADLESS"); headless != "" {
		config.Browser.Headless = headless == "true" || headless == "1"
	}
	if userAgent := os.Getenv("VENDO_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}
	if navRate := os.Getenv("VENDO_BROWSER_NAV_RATE"); navRate != "" {
		if v, err := strconv.ParseFloat(navRate, 64); err == nil && v >= 0 {
			config.Browser.NavRate = v
		}
	}

	if maxRows := os.Getenv("VENDO_CRAWL_MAX_ROWS"); maxRows != "" {
		if n, err := strconv.Atoi(maxRows); err == nil {
			config.Crawl.MaxRows = n
		}
	}
	if renderTimeout := os.Getenv("VENDO_CRAWL_RENDER_TIMEOUT"); renderTimeout != "" {
		if d, err := time.ParseDuration(renderTimeout); err == nil {
			config.Crawl.RenderTimeout = d
		}
	}

	if dir := os.Getenv("VENDO_COOKIES_DIR"); dir != "" {
		config.Cookies.Dir = dir
	}

	if level := os.Getenv("VENDO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VENDO_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		outputs := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				outputs = append(outputs, p)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}
