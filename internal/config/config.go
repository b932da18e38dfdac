// Package config loads scanner settings from a YAML file and WAVS_*
// environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/0x6d61/wavs/internal/logger"
)

// Config mirrors the layout of wavs.yaml.
type Config struct {
	Scan      ScanConfig          `mapstructure:"scan"`
	HTTP      HTTPConfig          `mapstructure:"http"`
	Store     StoreConfig         `mapstructure:"store"`
	Payload   PayloadConfig       `mapstructure:"payload"`
	Crawl     CrawlConfig         `mapstructure:"crawl"`
	Proxy     ProxyConfig         `mapstructure:"proxy"`
	Metrics   MetricsConfig       `mapstructure:"metrics"`
	Log       logger.Config       `mapstructure:"log"`
	ScanTypes map[string][]string `mapstructure:"scan_types"`
}

// ScanConfig holds the per-scan knobs shared by every stage.
type ScanConfig struct {
	// SuccessCodes are the statuses that mean "resource exists".
	SuccessCodes []int `mapstructure:"success_codes"`
	// FileExtensions are appended to file and info-disclosure words.
	FileExtensions []string `mapstructure:"file_extensions"`
	Threads        int      `mapstructure:"threads"`
	// BlindThreshold is the minimum payload-minus-baseline delay that flags
	// a timing probe.
	BlindThreshold time.Duration `mapstructure:"blind_threshold"`
	// CSRFTokens extends the csrf word list from the payload store.
	CSRFTokens []string `mapstructure:"csrf_tokens"`
}

// HTTPConfig configures the shared transport client.
type HTTPConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	RPS                float64       `mapstructure:"rps"`
	Proxy              string        `mapstructure:"proxy"`
	RandomUserAgent    bool          `mapstructure:"random_user_agent"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// StoreConfig locates the scan result database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PayloadConfig locates the payload database and tunes candidate generation.
type PayloadConfig struct {
	Path string `mapstructure:"path"`
	// SeedLimit is how many top-ranked payloads feed the generator.
	SeedLimit int      `mapstructure:"seed_limit"`
	Tampers   []string `mapstructure:"tampers"`
}

// CrawlConfig tunes the automatic crawler.
type CrawlConfig struct {
	// Extensions is the page allowlist; "" admits extensionless paths.
	Extensions []string `mapstructure:"extensions"`
	MaxPages   int      `mapstructure:"max_pages"`
	RedisURL   string   `mapstructure:"redis_url"`
	RedisKey   string   `mapstructure:"redis_key"`
}

// ProxyConfig configures the intercepting proxy used for manual crawling.
type ProxyConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port for the proxy listener.
func (p ProxyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// MetricsConfig enables the Prometheus endpoint when Addr is non-empty.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultScanTypes maps scan type names to the ordered stages they run.
func DefaultScanTypes() map[string][]string {
	return map[string][]string{
		"default": {
			"initial", "directories", "files", "crawler", "parser",
			"sql_injection", "sql_injection_blind", "lfi",
			"xss_reflected", "xss_stored", "csrf", "os_injection",
			"info_disclosure",
		},
		"initial": {"initial"},
		"crawl":   {"files", "crawler"},
		"sql":     {"files", "crawler", "parser", "sql_injection", "sql_injection_blind"},
		"lfi":     {"files", "parser", "lfi"},
		"xss":     {"files", "crawler", "parser", "xss_reflected", "xss_stored"},
		"csrf":    {"files", "parser", "csrf"},
		"info":    {"info_disclosure"},
		"cmd":     {"files", "crawler", "parser", "os_injection"},
		"no_vuln": {"files", "parser"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.success_codes", []int{200, 201, 202, 203, 204, 301, 302, 303, 304})
	v.SetDefault("scan.file_extensions", []string{".html", ".php"})
	v.SetDefault("scan.threads", 8)
	v.SetDefault("scan.blind_threshold", 5*time.Second)
	v.SetDefault("scan.csrf_tokens", []string{})

	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.rps", 0)
	v.SetDefault("http.random_user_agent", false)
	v.SetDefault("http.insecure_skip_verify", true)

	v.SetDefault("store.path", "wavs.db")
	v.SetDefault("payload.path", "wavs_payloads.db")
	v.SetDefault("payload.seed_limit", 10)
	v.SetDefault("payload.tampers", []string{"space2comment", "uppercase", "charencode", "doubleencode", "nesteddots"})

	v.SetDefault("crawl.extensions", []string{"", ".html", ".php"})
	v.SetDefault("crawl.max_pages", 500)
	v.SetDefault("crawl.redis_key", "wavs:crawled_urls")

	v.SetDefault("proxy.host", "127.0.0.1")
	v.SetDefault("proxy.port", 8081)

	v.SetDefault("log.level", "info")
	v.SetDefault("scan_types", DefaultScanTypes())
}

// Load reads configuration. An explicit path must exist; otherwise wavs.yaml
// is looked up in ., ./config and $HOME/.config/wavs and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wavs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "wavs"))
		}
	}

	v.SetEnvPrefix("WAVS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no scan can run with.
func (c *Config) Validate() error {
	switch {
	case c.Scan.Threads <= 0:
		return fmt.Errorf("config: scan.threads must be positive, got %d", c.Scan.Threads)
	case len(c.Scan.SuccessCodes) == 0:
		return errors.New("config: scan.success_codes is empty")
	case c.Scan.BlindThreshold <= 0:
		return fmt.Errorf("config: scan.blind_threshold must be positive, got %s", c.Scan.BlindThreshold)
	case c.HTTP.Timeout <= 0:
		return fmt.Errorf("config: http.timeout must be positive, got %s", c.HTTP.Timeout)
	case len(c.ScanTypes) == 0:
		return errors.New("config: no scan types defined")
	}
	return nil
}

// AdjustSuccessCodes returns the configured success codes with add appended
// and remove filtered out, preserving order and dropping duplicates.
func (s ScanConfig) AdjustSuccessCodes(add, remove []int) []int {
	out := make([]int, 0, len(s.SuccessCodes)+len(add))
	for _, code := range append(slices.Clone(s.SuccessCodes), add...) {
		if slices.Contains(remove, code) || slices.Contains(out, code) {
			continue
		}
		out = append(out, code)
	}
	return out
}
