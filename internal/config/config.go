package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultBlobsAPIURL    = "http://127.0.0.1:7480"
	DefaultAnalysisAPIURL = "http://127.0.0.1:7481"
	DefaultDataDirName    = ".docpipe"

	DefaultMaxUploadBytes int64 = 100 * 1024 * 1024
	DefaultSourceTimeout        = 10 * time.Second
	DefaultLockTTL              = 2 * time.Minute

	DefaultRendererURL      = "https://quickchart.io/wordcloud"
	DefaultRendererTimeout  = 30 * time.Second
	DefaultRendererMaxWords = 1000
	DefaultRendererWidth    = 1200
	DefaultRendererHeight   = 800

	configFileName           = ".docpipe.toml"
	configDirEnvKey          = "DOCPIPE_CONFIG_DIR"
	trustProjectConfigEnvKey = "DOCPIPE_TRUST_PROJECT_CONFIG"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// BlobsConfig configures the blob daemon.
type BlobsConfig struct {
	APIURL         string `toml:"api_url"`
	DBPath         string `toml:"db_path"`
	StorageDir     string `toml:"storage_dir"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// AnalysisConfig configures the analysis daemon.
type AnalysisConfig struct {
	APIURL        string   `toml:"api_url"`
	DBPath        string   `toml:"db_path"`
	StorageDir    string   `toml:"storage_dir"`
	SourceURL     string   `toml:"source_url"`
	SourceTimeout Duration `toml:"source_timeout"`
	LockTTL       Duration `toml:"lock_ttl"`
}

// RendererConfig configures the word-cloud rendering service.
type RendererConfig struct {
	URL      string   `toml:"url"`
	Timeout  Duration `toml:"timeout"`
	MaxWords int      `toml:"max_words"`
	Width    int      `toml:"width"`
	Height   int      `toml:"height"`
}

// RedisConfig enables the cross-instance analysis lock when Addr is set.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Config defines runtime configuration for docpipe.
type Config struct {
	LogLevel                 string         `toml:"log_level"`
	LogFormat                string         `toml:"log_format"`
	Blobs                    BlobsConfig    `toml:"blobs"`
	Analysis                 AnalysisConfig `toml:"analysis"`
	Renderer                 RendererConfig `toml:"renderer"`
	Redis                    RedisConfig    `toml:"redis"`
	TrustedProjectConfigPath string         `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Blobs: BlobsConfig{
			APIURL:         DefaultBlobsAPIURL,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
		Analysis: AnalysisConfig{
			APIURL:        DefaultAnalysisAPIURL,
			SourceTimeout: Duration{DefaultSourceTimeout},
			LockTTL:       Duration{DefaultLockTTL},
		},
		Renderer: RendererConfig{
			URL:      DefaultRendererURL,
			Timeout:  Duration{DefaultRendererTimeout},
			MaxWords: DefaultRendererMaxWords,
			Width:    DefaultRendererWidth,
			Height:   DefaultRendererHeight,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"log_level",
	"log_format",
	"blobs.api_url",
	"blobs.db_path",
	"blobs.storage_dir",
	"blobs.max_upload_bytes",
	"analysis.api_url",
	"analysis.db_path",
	"analysis.storage_dir",
	"analysis.source_url",
	"analysis.source_timeout",
	"analysis.lock_ttl",
	"renderer.url",
	"renderer.timeout",
	"renderer.max_words",
	"renderer.width",
	"renderer.height",
	"redis.addr",
	"redis.password",
	"redis.db",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "blobs.api_url":
		return c.Blobs.APIURL, nil
	case "blobs.db_path":
		return c.Blobs.DBPath, nil
	case "blobs.storage_dir":
		return c.Blobs.StorageDir, nil
	case "blobs.max_upload_bytes":
		return strconv.FormatInt(c.Blobs.MaxUploadBytes, 10), nil
	case "analysis.api_url":
		return c.Analysis.APIURL, nil
	case "analysis.db_path":
		return c.Analysis.DBPath, nil
	case "analysis.storage_dir":
		return c.Analysis.StorageDir, nil
	case "analysis.source_url":
		return c.Analysis.SourceURL, nil
	case "analysis.source_timeout":
		return c.Analysis.SourceTimeout.String(), nil
	case "analysis.lock_ttl":
		return c.Analysis.LockTTL.String(), nil
	case "renderer.url":
		return c.Renderer.URL, nil
	case "renderer.timeout":
		return c.Renderer.Timeout.String(), nil
	case "renderer.max_words":
		return strconv.Itoa(c.Renderer.MaxWords), nil
	case "renderer.width":
		return strconv.Itoa(c.Renderer.Width), nil
	case "renderer.height":
		return strconv.Itoa(c.Renderer.Height), nil
	case "redis.addr":
		return c.Redis.Addr, nil
	case "redis.password":
		return c.Redis.Password, nil
	case "redis.db":
		return strconv.Itoa(c.Redis.DB), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key    string
		target *string
	}{
		{"DOCPIPE_BLOBS_URL", &c.Blobs.APIURL},
		{"DOCPIPE_BLOBS_DB", &c.Blobs.DBPath},
		{"DOCPIPE_ANALYSIS_URL", &c.Analysis.APIURL},
		{"DOCPIPE_ANALYSIS_DB", &c.Analysis.DBPath},
		{"DOCPIPE_SOURCE_URL", &c.Analysis.SourceURL},
		{"DOCPIPE_RENDERER_URL", &c.Renderer.URL},
		{"DOCPIPE_REDIS_ADDR", &c.Redis.Addr},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.key)); value != "" {
			*o.target = value
		}
	}
}

// normalize fills derived paths and replaces non-positive limits with
// defaults. Data files live under ./.docpipe unless configured.
func (c *Config) normalize() {
	dataDir := DefaultDataDirName
	if cwd, err := os.Getwd(); err == nil {
		dataDir = filepath.Join(cwd, DefaultDataDirName)
	}
	if c.Blobs.DBPath == "" {
		c.Blobs.DBPath = filepath.Join(dataDir, "blobs.db")
	}
	if c.Blobs.StorageDir == "" {
		c.Blobs.StorageDir = filepath.Join(dataDir, "blobs")
	}
	if c.Analysis.DBPath == "" {
		c.Analysis.DBPath = filepath.Join(dataDir, "analysis.db")
	}
	if c.Analysis.StorageDir == "" {
		c.Analysis.StorageDir = filepath.Join(dataDir, "analysis")
	}
	if c.Analysis.SourceURL == "" {
		c.Analysis.SourceURL = c.Blobs.APIURL
	}

	if c.Blobs.MaxUploadBytes <= 0 {
		c.Blobs.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Analysis.SourceTimeout.Duration <= 0 {
		c.Analysis.SourceTimeout.Duration = DefaultSourceTimeout
	}
	if c.Analysis.LockTTL.Duration <= 0 {
		c.Analysis.LockTTL.Duration = DefaultLockTTL
	}
	if c.Renderer.URL == "" {
		c.Renderer.URL = DefaultRendererURL
	}
	if c.Renderer.Timeout.Duration <= 0 {
		c.Renderer.Timeout.Duration = DefaultRendererTimeout
	}
	if c.Renderer.MaxWords <= 0 {
		c.Renderer.MaxWords = DefaultRendererMaxWords
	}
	if c.Renderer.Width <= 0 {
		c.Renderer.Width = DefaultRendererWidth
	}
	if c.Renderer.Height <= 0 {
		c.Renderer.Height = DefaultRendererHeight
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "blobs.max_upload_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "renderer.max_words", "renderer.width", "renderer.height":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "redis.db":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "analysis.source_timeout", "analysis.lock_ttl", "renderer.timeout":
		parsed, err := parseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return parsed.String(), nil
	case "log_format":
		switch strings.ToLower(value) {
		case "text", "json", "console":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("%s must be text, json or console", key)
	default:
		return value, nil
	}
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
