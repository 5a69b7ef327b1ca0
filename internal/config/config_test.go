package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configDirEnvKey,
		trustProjectConfigEnvKey,
		"DOCPIPE_BLOBS_URL",
		"DOCPIPE_BLOBS_DB",
		"DOCPIPE_ANALYSIS_URL",
		"DOCPIPE_ANALYSIS_DB",
		"DOCPIPE_SOURCE_URL",
		"DOCPIPE_RENDERER_URL",
		"DOCPIPE_REDIS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Blobs.APIURL != DefaultBlobsAPIURL || cfg.Analysis.APIURL != DefaultAnalysisAPIURL {
		t.Fatalf("unexpected api urls: %q %q", cfg.Blobs.APIURL, cfg.Analysis.APIURL)
	}
	if cfg.Blobs.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("expected max upload %d, got %d", DefaultMaxUploadBytes, cfg.Blobs.MaxUploadBytes)
	}
	if cfg.Renderer.URL != "https://quickchart.io/wordcloud" {
		t.Fatalf("unexpected renderer url %q", cfg.Renderer.URL)
	}
	if cfg.Renderer.MaxWords != 1000 || cfg.Renderer.Width != 1200 || cfg.Renderer.Height != 800 {
		t.Fatalf("unexpected renderer defaults %#v", cfg.Renderer)
	}
	if cfg.Renderer.Timeout.Duration != 30*time.Second || cfg.Analysis.SourceTimeout.Duration != 10*time.Second {
		t.Fatalf("unexpected timeouts %v %v", cfg.Renderer.Timeout, cfg.Analysis.SourceTimeout)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("expected redis disabled by default, got %q", cfg.Redis.Addr)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte(`log_level = "warn"

[blobs]
api_url = "http://localhost:9999"
max_upload_bytes = 2048

[analysis]
source_timeout = "3s"

[renderer]
timeout = "45s"
max_words = 50

[redis]
addr = "127.0.0.1:6379"
db = 2
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.Blobs.APIURL != "http://localhost:9999" || cfg.Blobs.MaxUploadBytes != 2048 {
		t.Fatalf("unexpected blobs section %#v", cfg.Blobs)
	}
	if cfg.Analysis.SourceTimeout.Duration != 3*time.Second {
		t.Fatalf("expected 3s source timeout, got %v", cfg.Analysis.SourceTimeout)
	}
	if cfg.Analysis.LockTTL.Duration != DefaultLockTTL {
		t.Fatalf("expected untouched lock ttl, got %v", cfg.Analysis.LockTTL)
	}
	if cfg.Renderer.Timeout.Duration != 45*time.Second || cfg.Renderer.MaxWords != 50 {
		t.Fatalf("unexpected renderer section %#v", cfg.Renderer)
	}
	if cfg.Renderer.Width != DefaultRendererWidth {
		t.Fatalf("expected default width preserved, got %d", cfg.Renderer.Width)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis section %#v", cfg.Redis)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.docpipe.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Blobs.APIURL != DefaultBlobsAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte("[renderer]\ntimeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error for invalid duration")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"log_level",
		"blobs.api_url",
		"blobs.max_upload_bytes",
		"analysis.source_url",
		"analysis.lock_ttl",
		"renderer.url",
		"renderer.max_words",
		"redis.addr",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.Blobs.DBPath = "/tmp/blobs.db"
	cfg.Redis.DB = 3

	cases := map[string]string{
		"log_level":               DefaultLogLevel,
		"blobs.api_url":           DefaultBlobsAPIURL,
		"blobs.db_path":           "/tmp/blobs.db",
		"blobs.max_upload_bytes":  "104857600",
		"analysis.source_timeout": "10s",
		"renderer.timeout":        "30s",
		"renderer.height":         "800",
		"redis.db":                "3",
	}
	for key, want := range cases {
		got, err := cfg.Get(key)
		if err != nil || got != want {
			t.Fatalf("%s: expected %q, got %q (err: %v)", key, want, got, err)
		}
	}
	for _, key := range AllowedKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Fatalf("allowed key %q has no getter: %v", key, err)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.toml")
	if err := SetKey(path, "log_level", "error"); err != nil {
		t.Fatalf("set log_level: %v", err)
	}
	if err := SetKey(path, "renderer.width", "640"); err != nil {
		t.Fatalf("set renderer.width: %v", err)
	}
	if err := SetKey(path, "analysis.lock_ttl", "90"); err != nil {
		t.Fatalf("set analysis.lock_ttl: %v", err)
	}
	if err := SetKey(path, "renderer.url", "http://render.local/cloud"); err != nil {
		t.Fatalf("set renderer.url: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("expected log_level 'error', got %q", cfg.LogLevel)
	}
	if cfg.Renderer.Width != 640 || cfg.Renderer.URL != "http://render.local/cloud" {
		t.Fatalf("unexpected renderer section %#v", cfg.Renderer)
	}
	if cfg.Renderer.Height != DefaultRendererHeight {
		t.Fatalf("expected sibling key preserved as default, got %d", cfg.Renderer.Height)
	}
	if cfg.Analysis.LockTTL.Duration != 90*time.Second {
		t.Fatalf("expected 90s lock ttl, got %v", cfg.Analysis.LockTTL)
	}
}

func TestSetKeyRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	cases := []struct{ key, value string }{
		{"invalid_key", "value"},
		{"blobs.max_upload_bytes", "-1"},
		{"renderer.max_words", "many"},
		{"renderer.timeout", "0s"},
		{"redis.db", "-2"},
		{"log_format", "xml"},
	}
	for _, tc := range cases {
		if err := SetKey(path, tc.key, tc.value); err == nil {
			t.Fatalf("expected error for %s=%s", tc.key, tc.value)
		}
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadDerivesPathsAndSourceURL(t *testing.T) {
	clearEnv(t)
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, configFileName), []byte("[blobs]\napi_url = \"http://127.0.0.1:9001\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	workspace := t.TempDir()
	chdir(t, workspace)
	t.Setenv(configDirEnvKey, configDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Analysis.SourceURL != "http://127.0.0.1:9001" {
		t.Fatalf("expected source url to follow blobs api_url, got %q", cfg.Analysis.SourceURL)
	}
	wd, _ := os.Getwd()
	if cfg.Blobs.DBPath != filepath.Join(wd, DefaultDataDirName, "blobs.db") {
		t.Fatalf("unexpected blobs db path %q", cfg.Blobs.DBPath)
	}
	if cfg.Analysis.StorageDir != filepath.Join(wd, DefaultDataDirName, "analysis") {
		t.Fatalf("unexpected analysis storage dir %q", cfg.Analysis.StorageDir)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(configDirEnvKey, t.TempDir())
	t.Setenv("DOCPIPE_BLOBS_URL", "http://blobs.example:8080")
	t.Setenv("DOCPIPE_ANALYSIS_DB", "/tmp/override.db")
	t.Setenv("DOCPIPE_SOURCE_URL", "http://source.example")
	t.Setenv("DOCPIPE_RENDERER_URL", "http://render.example")
	t.Setenv("DOCPIPE_REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Blobs.APIURL != "http://blobs.example:8080" {
		t.Fatalf("expected env override for blobs url, got %q", cfg.Blobs.APIURL)
	}
	if cfg.Analysis.DBPath != "/tmp/override.db" {
		t.Fatalf("expected env override for analysis db, got %q", cfg.Analysis.DBPath)
	}
	if cfg.Analysis.SourceURL != "http://source.example" {
		t.Fatalf("expected env override for source url, got %q", cfg.Analysis.SourceURL)
	}
	if cfg.Renderer.URL != "http://render.example" || cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("unexpected renderer/redis overrides %q %q", cfg.Renderer.URL, cfg.Redis.Addr)
	}
}

func TestLoadFallsBackToDefaultLogLevelWhenConfiguredEmpty(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("log_level = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	chdir(t, t.TempDir())
	t.Setenv("HOME", homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
}

func TestLoadProjectConfigTrust(t *testing.T) {
	homeDir := t.TempDir()
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("log_level = \"warn\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("log_level = \"error\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	t.Run("ignored by default", func(t *testing.T) {
		clearEnv(t)
		chdir(t, workspace)
		t.Setenv("HOME", homeDir)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.LogLevel != "warn" {
			t.Fatalf("expected global log level 'warn', got %q", cfg.LogLevel)
		}
		if cfg.TrustedProjectConfigPath != "" {
			t.Fatalf("expected no trusted project config path, got %q", cfg.TrustedProjectConfigPath)
		}
	})

	t.Run("applied when trusted", func(t *testing.T) {
		clearEnv(t)
		chdir(t, workspace)
		t.Setenv("HOME", homeDir)
		t.Setenv(trustProjectConfigEnvKey, "true")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.LogLevel != "error" {
			t.Fatalf("expected project log level 'error', got %q", cfg.LogLevel)
		}
		if cfg.TrustedProjectConfigPath == "" {
			t.Fatal("expected trusted project config path to be reported")
		}
	})
}
