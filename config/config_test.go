package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func testLoader(env map[string]string) *Loader {
	l := NewLoader().SetSearchPaths(nil)
	l.getenv = func(k string) string { return env[k] }
	return l
}

// TestDefaultConfig tests that the defaults are valid
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
	if config.Ranking.SoftCap != 150 || config.Ranking.HardCap != 100 || config.Ranking.TopN != 3 {
		t.Errorf("Unexpected ranking defaults: %+v", config.Ranking)
	}
	if config.Feed.SoftCap != 1500 || config.Feed.HardCap != 1000 || config.Feed.MaxPage != 100 {
		t.Errorf("Unexpected feed defaults: %+v", config.Feed)
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty app name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: ErrConfigValidateError,
		},
		{
			name:    "unknown environment",
			mutate:  func(c *Config) { c.App.Environment = "moon" },
			wantErr: ErrConfigValidateError,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: ErrConfigValidateError,
		},
		{
			name:    "ranking hard cap above soft cap",
			mutate:  func(c *Config) { c.Ranking.HardCap = 200 },
			wantErr: ErrConfigValidateError,
		},
		{
			name:   "ranking hard cap equal to soft cap",
			mutate: func(c *Config) { c.Ranking.HardCap = c.Ranking.SoftCap },
		},
		{
			name:    "feed hard cap above soft cap",
			mutate:  func(c *Config) { c.Feed.HardCap = 2000 },
			wantErr: ErrConfigValidateError,
		},
		{
			name:    "zero broadcast interval",
			mutate:  func(c *Config) { c.Ranking.BroadcastInterval = 0 },
			wantErr: ErrConfigValidateError,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "etcd" },
			wantErr: ErrConfigValidateError,
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.Store.Backend = BackendRedis
				c.Store.Redis.Addr = ""
			},
			wantErr: ErrInvalidStore,
		},
		{
			name:    "unknown principal kind",
			mutate:  func(c *Config) { c.KnownPrincipals = map[string]string{"CanisterIdNowhere": "x"} },
			wantErr: ErrConfigValidateError,
		},
		{
			name:    "empty principal value",
			mutate:  func(c *Config) { c.KnownPrincipals = map[string]string{"UserIdGlobalSuperAdmin": ""} },
			wantErr: ErrConfigValidateError,
		},
		{
			name:    "metrics path without slash",
			mutate:  func(c *Config) { c.Monitor.MetricsPath = "metrics" },
			wantErr: ErrConfigValidateError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidationNamesField tests that validation errors name the field
func TestValidationNamesField(t *testing.T) {
	config := DefaultConfig()
	config.Ranking.HardCap = 500
	err := config.Validate()
	if err == nil || !strings.Contains(err.Error(), "Ranking.HardCap") {
		t.Fatalf("Expected error naming Ranking.HardCap, got %v", err)
	}
}

// TestLoader tests YAML loading over the defaults
func TestLoader(t *testing.T) {
	yamlFile := writeFile(t, "socialshard.yaml", `
app:
  name: test-app
  environment: staging
log:
  level: debug
store:
  backend: badger
  path: /var/lib/socialshard
ranking:
  soft_cap: 60
  hard_cap: 40
  broadcast_interval: 30s
known_principals:
  UserIdGlobalSuperAdmin: admin-principal
`)

	config, err := testLoader(nil).LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}

	if config.App.Name != "test-app" {
		t.Errorf("Expected app name 'test-app', got '%s'", config.App.Name)
	}
	if config.App.Environment != EnvStaging {
		t.Errorf("Expected env staging, got %v", config.App.Environment)
	}
	if config.Log.Level != LogLevelDebug {
		t.Errorf("Expected debug level, got %v", config.Log.Level)
	}
	if config.Store.Backend != BackendBadger || config.Store.Path != "/var/lib/socialshard" {
		t.Errorf("Unexpected store config: %+v", config.Store)
	}
	if config.Ranking.SoftCap != 60 || config.Ranking.HardCap != 40 {
		t.Errorf("Unexpected ranking caps: %+v", config.Ranking)
	}
	if config.Ranking.BroadcastInterval != 30*time.Second {
		t.Errorf("Expected 30s interval, got %v", config.Ranking.BroadcastInterval)
	}
	// Keys absent from the file keep their defaults
	if config.Ranking.TopN != 3 || config.Feed.MaxPage != 100 || config.Monitor.Port != 9090 {
		t.Errorf("Defaults were not preserved: top_n=%d max_page=%d port=%d",
			config.Ranking.TopN, config.Feed.MaxPage, config.Monitor.Port)
	}
	if config.KnownPrincipals["UserIdGlobalSuperAdmin"] != "admin-principal" {
		t.Errorf("Known principal not loaded: %v", config.KnownPrincipals)
	}
}

// TestLoaderJSON tests JSON configuration loading
func TestLoaderJSON(t *testing.T) {
	jsonFile := writeFile(t, "config.json", `{
	"app": {"name": "json-test-app", "environment": "production"},
	"log": {"level": "warn", "format": "json"},
	"feed": {"soft_cap": 300, "hard_cap": 200, "max_page": 20}
}`)

	config, err := testLoader(nil).LoadFromFile(jsonFile)
	if err != nil {
		t.Fatalf("Failed to load JSON config: %v", err)
	}
	if config.App.Name != "json-test-app" || !config.IsProduction() {
		t.Errorf("Unexpected app config: %+v", config.App)
	}
	if config.Log.Format != "json" || config.Log.Level != LogLevelWarn {
		t.Errorf("Unexpected log config: %+v", config.Log)
	}
	if config.Feed.MaxPage != 20 {
		t.Errorf("Expected max page 20, got %d", config.Feed.MaxPage)
	}
}

// TestLoaderErrors tests the loader failure modes
func TestLoaderErrors(t *testing.T) {
	loader := testLoader(nil)

	if _, err := loader.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrConfigFileNotFound) {
		t.Errorf("Expected ErrConfigFileNotFound, got %v", err)
	}
	if _, err := loader.LoadFromFile(writeFile(t, "config.toml", "")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := loader.LoadFromFile(writeFile(t, "bad.yaml", "app: [")); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected ErrConfigParseError, got %v", err)
	}
	if _, err := loader.LoadFromFile(writeFile(t, "bad.json", `{"nope": 1}`)); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected ErrConfigParseError for unknown field, got %v", err)
	}
	if _, err := loader.LoadFromFile(writeFile(t, "caps.yaml", "ranking:\n  hard_cap: 151\n")); !errors.Is(err, ErrConfigValidateError) {
		t.Errorf("Expected ErrConfigValidateError, got %v", err)
	}
}

// TestLoadFromReader tests loading from a reader
func TestLoadFromReader(t *testing.T) {
	config, err := testLoader(nil).LoadFromReader(strings.NewReader("app:\n  name: reader-app\n"), FormatYAML)
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if config.App.Name != "reader-app" {
		t.Errorf("Expected reader-app, got %s", config.App.Name)
	}
}

// TestEnvironmentOverrides tests environment variable overrides
func TestEnvironmentOverrides(t *testing.T) {
	env := map[string]string{
		"SOCIALSHARD_APP_NAME":                   "env-app",
		"SOCIALSHARD_LOG_LEVEL":                  "ERROR",
		"SOCIALSHARD_STORE_BACKEND":              "redis",
		"SOCIALSHARD_REDIS_ADDR":                 "redis:6379",
		"SOCIALSHARD_REDIS_DB":                   "2",
		"SOCIALSHARD_RANKING_BROADCAST_INTERVAL": "1m",
		"SOCIALSHARD_MONITOR_PORT":               "9191",
		"SOCIALSHARD_MONITOR_ENABLED":            "false",
	}
	yamlFile := writeFile(t, "socialshard.yaml", "app:\n  name: file-app\n")

	config, err := testLoader(env).LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.App.Name != "env-app" {
		t.Errorf("Expected env override of app name, got %s", config.App.Name)
	}
	if config.Log.Level != LogLevelError {
		t.Errorf("Expected error level, got %s", config.Log.Level)
	}
	if config.Store.Backend != BackendRedis || config.Store.Redis.Addr != "redis:6379" || config.Store.Redis.DB != 2 {
		t.Errorf("Unexpected store config: %+v", config.Store)
	}
	if config.Ranking.BroadcastInterval != time.Minute {
		t.Errorf("Expected 1m interval, got %v", config.Ranking.BroadcastInterval)
	}
	if config.Monitor.Port != 9191 || config.Monitor.Enabled {
		t.Errorf("Unexpected monitor config: %+v", config.Monitor)
	}
}

// TestEnvironmentOverrideErrors tests malformed environment values
func TestEnvironmentOverrideErrors(t *testing.T) {
	for name, value := range map[string]string{
		"SOCIALSHARD_REDIS_DB":                   "two",
		"SOCIALSHARD_RANKING_BROADCAST_INTERVAL": "soon",
		"SOCIALSHARD_MONITOR_PORT":               "70000",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := testLoader(map[string]string{name: value}).AutoLoad()
			if !errors.Is(err, ErrEnvironmentVarError) {
				t.Fatalf("Expected ErrEnvironmentVarError, got %v", err)
			}
		})
	}
}

// TestAutoLoad tests automatic configuration discovery
func TestAutoLoad(t *testing.T) {
	// No file anywhere falls back to the defaults
	config, err := testLoader(nil).AutoLoad()
	if err != nil {
		t.Fatalf("AutoLoad without file failed: %v", err)
	}
	if config.App.Name != "socialshard" {
		t.Errorf("Expected default app name, got %s", config.App.Name)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "socialshard.yml"), []byte("app:\n  name: found-app\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err = testLoader(nil).SetSearchPaths([]string{t.TempDir(), dir}).AutoLoad()
	if err != nil {
		t.Fatalf("AutoLoad failed: %v", err)
	}
	if config.App.Name != "found-app" {
		t.Errorf("Expected found-app, got %s", config.App.Name)
	}
}

// TestWatcher tests configuration hot reload
func TestWatcher(t *testing.T) {
	path := writeFile(t, "socialshard.yaml", "log:\n  level: info\n")

	watcher, err := NewWatcher(path, testLoader(nil))
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	watcher.SetDebounce(20 * time.Millisecond)

	changed := make(chan LogLevel, 16)
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		select {
		case changed <- newConfig.Log.Level:
		default:
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A write may surface as several events; wait for the final content
	timeout := time.After(5 * time.Second)
	for level := LogLevelInfo; level != LogLevelDebug; {
		select {
		case level = <-changed:
		case <-timeout:
			t.Fatal("Timed out waiting for reload")
		}
	}

	if watcher.GetConfig().Log.Level != LogLevelDebug {
		t.Errorf("Watcher did not keep the new config")
	}
}

// TestWatcherKeepsConfigOnInvalidReload tests that a bad file is ignored
func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	path := writeFile(t, "socialshard.yaml", "log:\n  level: warn\n")

	watcher, err := NewWatcher(path, testLoader(nil))
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(path, []byte("ranking:\n  hard_cap: 1000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := watcher.Reload(); !errors.Is(err, ErrConfigValidateError) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if watcher.GetConfig().Log.Level != LogLevelWarn {
		t.Errorf("Config was replaced by an invalid one")
	}
}

func TestColdChanges(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if got := ColdChanges(a, b); len(got) != 0 {
		t.Fatalf("identical configs reported %v", got)
	}

	b.Log.Level = LogLevelDebug
	b.Ranking.BroadcastInterval = time.Minute
	if got := ColdChanges(a, b); len(got) != 0 {
		t.Errorf("hot settings reported as cold: %v", got)
	}

	b.Store.Backend = BackendBadger
	b.Ranking.TopN = 5
	b.KnownPrincipals = map[string]string{"UserIdGlobalSuperAdmin": "admin"}
	want := []string{"store", "ranking", "known_principals"}
	got := ColdChanges(a, b)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ColdChanges = %v, want %v", got, want)
	}
}
