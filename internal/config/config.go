// Package config loads makerkit.yaml and applies defaults and environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the plugin root.
const FileName = "makerkit.yaml"

// Environment variables that override file values
const (
	EnvCacheDir    = "MAKERKIT_CACHE_DIR"
	EnvDatabaseDSN = "TEST_DATABASE_DSN"
)

// Config represents makerkit.yaml
type Config struct {
	// PluginRoot is the bundle under test. Relative paths below resolve against it.
	PluginRoot  string         `yaml:"plugin_root"`
	CacheDir    string         `yaml:"cache_dir"`
	PHP         string         `yaml:"php"`
	Composer    string         `yaml:"composer"`
	Skeleton    SkeletonConfig `yaml:"skeleton"`
	Timeouts    TimeoutsConfig `yaml:"timeouts"`
	Tools       ToolsConfig    `yaml:"tools"`
	Log         LogConfig      `yaml:"log"`
	Database    DatabaseConfig `yaml:"database"`
	Replacement ReplaceConfig  `yaml:"replacements"`
	UsePTY      bool           `yaml:"use_pty"`
}

// SkeletonConfig controls how the pristine project is built
type SkeletonConfig struct {
	CreateCommand string   `yaml:"create_command"`
	Packages      []string `yaml:"packages"`
	// BundleClass is registered in config/bundles.php after FrameworkBundle.
	BundleClass string `yaml:"bundle_class"`
	// Autoload maps PSR-4 prefixes to paths relative to PluginRoot.
	Autoload map[string]string `yaml:"autoload"`
}

// TimeoutsConfig holds per-kind subprocess timeouts
type TimeoutsConfig struct {
	Maker    time.Duration `yaml:"maker"`
	Command  time.Duration `yaml:"command"`
	Install  time.Duration `yaml:"install"`
	LockWait time.Duration `yaml:"lock_wait"`
}

// ToolsConfig holds linter and test-runner locations
type ToolsConfig struct {
	PHPCSFixerConfig string `yaml:"php_cs_fixer_config"`
	InternalTests    string `yaml:"internal_tests"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level         string `yaml:"level"`
	File          string `yaml:"file"`
	Transcripts   bool   `yaml:"transcripts"`
	TranscriptDir string `yaml:"transcript_dir"`
}

// DatabaseConfig holds the test database DSN
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ReplaceConfig holds the replacement policy
type ReplaceConfig struct {
	Lenient bool `yaml:"lenient"`
}

// Default returns a config with every default applied for pluginRoot.
func Default(pluginRoot string) *Config {
	c := &Config{PluginRoot: pluginRoot}
	c.applyDefaults()
	c.applyDerived()
	return c
}

// Load reads path, then applies defaults and environment overrides. A
// missing file is not an error: the defaults for the file's directory are used.
func Load(path string) (*Config, error) {
	var c Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if c.PluginRoot == "" {
		c.PluginRoot = filepath.Dir(path)
	} else if !filepath.IsAbs(c.PluginRoot) {
		c.PluginRoot = filepath.Join(filepath.Dir(path), c.PluginRoot)
	}

	c.applyDefaults()
	c.applyEnv()
	c.applyDerived()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.PluginRoot == "" {
		c.PluginRoot = "."
	}
	if abs, err := filepath.Abs(c.PluginRoot); err == nil {
		c.PluginRoot = abs
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join("tests", "tmp", "cache")
	}
	c.CacheDir = c.resolve(c.CacheDir)
	if c.PHP == "" {
		c.PHP = "php"
	}
	if c.Composer == "" {
		c.Composer = "composer"
	}

	s := &c.Skeleton
	if s.CreateCommand == "" {
		s.CreateCommand = c.Composer + " create-project symfony/skeleton flex_project --prefer-dist --no-progress"
	}
	if len(s.Packages) == 0 {
		s.Packages = []string{
			"symfony/psr-http-message-bridge",
			"woohoolabs/yin",
			"phpunit",
			"symfony/maker-bundle",
			"symfony/process",
			"phootwork/collection",
			"sensio/framework-extra-bundle",
			"zendframework/zend-diactoros:^1.3.0",
		}
	}
	if s.BundleClass == "" {
		s.BundleClass = `Paknahad\JsonApiBundle\JsonApiBundle`
	}
	if s.Autoload == nil {
		s.Autoload = map[string]string{
			`Paknahad\JsonApiBundle\`: "src/",
			`PhpParser\`:              "vendor/nikic/php-parser/lib/PhpParser/",
		}
	}

	t := &c.Timeouts
	if t.Maker == 0 {
		t.Maker = 10 * time.Second
	}
	if t.Command == 0 {
		t.Command = 5 * time.Minute
	}
	if t.Install == 0 {
		t.Install = 15 * time.Minute
	}
	if t.LockWait == 0 {
		t.LockWait = 30 * time.Minute
	}

	if c.Tools.PHPCSFixerConfig == "" {
		c.Tools.PHPCSFixerConfig = filepath.Join("src", "Resources", "test", ".php_cs.test")
	}
	c.Tools.PHPCSFixerConfig = c.resolve(c.Tools.PHPCSFixerConfig)
	if c.Tools.InternalTests == "" {
		c.Tools.InternalTests = filepath.Join("vendor", "bin", "simple-phpunit")
	}
	c.Tools.InternalTests = c.resolve(c.Tools.InternalTests)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// applyDerived fills settings computed from others. It runs after the
// environment overrides.
func (c *Config) applyDerived() {
	if c.Log.TranscriptDir == "" {
		c.Log.TranscriptDir = c.defaultTranscriptDir()
	}
	c.Log.TranscriptDir = c.resolve(c.Log.TranscriptDir)
}

func (c *Config) defaultTranscriptDir() string {
	return filepath.Join(c.CacheDir, "logs")
}

// SetCacheDir moves the cache. A transcript directory left at its default
// follows it.
func (c *Config) SetCacheDir(dir string) {
	followed := c.Log.TranscriptDir == c.defaultTranscriptDir()
	c.CacheDir = c.resolve(dir)
	if followed {
		c.Log.TranscriptDir = c.defaultTranscriptDir()
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.CacheDir = c.resolve(v)
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.PluginRoot, p)
}

// SkeletonDir is the cached pristine project.
func (c *Config) SkeletonDir() string {
	return filepath.Join(c.CacheDir, "flex_project")
}

// JournalDir holds per-environment event journals.
func (c *Config) JournalDir() string {
	return filepath.Join(c.CacheDir, "journal")
}

// AutoloadEntries renders the autoload map as composer.json lines, sorted by
// prefix, with absolute paths under PluginRoot. Backslashes are JSON-escaped.
func (c *Config) AutoloadEntries() []string {
	prefixes := make([]string, 0, len(c.Skeleton.Autoload))
	for p := range c.Skeleton.Autoload {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	lines := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		path := filepath.ToSlash(c.resolve(c.Skeleton.Autoload[p]))
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		lines = append(lines, fmt.Sprintf(`"%s": "%s"`, jsonEscape(p), jsonEscape(path)))
	}
	return lines
}

func jsonEscape(s string) string {
	return strings.ReplaceAll(s, `\`, `\\`)
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field    string
	Message  string
	Expected string
}

func (e ValidationError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: %s (expected: %s)", e.Field, e.Message, e.Expected)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the loaded configuration
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if info, err := os.Stat(c.PluginRoot); err != nil || !info.IsDir() {
		errors = append(errors, ValidationError{
			Field:   "plugin_root",
			Message: fmt.Sprintf("directory not found: %s", c.PluginRoot),
		})
	}

	if !strings.Contains(c.Skeleton.CreateCommand, "flex_project") {
		errors = append(errors, ValidationError{
			Field:    "skeleton.create_command",
			Message:  "must create the project in flex_project",
			Expected: "a command whose target directory is flex_project",
		})
	}

	for name, d := range map[string]time.Duration{
		"timeouts.maker":     c.Timeouts.Maker,
		"timeouts.command":   c.Timeouts.Command,
		"timeouts.install":   c.Timeouts.Install,
		"timeouts.lock_wait": c.Timeouts.LockWait,
	} {
		if d < 0 {
			errors = append(errors, ValidationError{Field: name, Message: "must not be negative"})
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		errors = append(errors, ValidationError{
			Field:    "log.level",
			Message:  fmt.Sprintf("invalid value: %s", c.Log.Level),
			Expected: "debug, info, warn, error, or fatal",
		})
	}

	sort.Slice(errors, func(i, j int) bool { return errors[i].Field < errors[j].Field })
	return errors
}
