package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/darwinia-network/darwinia-builder/internal/config/validate"
	"github.com/darwinia-network/darwinia-builder/internal/target"
	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
	"github.com/darwinia-network/darwinia-builder/internal/utils/security"
	"github.com/darwinia-network/darwinia-builder/internal/utils/slice"
)

var log = logger.Logger()

const (
	DefaultToolchainDate = "2019-07-14"
	DefaultBundleBaseURL = "https://github.com/darwinia-network/darwinia-builder/releases/download/deps"
)

// GlobalConfig holds the tool-level settings read from the YAML config file.
type GlobalConfig struct {
	ToolchainDate      string `yaml:"toolchain_date" json:"toolchain_date"`             // Date of the pinned nightly toolchain
	AuxTarget          string `yaml:"aux_target" json:"aux_target"`                     // Runtime target installed next to the run target
	WorkDir            string `yaml:"work_dir" json:"work_dir"`                         // Where bundles are downloaded and extracted
	BundleBaseURL      string `yaml:"bundle_base_url" json:"bundle_base_url"`           // Base URL of the <bundle>.tar.gz archives
	CargoConfig        string `yaml:"cargo_config" json:"cargo_config"`                 // Cargo config file receiving linker entries (empty = ~/.cargo/config)
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds" json:"http_timeout_seconds"` // How long a bundle download may wait for the server before giving up

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		ToolchainDate:      DefaultToolchainDate,
		AuxTarget:          target.Wasm32.String(),
		WorkDir:            ".",
		BundleBaseURL:      DefaultBundleBaseURL,
		HTTPTimeoutSeconds: 300,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadGlobalConfig reads configPath over the defaults. A missing or
// unreadable (permission denied) file yields the defaults.
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	config := DefaultGlobalConfig()
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return config, nil
		}
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	if ext != ".yml" && ext != ".yaml" {
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}
	// The schema sees the file as written, so unknown keys are caught
	// before the typed decode drops them.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		log.Errorf("Error parsing YAML config: %v", err)
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		log.Errorf("Schema validation failed: %v", err)
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("decoding YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// Validate checks values the schema cannot express.
func (gc *GlobalConfig) Validate() error {
	if _, err := time.Parse("2006-01-02", gc.ToolchainDate); err != nil {
		return fmt.Errorf("invalid toolchain_date %q: %w", gc.ToolchainDate, err)
	}
	if _, err := target.Parse(target.RoleAux, gc.AuxTarget); err != nil {
		return err
	}
	if strings.TrimSpace(gc.WorkDir) == "" {
		return fmt.Errorf("work_dir cannot be empty")
	}

	u, err := url.Parse(gc.BundleBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid bundle_base_url %q", gc.BundleBaseURL)
	}

	if gc.HTTPTimeoutSeconds <= 0 || gc.HTTPTimeoutSeconds > 3600 {
		return fmt.Errorf("http_timeout_seconds must be within 1..3600, got %d", gc.HTTPTimeoutSeconds)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slice.Contains(validLevels, gc.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			gc.Logging.Level, strings.Join(validLevels, ", "))
	}
	gc.Logging.File = strings.TrimSpace(gc.Logging.File)
	return nil
}

// SaveGlobalConfigWithComments writes gc as a commented YAML file, used by
// `config init`.
func (gc *GlobalConfig) SaveGlobalConfigWithComments(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := gc.Validate(); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	if dir := filepath.Dir(configPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	if err := security.SafeWriteFile(configPath, []byte(gc.renderCommentedYAML()), 0o600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# darwinia-builder - Global Configuration\n\n")

	b.WriteString("# Date of the pinned nightly toolchain (nightly-<date>-<host>)\n")
	fmt.Fprintf(&b, "toolchain_date: %q\n\n", gc.ToolchainDate)

	b.WriteString("# Runtime target installed next to the run target\n")
	fmt.Fprintf(&b, "aux_target: %q\n\n", gc.AuxTarget)

	b.WriteString("# Directory receiving downloaded dependency bundles and their extracted trees\n")
	fmt.Fprintf(&b, "work_dir: %q\n\n", gc.WorkDir)

	b.WriteString("# Bundles are fetched from <bundle_base_url>/<arch>-<os>.tar.gz\n")
	fmt.Fprintf(&b, "bundle_base_url: %q\n\n", gc.BundleBaseURL)

	b.WriteString("# Cargo config that receives [target.<triple>] linker entries\n")
	b.WriteString("# Empty means $CARGO_HOME/config, or ~/.cargo/config\n")
	fmt.Fprintf(&b, "cargo_config: %q\n\n", gc.CargoConfig)

	b.WriteString("# Seconds a bundle download may go without receiving data (1-3600)\n")
	fmt.Fprintf(&b, "http_timeout_seconds: %d\n\n", gc.HTTPTimeoutSeconds)

	b.WriteString("logging:\n")
	b.WriteString("  # debug, info, warn or error\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	if gc.Logging.File != "" {
		b.WriteString("  # Tee logs to this file (overwritten on each run)\n")
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
	}
	return b.String()
}

// GetConfigPaths returns the configuration file locations, most specific first.
func GetConfigPaths() []string {
	paths := []string{
		"darwinia-builder.yml",
		".darwinia-builder.yml",
		"darwinia-builder.yaml",
		".darwinia-builder.yaml",
	}
	if home, _ := os.UserHomeDir(); home != "" {
		paths = append(paths,
			filepath.Join(home, ".config", "darwinia-builder", "config.yml"),
			filepath.Join(home, ".config", "darwinia-builder", "config.yaml"),
		)
	}
	return append(paths, "/etc/darwinia-builder/config.yml")
}

// FindConfigFile returns the first existing path of GetConfigPaths, or "".
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
