package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir    string `toml:"work_dir"`
	LogDir     string `toml:"log_dir"`
	ProfileDir string `toml:"profile_dir"`
	APIBind    string `toml:"api_bind"`
}

// Office contains configuration for the headless office engine.
type Office struct {
	// Engine selects the suite front end: "soffice" or "unoconv".
	Engine         string `toml:"engine"`
	SofficeBinary  string `toml:"soffice_binary"`
	UnoconvBinary  string `toml:"unoconv_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Raster contains configuration for PDF rasterization and image
// post-processing.
type Raster struct {
	PdftoppmBinary string `toml:"pdftoppm_binary"`
	MagickBinary   string `toml:"magick_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DefaultDPI     int    `toml:"default_dpi"`
}

// Pdftools contains configuration for PDF page manipulation (split/merge).
type Pdftools struct {
	PdfseparateBinary string `toml:"pdfseparate_binary"`
	PdfuniteBinary    string `toml:"pdfunite_binary"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Limits bounds request and diagnostic sizes.
type Limits struct {
	MaxUploadMiB      int `toml:"max_upload_mib"`
	MaxDiagnosticKiB  int `toml:"max_diagnostic_kib"`
	DiagnosticTailLen int `toml:"diagnostic_tail_lines"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the converter.
//
// Configuration sections by subsystem:
//   - Paths: scratch/work directories, engine profile root, API bind address
//   - Office: headless office suite engine selection and timeout
//   - Raster: pdftoppm/magick binaries, timeout, default DPI
//   - Pdftools: pdfseparate/pdfunite binaries and timeout
//   - Limits: upload size and diagnostic capture caps
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Office   Office   `toml:"office"`
	Raster   Raster   `toml:"raster"`
	Pdftools Pdftools `toml:"pdftools"`
	Limits   Limits   `toml:"limits"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/zepdf/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if env := strings.TrimSpace(os.Getenv("ZEPDF_CONFIG")); env != "" {
			path = env
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the work, log, and profile directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.ProfileDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure directory %s: %w", dir, err)
		}
	}
	return nil
}

// OfficeBinary returns the configured binary for the selected office engine.
func (c *Config) OfficeBinary() string {
	if c.Office.Engine == "unoconv" {
		return c.Office.UnoconvBinary
	}
	return c.Office.SofficeBinary
}

// OfficeTimeout returns the office stage timeout as a duration.
func (c *Config) OfficeTimeout() time.Duration {
	return time.Duration(c.Office.TimeoutSeconds) * time.Second
}

// RasterTimeout returns the raster stage timeout as a duration.
func (c *Config) RasterTimeout() time.Duration {
	return time.Duration(c.Raster.TimeoutSeconds) * time.Second
}

// PdftoolsTimeout returns the split/merge tool timeout as a duration.
func (c *Config) PdftoolsTimeout() time.Duration {
	return time.Duration(c.Pdftools.TimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the request body cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Limits.MaxUploadMiB) << 20
}

// MaxDiagnosticBytes returns the per-stage diagnostic capture cap in bytes.
func (c *Config) MaxDiagnosticBytes() int {
	return c.Limits.MaxDiagnosticKiB << 10
}

func (c *Config) normalize() error {
	paths := []*string{&c.Paths.WorkDir, &c.Paths.LogDir, &c.Paths.ProfileDir}
	for _, field := range paths {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Office.Engine = strings.ToLower(strings.TrimSpace(c.Office.Engine))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
