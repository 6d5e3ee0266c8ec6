package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		problems = append(problems, "paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		problems = append(problems, "paths.api_bind must be set")
	}
	switch c.Office.Engine {
	case "soffice", "unoconv":
	default:
		problems = append(problems, fmt.Sprintf("office.engine must be \"soffice\" or \"unoconv\", got %q", c.Office.Engine))
	}
	if c.Office.TimeoutSeconds <= 0 {
		problems = append(problems, "office.timeout_seconds must be positive")
	}
	if c.Raster.TimeoutSeconds <= 0 {
		problems = append(problems, "raster.timeout_seconds must be positive")
	}
	if c.Pdftools.TimeoutSeconds <= 0 {
		problems = append(problems, "pdftools.timeout_seconds must be positive")
	}
	if c.Raster.DefaultDPI < 36 || c.Raster.DefaultDPI > 1200 {
		problems = append(problems, "raster.default_dpi must be between 36 and 1200")
	}
	if c.Limits.MaxUploadMiB <= 0 {
		problems = append(problems, "limits.max_upload_mib must be positive")
	}
	if c.Limits.MaxDiagnosticKiB <= 0 {
		problems = append(problems, "limits.max_diagnostic_kib must be positive")
	}
	switch c.Logging.Format {
	case "console", "json", "":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
