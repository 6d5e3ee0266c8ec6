// Package deps reports availability of the external conversion engines the
// pipeline shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"zepdf/internal/config"
)

// Requirement defines an external binary the converter relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// FromConfig derives the binary requirements for the configured engines. The
// unselected office front end is optional; everything else the format table
// routes through is required.
func FromConfig(cfg *config.Config) []Requirement {
	sofficeOptional := cfg.Office.Engine == "unoconv"
	return []Requirement{
		{
			Name:        "soffice",
			Command:     cfg.Office.SofficeBinary,
			Description: "headless office suite (document conversions)",
			Optional:    sofficeOptional,
		},
		{
			Name:        "unoconv",
			Command:     cfg.Office.UnoconvBinary,
			Description: "office suite front end (alternate engine)",
			Optional:    !sofficeOptional,
		},
		{
			Name:        "pdftoppm",
			Command:     cfg.Raster.PdftoppmBinary,
			Description: "PDF rasterization (page images)",
		},
		{
			Name:        "magick",
			Command:     cfg.Raster.MagickBinary,
			Description: "image conversion and post-processing",
		},
		{
			Name:        "pdfseparate",
			Command:     cfg.Pdftools.PdfseparateBinary,
			Description: "PDF page extraction (split)",
		},
		{
			Name:        "pdfunite",
			Command:     cfg.Pdftools.PdfuniteBinary,
			Description: "PDF concatenation (split/merge)",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
