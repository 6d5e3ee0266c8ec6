package pipeline

import (
	"strings"
)

// diagnostic trims captured engine output to the configured tail and scrubs
// scoped filesystem paths so raw host locations never reach the caller.
func (p *Pipeline) diagnostic(stdout, stderr string, scrub []string) string {
	combined := strings.TrimSpace(stderr)
	if out := strings.TrimSpace(stdout); out != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += out
	}
	if combined == "" {
		return ""
	}

	lines := strings.Split(combined, "\n")
	if max := p.cfg.Limits.DiagnosticTailLen; max > 0 && len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	text := strings.Join(lines, "\n")

	if max := p.cfg.MaxDiagnosticBytes(); max > 0 && len(text) > max {
		text = text[len(text)-max:]
	}

	for _, path := range scrub {
		if strings.TrimSpace(path) == "" {
			continue
		}
		text = strings.ReplaceAll(text, path, "<workdir>")
	}
	return text
}
