package formats

import "fmt"

// Engine identifies the external tool that drives a stage.
type Engine string

const (
	// EngineSoffice runs LibreOffice headless (soffice --headless --convert-to).
	EngineSoffice Engine = "soffice"
	// EngineUnoconv runs the unoconv front end over the same office suite.
	EngineUnoconv Engine = "unoconv"
	// EnginePdftoppm rasterizes PDF pages (poppler pdftoppm).
	EnginePdftoppm Engine = "pdftoppm"
	// EngineMagick post-processes and converts raster images (ImageMagick).
	EngineMagick Engine = "magick"
	// EnginePdfseparate extracts single pages from a PDF (poppler pdfseparate).
	EnginePdfseparate Engine = "pdfseparate"
	// EnginePdfunite concatenates PDFs (poppler pdfunite).
	EnginePdfunite Engine = "pdfunite"
)

// OfficeEngine reports whether the engine drives the shared office suite and
// therefore needs profile-level serialization.
func (e Engine) OfficeEngine() bool {
	return e == EngineSoffice || e == EngineUnoconv
}

// Stage is one step of a conversion plan: exactly one external engine
// invocation taking Input to Output.
type Stage struct {
	Engine Engine
	Input  Format
	Output Format
}

// Name returns a short stable label for logs and error context.
func (s Stage) Name() string {
	return fmt.Sprintf("%s-%s", s.Input, s.Output)
}

// Plan is the ordered stage list computed for an (input, output) pair. An
// empty stage list means input and output formats are identical and the
// pipeline short-circuits to a copy.
type Plan struct {
	Input  Format
	Output Format
	Stages []Stage
}

// Direct reports whether the plan needs no engine invocation.
func (p Plan) Direct() bool {
	return len(p.Stages) == 0
}

// Validate checks the chain invariant: adjacent stages connect, and the chain
// spans exactly (Input, Output).
func (p Plan) Validate() error {
	if p.Direct() {
		if p.Input != p.Output {
			return fmt.Errorf("empty plan but %s != %s", p.Input, p.Output)
		}
		return nil
	}
	if p.Stages[0].Input != p.Input {
		return fmt.Errorf("plan starts at %s, want %s", p.Stages[0].Input, p.Input)
	}
	for i := 1; i < len(p.Stages); i++ {
		if p.Stages[i-1].Output != p.Stages[i].Input {
			return fmt.Errorf("stage %d output %s does not feed stage %d input %s", i-1, p.Stages[i-1].Output, i, p.Stages[i].Input)
		}
	}
	if last := p.Stages[len(p.Stages)-1].Output; last != p.Output {
		return fmt.Errorf("plan ends at %s, want %s", last, p.Output)
	}
	return nil
}
