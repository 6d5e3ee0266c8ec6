package formats

import (
	"fmt"
	"sort"

	"zepdf/internal/services"
)

// Resolver computes conversion plans from a fixed table of direct and
// two-stage conversions. It is stateless apart from the configured office
// engine; plans are deterministic for a given pair.
type Resolver struct {
	office Engine
}

// NewResolver builds a resolver using the given office engine for
// suite-driven stages. An unrecognized engine falls back to soffice.
func NewResolver(office Engine) *Resolver {
	if office != EngineSoffice && office != EngineUnoconv {
		office = EngineSoffice
	}
	return &Resolver{office: office}
}

// OfficeEngine returns the engine the resolver assigns to office stages.
func (r *Resolver) OfficeEngine() Engine {
	return r.office
}

// Resolve maps an (input, output) pair to a conversion plan or fails with
// ErrUnsupportedConversion. No path longer than two stages is considered.
func (r *Resolver) Resolve(input, output Format) (Plan, error) {
	if !Known(input) || !Known(output) {
		return Plan{}, services.Wrap(services.ErrUnsupportedConversion, "", "resolve",
			fmt.Sprintf("unknown format pair %s to %s", input, output), nil)
	}
	if input == output {
		return Plan{Input: input, Output: output}, nil
	}

	candidates := r.candidates(input, output)
	if len(candidates) == 0 {
		return Plan{}, services.Wrap(services.ErrUnsupportedConversion, "", "resolve",
			fmt.Sprintf("no conversion path from %s to %s", input, output), nil)
	}

	// Shortest plan wins; among equals, prefer the plan whose first stage
	// engine is native to the input's suite so the document is not
	// re-encoded by a foreign engine.
	native := r.nativeEngine(input.Suite())
	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].Stages) != len(candidates[j].Stages) {
			return len(candidates[i].Stages) < len(candidates[j].Stages)
		}
		return candidates[i].Stages[0].Engine == native && candidates[j].Stages[0].Engine != native
	})

	plan := candidates[0]
	if err := plan.Validate(); err != nil {
		return Plan{}, services.Wrap(services.ErrResource, "", "resolve", "invalid plan table entry", err)
	}
	return plan, nil
}

// Supported enumerates every (input, output) pair the table can plan,
// excluding identity pairs.
func (r *Resolver) Supported() [][2]Format {
	var pairs [][2]Format
	for _, in := range All() {
		for _, out := range All() {
			if in == out {
				continue
			}
			if len(r.candidates(in, out)) > 0 {
				pairs = append(pairs, [2]Format{in, out})
			}
		}
	}
	return pairs
}

func (r *Resolver) candidates(input, output Format) []Plan {
	var plans []Plan
	add := func(stages ...Stage) {
		plans = append(plans, Plan{Input: input, Output: output, Stages: stages})
	}

	switch input.Suite() {
	case SuiteOffice:
		switch {
		case output == PDF || officeWritable(output):
			add(Stage{Engine: r.office, Input: input, Output: output})
		case output.Suite() == SuiteRaster:
			add(
				Stage{Engine: r.office, Input: input, Output: PDF},
				Stage{Engine: EnginePdftoppm, Input: PDF, Output: output},
			)
		}
	case SuitePDF:
		switch {
		case officeWritable(output):
			add(Stage{Engine: r.office, Input: input, Output: output})
		case output.Suite() == SuiteRaster:
			add(Stage{Engine: EnginePdftoppm, Input: input, Output: output})
		}
	case SuiteRaster:
		switch {
		case output == PDF:
			// Both the raster toolchain and the office suite can wrap an
			// image into a PDF; the tie-break keeps magick first.
			add(Stage{Engine: EngineMagick, Input: input, Output: output})
			add(Stage{Engine: r.office, Input: input, Output: output})
		case output.Suite() == SuiteRaster:
			add(Stage{Engine: EngineMagick, Input: input, Output: output})
		}
	}
	return plans
}

func (r *Resolver) nativeEngine(suite Suite) Engine {
	switch suite {
	case SuiteRaster:
		return EngineMagick
	case SuitePDF:
		return EnginePdftoppm
	default:
		return r.office
	}
}

// officeWritable reports whether the office suite can produce the format as
// an export target. The suite reads mobi but cannot write it.
func officeWritable(f Format) bool {
	return f.Suite() == SuiteOffice && f != MOBI
}
