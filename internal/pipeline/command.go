package pipeline

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"zepdf/internal/formats"
	"zepdf/internal/runner"
	"zepdf/internal/services"
)

// stageCommand pairs the runner invocation with the contract for locating
// the engine's output afterwards.
type stageCommand struct {
	cmd runner.Command
	// outputGlob matches the file(s) the engine is expected to write into
	// the stage working directory.
	outputGlob string
}

// buildCommand assembles the external invocation for one stage. Each engine
// has its own (input path, output path, format flag) contract:
//
//	soffice  --headless --convert-to <fmt> --outdir <dir> <in>, writes <stem>.<fmt>
//	unoconv  -f <fmt> -o <out> <in>
//	pdftoppm -<fmt> -r <dpi> <in> <dir>/page, writes page-N.<fmt>
//	magick   <in> <out>
func (p *Pipeline) buildCommand(stage formats.Stage, inPath, workDir string, opts Options) (stageCommand, error) {
	ext := stage.Output.Ext()
	switch stage.Engine {
	case formats.EngineSoffice:
		stem := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
		return stageCommand{
			cmd: runner.Command{
				Binary: p.cfg.Office.SofficeBinary,
				Args: []string{
					"--headless",
					"-env:UserInstallation=" + profileURL(p.profileDir),
					"--convert-to", ext,
					"--outdir", workDir,
					inPath,
				},
				Dir:     workDir,
				Timeout: p.cfg.OfficeTimeout(),
			},
			outputGlob: filepath.Join(workDir, stem+"."+ext),
		}, nil

	case formats.EngineUnoconv:
		outPath := filepath.Join(workDir, "output."+ext)
		return stageCommand{
			cmd: runner.Command{
				Binary:  p.cfg.Office.UnoconvBinary,
				Args:    []string{"-f", ext, "-o", outPath, inPath},
				Dir:     workDir,
				Env:     []string{"HOME=" + p.profileDir},
				Timeout: p.cfg.OfficeTimeout(),
			},
			outputGlob: outPath,
		}, nil

	case formats.EnginePdftoppm:
		dpi := opts.ImageDPI
		if dpi <= 0 {
			dpi = p.cfg.Raster.DefaultDPI
		}
		formatFlag := "-png"
		if stage.Output == formats.JPG {
			formatFlag = "-jpeg"
		}
		return stageCommand{
			cmd: runner.Command{
				Binary:  p.cfg.Raster.PdftoppmBinary,
				Args:    []string{formatFlag, "-r", strconv.Itoa(dpi), inPath, filepath.Join(workDir, "page")},
				Dir:     workDir,
				Timeout: p.cfg.RasterTimeout(),
			},
			outputGlob: filepath.Join(workDir, "page-*"),
		}, nil

	case formats.EngineMagick:
		outPath := filepath.Join(workDir, "output."+ext)
		return stageCommand{
			cmd: runner.Command{
				Binary:  p.cfg.Raster.MagickBinary,
				Args:    []string{inPath, outPath},
				Dir:     workDir,
				Timeout: p.cfg.RasterTimeout(),
			},
			outputGlob: outPath,
		}, nil
	}
	return stageCommand{}, services.Wrap(services.ErrResource, stage.Name(), "build command",
		fmt.Sprintf("unknown engine %q", stage.Engine), nil)
}

// profileURL renders the office user-profile directory as the file URL
// soffice expects for -env:UserInstallation.
func profileURL(dir string) string {
	return "file://" + filepath.ToSlash(dir)
}

func collectOutputs(spec stageCommand) ([]string, error) {
	matches, err := filepath.Glob(spec.outputGlob)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "", "collect outputs", "bad output pattern", err)
	}
	return matches, nil
}
