package config

const (
	defaultWorkDir            = "~/.local/share/zepdf/work"
	defaultLogDir             = "~/.local/share/zepdf/logs"
	defaultProfileDir         = "~/.local/share/zepdf/profiles"
	defaultAPIBind            = "127.0.0.1:8490"
	defaultOfficeEngine       = "soffice"
	defaultSofficeBinary      = "soffice"
	defaultUnoconvBinary      = "unoconv"
	defaultOfficeTimeout      = 120
	defaultPdftoppmBinary     = "pdftoppm"
	defaultMagickBinary       = "magick"
	defaultRasterTimeout      = 60
	defaultPdfseparateBinary  = "pdfseparate"
	defaultPdfuniteBinary     = "pdfunite"
	defaultPdftoolsTimeout    = 60
	defaultImageDPI           = 150
	defaultMaxUploadMiB       = 200
	defaultMaxDiagnosticKiB   = 64
	defaultDiagnosticTailLine = 40
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:    defaultWorkDir,
			LogDir:     defaultLogDir,
			ProfileDir: defaultProfileDir,
			APIBind:    defaultAPIBind,
		},
		Office: Office{
			Engine:         defaultOfficeEngine,
			SofficeBinary:  defaultSofficeBinary,
			UnoconvBinary:  defaultUnoconvBinary,
			TimeoutSeconds: defaultOfficeTimeout,
		},
		Raster: Raster{
			PdftoppmBinary: defaultPdftoppmBinary,
			MagickBinary:   defaultMagickBinary,
			TimeoutSeconds: defaultRasterTimeout,
			DefaultDPI:     defaultImageDPI,
		},
		Pdftools: Pdftools{
			PdfseparateBinary: defaultPdfseparateBinary,
			PdfuniteBinary:    defaultPdfuniteBinary,
			TimeoutSeconds:    defaultPdftoolsTimeout,
		},
		Limits: Limits{
			MaxUploadMiB:      defaultMaxUploadMiB,
			MaxDiagnosticKiB:  defaultMaxDiagnosticKiB,
			DiagnosticTailLen: defaultDiagnosticTailLine,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
