package formats

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"zepdf/internal/services"
)

// Format identifies a document format by its canonical extension tag.
type Format string

const (
	PDF  Format = "pdf"
	DOCX Format = "docx"
	DOC  Format = "doc"
	PPTX Format = "pptx"
	PPT  Format = "ppt"
	XLSX Format = "xlsx"
	XLS  Format = "xls"
	RTF  Format = "rtf"
	ODT  Format = "odt"
	ODP  Format = "odp"
	ODS  Format = "ods"
	EPUB Format = "epub"
	MOBI Format = "mobi"
	PNG  Format = "png"
	JPG  Format = "jpg"
)

// Suite groups formats by the engine family that natively handles them.
type Suite string

const (
	SuiteOffice Suite = "office"
	SuitePDF    Suite = "pdf"
	SuiteRaster Suite = "raster"
)

var known = map[Format]struct {
	suite     Suite
	mediaType string
	display   string
}{
	PDF:  {SuitePDF, "application/pdf", "PDF"},
	DOCX: {SuiteOffice, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "Word document"},
	DOC:  {SuiteOffice, "application/msword", "Word 97 document"},
	PPTX: {SuiteOffice, "application/vnd.openxmlformats-officedocument.presentationml.presentation", "PowerPoint presentation"},
	PPT:  {SuiteOffice, "application/vnd.ms-powerpoint", "PowerPoint 97 presentation"},
	XLSX: {SuiteOffice, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "Excel workbook"},
	XLS:  {SuiteOffice, "application/vnd.ms-excel", "Excel 97 workbook"},
	RTF:  {SuiteOffice, "application/rtf", "Rich Text document"},
	ODT:  {SuiteOffice, "application/vnd.oasis.opendocument.text", "OpenDocument text"},
	ODP:  {SuiteOffice, "application/vnd.oasis.opendocument.presentation", "OpenDocument presentation"},
	ODS:  {SuiteOffice, "application/vnd.oasis.opendocument.spreadsheet", "OpenDocument spreadsheet"},
	EPUB: {SuiteOffice, "application/epub+zip", "EPUB e-book"},
	MOBI: {SuiteOffice, "application/x-mobipocket-ebook", "Mobipocket e-book"},
	PNG:  {SuiteRaster, "image/png", "PNG image"},
	JPG:  {SuiteRaster, "image/jpeg", "JPEG image"},
}

var titleCaser = cases.Title(language.English)

// Parse normalizes a format tag or file extension to a known Format.
func Parse(value string) (Format, error) {
	tag := strings.ToLower(strings.TrimSpace(value))
	tag = strings.TrimPrefix(tag, ".")
	if tag == "jpeg" {
		tag = "jpg"
	}
	f := Format(tag)
	if _, ok := known[f]; !ok {
		return "", services.Wrap(services.ErrInvalidInput, "", "parse format", fmt.Sprintf("unknown format tag %q", value), nil)
	}
	return f, nil
}

// Known reports whether the format tag is in the supported set.
func Known(f Format) bool {
	_, ok := known[f]
	return ok
}

// Suite returns the engine family native to the format.
func (f Format) Suite() Suite {
	if meta, ok := known[f]; ok {
		return meta.suite
	}
	return SuiteOffice
}

// MediaType returns the content type used when streaming an artifact of this
// format.
func (f Format) MediaType() string {
	if meta, ok := known[f]; ok {
		return meta.mediaType
	}
	return "application/octet-stream"
}

// DisplayName returns the human-readable label for the format.
func (f Format) DisplayName() string {
	if meta, ok := known[f]; ok {
		return meta.display
	}
	return titleCaser.String(string(f))
}

// Ext returns the file extension (without dot) for the format.
func (f Format) Ext() string {
	return string(f)
}

// All returns every known format tag in stable order.
func All() []Format {
	return []Format{PDF, DOCX, DOC, PPTX, PPT, XLSX, XLS, RTF, ODT, ODP, ODS, EPUB, MOBI, PNG, JPG}
}
