package pipeline

import "zepdf/internal/inspect"

// pdfPages is the PDF inspection function used by the pipeline. It is a
// package-level variable so tests can override it.
var pdfPages = inspect.PDFPageCount

// SetPageCountForTests overrides PDF page inspection during tests.
func SetPageCountForTests(fn func(string) (int, error)) func() {
	previous := pdfPages
	pdfPages = fn
	return func() {
		pdfPages = previous
	}
}
