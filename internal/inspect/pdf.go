// Package inspect reads structural metadata from produced artifacts. PDF
// inspection goes through MuPDF via go-fitz.
package inspect

import (
	"github.com/gen2brain/go-fitz"

	"zepdf/internal/services"
)

// PDFPageCount opens the PDF at path and returns its page count.
func PDFPageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, services.Wrap(services.ErrInvalidInput, "", "inspect pdf", "open document", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}
