package services

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFInspector checks that the gateway produced a readable PDF.
type PDFInspector struct{}

// NewPDFInspector keeps pdfcpu from creating a config directory in the
// container's home.
func NewPDFInspector() PDFInspector {
	api.DisableConfigDir()
	return PDFInspector{}
}

// PageCount parses the file and returns its number of pages. A file pdfcpu
// cannot read, or one with no pages, is reported as an error.
func (PDFInspector) PageCount(pdfPath string) (int, error) {
	pages, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("unreadable pdf: %w", err)
	}
	if pages < 1 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return pages, nil
}
