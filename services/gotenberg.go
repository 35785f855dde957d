package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
)

const convertPath = "/forms/libreoffice/convert"

type GotenbergService struct {
	baseURL  string
	pdfa     string
	transfer *TransferService
}

// NewGotenbergService targets baseURL. pdfa, when non-empty, is sent as the
// "pdfa" form field (for example "PDF/A-2b").
func NewGotenbergService(baseURL, pdfa string, transfer *TransferService) *GotenbergService {
	return &GotenbergService{
		baseURL:  baseURL,
		pdfa:     pdfa,
		transfer: transfer,
	}
}

// Convert uploads the file at inputPath under originalFilename and returns the
// PDF bytes. Gotenberg picks the LibreOffice filter from the filename's
// extension. There is no retry here.
func (g *GotenbergService) Convert(ctx context.Context, inputPath, originalFilename string) ([]byte, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, &GatewayError{Err: fmt.Errorf("failed to open input file: %w", err)}
	}
	defer file.Close()

	resp, err := g.transfer.PostMultipart(ctx, g.baseURL+convertPath, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("files", originalFilename)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return fmt.Errorf("failed to copy file: %w", err)
		}
		if g.pdfa != "" {
			return w.WriteField("pdfa", g.pdfa)
		}
		return nil
	})
	if err != nil {
		return nil, &GatewayError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}
	if len(resp.Body) == 0 {
		return nil, &GatewayError{Err: fmt.Errorf("empty response body")}
	}
	return resp.Body, nil
}
