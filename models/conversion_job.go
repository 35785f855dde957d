package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// DefaultFilename is used when the source URL has no usable basename.
const DefaultFilename = "document.pdf"

var ErrMissingFile = errors.New(`payload is missing the "file" key`)

// ConversionJob is the queue payload published by the intake endpoint.
type ConversionJob struct {
	File    string `json:"file"`
	BackURL string `json:"back_url,omitempty"`
}

// HasCallback reports whether the result must be delivered to BackURL.
func (j ConversionJob) HasCallback() bool {
	return j.BackURL != ""
}

// ParseConversionJob decodes one message body. It only accepts a JSON object
// with a non-blank "file" string.
func ParseConversionJob(body []byte) (ConversionJob, error) {
	var job ConversionJob
	if err := json.Unmarshal(body, &job); err != nil {
		return ConversionJob{}, fmt.Errorf("invalid payload %q: %w", truncate(body, 100), err)
	}
	job.File = strings.TrimSpace(job.File)
	job.BackURL = strings.TrimSpace(job.BackURL)
	if job.File == "" {
		return ConversionJob{}, ErrMissingFile
	}
	return job, nil
}

// SourceFilename returns the last path segment of the source URL, or
// "document" when there is none.
func SourceFilename(sourceURL string) string {
	if base, ok := basename(sourceURL); ok {
		return base
	}
	return strings.TrimSuffix(DefaultFilename, ".pdf")
}

// DeriveFilename maps the source URL to the name the PDF is delivered under:
// "http://h/reports/q1.docx" becomes "q1.pdf". fallback is returned when the
// URL has no usable basename; an empty fallback means DefaultFilename.
func DeriveFilename(sourceURL, fallback string) string {
	if fallback == "" {
		fallback = DefaultFilename
	}
	base, ok := basename(sourceURL)
	if !ok {
		return fallback
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		return fallback
	}
	return stem + ".pdf"
}

func basename(sourceURL string) (string, bool) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", false
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return "", false
	}
	base := path.Base(p)
	if base == "." || base == "/" || base == "" {
		return "", false
	}
	return base, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
