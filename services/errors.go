package services

import (
	"fmt"
	"strings"
)

// Callback protocol steps, in the order the receiver expects them.
const (
	StepLocate = "locate"
	StepUpload = "upload"
	StepFinish = "finish"
)

// ValidationError means the message body can never be processed.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// DownloadError covers transport failures and non-2xx responses while
// fetching the source document.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// GatewayError is returned when Gotenberg does not produce a usable PDF.
type GatewayError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gotenberg returned status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
	}
	return fmt.Sprintf("gotenberg request failed: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// CallbackError identifies which step of the callback protocol failed.
type CallbackError struct {
	Step       string
	StatusCode int
	Body       string
	Err        error
}

func (e *CallbackError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("callback %s: %v", e.Step, e.Err)
	default:
		return fmt.Sprintf("callback %s: status %d: %s", e.Step, e.StatusCode, strings.TrimSpace(e.Body))
	}
}

func (e *CallbackError) Unwrap() error { return e.Err }
