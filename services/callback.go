package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CallbackSession threads the receiver-allocated path through the three
// callback calls of a single job.
type CallbackSession struct {
	BackURL    string
	Filename   string
	Size       int64
	TargetPath string
}

// CallbackService speaks the receiver's locate/upload/finish protocol. The
// receiver keeps state between the calls, so they must run in order.
type CallbackService struct {
	transfer *TransferService
	logger   *zap.Logger
}

func NewCallbackService(transfer *TransferService, logger *zap.Logger) *CallbackService {
	return &CallbackService{transfer: transfer, logger: logger}
}

// Deliver runs locate, upload and finish against backURL for the PDF at
// pdfPath. Any failing step aborts the sequence with a *CallbackError.
func (c *CallbackService) Deliver(ctx context.Context, backURL, pdfPath, filename string) (CallbackSession, error) {
	info, err := os.Stat(pdfPath)
	if err != nil {
		return CallbackSession{}, &CallbackError{Step: StepLocate, Err: fmt.Errorf("failed to stat pdf: %w", err)}
	}

	session := CallbackSession{BackURL: backURL, Filename: filename, Size: info.Size()}

	log := c.logger.With(zap.String("back_url", backURL))
	log.Info("requesting upload location", zap.Int64("file_size", session.Size))
	if session.TargetPath, err = c.Locate(ctx, backURL, session.Size); err != nil {
		return session, err
	}

	log.Info("uploading pdf", zap.String("target_path", session.TargetPath), zap.String("filename", filename))
	if err := c.Upload(ctx, session, pdfPath); err != nil {
		return session, err
	}

	log.Info("finishing command", zap.String("target_path", session.TargetPath))
	if err := c.Finish(ctx, session); err != nil {
		return session, err
	}
	return session, nil
}

type locateResponse struct {
	Name string `json:"name"`
}

// Locate asks the receiver where the PDF should be written and returns the
// absolute path it allocated.
func (c *CallbackService) Locate(ctx context.Context, backURL string, size int64) (string, error) {
	form := url.Values{
		"upload":    {"where"},
		"file_id":   {"pdf"},
		"file_size": {strconv.FormatInt(size, 10)},
	}
	resp, err := c.transfer.PostForm(ctx, backURL, form)
	if err != nil {
		return "", &CallbackError{Step: StepLocate, Err: err}
	}
	if !resp.OK() {
		return "", &CallbackError{Step: StepLocate, StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}

	var located locateResponse
	if err := json.Unmarshal(resp.Body, &located); err != nil {
		return "", &CallbackError{
			Step:       StepLocate,
			StatusCode: resp.StatusCode,
			Body:       snippet(resp.Body),
			Err:        fmt.Errorf("failed to get upload location: %w", err),
		}
	}
	if located.Name == "" {
		return "", &CallbackError{
			Step:       StepLocate,
			StatusCode: resp.StatusCode,
			Body:       snippet(resp.Body),
			Err:        errors.New("failed to get upload location: response has no name"),
		}
	}
	return located.Name, nil
}

// Upload sends the PDF as a single, final part to the located path.
func (c *CallbackService) Upload(ctx context.Context, session CallbackSession, pdfPath string) error {
	file, err := os.Open(pdfPath)
	if err != nil {
		return &CallbackError{Step: StepUpload, Err: fmt.Errorf("failed to open pdf: %w", err)}
	}
	defer file.Close()

	resp, err := c.transfer.PostMultipart(ctx, session.BackURL, func(w *multipart.Writer) error {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", multipartFileDisposition("file", session.Filename))
		h.Set("Content-Type", "application/pdf")
		part, err := w.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return err
		}
		if err := w.WriteField("file_name", session.TargetPath); err != nil {
			return err
		}
		if err := w.WriteField("last_part", "y"); err != nil {
			return err
		}
		return w.WriteField("file_size", strconv.FormatInt(session.Size, 10))
	})
	if err != nil {
		return &CallbackError{Step: StepUpload, Err: err}
	}
	if !resp.OK() {
		return &CallbackError{Step: StepUpload, StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}
	return nil
}

// Finish tells the receiver the transfer is complete. The nested result field
// uses PHP bracket notation because the receiver decodes it that way.
func (c *CallbackService) Finish(ctx context.Context, session CallbackSession) error {
	form := url.Values{
		"finish":             {"y"},
		"result[files][pdf]": {session.TargetPath},
	}
	resp, err := c.transfer.PostForm(ctx, session.BackURL, form)
	if err != nil {
		return &CallbackError{Step: StepFinish, Err: err}
	}
	if !resp.OK() {
		return &CallbackError{Step: StepFinish, StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
	}
	return nil
}

func multipartFileDisposition(field, filename string) string {
	return fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(filename))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
