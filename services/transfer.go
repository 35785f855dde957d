package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ObjectFetcher downloads s3://bucket/key sources. *S3Service implements it.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string, dst *os.File) (int64, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TransferService performs every outbound call of the worker. All requests
// share one client whose timeout bounds the whole exchange, body included.
type TransferService struct {
	client  *http.Client
	objects ObjectFetcher
}

func NewTransferService(timeout time.Duration, objects ObjectFetcher) *TransferService {
	return &TransferService{
		client:  &http.Client{Timeout: timeout},
		objects: objects,
	}
}

// Download streams sourceURL into the file at dstPath, replacing its
// contents, and returns the number of bytes written.
func (t *TransferService) Download(ctx context.Context, sourceURL, dstPath string) (int64, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return 0, &DownloadError{URL: sourceURL, Err: err}
	}

	out, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer out.Close()

	switch u.Scheme {
	case "http", "https":
		return t.downloadHTTP(ctx, sourceURL, out)
	case "s3":
		if t.objects == nil {
			return 0, &DownloadError{URL: sourceURL, Err: errors.New("s3 sources are not configured")}
		}
		n, err := t.objects.Fetch(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), out)
		if err != nil {
			return 0, &DownloadError{URL: sourceURL, Err: err}
		}
		return n, nil
	default:
		return 0, &DownloadError{URL: sourceURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

func (t *TransferService) downloadHTTP(ctx context.Context, sourceURL string, out *os.File) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, &DownloadError{URL: sourceURL, Err: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, &DownloadError{URL: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return 0, &DownloadError{URL: sourceURL, StatusCode: resp.StatusCode}
	}

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return n, &DownloadError{URL: sourceURL, Err: fmt.Errorf("failed to save body: %w", err)}
	}
	return n, nil
}

// PostForm sends an application/x-www-form-urlencoded POST.
func (t *TransferService) PostForm(ctx context.Context, target string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(req)
}

// PostMultipart builds a multipart/form-data body with build and POSTs it.
// The body is assembled in memory so the request carries a Content-Length,
// which means a job holds its whole document in memory while it is sent.
func (t *TransferService) PostMultipart(ctx context.Context, target string, build func(*multipart.Writer) error) (*Response, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := build(writer); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return t.do(req)
}

func (t *TransferService) do(req *http.Request) (*Response, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// snippet trims a response body for error messages.
func snippet(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
