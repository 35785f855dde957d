package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestTransfer(rt roundTripFunc) *TransferService {
	t := NewTransferService(5*time.Second, nil)
	t.client.Transport = rt
	return t
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

// readMultipart returns form values by field name, and for file parts the
// filename under "<field>.filename".
func readMultipart(t *testing.T, r *http.Request) map[string]string {
	t.Helper()

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("expected multipart/form-data, got %q (err=%v)", mediaType, err)
	}

	reader := multipart.NewReader(r.Body, params["boundary"])
	defer func() { _ = r.Body.Close() }()

	fields := make(map[string]string)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read multipart part: %v", err)
		}
		b, _ := io.ReadAll(part)
		fields[part.FormName()] = string(b)
		if part.FileName() != "" {
			fields[part.FormName()+".filename"] = part.FileName()
			fields[part.FormName()+".type"] = part.Header.Get("Content-Type")
		}
		_ = part.Close()
	}
	return fields
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	inputPath := filepath.Join(t.TempDir(), "input")
	if err := os.WriteFile(inputPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp input: %v", err)
	}
	return inputPath
}

func TestGotenbergService_Convert(t *testing.T) {
	t.Parallel()

	var fields map[string]string
	svc := NewGotenbergService("http://example.invalid", "", newTestTransfer(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/forms/libreoffice/convert" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		fields = readMultipart(t, r)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("%PDF-1.4\n%EOF\n"))),
			Header:     make(http.Header),
		}, nil
	}))

	pdf, err := svc.Convert(context.Background(), writeInput(t, "dummy"), "q1.docx")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("unexpected body %q", pdf)
	}
	if fields["files"] != "dummy" || fields["files.filename"] != "q1.docx" {
		t.Fatalf("unexpected files part: %#v", fields)
	}
	if _, ok := fields["pdfa"]; ok {
		t.Fatal("pdfa must not be sent when not configured")
	}
}

func TestGotenbergService_Convert_PDFA(t *testing.T) {
	t.Parallel()

	svc := NewGotenbergService("http://example.invalid", "PDF/A-2b", newTestTransfer(func(r *http.Request) (*http.Response, error) {
		if got := readMultipart(t, r)["pdfa"]; got != "PDF/A-2b" {
			t.Fatalf("expected pdfa=PDF/A-2b, got %q", got)
		}
		return textResponse(http.StatusOK, "%PDF-1.7"), nil
	}))

	if _, err := svc.Convert(context.Background(), writeInput(t, "dummy"), "a.odt"); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
}

func TestGotenbergService_Convert_Non200(t *testing.T) {
	t.Parallel()

	svc := NewGotenbergService("http://example.invalid", "", newTestTransfer(func(r *http.Request) (*http.Response, error) {
		return textResponse(http.StatusBadRequest, "LibreOffice failed to process a document"), nil
	}))

	_, err := svc.Convert(context.Background(), writeInput(t, "dummy"), "a.docx")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d", gwErr.StatusCode)
	}
	if !strings.Contains(gwErr.Body, "LibreOffice failed") {
		t.Errorf("Body = %q, want diagnostic text", gwErr.Body)
	}
}

func TestGotenbergService_Convert_NetworkError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	svc := NewGotenbergService("http://example.invalid", "", newTestTransfer(func(r *http.Request) (*http.Response, error) {
		return nil, boom
	}))

	_, err := svc.Convert(context.Background(), writeInput(t, "dummy"), "a.docx")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}
}

func TestGotenbergService_Convert_MissingInput(t *testing.T) {
	t.Parallel()

	called := false
	svc := NewGotenbergService("http://example.invalid", "", newTestTransfer(func(r *http.Request) (*http.Response, error) {
		called = true
		return textResponse(http.StatusOK, "%PDF-1.7"), nil
	}))

	_, err := svc.Convert(context.Background(), filepath.Join(t.TempDir(), "missing"), "a.docx")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped not-exist error, got %v", err)
	}
	if called {
		t.Error("gotenberg must not be called without an input file")
	}
}
