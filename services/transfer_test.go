package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type stubFetcher struct {
	bucket, key string
	content     string
	err         error
}

func (s *stubFetcher) Fetch(ctx context.Context, bucket, key string, dst *os.File) (int64, error) {
	s.bucket, s.key = bucket, key
	if s.err != nil {
		return 0, s.err
	}
	n, err := dst.WriteString(s.content)
	return int64(n), err
}

func TestTransferService_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reports/q1.docx" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("docx bytes"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "in")
	n, err := NewTransferService(5*time.Second, nil).Download(context.Background(), srv.URL+"/reports/q1.docx", dst)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "docx bytes" || n != int64(len(data)) {
		t.Fatalf("got %d bytes %q", n, data)
	}
}

func TestTransferService_Download_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewTransferService(5*time.Second, nil).Download(context.Background(), srv.URL+"/bad", filepath.Join(t.TempDir(), "in"))
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if dlErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", dlErr.StatusCode)
	}
}

func TestTransferService_Download_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewTransferService(50*time.Millisecond, nil).Download(context.Background(), srv.URL+"/slow", filepath.Join(t.TempDir(), "in"))
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
}

func TestTransferService_Download_S3(t *testing.T) {
	fetcher := &stubFetcher{content: "from s3"}
	dst := filepath.Join(t.TempDir(), "in")

	if _, err := NewTransferService(time.Second, fetcher).Download(context.Background(), "s3://docs/in/q1.docx", dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if fetcher.bucket != "docs" || fetcher.key != "in/q1.docx" {
		t.Errorf("fetched %s/%s", fetcher.bucket, fetcher.key)
	}
	if data, _ := os.ReadFile(dst); string(data) != "from s3" {
		t.Errorf("content = %q", data)
	}
}

func TestTransferService_Download_UnsupportedSources(t *testing.T) {
	transfer := NewTransferService(time.Second, nil)
	for _, src := range []string{"s3://docs/a.docx", "ftp://h/a.docx", "/local/a.docx"} {
		t.Run(src, func(t *testing.T) {
			_, err := transfer.Download(context.Background(), src, filepath.Join(t.TempDir(), "in"))
			var dlErr *DownloadError
			if !errors.As(err, &dlErr) {
				t.Fatalf("expected DownloadError, got %v", err)
			}
		})
	}
}

func TestTransferService_PostForm(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := NewTransferService(time.Second, nil).PostForm(context.Background(), srv.URL, url.Values{"a": {"1"}})
	if err != nil {
		t.Fatalf("PostForm failed: %v", err)
	}
	if !resp.OK() || string(resp.Body) != "ok" {
		t.Errorf("unexpected response %d %q", resp.StatusCode, resp.Body)
	}
	if got.Get("a") != "1" {
		t.Errorf("form = %v", got)
	}
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("x", 600)
	if got := snippet([]byte(long)); len(got) != 515 || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet length = %d", len(got))
	}
	if got := snippet([]byte("short")); got != "short" {
		t.Errorf("got %q", got)
	}
}
