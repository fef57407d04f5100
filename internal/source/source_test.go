package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
)

const sampleCatalog = `{
	"title": "Sample Clip",
	"duration_seconds": 212.5,
	"streams": [
		{"itag": 18, "url": "http://cdn/18", "mimeType": "video/mp4; codecs=\"avc1.42001E, mp4a.40.2\"", "bitrate": "500000", "contentLength": 1048576, "qualityLabel": "360p"},
		{"itag": "140", "url": "http://cdn/140", "mimeType": "audio/mp4; codecs=\"mp4a.40.2\"", "bitrate": 128000}
	]
}`

func testSource(url string) *HTTPSource {
	return NewHTTPSource(config.SourceConfig{
		BaseURL:       url + "/",
		Timeout:       5 * time.Second,
		MaxAttempts:   3,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 5 * time.Millisecond,
	}, nil)
}

func TestHTTPSource_Fetch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleCatalog))
	}))
	defer srv.Close()

	rc, err := testSource(srv.URL).Fetch(context.Background(), "abc/def")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/catalog/abc%2Fdef" {
		t.Errorf("path = %q", gotPath)
	}
	if rc.SourceID != "abc/def" {
		t.Errorf("SourceID = %q, want request id", rc.SourceID)
	}
	if rc.Title != "Sample Clip" || len(rc.Streams) != 2 {
		t.Errorf("catalog = %+v", rc)
	}
	if rc.Streams[0].Bitrate.Value != 500000 || rc.Streams[1].StreamID() != "140" {
		t.Errorf("streams decoded wrong: %+v", rc.Streams)
	}
}

func TestHTTPSource_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    []int
		body      string
		wantCalls int32
		wantErr   error
		wantOK    bool
	}{
		{name: "not found is final", status: []int{404}, wantCalls: 1, wantErr: domain.ErrSourceNotFound},
		{name: "bad request is final", status: []int{400}, wantCalls: 1},
		{name: "server error retried to success", status: []int{503, 502, 200}, body: sampleCatalog, wantCalls: 3, wantOK: true},
		{name: "rate limit retried then exhausted", status: []int{429, 429, 429, 429}, wantCalls: 3},
		{name: "bad json is final", status: []int{200}, body: "{", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				code := tt.status[min(int(n), len(tt.status))-1]
				w.WriteHeader(code)
				if code == http.StatusOK {
					w.Write([]byte(tt.body))
				}
			}))
			defer srv.Close()

			_, err := testSource(srv.URL).Fetch(context.Background(), "id")
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Fetch: %v", err)
				}
			} else if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestHTTPSource_EmptyID(t *testing.T) {
	_, err := testSource("http://127.0.0.1:1").Fetch(context.Background(), " ")
	if !errors.Is(err, domain.ErrSourceNotFound) {
		t.Errorf("err = %v, want ErrSourceNotFound", err)
	}
}

func TestHTTPSource_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testSource(srv.URL).Fetch(ctx, "id"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clip1.json"), []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := FileSource{Dir: dir}
	rc, err := fs.Fetch(context.Background(), "clip1")
	if err != nil {
		t.Fatalf("Fetch by id: %v", err)
	}
	if rc.SourceID != "clip1" || len(rc.Streams) != 2 {
		t.Errorf("catalog = %+v", rc)
	}

	rc, err = FileSource{}.Fetch(context.Background(), filepath.Join(dir, "clip1.json"))
	if err != nil {
		t.Fatalf("Fetch by path: %v", err)
	}
	if rc.SourceID != "clip1" {
		t.Errorf("SourceID = %q", rc.SourceID)
	}

	if _, err := fs.Fetch(context.Background(), "missing"); !errors.Is(err, domain.ErrSourceNotFound) {
		t.Errorf("missing err = %v", err)
	}
	if _, err := fs.Fetch(context.Background(), "../etc/passwd"); !errors.Is(err, domain.ErrSourceNotFound) {
		t.Errorf("traversal err = %v", err)
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	calls := 0
	got, err := Retry(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil || got != 42 || calls != 3 {
		t.Errorf("Retry = %d, %v after %d calls", got, err, calls)
	}

	calls = 0
	permanent := errors.New("permanent")
	_, err = RetryWithCheck(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })
	if !errors.Is(err, permanent) || calls != 1 {
		t.Errorf("RetryWithCheck = %v after %d calls", err, calls)
	}
}
