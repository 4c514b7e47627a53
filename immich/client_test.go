package immich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	seen := make(chan [3]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- [3]string{r.Header.Get("x-api-key"), r.URL.Path, r.URL.RawQuery}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("FAKEIMAGEDATA"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", HTTPClient: srv.Client()})
	a, err := c.Fetch(context.Background(), "abc-123")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if a.ID != "abc-123" || a.MIMEType != "image/jpeg" || string(a.Data) != "FAKEIMAGEDATA" {
		t.Errorf("asset = %+v", a)
	}
	got := <-seen
	gotKey, gotPath, gotQuery := got[0], got[1], got[2]
	if gotKey != "secret" {
		t.Errorf("x-api-key = %q, want secret", gotKey)
	}
	if gotPath != "/api/assets/abc-123/thumbnail" || gotQuery != "size=preview" {
		t.Errorf("request = %s?%s", gotPath, gotQuery)
	}
}

func TestFetch_OriginalSize(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("PNG"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Size: SizeOriginal, HTTPClient: srv.Client()})
	if _, err := c.Fetch(context.Background(), "x1"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath := <-paths; gotPath != "/api/assets/x1/original" {
		t.Errorf("path = %s, want /api/assets/x1/original", gotPath)
	}
}

func TestFetch_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name:    "404",
			handler: func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			check:   func(err error) bool { return errors.Is(err, ErrAssetNotFound) },
		},
		{
			name: "non-image content type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
			check: func(err error) bool { return errors.Is(err, ErrNotImage) },
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			},
			check: func(err error) bool {
				var se *StatusError
				return errors.As(err, &se) && se.Code == http.StatusBadGateway
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "image/jpeg")
			},
			check: func(err error) bool { return err != nil },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
			a, err := c.Fetch(context.Background(), "id")
			if a != nil {
				t.Errorf("asset = %+v, want nil", a)
			}
			if !tc.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFetch_MaxBytesEnforcement(t *testing.T) {
	t.Parallel()

	const maxBytes = 10
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte(strings.Repeat("X", 100)))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client(), MaxBytes: maxBytes})
	a, err := c.Fetch(context.Background(), "big")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if int64(len(a.Data)) > maxBytes {
		t.Errorf("Data len = %d, want <= %d", len(a.Data), maxBytes)
	}
}

func TestFetch_MIMEParameterStripping(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=utf-8")
		_, _ = w.Write([]byte("FAKEIMAGEDATA"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	a, err := c.Fetch(context.Background(), "p")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if a.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q after stripping, want image/jpeg", a.MIMEType)
	}
}

func TestFetch_StealthClientFallback(t *testing.T) {
	t.Parallel()

	// srv is the real server that the fallback HTTPClient will reach.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write([]byte("GIF89a_FAKE_IMAGE_DATA"))
	}))
	defer srv.Close()

	// stealthSrv always returns 403 to simulate a failed stealth attempt.
	stealthSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer stealthSrv.Close()

	stealthClient := stealthSrv.Client()
	stealthClient.Transport = redirectTransport(stealthSrv.URL)
	regularClient := srv.Client()
	regularClient.Transport = redirectTransport(srv.URL)

	c := NewClient(Config{
		BaseURL:       "http://immich.example",
		StealthClient: stealthClient,
		HTTPClient:    regularClient,
	})

	// The base URL itself doesn't matter; transports redirect to their respective test servers.
	a, err := c.Fetch(context.Background(), "g")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if a.MIMEType != "image/gif" {
		t.Errorf("MIMEType = %q, want image/gif", a.MIMEType)
	}
}

// redirectTransport returns a RoundTripper that rewrites all requests to target.
type redirectTransport string

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = "http"
	req2.URL.Host = strings.TrimPrefix(string(rt), "http://")
	return http.DefaultTransport.RoundTrip(req2)
}

func TestAssetInfo(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/assets/a1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a1","originalFileName":"IMG_0001.HEIC","fileCreatedAt":"2024-05-02T10:11:12Z"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	info, err := c.AssetInfo(context.Background(), "a1")
	if err != nil {
		t.Fatalf("AssetInfo: %v", err)
	}
	want := time.Date(2024, 5, 2, 10, 11, 12, 0, time.UTC)
	if info.OriginalFileName != "IMG_0001.HEIC" || !info.FileCreatedAt.Equal(want) {
		t.Errorf("info = %+v", info)
	}

	if _, err := c.AssetInfo(context.Background(), "missing"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("missing asset err = %v, want ErrAssetNotFound", err)
	}
}

func TestThumbnailURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		id       string
		want     string
	}{
		{name: "default template", id: "abc", want: "/image-proxy.php?id=abc&type=thumbnail"},
		{name: "escapes id", id: "a b&c", want: "/image-proxy.php?id=a+b%26c&type=thumbnail"},
		{name: "custom template", template: "https://cdn.example/t/%s.jpg", id: "x", want: "https://cdn.example/t/x.jpg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewClient(Config{BaseURL: "http://immich", ThumbnailTemplate: tc.template})
			if got := c.ThumbnailURL(tc.id); got != tc.want {
				t.Errorf("ThumbnailURL(%q) = %q, want %q", tc.id, got, tc.want)
			}
		})
	}
}
