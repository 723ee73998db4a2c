package services

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProxy() *ProxyService {
	return &ProxyService{client: &http.Client{}}
}

func testPayload() []byte {
	return bytes.Repeat([]byte("0123456789"), 100)
}

// newRangeOrigin serves a seekable 1000 byte file with full Range and HEAD
// support.
func newRangeOrigin(t *testing.T) *httptest.Server {
	t.Helper()

	payload := testPayload()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "video.mp4", time.Time{}, bytes.NewReader(payload))
	}))
	t.Cleanup(origin.Close)
	return origin
}

func newWatchApp(svc *ProxyService, originURL string) *fiber.App {
	app := fiber.New()
	app.Get("/watch", func(c *fiber.Ctx) error {
		return svc.Watch(c, originURL)
	})
	return app
}

func TestProxyService_WatchWithoutRangeReturnsMetadataOnly(t *testing.T) {
	origin := newRangeOrigin(t)
	app := newWatchApp(newTestProxy(), origin.URL)

	resp, err := app.Test(newRequest(t, fiber.MethodGet, "/watch", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "1000", resp.Header.Get(fiber.HeaderContentLength))
	assert.Equal(t, "bytes", resp.Header.Get(fiber.HeaderAcceptRanges))
}

func TestProxyService_WatchRelaysPartialContent(t *testing.T) {
	origin := newRangeOrigin(t)
	app := newWatchApp(newTestProxy(), origin.URL)

	req := newRequest(t, fiber.MethodGet, "/watch", nil)
	req.Header.Set(fiber.HeaderRange, "bytes=100-199")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 100-199/1000", resp.Header.Get(fiber.HeaderContentRange))
	assert.Equal(t, "bytes", resp.Header.Get(fiber.HeaderAcceptRanges))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testPayload()[100:200], body)
}

// An origin that ignores Range falls back to a full 200 body.
func TestProxyService_WatchFallsBackToFullBody(t *testing.T) {
	payload := testPayload()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(payload)
	}))
	t.Cleanup(origin.Close)

	app := newWatchApp(newTestProxy(), origin.URL)

	req := newRequest(t, fiber.MethodGet, "/watch", nil)
	req.Header.Set(fiber.HeaderRange, "bytes=100-199")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(fiber.HeaderContentRange))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestProxyService_WatchProxiesOriginError(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(origin.Close)

	app := newWatchApp(newTestProxy(), origin.URL)

	req := newRequest(t, fiber.MethodGet, "/watch", nil)
	req.Header.Set(fiber.HeaderRange, "bytes=0-99")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestProxyService_DownloadSetsAttachment(t *testing.T) {
	origin := newRangeOrigin(t)
	svc := newTestProxy()

	app := fiber.New()
	app.Get("/download", func(c *fiber.Ctx) error {
		return svc.Download(c, origin.URL, "My Movie: Director's Cut!")
	})

	resp, err := app.Test(newRequest(t, fiber.MethodGet, "/download", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="My Movie Directors Cut.mp4"`,
		resp.Header.Get(fiber.HeaderContentDisposition))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testPayload(), body)
}

func TestProxyService_DownloadProxiesOriginError(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(origin.Close)

	svc := newTestProxy()
	app := fiber.New()
	app.Get("/download", func(c *fiber.Ctx) error {
		return svc.Download(c, origin.URL, "file")
	})

	resp, err := app.Test(newRequest(t, fiber.MethodGet, "/download", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain Title", "Plain Title"},
		{"Movie: The Sequel!", "Movie The Sequel"},
		{"file (2024)_final-v2", "file (2024)_final-v2"},
		{"../../etc/passwd", "etcpasswd"},
		{"日本語タイトル", "download"},
		{"", "download"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), "input %q", tc.in)
	}
}
