package services

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/wustream/gate_api/shared"
)

// ProxyService streams media bytes from the resolved origin to the caller.
// Bodies are piped chunk by chunk, never buffered whole; the upstream fetch
// is cancelled when the client goes away.
type ProxyService struct {
	context.DefaultService

	client *http.Client
}

const PROXY_SVC = "proxy_svc"

// Origins must answer headers within this budget. The body itself may take
// as long as the transfer needs.
const originHeaderTimeout = 60 * time.Second

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9 ()_-]`)

func (svc ProxyService) Id() string {
	return PROXY_SVC
}

func (svc *ProxyService) Configure(ctx *context.Context) error {
	svc.client = &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: originHeaderTimeout,
			MaxIdleConnsPerHost:   16,
		},
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *ProxyService) Start() error {
	return nil
}

// ==================== DOWNLOAD ====================

// Download pipes the full file through as an attachment. Origin errors are
// proxied as the nearest status; a transport error mid-stream just ends the
// response, resuming is the client's problem.
func (svc *ProxyService) Download(c *fiber.Ctx, originURL, title string) error {
	req, err := http.NewRequestWithContext(c.Context(), http.MethodGet, originURL, nil)
	if err != nil {
		return shared.NewInternalError(err, "Failed to download file")
	}

	resp, err := svc.client.Do(req)
	if err != nil {
		log.WithError(err).Error("download fetch failed")
		return shared.NewInternalError(err, "Failed to download file")
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return c.Status(resp.StatusCode).SendString(fmt.Sprintf("Error fetching file: %s", resp.Status))
	}

	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.mp4"`, SanitizeFilename(title)))

	svc.stream(c, resp, shared.ActionDownload)
	return nil
}

// ==================== WATCH ====================

// Watch serves seekable playback. No Range header gets a metadata-only
// reply; callers are expected to come back immediately with a concrete
// range. Origins that ignore ranges fall back to a full 200 body.
func (svc *ProxyService) Watch(c *fiber.Ctx, originURL string) error {
	rangeHeader := c.Get(fiber.HeaderRange)

	if rangeHeader == "" {
		return svc.probe(c, originURL)
	}

	req, err := http.NewRequestWithContext(c.Context(), http.MethodGet, originURL, nil)
	if err != nil {
		return shared.NewInternalError(err, "Failed to fetch video")
	}
	req.Header.Set(fiber.HeaderRange, rangeHeader)

	resp, err := svc.client.Do(req)
	if err != nil {
		log.WithError(err).Error("watch fetch failed")
		return shared.NewInternalError(err, "Failed to fetch video")
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return c.Status(resp.StatusCode).SendString(fmt.Sprintf("Error fetching video: %s", resp.Status))
	}

	contentRange := resp.Header.Get(fiber.HeaderContentRange)

	if contentRange == "" {
		// Origin ignored the range: full 200 body.
		svc.relayHeaders(c, resp)
		c.Status(fiber.StatusOK)
		svc.stream(c, resp, shared.ActionWatch)
		return nil
	}

	svc.relayHeaders(c, resp)
	c.Set(fiber.HeaderContentRange, contentRange)
	c.Status(fiber.StatusPartialContent)
	svc.stream(c, resp, shared.ActionWatch)
	return nil
}

// probe answers a no-Range request with headers only.
func (svc *ProxyService) probe(c *fiber.Ctx, originURL string) error {
	req, err := http.NewRequestWithContext(c.Context(), http.MethodHead, originURL, nil)
	if err != nil {
		return shared.NewInternalError(err, "Failed to fetch video metadata")
	}

	resp, err := svc.client.Do(req)
	if err != nil {
		log.WithError(err).Error("metadata probe failed")
		return shared.NewInternalError(err, "Failed to fetch video metadata")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return shared.NewInternalError(nil, "Failed to fetch video metadata")
	}

	svc.relayHeaders(c, resp)

	// Headers describe the full entity; no body follows. SkipBody keeps
	// fasthttp from rewriting Content-Length to zero.
	c.Response().SkipBody = true
	c.Status(fiber.StatusOK)
	return nil
}

func (svc *ProxyService) relayHeaders(c *fiber.Ctx, resp *http.Response) {
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	}
	if cl := resp.Header.Get(fiber.HeaderContentLength); cl != "" {
		c.Set(fiber.HeaderContentLength, cl)
	}
	c.Set(fiber.HeaderAcceptRanges, "bytes")
}

// stream hands the origin body to fasthttp, which closes it on completion
// or client disconnect. Cancelling the request context tears down the
// upstream connection, so no outbound fetch outlives its caller.
func (svc *ProxyService) stream(c *fiber.Ctx, resp *http.Response, action string) {
	size := -1
	if cl := resp.Header.Get(fiber.HeaderContentLength); cl != "" {
		if n, err := strconv.Atoi(cl); err == nil {
			size = n
		}
	}

	body := &meteredBody{inner: resp.Body, action: action}
	c.Response().SetBodyStream(body, size)
}

type meteredBody struct {
	inner  io.ReadCloser
	action string
}

func (m *meteredBody) Read(p []byte) (int, error) {
	n, err := m.inner.Read(p)
	if n > 0 {
		proxiedBytesTotal.WithLabelValues(m.action).Add(float64(n))
	}
	return n, err
}

func (m *meteredBody) Close() error {
	return m.inner.Close()
}

// SanitizeFilename strips everything outside [A-Za-z0-9 ()_-].
func SanitizeFilename(title string) string {
	safe := strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(title, ""))
	if safe == "" {
		safe = "download"
	}
	return safe
}
