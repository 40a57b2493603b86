package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dzoniops/condo-booking/utils"
)

const (
	DefaultFeedTimeout = 15 * time.Second
	// DefaultMaxFeedBytes bounds a single feed download.
	DefaultMaxFeedBytes = 5 << 20
)

type FeedResponse struct {
	Body []byte
	// NotModified is true when the server answered 304 and Body is the
	// cached copy of the last full download.
	NotModified bool
}

// cacheEntry holds the validators of the last full download of a URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FeedClient downloads iCalendar feeds with conditional requests. The last
// body of every URL is kept on disk so a 304 can be answered locally. A
// failed request is always reported; the cached body is never served in its
// place.
type FeedClient struct {
	http     *http.Client
	cacheDir string
	maxBytes int64
	logger   log.Logger
	metrics  *utils.Metrics
}

type FeedOption func(*FeedClient)

func WithHTTPClient(c *http.Client) FeedOption {
	return func(f *FeedClient) { f.http = c }
}

func WithMaxBytes(n int64) FeedOption {
	return func(f *FeedClient) { f.maxBytes = n }
}

func WithMetrics(m *utils.Metrics) FeedOption {
	return func(f *FeedClient) { f.metrics = m }
}

// NewFeedClient returns a client with the given request timeout. An empty
// cacheDir disables conditional requests.
func NewFeedClient(timeout time.Duration, cacheDir string, logger log.Logger, opts ...FeedOption) *FeedClient {
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	f := &FeedClient{
		http:     &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
		maxBytes: DefaultMaxFeedBytes,
		logger:   log.With(logger, "component", "feed-client"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *FeedClient) Fetch(ctx context.Context, feedURL string) (res FeedResponse, err error) {
	ctx, span := otel.Tracer("calendar-feed").Start(ctx, "FeedClient.Fetch")
	span.SetAttributes(attribute.String("feed.host", redactURL(feedURL)))
	started := time.Now()
	status := "error"
	defer func() {
		if f.metrics != nil {
			f.metrics.FeedFetchDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if feedURL == "" {
		return res, errors.New("feed URL is empty")
	}

	var meta cacheEntry
	var cachePath string
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL(feedURL)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			level.Warn(f.logger).Log("msg", "feed cache unavailable", "err", err)
			cachePath = ""
		} else {
			meta, _ = loadCacheMeta(cachePath)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return res, err
	}
	req.Header.Set("Accept", "text/calendar")
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			return res, fmt.Errorf("read body: %w", err)
		}
		if int64(len(body)) > f.maxBytes {
			return res, fmt.Errorf("feed larger than %d bytes", f.maxBytes)
		}
		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          feedURL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				level.Warn(f.logger).Log("msg", "feed cache save failed", "url", redactURL(feedURL), "err", err)
			}
		}
		level.Debug(f.logger).Log("msg", "feed fetched", "url", redactURL(feedURL), "bytes", len(body))
		return FeedResponse{Body: body}, nil

	case http.StatusNotModified:
		var body []byte
		if cachePath != "" {
			body, _ = os.ReadFile(filepath.Join(cachePath, "body.ics"))
		}
		if len(body) == 0 {
			return res, errors.New("received 304 Not Modified but no cached body available")
		}
		level.Debug(f.logger).Log("msg", "feed not modified", "url", redactURL(feedURL))
		return FeedResponse{Body: body, NotModified: true}, nil

	default:
		return res, fmt.Errorf("unexpected status %s", resp.Status)
	}
}

func (f *FeedClient) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only; feed URLs carry private tokens.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
