// Package feed downloads GTFS-realtime payloads over HTTP or from disk.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"transit-realtime/internal/logging"
	"transit-realtime/internal/realtime"
)

// MaxBodySize bounds a single feed payload after decompression.
const MaxBodySize = 25 * 1024 * 1024

var errTooLarge = fmt.Errorf("feed exceeds size limit of %d bytes", MaxBodySize)

type FetchMetrics interface {
	FetchObserve(kind realtime.Kind, d time.Duration, ok bool)
}

type Options struct {
	// BaseURL is joined with relative feed paths. Empty means paths are used
	// as given.
	BaseURL string
	// Timeout per request; 0 leaves the transport default.
	Timeout time.Duration
	Headers map[string]string
	Client  *http.Client
	Notify  realtime.Notifier
	Metrics FetchMetrics
}

// Fetcher retrieves raw feed bytes. It never fails: any error yields a nil
// payload plus a log line, and a notice for vehicle positions.
type Fetcher struct {
	base    string
	headers map[string]string
	client  *http.Client
	notify  realtime.Notifier
	metrics FetchMetrics
	log     zerolog.Logger
}

func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = newHTTPClient(opts.Timeout)
	}
	notify := opts.Notify
	if notify == nil {
		notify = realtime.Discard
	}
	return &Fetcher{
		base:    opts.BaseURL,
		headers: opts.Headers,
		client:  client,
		notify:  notify,
		metrics: opts.Metrics,
		log:     logging.Component("feed"),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 90 * time.Second
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Fetch returns the payload at path, or nil on failure. An empty resource
// yields a non-nil empty slice.
func (f *Fetcher) Fetch(ctx context.Context, kind realtime.Kind, path string) []byte {
	start := time.Now()
	b, err := f.fetch(ctx, path)
	if f.metrics != nil {
		f.metrics.FetchObserve(kind, time.Since(start), err == nil)
	}
	if err == nil {
		f.log.Debug().Str("kind", kind.String()).Int("bytes", len(b)).Msg("feed fetched")
		if b == nil {
			b = []byte{}
		}
		return b
	}

	if kind == realtime.KindVehiclePosition {
		f.log.Error().Err(err).Str("kind", kind.String()).Str("path", path).Msg("fetch failed")
		f.notify.Notify(realtime.Notice{
			Level:   realtime.LevelWarning,
			Kind:    kind,
			Message: "Vehicle positions are unavailable right now",
			At:      time.Now(),
		})
	} else {
		f.log.Debug().Err(err).Str("kind", kind.String()).Str("path", path).Msg("fetch failed")
	}
	return nil
}

// Resolve joins path with the base URL unless path is already absolute.
func (f *Fetcher) Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty feed path")
	}
	if isRemote(path) || strings.HasPrefix(path, "file://") || f.base == "" {
		return path, nil
	}
	if !isRemote(f.base) {
		if strings.HasPrefix(path, "/") {
			return path, nil
		}
		return strings.TrimRight(f.base, "/") + "/" + path, nil
	}
	base, err := url.Parse(f.base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse feed path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (f *Fetcher) fetch(ctx context.Context, path string) ([]byte, error) {
	target, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !isRemote(target) {
		return readFile(target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range f.headers {
		req.Header.Add(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: %s", target, resp.Status)
	}
	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	// The transport already decompresses when it negotiated gzip itself.
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") || strings.HasSuffix(req.URL.Path, ".gz") {
		return gunzip(body)
	}
	return body, nil
}

func readFile(path string) ([]byte, error) {
	fh, err := os.Open(strings.TrimPrefix(path, "file://"))
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	body, err := readLimited(fh)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		return gunzip(body)
	}
	return body, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, errTooLarge
	}
	return body, nil
}

func gunzip(b []byte) ([]byte, error) {
	if len(b) < 2 || b[0] != 0x1f || b[1] != 0x8b {
		return b, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gunzip feed: %w", err)
	}
	defer zr.Close()
	return readLimited(zr)
}

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
