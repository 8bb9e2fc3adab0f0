package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/thrive-mt/imageapi/pkg/cache"
	"github.com/thrive-mt/imageapi/pkg/logging"
)

// ErrNotProbeable is returned for references that cannot be fetched over HTTP
var ErrNotProbeable = errors.New("image reference is not probeable")

// ImageMetadata contains information about a probed image
type ImageMetadata struct {
	URL         string `json:"url"`
	Exists      bool   `json:"exists"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Cached      bool   `json:"cached"`
}

// BreakerSettings configures the circuit breaker guarding probes
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerSettings mirrors the service defaults
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// ImageExistenceChecker checks whether image URLs are reachable
type ImageExistenceChecker struct {
	client    *http.Client
	assetBase string
	cache     cache.Cache
	cacheTTL  time.Duration
	breaker   *gobreaker.CircuitBreaker
	group     singleflight.Group
	// timeout bounds a shared probe, which outlives any single caller
	timeout time.Duration
}

// NewImageExistenceChecker creates a checker. Relative paths are joined to
// assetBase; results are cached in c for cacheTTL when c is non-nil.
func NewImageExistenceChecker(client *http.Client, assetBase string, c cache.Cache, cacheTTL time.Duration, bs BreakerSettings) *ImageExistenceChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	timeout := client.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ImageExistenceChecker{
		client:    client,
		timeout:   timeout,
		assetBase: strings.TrimRight(assetBase, "/"),
		cache:     c,
		cacheTTL:  cacheTTL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "image-probe",
			MaxRequests: bs.MaxRequests,
			Interval:    bs.Interval,
			Timeout:     bs.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < bs.MinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= bs.FailureThreshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logging.Logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// CheckImageExists probes imageURL. A missing image is not an error:
// Exists is false. Errors mean the probe itself could not run.
func (iec *ImageExistenceChecker) CheckImageExists(ctx context.Context, imageURL string) (*ImageMetadata, error) {
	target, err := iec.absolute(imageURL)
	if err != nil {
		return nil, err
	}

	cacheKey := "probe:" + target
	if iec.cache != nil {
		var cached cache.ProbeResultCache
		if err := iec.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &ImageMetadata{
				URL:         cached.URL,
				Exists:      cached.Exists,
				StatusCode:  cached.StatusCode,
				ContentType: cached.ContentType,
				Cached:      true,
			}, nil
		}
	}

	ch := iec.group.DoChan(target, func() (interface{}, error) {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), iec.timeout)
		defer cancel()
		return iec.breaker.Execute(func() (interface{}, error) {
			return iec.probe(probeCtx, target)
		})
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("probe %s: %w", target, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		logging.Logger.Debug("Image probe failed",
			zap.String("image", target),
			zap.Error(res.Err))
		return nil, fmt.Errorf("probe %s: %w", target, res.Err)
	}
	meta := *res.Val.(*ImageMetadata)

	if iec.cache != nil && iec.cacheTTL > 0 {
		if err := iec.cache.Set(ctx, cacheKey, cache.ProbeResultCache{
			Exists:      meta.Exists,
			StatusCode:  meta.StatusCode,
			ContentType: meta.ContentType,
			URL:         meta.URL,
		}, iec.cacheTTL); err != nil {
			logging.Logger.Warn("Failed to cache probe result",
				zap.String("image", target),
				zap.Error(err))
		}
	}

	return &meta, nil
}

// probe issues HEAD, retrying with a one-byte ranged GET when HEAD is refused.
// 5xx answers count as breaker failures; 4xx mean the image does not exist.
func (iec *ImageExistenceChecker) probe(ctx context.Context, target string) (*ImageMetadata, error) {
	resp, err := iec.do(ctx, http.MethodHead, target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp, err = iec.do(ctx, http.MethodGet, target)
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("origin answered %d", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	ok2xx := resp.StatusCode >= 200 && resp.StatusCode < 300
	isImage := ct == "" || strings.HasPrefix(strings.ToLower(ct), "image/")
	return &ImageMetadata{
		URL:         target,
		Exists:      ok2xx && isImage,
		StatusCode:  resp.StatusCode,
		ContentType: ct,
	}, nil
}

type probeResponse struct {
	StatusCode int
	Header     http.Header
}

func (iec *ImageExistenceChecker) do(ctx context.Context, method, target string) (*probeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	req.Header.Set("Accept", "image/*")

	resp, err := iec.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return &probeResponse{StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

// absolute turns an image reference into an http(s) URL without cache tokens
func (iec *ImageExistenceChecker) absolute(imageURL string) (string, error) {
	raw := strings.TrimSpace(imageURL)
	if !IsUsable(raw) {
		return "", ErrNotProbeable
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		if iec.assetBase == "" {
			return "", fmt.Errorf("%w: relative path %q without asset base URL", ErrNotProbeable, raw)
		}
		raw = iec.assetBase + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotProbeable, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrNotProbeable, u.Scheme)
	}
	return raw, nil
}

// FallbackCheck is the probe outcome for one fallback image
type FallbackCheck struct {
	Category string `json:"category"`
	URL      string `json:"url"`
	Exists   bool   `json:"exists"`
	Error    string `json:"error,omitempty"`
}

// VerifyFallbacks probes every fallback in the table and logs missing ones
func (iec *ImageExistenceChecker) VerifyFallbacks(ctx context.Context, t *FallbackTable) []FallbackCheck {
	type item struct{ category, url string }
	items := make([]item, 0, len(t.rules)+1)
	for _, r := range t.Rules() {
		items = append(items, item{r.Category.String(), t.Absolute(r.URL)})
	}
	def, _ := t.Default()
	items = append(items, item{"default", t.Absolute(def)})

	out := make([]FallbackCheck, 0, len(items))
	for _, it := range items {
		check := FallbackCheck{Category: it.category, URL: it.url}
		meta, err := iec.CheckImageExists(ctx, it.url)
		switch {
		case err != nil:
			check.Error = err.Error()
			logging.Logger.Warn("Fallback image could not be probed",
				zap.String("category", it.category),
				zap.String("url", it.url),
				zap.Error(err))
		case !meta.Exists:
			logging.Logger.Warn("Fallback image is missing",
				zap.String("category", it.category),
				zap.String("url", it.url),
				zap.Int("status", meta.StatusCode))
		default:
			check.Exists = true
		}
		out = append(out, check)
	}
	return out
}
