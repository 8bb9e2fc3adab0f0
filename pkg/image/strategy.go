package image

import (
	"strconv"
	"strings"
	"time"
)

// Strategy controls how a URL is decorated to steer browser caching
type Strategy int

const (
	// StrategyNone returns the path untouched (cached URL reuse)
	StrategyNone Strategy = iota
	// StrategyHourly appends a token that changes once per rotation
	StrategyHourly
	// StrategyAlwaysFresh appends the current unix millis
	StrategyAlwaysFresh
)

// Query parameters used as cache-busting markers
const (
	ParamBust      = "bust"
	ParamStable    = "s"
	ParamHourly    = "h"
	ParamTimestamp = "t"
)

var markerParams = []string{ParamBust, ParamStable, ParamHourly, ParamTimestamp}

// String returns the name used in API responses and metrics
func (s Strategy) String() string {
	switch s {
	case StrategyHourly:
		return "hourly"
	case StrategyAlwaysFresh:
		return "always-fresh"
	default:
		return "none"
	}
}

// Apply decorates path. param names the hourly token; AlwaysFresh always uses bust.
func (s Strategy) Apply(path, param string, now time.Time, rotation time.Duration) string {
	switch s {
	case StrategyHourly:
		return AppendParam(path, param, HourToken(now, rotation))
	case StrategyAlwaysFresh:
		return AppendParam(path, ParamBust, FreshToken(now))
	default:
		return path
	}
}

// HourToken is floor(now / rotation) in unix milliseconds, one hour if rotation is unset
func HourToken(now time.Time, rotation time.Duration) string {
	if rotation <= 0 {
		rotation = time.Hour
	}
	return strconv.FormatInt(now.UnixMilli()/rotation.Milliseconds(), 10)
}

// FreshToken is the unix millisecond timestamp
func FreshToken(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// AppendParam adds key=value to the query of rawURL, keeping any fragment last.
// It is a no-op when the key is already present.
func AppendParam(rawURL, key, value string) string {
	if HasParam(rawURL, key) {
		return rawURL
	}

	base, fragment := rawURL, ""
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		base, fragment = rawURL[:i], rawURL[i:]
	}

	sep := "?"
	if strings.ContainsRune(base, '?') {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return base + sep + key + "=" + value + fragment
}

// HasParam reports whether the query of rawURL carries key
func HasParam(rawURL, key string) bool {
	q := rawQuery(rawURL)
	if q == "" {
		return false
	}
	for _, part := range strings.Split(q, "&") {
		name, _, _ := strings.Cut(part, "=")
		if name == key {
			return true
		}
	}
	return false
}

// HasCacheMarker reports whether rawURL already carries any cache-busting token
func HasCacheMarker(rawURL string) bool {
	for _, p := range markerParams {
		if HasParam(rawURL, p) {
			return true
		}
	}
	return false
}

// StripQuery drops the query string and fragment
func StripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func stripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func rawQuery(rawURL string) string {
	if j := strings.IndexByte(rawURL, '#'); j >= 0 {
		rawURL = rawURL[:j]
	}
	_, q, _ := strings.Cut(rawURL, "?")
	return q
}
