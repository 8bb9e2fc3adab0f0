package cache

import "time"

// ResolutionEntry is a resolved image URL remembered by the resolver
type ResolutionEntry struct {
	ResolvedURL string    `json:"resolved_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProbeResultCache stores the outcome of an image existence probe
type ProbeResultCache struct {
	Exists      bool   `json:"exists"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url"`
}
