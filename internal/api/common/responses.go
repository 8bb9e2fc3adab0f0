package common

import (
	"github.com/thrive-mt/imageapi/pkg/image"
)

// ResolveResponse is the outcome of a resolution
type ResolveResponse struct {
	URL      string `json:"url"`
	Category string `json:"category"`
	Strategy string `json:"strategy"`
	CacheHit bool   `json:"cache_hit"`
	Fallback bool   `json:"fallback"`
}

// NewResolveResponse converts a resolver result
func NewResolveResponse(res image.Result) ResolveResponse {
	return ResolveResponse{
		URL:      res.URL,
		Category: res.Kind.String(),
		Strategy: res.Strategy.String(),
		CacheHit: res.CacheHit,
		Fallback: res.Fallback,
	}
}

// ImageErrorResponse tells the client what to load next
type ImageErrorResponse struct {
	URL     string `json:"url"`
	Outcome string `json:"outcome"`
}

// FallbackResponse carries a single fallback URL
type FallbackResponse struct {
	URL string `json:"url"`
}

// FallbackRuleResponse is one row of the fallback table
type FallbackRuleResponse struct {
	Category string   `json:"category"`
	Match    []string `json:"match"`
	URL      string   `json:"url"`
	Token    string   `json:"token"`
}

// FallbackTableResponse lists the active fallback table
type FallbackTableResponse struct {
	Rules        []FallbackRuleResponse `json:"rules"`
	Default      string                 `json:"default"`
	DefaultToken string                 `json:"default_token"`
}

// NewFallbackTableResponse converts a fallback table
func NewFallbackTableResponse(t *image.FallbackTable) FallbackTableResponse {
	rules := t.Rules()
	out := FallbackTableResponse{Rules: make([]FallbackRuleResponse, 0, len(rules))}
	for _, r := range rules {
		out.Rules = append(out.Rules, FallbackRuleResponse{
			Category: r.Category.String(),
			Match:    r.Match,
			URL:      t.Absolute(r.URL),
			Token:    r.Token.String(),
		})
	}
	def, mode := t.Default()
	out.Default = t.Absolute(def)
	out.DefaultToken = mode.String()
	return out
}

// CacheStatsResponse reports resolver cache and failure record sizes
type CacheStatsResponse struct {
	Backend string      `json:"backend"`
	Stats   image.Stats `json:"stats"`
}

// UserInfoResponse for current user info
type UserInfoResponse struct {
	Name string `json:"name"`
	Role string `json:"role"`
}
