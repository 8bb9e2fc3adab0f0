package image

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TokenMode selects the freshness token appended to a fallback URL
type TokenMode int

const (
	TokenTimestamp TokenMode = iota
	TokenHourly
	TokenNone
)

// String returns the config name of the mode
func (m TokenMode) String() string {
	switch m {
	case TokenHourly:
		return "hourly"
	case TokenNone:
		return "none"
	default:
		return "timestamp"
	}
}

// ParseTokenMode converts a config name; empty means timestamp
func ParseTokenMode(s string) (TokenMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "timestamp":
		return TokenTimestamp, nil
	case "hourly":
		return TokenHourly, nil
	case "none":
		return TokenNone, nil
	}
	return TokenTimestamp, fmt.Errorf("unknown token mode %q", s)
}

// DefaultFallbackURL is the generic catch-all image
const DefaultFallbackURL = "https://images.unsplash.com/photo-1506126613408-eca07ce68773?auto=format&fit=crop&w=800&q=80"

// CancerSupportFallbackPath is the bundled asset used for cancer-support images
const CancerSupportFallbackPath = "/images/programs/cancer-support-fallback.jpg"

// FallbackRule maps context keywords to a category fallback image
type FallbackRule struct {
	Category Category  `json:"category"`
	Match    []string  `json:"match"`
	URL      string    `json:"url"`
	Token    TokenMode `json:"token"`
}

// DefaultFallbackRules returns the built-in table in match order. First match wins.
func DefaultFallbackRules() []FallbackRule {
	return []FallbackRule{
		{Category: CategoryMilitary, Match: []string{"military", "dod"},
			URL: "https://images.unsplash.com/photo-1580752300992-559f8e0734e0?auto=format&fit=crop&w=800&q=80"},
		{Category: CategoryGoldenYears, Match: []string{"golden", "senior"},
			URL: "https://images.unsplash.com/photo-1447005497901-b3e9ee359928?auto=format&fit=crop&w=800&q=80"},
		{Category: CategoryAdolescent, Match: []string{"adolescent", "teen"},
			URL: "https://images.unsplash.com/photo-1529390079861-591de354faf5?auto=format&fit=crop&w=800&q=80"},
		{Category: CategoryFirstResponders, Match: []string{"responder", "emergency"},
			URL: "https://images.unsplash.com/photo-1587745416684-47953f16f02f?auto=format&fit=crop&w=800&q=80"},
		{Category: CategoryLawEnforcement, Match: []string{"law", "enforcement"},
			URL: "https://images.unsplash.com/photo-1453873531674-2151bcd01707?auto=format&fit=crop&w=800&q=80"},
		{Category: CategorySmallBusiness, Match: []string{"small-business"},
			URL: "https://images.unsplash.com/photo-1556761175-b413da4baf72?auto=format&fit=crop&w=800&q=80"},
		{Category: CategoryCollege, Match: []string{"college"},
			URL: "https://images.unsplash.com/photo-1523050854058-8df90110c9f1?auto=format&fit=crop&w=800&q=80"},
		{Category: CategoryChronicIllness, Match: []string{"chronic", "illness"},
			URL: "https://images.unsplash.com/photo-1505751172876-fa1923c5c528?auto=format&fit=crop&w=800&q=80"},
		{Category: CategoryCancerSupport, Match: []string{"cancer"},
			URL: CancerSupportFallbackPath},
	}
}

// FallbackTable selects category-appropriate default images
type FallbackTable struct {
	rules        []FallbackRule
	defaultURL   string
	defaultToken TokenMode
	assetBase    string
}

// NewFallbackTable builds a table. Empty rules keep the built-in rules, an empty
// default keeps DefaultFallbackURL with an hourly token. Rooted relative URLs
// are prefixed with assetBase when it is set.
func NewFallbackTable(rules []FallbackRule, defaultURL string, defaultToken TokenMode, assetBase string) *FallbackTable {
	if len(rules) == 0 {
		rules = DefaultFallbackRules()
	}
	if defaultURL == "" {
		defaultURL = DefaultFallbackURL
		defaultToken = TokenHourly
	}

	t := &FallbackTable{
		rules:        make([]FallbackRule, 0, len(rules)),
		defaultURL:   defaultURL,
		defaultToken: defaultToken,
		assetBase:    strings.TrimRight(assetBase, "/"),
	}
	for _, r := range rules {
		match := make([]string, 0, len(r.Match))
		for _, m := range r.Match {
			m = strings.ToLower(strings.TrimSpace(m))
			if m != "" {
				match = append(match, m)
			}
		}
		r.Match = match
		t.rules = append(t.rules, r)
	}
	return t
}

// DefaultFallbackTable is NewFallbackTable with the built-in rules
func DefaultFallbackTable() *FallbackTable {
	return NewFallbackTable(nil, "", TokenHourly, "")
}

// Lookup returns the first rule whose keywords occur in the context tag
func (t *FallbackTable) Lookup(contextTag string) (FallbackRule, bool) {
	tag := strings.ToLower(contextTag)
	if tag == "" {
		return FallbackRule{}, false
	}
	for _, r := range t.rules {
		if containsAny(tag, r.Match) {
			return r, true
		}
	}
	return FallbackRule{}, false
}

// ForCategory returns the rule declared for c
func (t *FallbackTable) ForCategory(c Category) (FallbackRule, bool) {
	for _, r := range t.rules {
		if r.Category == c {
			return r, true
		}
	}
	return FallbackRule{}, false
}

// URLFor renders the fallback for a free-text context tag
func (t *FallbackTable) URLFor(contextTag string, now time.Time, rotation time.Duration) string {
	if r, ok := t.Lookup(contextTag); ok {
		return t.render(r.URL, r.Token, now, rotation)
	}
	return t.render(t.defaultURL, t.defaultToken, now, rotation)
}

// URLForCategory renders the fallback for an explicit category
func (t *FallbackTable) URLForCategory(c Category, now time.Time, rotation time.Duration) string {
	if r, ok := t.ForCategory(c); ok {
		return t.render(r.URL, r.Token, now, rotation)
	}
	return t.render(t.defaultURL, t.defaultToken, now, rotation)
}

// Rules returns a copy of the rules in match order
func (t *FallbackTable) Rules() []FallbackRule {
	out := make([]FallbackRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Default returns the catch-all URL and its token mode
func (t *FallbackTable) Default() (string, TokenMode) {
	return t.defaultURL, t.defaultToken
}

// Absolute prefixes rooted relative URLs with the asset base
func (t *FallbackTable) Absolute(u string) string {
	if t.assetBase != "" && strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
		return t.assetBase + u
	}
	return u
}

// Hosts returns the lowercased hosts the table can send clients to: the asset
// base and every absolute fallback URL.
func (t *FallbackTable) Hosts() []string {
	urls := []string{t.assetBase, t.Absolute(t.defaultURL)}
	for _, r := range t.rules {
		urls = append(urls, t.Absolute(r.URL))
	}

	seen := make(map[string]struct{}, len(urls))
	hosts := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		h := strings.ToLower(u.Host)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	return hosts
}

func (t *FallbackTable) render(u string, mode TokenMode, now time.Time, rotation time.Duration) string {
	u = t.Absolute(u)
	switch mode {
	case TokenHourly:
		return AppendParam(u, ParamHourly, HourToken(now, rotation))
	case TokenNone:
		return u
	default:
		return AppendParam(u, ParamTimestamp, FreshToken(now))
	}
}
