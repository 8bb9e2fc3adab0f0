package image

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/thrive-mt/imageapi/pkg/cache"
)

// Outcome is what HandleError decided
type Outcome string

const (
	OutcomeRetry    Outcome = "retry"
	OutcomeFallback Outcome = "fallback"
)

// ImageRequest asks for a displayable URL
type ImageRequest struct {
	RawPath    string
	ContextTag string
	// Category overrides tag heuristics when set
	Category         Category
	ExplicitFallback string
}

// ImageError reports that the browser could not load FailedURL
type ImageError struct {
	FailedURL        string
	ContextTag       string
	Category         Category
	ExplicitFallback string
}

// Result is what the resolver hands back. URL is never empty.
type Result struct {
	URL      string   `json:"url"`
	Kind     Kind     `json:"-"`
	Strategy Strategy `json:"-"`
	CacheHit bool     `json:"cache_hit"`
	Fallback bool     `json:"fallback"`
	Outcome  Outcome  `json:"outcome,omitempty"`
	Events   []Event  `json:"-"`
}

func (r *Result) emit(ev Event) {
	r.Events = append(r.Events, ev)
}

// Stats summarizes resolver state
type Stats struct {
	CacheEntries int          `json:"cache_entries"`
	Failures     FailureStats `json:"failures"`
}

// Resolver turns raw image references into stable, displayable URLs.
// It is safe for concurrent use.
type Resolver struct {
	store     cache.Cache
	failures  *FailureRecord
	fallbacks atomic.Pointer[FallbackTable]
	policies  Policies
	rotation  time.Duration
	now       func() time.Time
	sink      EventSink
	recorder  Recorder
}

// Option customizes a Resolver
type Option func(*Resolver)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithPolicies replaces the stabilization table
func WithPolicies(p Policies) Option {
	return func(r *Resolver) { r.policies = p }
}

// WithRotation sets the bucket width of hourly tokens
func WithRotation(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.rotation = d
		}
	}
}

// WithFallbacks replaces the fallback table
func WithFallbacks(t *FallbackTable) Option {
	return func(r *Resolver) {
		if t != nil {
			r.fallbacks.Store(t)
		}
	}
}

// WithEventSink forwards every diagnostic to sink
func WithEventSink(sink EventSink) Option {
	return func(r *Resolver) { r.sink = sink }
}

// WithRecorder reports outcomes to a metrics recorder
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// NewResolver creates a resolver over store. A nil store gets a private
// in-memory cache without a sweeper.
func NewResolver(store cache.Cache, opts ...Option) *Resolver {
	if store == nil {
		store = cache.NewMemoryCacheWithInterval(0)
	}
	r := &Resolver{
		store:    store,
		failures: NewFailureRecord(),
		policies: DefaultPolicies(),
		rotation: time.Hour,
		now:      time.Now,
		recorder: nopRecorder{},
	}
	r.fallbacks.Store(DefaultFallbackTable())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the URL an image element should load for req
func (r *Resolver) Resolve(ctx context.Context, req ImageRequest) Result {
	now := r.now()
	kind := classifyRequest(req.Category, req.ContextTag, req.RawPath).Kind()
	res := Result{Kind: kind}
	defer r.finish(&res)

	if !IsUsable(req.RawPath) {
		if r.failures.MarkWarned(req.ContextTag) {
			res.emit(Event{Kind: EventInvalidPath, Context: req.ContextTag, URL: req.RawPath,
				Detail: "unusable image path, serving fallback"})
		}
		res.URL = r.fallbackURL(req.Category, req.ContextTag, req.ExplicitFallback, now)
		res.Fallback = true
		r.recorder.RecordResolution(kind, StrategyNone, false, true)
		return res
	}

	rawPath := strings.TrimSpace(req.RawPath)
	pol := r.policies.For(kind)
	key := GetCacheKey(rawPath, kind)

	var entry cache.ResolutionEntry
	err := r.store.Get(ctx, key, &entry)
	switch {
	case err == nil && entry.ResolvedURL != "" && isFresh(entry, now, pol.TTL):
		res.URL = entry.ResolvedURL
		res.Strategy = StrategyNone
		res.CacheHit = true
		r.recorder.RecordResolution(kind, StrategyNone, true, false)
		return res
	case err != nil && !errors.Is(err, cache.ErrCacheNotFound) && !errors.Is(err, cache.ErrCacheExpired):
		res.emit(Event{Kind: EventStoreError, Context: req.ContextTag, URL: rawPath, Detail: "cache read", Err: err})
	}

	res.URL = pol.Strategy.Apply(rawPath, pol.Param, now, r.rotation)
	res.Strategy = pol.Strategy
	entry = cache.ResolutionEntry{ResolvedURL: res.URL, CreatedAt: now}
	if err := r.store.Set(ctx, key, entry, pol.TTL); err != nil {
		res.emit(Event{Kind: EventStoreError, Context: req.ContextTag, URL: rawPath, Detail: "cache write", Err: err})
	}
	r.recorder.RecordResolution(kind, pol.Strategy, false, false)
	return res
}

// HandleError decides what to load after a failed image load: one retry
// per base URL with a fresh token, then the fallback for good.
func (r *Resolver) HandleError(ctx context.Context, e ImageError) Result {
	now := r.now()
	failed := strings.TrimSpace(e.FailedURL)
	cls := classifyRequest(e.Category, e.ContextTag, "")
	res := Result{Kind: cls.Kind(), Outcome: OutcomeFallback, Fallback: true}
	defer r.finish(&res)
	defer func() { r.recorder.RecordErrorOutcome(res.Kind, res.Outcome) }()

	if IsUsable(failed) && r.failures.MarkDiagnosed(failed) {
		res.emit(Event{Kind: EventLoadFailed, Context: e.ContextTag, URL: failed})
	}

	table := r.table()
	if cls.IsCancerSupport {
		res.URL = r.guardFallback(failed, table.URLForCategory(CategoryCancerSupport, now, r.rotation), now)
		return res
	}

	fallback := r.guardFallback(failed, r.fallbackURL(e.Category, e.ContextTag, e.ExplicitFallback, now), now)
	if !IsUsable(failed) || r.failures.IsIssuedRetry(failed) {
		res.URL = fallback
		return res
	}

	base := StripQuery(failed)
	retry := r.retryURL(base, failed, now)
	if r.failures.MarkRetried(base, retry) {
		res.URL = retry
		res.Outcome = OutcomeRetry
		res.Fallback = false
		res.emit(Event{Kind: EventRetryIssued, Context: e.ContextTag, URL: retry})
		return res
	}

	res.URL = fallback
	res.emit(Event{Kind: EventFallback, Context: e.ContextTag, URL: fallback})
	return res
}

// FallbackFor returns the category fallback for a free-text context tag
func (r *Resolver) FallbackFor(contextTag string) string {
	return r.table().URLFor(contextTag, r.now(), r.rotation)
}

// FallbackForCategory returns the fallback for an explicit category
func (r *Resolver) FallbackForCategory(c Category) string {
	return r.table().URLForCategory(c, r.now(), r.rotation)
}

// Fallbacks returns the active fallback table
func (r *Resolver) Fallbacks() *FallbackTable {
	return r.table()
}

// SetFallbacks swaps the fallback table, e.g. after a config reload
func (r *Resolver) SetFallbacks(t *FallbackTable) {
	if t != nil {
		r.fallbacks.Store(t)
	}
}

// Clear wipes cached resolutions and the failure record together
func (r *Resolver) Clear(ctx context.Context) error {
	r.failures.Reset()
	err := r.store.Clear(ctx)

	res := Result{}
	res.emit(Event{Kind: EventCacheCleared, Err: err})
	r.finish(&res)
	r.recorder.RecordCacheClear()
	return err
}

// Stats reports cache and failure record sizes
func (r *Resolver) Stats(ctx context.Context) (Stats, error) {
	n, err := r.store.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{CacheEntries: n, Failures: r.failures.Stats()}, nil
}

func (r *Resolver) table() *FallbackTable {
	return r.fallbacks.Load()
}

// fallbackURL prefers a usable explicit fallback over the category table
func (r *Resolver) fallbackURL(c Category, contextTag, explicit string, now time.Time) string {
	table := r.table()
	if IsUsable(explicit) {
		return table.Absolute(strings.TrimSpace(explicit))
	}
	if c != CategoryUnknown {
		return table.URLForCategory(c, now, r.rotation)
	}
	return table.URLFor(contextTag, now, r.rotation)
}

// retryURL puts a fresh token on base. A stable token from the current window
// would reproduce the URL that just failed, so that case gets a timestamp.
func (r *Resolver) retryURL(base, failed string, now time.Time) string {
	retry := AppendParam(base, ParamStable, HourToken(now, r.rotation))
	if stripFragment(retry) == stripFragment(failed) {
		retry = AppendParam(base, ParamTimestamp, FreshToken(now))
	}
	return retry
}

// guardFallback avoids handing back the very image that just failed
func (r *Resolver) guardFallback(failed, fallback string, now time.Time) string {
	if failed == "" || StripQuery(failed) != StripQuery(fallback) {
		return fallback
	}
	table := r.table()
	def, mode := table.Default()
	return table.render(def, mode, now, r.rotation)
}

func (r *Resolver) finish(res *Result) {
	if r.sink == nil {
		return
	}
	for _, ev := range res.Events {
		r.sink.Handle(ev)
	}
}

func isFresh(entry cache.ResolutionEntry, now time.Time, ttl time.Duration) bool {
	age := now.Sub(entry.CreatedAt)
	return age >= 0 && age < ttl
}
