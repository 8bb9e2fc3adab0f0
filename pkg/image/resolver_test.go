package image_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/thrive-mt/imageapi/pkg/cache"
	"github.com/thrive-mt/imageapi/pkg/image"
)

// fakeClock is a settable clock shared by a resolver under test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// eventLog collects resolver diagnostics
type eventLog struct {
	mu     sync.Mutex
	events []image.Event
}

func (l *eventLog) Handle(ev image.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) Count(kind image.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// MockCache is a testify mock of cache.Cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(key, ttl).Error(0)
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	return m.Called(key).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(key).Error(0)
}

func (m *MockCache) Clear(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockCache) Len(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *MockCache) Close() error {
	return nil
}

func isValidURL(s string) bool {
	_, err := url.Parse(s)
	return s != "" && err == nil
}

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		clock    *fakeClock
		events   *eventLog
		resolver *image.Resolver
		hour     string
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = &fakeClock{now: time.Date(2024, 5, 1, 10, 17, 0, 0, time.UTC)}
		events = &eventLog{}
		resolver = image.NewResolver(nil, image.WithClock(clock.Now), image.WithEventSink(events))
		hour = image.HourToken(clock.Now(), time.Hour)
	})

	Describe("Resolve", func() {
		It("should serve a busted fallback for an empty path and warn once per context", func() {
			first := resolver.Resolve(ctx, image.ImageRequest{RawPath: "", ContextTag: "base-card-42"})
			Expect(first.Fallback).To(BeTrue())
			Expect(first.URL).NotTo(BeEmpty())
			Expect(image.HasCacheMarker(first.URL)).To(BeTrue())

			for i := 0; i < 3; i++ {
				res := resolver.Resolve(ctx, image.ImageRequest{RawPath: "undefined", ContextTag: "base-card-42"})
				Expect(res.Fallback).To(BeTrue())
				Expect(res.Events).To(BeEmpty())
			}
			Expect(events.Count(image.EventInvalidPath)).To(Equal(1))

			resolver.Resolve(ctx, image.ImageRequest{RawPath: "null", ContextTag: "base-card-43"})
			Expect(events.Count(image.EventInvalidPath)).To(Equal(2))
		})

		It("should return valid always-fresh URLs for generic images", func() {
			a := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/dog.png", ContextTag: "generic-thumb"})
			clock.Advance(500 * time.Millisecond)
			b := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/dog.png", ContextTag: "generic-thumb"})

			Expect(a.Kind).To(Equal(image.KindGeneric))
			Expect(a.Strategy).To(Equal(image.StrategyAlwaysFresh))
			Expect(a.URL).To(HavePrefix("/img/dog.png?bust="))
			Expect(isValidURL(a.URL)).To(BeTrue())
			Expect(isValidURL(b.URL)).To(BeTrue())
		})

		It("should issue a new bust token once the generic window lapses", func() {
			a := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/dog.png", ContextTag: "generic-thumb"})
			clock.Advance(6 * time.Minute)
			b := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/dog.png", ContextTag: "generic-thumb"})
			Expect(b.CacheHit).To(BeFalse())
			Expect(b.URL).NotTo(Equal(a.URL))
		})

		It("should stabilize cancer-support images with an hourly h token", func() {
			a := resolver.Resolve(ctx, image.ImageRequest{RawPath: "https://x/y.jpg", ContextTag: "cancer-support-card"})
			Expect(a.URL).To(Equal("https://x/y.jpg?h=" + hour))
			Expect(a.Kind).To(Equal(image.KindCancerSupport))

			clock.Advance(20 * time.Minute)
			b := resolver.Resolve(ctx, image.ImageRequest{RawPath: "https://x/y.jpg", ContextTag: "cancer-support-card"})
			Expect(b.URL).To(Equal(a.URL))
			Expect(b.CacheHit).To(BeTrue())
		})

		It("should keep a cached URL across the hour boundary until its TTL lapses", func() {
			clock.now = time.Date(2024, 5, 1, 10, 59, 59, 0, time.UTC)
			a := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/hero.png", ContextTag: "portal-hero"})
			clock.Advance(2 * time.Second)
			b := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/hero.png", ContextTag: "portal-hero"})
			Expect(b.URL).To(Equal(a.URL))

			clock.Advance(time.Hour)
			c := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/hero.png", ContextTag: "portal-hero"})
			Expect(c.CacheHit).To(BeFalse())
			Expect(c.URL).NotTo(Equal(a.URL))
		})

		It("should be deterministic within the window for every kind", func() {
			for _, tag := range []string{"generic-thumb", "portal-hero", "military-card", "cancer-support"} {
				req := image.ImageRequest{RawPath: "/img/" + tag + ".png", ContextTag: tag}
				a := resolver.Resolve(ctx, req)
				b := resolver.Resolve(ctx, req)
				Expect(b.URL).To(Equal(a.URL), tag)
			}
		})

		It("should prefer the explicit category over the context tag", func() {
			res := resolver.Resolve(ctx, image.ImageRequest{
				RawPath:    "/img/a.png",
				ContextTag: "cancer-card",
				Category:   image.CategoryCollege,
			})
			Expect(res.Kind).To(Equal(image.KindSpecialized))
			Expect(res.URL).To(Equal("/img/a.png?s=" + hour))
		})

		It("should use a usable explicit fallback for invalid paths", func() {
			res := resolver.Resolve(ctx, image.ImageRequest{RawPath: "", ContextTag: "military", ExplicitFallback: "/img/mine.jpg"})
			Expect(res.URL).To(Equal("/img/mine.jpg"))

			res = resolver.Resolve(ctx, image.ImageRequest{RawPath: "", ContextTag: "military", ExplicitFallback: "null"})
			Expect(res.URL).To(ContainSubstring("photo-1580752300992"))
		})

		It("should keep kinds apart in the cache", func() {
			a := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/a.png", ContextTag: "portal"})
			b := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/a.png", ContextTag: "cancer"})
			Expect(a.URL).To(Equal("/img/a.png?s=" + hour))
			Expect(b.URL).To(Equal("/img/a.png?h=" + hour))
		})

		It("should report events as values", func() {
			res := resolver.Resolve(ctx, image.ImageRequest{RawPath: " ", ContextTag: "portal"})
			want := []image.Event{{
				Kind:    image.EventInvalidPath,
				Context: "portal",
				URL:     " ",
				Detail:  "unusable image path, serving fallback",
			}}
			Expect(cmp.Diff(want, res.Events, cmpopts.IgnoreFields(image.Event{}, "Err"))).To(BeEmpty())
		})
	})

	Describe("HandleError", func() {
		It("should retry once with an hourly s token and then fall back", func() {
			first := resolver.HandleError(ctx, image.ImageError{FailedURL: "https://x/y.jpg?bust=1", ContextTag: "generic-thumb"})
			Expect(first.Outcome).To(Equal(image.OutcomeRetry))
			Expect(first.URL).To(Equal("https://x/y.jpg?s=" + hour))

			second := resolver.HandleError(ctx, image.ImageError{FailedURL: first.URL, ContextTag: "generic-thumb"})
			Expect(second.Outcome).To(Equal(image.OutcomeFallback))
			Expect(second.URL).To(Equal(resolver.FallbackFor("generic-thumb")))
		})

		It("should retry a freshly resolved stable URL with a different URL", func() {
			resolved := resolver.Resolve(ctx, image.ImageRequest{RawPath: "https://x/y.jpg", ContextTag: "military-card"})
			Expect(resolved.URL).To(Equal("https://x/y.jpg?s=" + hour))

			first := resolver.HandleError(ctx, image.ImageError{FailedURL: resolved.URL, ContextTag: "military-card"})
			Expect(first.Outcome).To(Equal(image.OutcomeRetry))
			Expect(first.URL).NotTo(Equal(resolved.URL))
			Expect(first.URL).To(Equal("https://x/y.jpg?t=" + image.FreshToken(clock.Now())))

			second := resolver.HandleError(ctx, image.ImageError{FailedURL: first.URL, ContextTag: "military-card"})
			Expect(second.Outcome).To(Equal(image.OutcomeFallback))
			Expect(second.URL).To(Equal(resolver.FallbackFor("military-card")))
		})

		It("should never issue more than one retry per base URL", func() {
			retries := 0
			for i := 0; i < 10; i++ {
				failed := "https://x/y.jpg?bust=" + string(rune('0'+i))
				res := resolver.HandleError(ctx, image.ImageError{FailedURL: failed, ContextTag: "military-card"})
				if res.Outcome == image.OutcomeRetry {
					retries++
				}
			}
			Expect(retries).To(Equal(1))
		})

		It("should be idempotent after the second call", func() {
			e := image.ImageError{FailedURL: "/img/broken.png", ContextTag: "college-card"}
			resolver.HandleError(ctx, e)
			second := resolver.HandleError(ctx, e)
			third := resolver.HandleError(ctx, e)
			Expect(third).To(Equal(second))
		})

		It("should log each failing URL once", func() {
			e := image.ImageError{FailedURL: "/img/broken.png", ContextTag: "thumb"}
			resolver.HandleError(ctx, e)
			resolver.HandleError(ctx, e)
			Expect(events.Count(image.EventLoadFailed)).To(Equal(1))
		})

		It("should go straight to the cancer-support fallback", func() {
			res := resolver.HandleError(ctx, image.ImageError{FailedURL: "https://x/y.jpg", ContextTag: "cancer-support-card"})
			Expect(res.Outcome).To(Equal(image.OutcomeFallback))
			Expect(res.URL).To(HavePrefix(image.CancerSupportFallbackPath + "?t="))
		})

		It("should not hand back the fallback that just failed", func() {
			failed := image.CancerSupportFallbackPath + "?t=1"
			res := resolver.HandleError(ctx, image.ImageError{FailedURL: failed, ContextTag: "cancer-support-card"})
			Expect(image.StripQuery(res.URL)).NotTo(Equal(image.CancerSupportFallbackPath))
			Expect(res.URL).To(HavePrefix(image.DefaultFallbackURL))
		})

		It("should fall back for unusable failing URLs", func() {
			res := resolver.HandleError(ctx, image.ImageError{FailedURL: "", ContextTag: "law-enforcement-card"})
			Expect(res.Outcome).To(Equal(image.OutcomeFallback))
			Expect(res.URL).To(ContainSubstring("photo-1453873531674"))
		})

		It("should use the explicit fallback once the retry is spent", func() {
			e := image.ImageError{FailedURL: "/img/a.png", ContextTag: "thumb", ExplicitFallback: "/img/placeholder.png"}
			resolver.HandleError(ctx, e)
			res := resolver.HandleError(ctx, e)
			Expect(res.URL).To(Equal("/img/placeholder.png"))
		})
	})

	Describe("FallbackFor", func() {
		It("should return the law-enforcement stock photo", func() {
			Expect(resolver.FallbackFor("law-enforcement-card")).To(ContainSubstring("photo-1453873531674"))
			Expect(resolver.FallbackFor("law-enforcement-card")).NotTo(HavePrefix(image.DefaultFallbackURL))
		})

		It("should return valid URLs for any input", func() {
			for _, tag := range []string{"", " ", "???", "null", "cancer", "ÿ\x00"} {
				u := resolver.FallbackFor(tag)
				Expect(isValidURL(u)).To(BeTrue(), tag)
			}
		})

		It("should pick up a swapped table", func() {
			resolver.SetFallbacks(image.NewFallbackTable(nil, "/img/other.png", image.TokenNone, ""))
			Expect(resolver.FallbackFor("")).To(Equal("/img/other.png"))
		})
	})

	Describe("Clear", func() {
		It("should reset both the cache and the failure record", func() {
			req := image.ImageRequest{RawPath: "/img/a.png", ContextTag: "portal"}
			resolver.Resolve(ctx, req)
			Expect(resolver.Resolve(ctx, req).CacheHit).To(BeTrue())

			e := image.ImageError{FailedURL: "/img/b.png", ContextTag: "thumb"}
			Expect(resolver.HandleError(ctx, e).Outcome).To(Equal(image.OutcomeRetry))
			Expect(events.Count(image.EventLoadFailed)).To(Equal(1))

			Expect(resolver.Clear(ctx)).To(Succeed())
			Expect(events.Count(image.EventCacheCleared)).To(Equal(1))

			Expect(resolver.Resolve(ctx, req).CacheHit).To(BeFalse())
			Expect(resolver.HandleError(ctx, e).Outcome).To(Equal(image.OutcomeRetry))
			Expect(events.Count(image.EventLoadFailed)).To(Equal(2))
		})

		It("should report stats", func() {
			resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/a.png", ContextTag: "portal"})
			resolver.HandleError(ctx, image.ImageError{FailedURL: "/img/b.png"})
			stats, err := resolver.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.CacheEntries).To(Equal(1))
			Expect(stats.Failures.Retried).To(Equal(1))
			Expect(stats.Failures.Diagnosed).To(Equal(1))
		})
	})

	Context("when the store fails", func() {
		var store *MockCache

		BeforeEach(func() {
			store = &MockCache{}
			resolver = image.NewResolver(store, image.WithClock(clock.Now), image.WithEventSink(events))
		})

		It("should still resolve and report store errors", func() {
			boom := errors.New("disk full")
			store.On("Get", "/img/a.png@critical-ui").Return(boom)
			store.On("Set", "/img/a.png@critical-ui", time.Hour).Return(boom)

			res := resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/a.png", ContextTag: "portal"})
			Expect(res.URL).To(Equal("/img/a.png?s=" + hour))
			Expect(events.Count(image.EventStoreError)).To(Equal(2))
			store.AssertNumberOfCalls(GinkgoT(), "Set", 1)
		})

		It("should treat a miss as a miss", func() {
			store.On("Get", mock.Anything).Return(cache.ErrCacheNotFound)
			store.On("Set", mock.Anything, mock.Anything).Return(nil)

			resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/a.png"})
			Expect(events.Count(image.EventStoreError)).To(BeZero())
		})

		It("should surface clear failures and still reset failures", func() {
			store.On("Clear").Return(errors.New("locked"))
			resolver.HandleError(ctx, image.ImageError{FailedURL: "/img/b.png"})

			Expect(resolver.Clear(ctx)).To(MatchError("locked"))
			Expect(resolver.HandleError(ctx, image.ImageError{FailedURL: "/img/b.png"}).Outcome).To(Equal(image.OutcomeRetry))
		})
	})

	It("should be safe for concurrent use", func() {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				resolver.Resolve(ctx, image.ImageRequest{RawPath: "/img/a.png", ContextTag: "portal"})
				resolver.HandleError(ctx, image.ImageError{FailedURL: "/img/a.png", ContextTag: "portal"})
			}()
		}
		wg.Wait()
		stats, err := resolver.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Failures.Retried).To(Equal(1))
	})
})
