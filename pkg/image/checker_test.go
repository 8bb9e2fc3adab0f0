package image_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/thrive-mt/imageapi/pkg/cache"
	"github.com/thrive-mt/imageapi/pkg/image"
)

var _ = Describe("ImageExistenceChecker", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		hits    atomic.Int32
		handler http.HandlerFunc
		store   *cache.MemoryCache
		checker *image.ImageExistenceChecker
	)

	BeforeEach(func() {
		ctx = context.Background()
		hits.Store(0)
		handler = func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/img/ok.jpg":
				w.Header().Set("Content-Type", "image/jpeg")
				w.WriteHeader(http.StatusOK)
			case "/img/page.html":
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusOK)
			case "/img/nohead.jpg":
				if r.Method == http.MethodHead {
					w.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
				Expect(r.Header.Get("Range")).To(Equal("bytes=0-0"))
				w.Header().Set("Content-Type", "image/jpeg")
				w.WriteHeader(http.StatusPartialContent)
			case "/img/broken.jpg":
				w.WriteHeader(http.StatusBadGateway)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			hits.Add(1)
			handler(w, r)
		}))
		store = cache.NewMemoryCacheWithInterval(0)
		checker = image.NewImageExistenceChecker(server.Client(), server.URL, store, time.Minute, image.DefaultBreakerSettings())
	})

	AfterEach(func() {
		server.Close()
		Expect(store.Close()).To(Succeed())
	})

	It("should report an existing image", func() {
		meta, err := checker.CheckImageExists(ctx, "/img/ok.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Exists).To(BeTrue())
		Expect(meta.StatusCode).To(Equal(http.StatusOK))
		Expect(meta.ContentType).To(Equal("image/jpeg"))
		Expect(meta.URL).To(Equal(server.URL + "/img/ok.jpg"))
	})

	It("should report a missing image without an error", func() {
		meta, err := checker.CheckImageExists(ctx, server.URL+"/img/gone.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Exists).To(BeFalse())
		Expect(meta.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should not count non-image content as existing", func() {
		meta, err := checker.CheckImageExists(ctx, "/img/page.html")
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Exists).To(BeFalse())
	})

	It("should retry with a ranged GET when HEAD is refused", func() {
		meta, err := checker.CheckImageExists(ctx, "/img/nohead.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Exists).To(BeTrue())
		Expect(hits.Load()).To(Equal(int32(2)))
	})

	It("should treat server errors as probe failures", func() {
		_, err := checker.CheckImageExists(ctx, "/img/broken.jpg")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("502"))
	})

	It("should cache probe results", func() {
		_, err := checker.CheckImageExists(ctx, "/img/ok.jpg")
		Expect(err).NotTo(HaveOccurred())
		meta, err := checker.CheckImageExists(ctx, "/img/ok.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Cached).To(BeTrue())
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("should collapse concurrent probes of the same image", func() {
		release := make(chan struct{})
		handler = func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
		}
		checker = image.NewImageExistenceChecker(server.Client(), server.URL, nil, 0, image.DefaultBreakerSettings())

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				meta, err := checker.CheckImageExists(ctx, "/img/slow.png")
				Expect(err).NotTo(HaveOccurred())
				Expect(meta.Exists).To(BeTrue())
			}()
		}
		Eventually(hits.Load).Should(Equal(int32(1)))
		close(release)
		wg.Wait()
		Expect(hits.Load()).To(BeNumerically("<=", 8))
	})

	It("should finish a shared check when the first caller goes away", func() {
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		handler = func(w http.ResponseWriter, r *http.Request) {
			started <- struct{}{}
			<-release
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
		}
		checker = image.NewImageExistenceChecker(server.Client(), server.URL, nil, 0, image.DefaultBreakerSettings())

		firstCtx, cancel := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := checker.CheckImageExists(firstCtx, "/img/shared.png")
			firstErr <- err
		}()
		Eventually(started).Should(Receive())

		second := make(chan *image.ImageMetadata, 1)
		go func() {
			defer GinkgoRecover()
			meta, err := checker.CheckImageExists(ctx, "/img/shared.png")
			Expect(err).NotTo(HaveOccurred())
			second <- meta
		}()

		cancel()
		var err error
		Eventually(firstErr).Should(Receive(&err))
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())

		time.Sleep(50 * time.Millisecond)
		close(release)
		var meta *image.ImageMetadata
		Eventually(second).Should(Receive(&meta))
		Expect(meta.Exists).To(BeTrue())
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("should open the breaker after repeated failures", func() {
		bs := image.DefaultBreakerSettings()
		bs.MinRequests = 2
		bs.FailureThreshold = 0.5
		checker = image.NewImageExistenceChecker(server.Client(), server.URL, nil, 0, bs)

		for i := 0; i < 2; i++ {
			_, err := checker.CheckImageExists(ctx, "/img/broken.jpg")
			Expect(err).To(HaveOccurred())
		}
		before := hits.Load()
		_, err := checker.CheckImageExists(ctx, "/img/ok.jpg")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("circuit breaker is open"))
		Expect(hits.Load()).To(Equal(before))
	})

	DescribeTable("rejects references that cannot be probed",
		func(ref string) {
			_, err := checker.CheckImageExists(ctx, ref)
			Expect(errors.Is(err, image.ErrNotProbeable)).To(BeTrue())
		},
		Entry("empty", ""),
		Entry("null", "null"),
		Entry("data uri", "data:image/png;base64,AAAA"),
		Entry("ftp", "ftp://x/y.jpg"),
	)

	It("should reject relative paths without an asset base", func() {
		checker = image.NewImageExistenceChecker(nil, "", nil, 0, image.DefaultBreakerSettings())
		_, err := checker.CheckImageExists(ctx, "/img/ok.jpg")
		Expect(errors.Is(err, image.ErrNotProbeable)).To(BeTrue())
	})

	It("should verify every fallback in a table", func() {
		table := image.NewFallbackTable([]image.FallbackRule{
			{Category: image.CategoryMilitary, Match: []string{"military"}, URL: "/img/ok.jpg"},
			{Category: image.CategoryCollege, Match: []string{"college"}, URL: "/img/gone.jpg"},
		}, "/img/broken.jpg", image.TokenHourly, server.URL)

		checks := checker.VerifyFallbacks(ctx, table)
		Expect(checks).To(HaveLen(3))
		Expect(checks[0].Exists).To(BeTrue())
		Expect(checks[1].Exists).To(BeFalse())
		Expect(checks[1].Error).To(BeEmpty())
		Expect(checks[2].Category).To(Equal("default"))
		Expect(checks[2].Error).NotTo(BeEmpty())
	})
})
