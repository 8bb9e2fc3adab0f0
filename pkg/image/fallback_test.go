package image_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/thrive-mt/imageapi/pkg/image"
)

var _ = Describe("FallbackTable", func() {
	now := time.Date(2024, 5, 1, 10, 17, 0, 0, time.UTC)

	var table *image.FallbackTable

	BeforeEach(func() {
		table = image.DefaultFallbackTable()
	})

	DescribeTable("Lookup by context tag",
		func(tag string, expected image.Category) {
			rule, ok := table.Lookup(tag)
			Expect(ok).To(BeTrue())
			Expect(rule.Category).To(Equal(expected))
		},
		Entry("military", "military-hero", image.CategoryMilitary),
		Entry("dod", "DoD-banner", image.CategoryMilitary),
		Entry("senior", "senior-card", image.CategoryGoldenYears),
		Entry("teen", "teen-portal", image.CategoryAdolescent),
		Entry("emergency", "emergency-services", image.CategoryFirstResponders),
		Entry("law", "law-enforcement", image.CategoryLawEnforcement),
		Entry("small business", "small-business-cover", image.CategorySmallBusiness),
		Entry("college", "college-card", image.CategoryCollege),
		Entry("illness", "chronic-illness", image.CategoryChronicIllness),
		Entry("cancer", "cancer-support", image.CategoryCancerSupport),
	)

	It("should let the first matching rule win", func() {
		rule, ok := table.Lookup("military-college")
		Expect(ok).To(BeTrue())
		Expect(rule.Category).To(Equal(image.CategoryMilitary))
	})

	It("should return a valid default for an empty tag", func() {
		_, ok := table.Lookup("")
		Expect(ok).To(BeFalse())

		u := table.URLFor("", now, time.Hour)
		Expect(u).To(HavePrefix(image.DefaultFallbackURL))
		Expect(u).To(HaveSuffix("&h=476266"))
	})

	It("should stamp category fallbacks with a timestamp", func() {
		u := table.URLFor("military", now, time.Hour)
		Expect(u).To(ContainSubstring("photo-1580752300992"))
		Expect(u).To(HaveSuffix("&t=1714558620000"))
	})

	It("should serve the bundled cancer-support image", func() {
		u := table.URLForCategory(image.CategoryCancerSupport, now, time.Hour)
		Expect(u).To(Equal(image.CancerSupportFallbackPath + "?t=1714558620000"))
	})

	It("should fall back to the default for categories without a rule", func() {
		u := table.URLForCategory(image.CategoryCriticalUI, now, time.Hour)
		Expect(strings.HasPrefix(u, image.DefaultFallbackURL)).To(BeTrue())
	})

	It("should hand out copies of the rules", func() {
		rules := table.Rules()
		rules[0].URL = "mutated"
		Expect(table.Rules()[0].URL).NotTo(Equal("mutated"))
	})

	Context("with custom rules", func() {
		BeforeEach(func() {
			table = image.NewFallbackTable([]image.FallbackRule{
				{Category: image.CategoryCollege, Match: []string{" Campus "}, URL: "/img/campus.jpg", Token: image.TokenNone},
			}, "/img/default.jpg", image.TokenHourly, "https://cdn.example.com/")
		})

		It("should normalize match keywords", func() {
			rule, ok := table.Lookup("north-campus-hero")
			Expect(ok).To(BeTrue())
			Expect(rule.Match).To(Equal([]string{"campus"}))
		})

		It("should prefix rooted paths with the asset base", func() {
			Expect(table.URLFor("campus", now, time.Hour)).To(Equal("https://cdn.example.com/img/campus.jpg"))
			Expect(table.URLFor("other", now, time.Hour)).To(Equal("https://cdn.example.com/img/default.jpg?h=476266"))
		})

		It("should leave protocol-relative and absolute URLs alone", func() {
			Expect(table.Absolute("//cdn.other/x.jpg")).To(Equal("//cdn.other/x.jpg"))
			Expect(table.Absolute("https://x/y.jpg")).To(Equal("https://x/y.jpg"))
		})
		It("should list the asset base as its only host", func() {
			Expect(table.Hosts()).To(Equal([]string{"cdn.example.com"}))
		})
	})

	It("should list every fallback host once", func() {
		hosts := image.DefaultFallbackTable().Hosts()
		Expect(hosts).To(Equal([]string{"images.unsplash.com"}))
	})

	DescribeTable("ParseTokenMode",
		func(in string, expected image.TokenMode, wantErr bool) {
			m, err := image.ParseTokenMode(in)
			if wantErr {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(Equal(expected))
			Expect(m.String()).NotTo(BeEmpty())
		},
		Entry("empty", "", image.TokenTimestamp, false),
		Entry("hourly", "Hourly", image.TokenHourly, false),
		Entry("none", "none", image.TokenNone, false),
		Entry("bogus", "weekly", image.TokenTimestamp, true),
	)
})
