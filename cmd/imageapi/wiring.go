package main

import (
	"fmt"
	"net/http"

	"github.com/thrive-mt/imageapi/pkg/cache"
	"github.com/thrive-mt/imageapi/pkg/config"
	"github.com/thrive-mt/imageapi/pkg/image"
	"github.com/thrive-mt/imageapi/pkg/logging"
)

// fallbackTable converts the fallbacks section into a selector table
func fallbackTable(cfg *config.Config) (*image.FallbackTable, error) {
	rules := make([]image.FallbackRule, 0, len(cfg.Fallbacks.Rules))
	for i, r := range cfg.Fallbacks.Rules {
		cat, ok := image.ParseCategory(r.Category)
		if !ok || cat == image.CategoryUnknown {
			return nil, fmt.Errorf("fallbacks.rules[%d]: unknown category %q", i, r.Category)
		}
		mode, err := image.ParseTokenMode(r.Token)
		if err != nil {
			return nil, fmt.Errorf("fallbacks.rules[%d]: %w", i, err)
		}
		rules = append(rules, image.FallbackRule{Category: cat, Match: r.Match, URL: r.URL, Token: mode})
	}

	defMode := image.TokenHourly
	if cfg.Fallbacks.DefaultToken != "" {
		m, err := image.ParseTokenMode(cfg.Fallbacks.DefaultToken)
		if err != nil {
			return nil, fmt.Errorf("fallbacks.default_token: %w", err)
		}
		defMode = m
	}
	return image.NewFallbackTable(rules, cfg.Fallbacks.Default, defMode, cfg.Resolver.AssetBaseURL), nil
}

// newResolver builds a resolver over store configured from cfg
func newResolver(cfg *config.Config, store cache.Cache, extra ...image.Option) (*image.Resolver, error) {
	table, err := fallbackTable(cfg)
	if err != nil {
		return nil, err
	}
	ttl := cfg.Resolver.TTL
	opts := []image.Option{
		image.WithRotation(cfg.Resolver.Rotation),
		image.WithPolicies(image.DefaultPolicies().WithTTLs(ttl.Generic, ttl.CriticalUI, ttl.Specialized, ttl.CancerSupport)),
		image.WithFallbacks(table),
		image.WithEventSink(image.ZapSink{Logger: logging.Logger}),
	}
	return image.NewResolver(store, append(opts, extra...)...), nil
}

// newChecker builds the image probe with its own result cache
func newChecker(cfg *config.Config, probeCache cache.Cache) *image.ImageExistenceChecker {
	b := cfg.Probe.Breaker
	return image.NewImageExistenceChecker(
		&http.Client{Timeout: cfg.Probe.Timeout},
		cfg.Resolver.AssetBaseURL,
		probeCache,
		cfg.Probe.CacheTTL,
		image.BreakerSettings{
			MaxRequests:      b.MaxRequests,
			Interval:         b.Interval,
			Timeout:          b.Timeout,
			FailureThreshold: b.FailureThreshold,
			MinRequests:      b.MinRequests,
		},
	)
}

// openStore opens the configured resolution cache backend
func openStore(cfg *config.Config) cache.Cache {
	return cache.NewCache(cache.Options{Backend: cfg.Cache.Backend, Path: cfg.Cache.Path})
}
