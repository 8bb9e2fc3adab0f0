package image

import (
	"fmt"
	"time"
)

// Policy decides how a Kind is stabilized and how long the result is reused
type Policy struct {
	Strategy Strategy
	// Param names the hourly token; ignored by other strategies
	Param string
	TTL   time.Duration
}

// Policies maps every Kind to its Policy
type Policies map[Kind]Policy

// DefaultPolicies returns the stock stabilization table: always-fresh generic
// images reused for 5 minutes, hourly tokens for critical UI and programs,
// and a dedicated h= token with a 30 minute window for cancer support.
func DefaultPolicies() Policies {
	return Policies{
		KindGeneric:       {Strategy: StrategyAlwaysFresh, Param: ParamBust, TTL: 5 * time.Minute},
		KindCriticalUI:    {Strategy: StrategyHourly, Param: ParamStable, TTL: time.Hour},
		KindSpecialized:   {Strategy: StrategyHourly, Param: ParamStable, TTL: time.Hour},
		KindCancerSupport: {Strategy: StrategyHourly, Param: ParamHourly, TTL: 30 * time.Minute},
	}
}

// For returns the policy for k, falling back to the generic policy
func (p Policies) For(k Kind) Policy {
	if pol, ok := p[k]; ok {
		return pol
	}
	if pol, ok := p[KindGeneric]; ok {
		return pol
	}
	return DefaultPolicies()[KindGeneric]
}

// WithTTLs returns a copy of p with the given lifetimes; zero keeps the current one
func (p Policies) WithTTLs(generic, criticalUI, specialized, cancer time.Duration) Policies {
	out := make(Policies, len(p))
	for k, v := range p {
		out[k] = v
	}
	set := func(k Kind, ttl time.Duration) {
		if ttl <= 0 {
			return
		}
		pol := out.For(k)
		pol.TTL = ttl
		out[k] = pol
	}
	set(KindGeneric, generic)
	set(KindCriticalUI, criticalUI)
	set(KindSpecialized, specialized)
	set(KindCancerSupport, cancer)
	return out
}

// GetCacheKey generates a consistent cache key for a path+kind combination
func GetCacheKey(rawPath string, kind Kind) string {
	return fmt.Sprintf("%s@%s", rawPath, kind)
}
