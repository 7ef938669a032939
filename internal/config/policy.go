package config

import (
	"fmt"
	"time"

	"github.com/repolens/repolens/internal/cache"
)

// CachePolicy builds the cache TTL policy. Configured ttl_rules replace the built-in
// ones; default_ttl always applies.
func (c *Config) CachePolicy() (*cache.Policy, error) {
	policy := cache.DefaultPolicy()

	defaultTTL, err := c.GetDefaultTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid default TTL: %w", err)
	}
	policy.Default = defaultTTL

	if len(c.Cache.TTLRules) == 0 {
		return policy, nil
	}

	policy.Rules = make([]cache.Rule, 0, len(c.Cache.TTLRules))
	for _, r := range c.Cache.TTLRules {
		ttl, err := time.ParseDuration(r.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid TTL for rule %q: %w", r.Name, err)
		}
		rule, err := cache.NewRule(r.Name, r.Pattern, ttl, r.Exclude...)
		if err != nil {
			return nil, err
		}
		policy.Rules = append(policy.Rules, rule)
	}
	return policy, nil
}
