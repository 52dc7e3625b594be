// Package resolver resolves hostnames over DNS-over-HTTPS with a
// multi-strategy fallback chain and an in-memory cache. The chain is
// ordered data, not control flow: cache lookup first, then every
// strategy the active provider supports, then the plain DNS
// forwarders if configured, then the system resolver.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/semihalev/zlog/v2"
	"golang.org/x/sync/singleflight"

	"github.com/bigc0127/evoarc-dns/cache"
	"github.com/bigc0127/evoarc-dns/config"
)

// strategy is one way to turn a hostname into addresses. Strategies
// are tried in order; the first non-empty result wins.
type strategy interface {
	name() string
	attempt(ctx context.Context, host string) ([]string, error)
}

// Resolver resolves hostnames through the active provider.
type Resolver struct {
	cfg    *config.Config
	cache  *cache.Cache
	client *http.Client

	mu         sync.RWMutex
	provider   Provider
	strategies []strategy

	group singleflight.Group
}

// New returns a resolver for the provider named in cfg.
func New(cfg *config.Config) (*Resolver, error) {
	provider, ok := LookupProvider(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}

	r := &Resolver{
		cfg:    cfg,
		cache:  cache.New(cfg.CacheSize, cfg.CacheTTL.Duration),
		client: newHTTPClient(cfg),
	}

	r.provider = provider
	r.strategies = r.buildStrategies(provider)

	return r, nil
}

// NewWithProvider returns a resolver pinned to the given provider,
// bypassing the registry. Embedders and tests use it to point the
// resolver at their own endpoints.
func NewWithProvider(cfg *config.Config, provider Provider) *Resolver {
	r := &Resolver{
		cfg:    cfg,
		cache:  cache.New(cfg.CacheSize, cfg.CacheTTL.Duration),
		client: newHTTPClient(cfg),
	}

	r.provider = provider
	r.strategies = r.buildStrategies(provider)

	return r
}

func newHTTPClient(cfg *config.Config) *http.Client {
	client := &http.Client{
		Timeout: cfg.QueryTimeout.Duration,
		Transport: &http.Transport{
			MaxIdleConns:       16,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: true,
		},
	}

	if cfg.UseHTTP3 {
		client.Transport = &http3.Transport{}
	}

	return client
}

func (r *Resolver) buildStrategies(p Provider) []strategy {
	var list []strategy

	if p.JSON() {
		list = append(list, &jsonStrategy{endpoint: p.JSONEndpoint, client: r.client})
	}
	if p.Wire {
		list = append(list, &wireStrategy{endpoint: p.Endpoint, client: r.client})
	}
	if len(r.cfg.FallbackServers) > 0 {
		list = append(list, &forwardStrategy{servers: r.cfg.FallbackServers})
	}

	return append(list, &systemStrategy{})
}

// (*Resolver).Resolve resolves hostname to a list of IP address
// strings. It never fails loudly: an empty slice means every strategy
// was exhausted. Concurrent resolutions of the same hostname share a
// single upstream flight.
func (r *Resolver) Resolve(ctx context.Context, hostname string) []string {
	if hostname == "" {
		return nil
	}

	if addrs, err := r.cache.Get(hostname); err == nil {
		cacheHits.Inc()
		return addrs
	}

	v, _, _ := r.group.Do(hostname, func() (any, error) {
		// Another waiter may have populated the cache while this
		// call was queued behind the flight.
		if addrs, err := r.cache.Get(hostname); err == nil {
			cacheHits.Inc()
			return addrs, nil
		}

		ctx, cancel := context.WithTimeout(ctx, r.cfg.ResolveTimeout.Duration)
		defer cancel()

		r.mu.RLock()
		strategies := r.strategies
		r.mu.RUnlock()

		for _, s := range strategies {
			addrs, err := s.attempt(ctx, hostname)
			if err != nil {
				resolutions.WithLabelValues(s.name(), "error").Inc()
				zlog.Debug("Resolution strategy failed", "strategy", s.name(), "host", hostname, "error", err.Error())
				continue
			}
			if len(addrs) == 0 {
				resolutions.WithLabelValues(s.name(), "empty").Inc()
				continue
			}

			resolutions.WithLabelValues(s.name(), "success").Inc()
			r.cache.Set(hostname, addrs)

			return addrs, nil
		}

		zlog.Warn("All resolution strategies exhausted", "host", hostname)
		return []string(nil), nil
	})

	return v.([]string)
}

// (*Resolver).SetProvider switches the active provider and
// unconditionally clears the cache: entries resolved through a
// different upstream must not be served under the new one.
func (r *Resolver) SetProvider(name string) error {
	provider, ok := LookupProvider(name)
	if !ok {
		return fmt.Errorf("unknown provider: %q", name)
	}

	r.mu.Lock()
	r.provider = provider
	r.strategies = r.buildStrategies(provider)
	r.mu.Unlock()

	r.cache.Purge()

	zlog.Info("Provider switched", "provider", provider.Name)

	return nil
}

// (*Resolver).CurrentProvider returns the active provider.
func (r *Resolver) CurrentProvider() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.provider
}

// (*Resolver).ClearCache drops all cached resolutions. Safe to call
// concurrently with in-flight resolves.
func (r *Resolver) ClearCache() {
	r.cache.Purge()
}

// (*Resolver).CacheLen returns the number of cached hostnames.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}
