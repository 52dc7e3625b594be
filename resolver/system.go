package resolver

import (
	"context"
	"net"
)

// systemStrategy is the last resort: the platform resolver. The
// lookup runs on its own goroutine so a slow libc path suspends only
// this resolution, abandoned cleanly when the resolve deadline fires.
type systemStrategy struct {
	// resolver overrides the default for tests.
	resolver *net.Resolver
}

func (s *systemStrategy) name() string { return "system" }

func (s *systemStrategy) attempt(ctx context.Context, host string) ([]string, error) {
	res := s.resolver
	if res == nil {
		res = net.DefaultResolver
	}

	type result struct {
		addrs []string
		err   error
	}

	done := make(chan result, 1)

	go func() {
		addrs, err := res.LookupHost(ctx, host)
		done <- result{addrs, err}
	}()

	select {
	case r := <-done:
		return r.addrs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
