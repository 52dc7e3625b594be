package resolver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

var errNoAddresses = errors.New("no addresses resolved")

// (*Resolver).DialContext dials address with its hostname resolved
// through the resolver instead of the platform DNS path. Address
// literals are dialed as-is. Resolved addresses are tried in order.
func (r *Resolver) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	d := &net.Dialer{Timeout: r.cfg.QueryTimeout.Duration}

	if ip := net.ParseIP(host); ip != nil {
		return d.DialContext(ctx, network, address)
	}

	addrs := r.Resolve(ctx, host)
	if len(addrs) == 0 {
		return nil, errNoAddresses
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := d.DialContext(ctx, network, net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// (*Resolver).Transport returns an http transport whose connections
// resolve hostnames through the resolver. This is the hook the
// surrounding application plugs into its page-load stack.
func (r *Resolver) Transport() *http.Transport {
	return &http.Transport{
		DialContext:     r.DialContext,
		IdleConnTimeout: 90 * time.Second,
	}
}
