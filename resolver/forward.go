package resolver

import (
	"context"
	"errors"

	"github.com/miekg/dns"
)

var errNoForwarder = errors.New("no forwarder answered")

// forwardStrategy asks plain DNS fallback servers, in order, until
// one answers.
type forwardStrategy struct {
	servers []string
}

func (s *forwardStrategy) name() string { return "forward" }

func (s *forwardStrategy) attempt(ctx context.Context, host string) ([]string, error) {
	req := new(dns.Msg)
	req.SetQuestion(dns.Fqdn(host), dns.TypeA)
	req.RecursionDesired = true

	client := new(dns.Client)

	for _, server := range s.servers {
		resp, _, err := client.ExchangeContext(ctx, req, server)
		if err != nil {
			continue
		}

		var addrs []string
		for _, rr := range resp.Answer {
			if a, ok := rr.(*dns.A); ok {
				addrs = append(addrs, a.A.String())
			}
		}

		if len(addrs) > 0 {
			return addrs, nil
		}
	}

	return nil, errNoForwarder
}
