package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bigc0127/evoarc-dns/codec"
)

const dnsContentType = "application/dns-message"

var errEmptyAnswer = errors.New("no answers in response")

// wireStrategy POSTs a raw RFC 1035 query to the provider's
// dns-message endpoint.
type wireStrategy struct {
	endpoint string
	client   *http.Client
}

func (s *wireStrategy) name() string { return "wire" }

func (s *wireStrategy) attempt(ctx context.Context, host string) ([]string, error) {
	query, err := codec.EncodeQuery(host)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", dnsContentType)
	req.Header.Set("Accept", dnsContentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 65536))
	if err != nil {
		return nil, err
	}

	addrs := codec.ParseResponse(body)
	if len(addrs) == 0 {
		return nil, errEmptyAnswer
	}

	return addrs, nil
}
