package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// jsonAnswer mirrors the Answer schema shared by the Google and
// Cloudflare dns-json APIs.
type jsonAnswer struct {
	Type int    `json:"type"`
	Data string `json:"data"`
}

type jsonResponse struct {
	Status int          `json:"Status"`
	Answer []jsonAnswer `json:"Answer"`
}

// jsonStrategy queries the provider's dns-json API.
type jsonStrategy struct {
	endpoint string
	client   *http.Client
}

func (s *jsonStrategy) name() string { return "json" }

func (s *jsonStrategy) attempt(ctx context.Context, host string) ([]string, error) {
	query := url.Values{}
	query.Set("name", host)
	query.Set("type", "A")
	query.Set("do", "false")
	query.Set("cd", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var body jsonResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("unparseable body: %w", err)
	}

	var addrs []string
	for _, answer := range body.Answer {
		// A and AAAA only, and the data must be an address literal.
		// CNAME targets in the answer chain are not chased.
		if answer.Type != 1 && answer.Type != 28 {
			continue
		}
		if net.ParseIP(answer.Data) == nil {
			continue
		}
		addrs = append(addrs, answer.Data)
	}

	return addrs, nil
}
