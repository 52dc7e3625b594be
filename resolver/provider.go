package resolver

import (
	"sort"
	"strings"
)

// Provider identifies an upstream DoH endpoint and which query APIs
// it speaks. Every provider speaks at least one API; the system
// resolver fallback is always available regardless of provider.
type Provider struct {
	Name         string
	Endpoint     string // wire-format POST endpoint
	JSONEndpoint string // JSON query endpoint, empty if unsupported
	Wire         bool
}

// (Provider).JSON reports whether the provider speaks the dns-json API.
func (p Provider) JSON() bool { return p.JSONEndpoint != "" }

var providers = map[string]Provider{
	"cloudflare": {
		Name:         "cloudflare",
		Endpoint:     "https://cloudflare-dns.com/dns-query",
		JSONEndpoint: "https://cloudflare-dns.com/dns-query",
		Wire:         true,
	},
	"google": {
		Name:         "google",
		Endpoint:     "https://dns.google/dns-query",
		JSONEndpoint: "https://dns.google/resolve",
		Wire:         true,
	},
	// quad9 has no dns-json API, queries go straight to wire format
	"quad9": {
		Name:     "quad9",
		Endpoint: "https://dns.quad9.net/dns-query",
		Wire:     true,
	},
}

// LookupProvider returns the provider registered under name.
func LookupProvider(name string) (Provider, bool) {
	p, ok := providers[strings.ToLower(name)]
	return p, ok
}

// ProviderNames returns the registered provider names sorted.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
