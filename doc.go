/*
Package main implements evoarc-dns - a local DNS-over-HTTPS resolution
layer with a DNS-compatible UDP proxy.

evoarc-dns translates plaintext hostname lookups into encrypted HTTPS
queries against a configurable DoH provider and serves the results to
local clients over a restricted RFC 1035 subset:

  - Multi-strategy resolution: dns-json API, wire-format POST, plain
    DNS forwarders, system resolver fallback
  - Result caching with a fixed TTL, cleared on provider switch
  - Local UDP proxy on an unprivileged port, loopback-only by default
  - Optional HTTP/3 transport for wire-format queries
  - Control HTTP API with Prometheus metrics
  - Live provider switching via config file reload

Resolution order for each query:

 1. Cache - non-expired entries answer immediately
 2. JSON - provider dns-json API, when supported
 3. Wire - raw RFC 1035 query POSTed over HTTPS
 4. Forward - configured plain DNS fallback servers
 5. System - the platform resolver

Usage:

	evoarc-dns serve [flags]
	evoarc-dns version

Flags:

	-c, --config string   Location of config file (default "evoarc-dns.conf")

Example:

	# Start with default config, generating it on first run
	evoarc-dns serve

	# Start with custom config
	evoarc-dns serve -c /etc/evoarc-dns/evoarc-dns.conf
*/
package main // import "github.com/bigc0127/evoarc-dns"
