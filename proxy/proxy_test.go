package proxy

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigc0127/evoarc-dns/codec"
	"github.com/bigc0127/evoarc-dns/config"
	"github.com/bigc0127/evoarc-dns/resolver"
)

func init() {
	logger := zlog.NewStructured()
	logger.SetWriter(zlog.StdoutTerminal())
	logger.SetLevel(zlog.LevelDebug)
	zlog.SetDefault(logger)
}

type jsonBody struct {
	Status int `json:"Status"`
	Answer []struct {
		Type int    `json:"type"`
		Data string `json:"data"`
	} `json:"Answer"`
}

func jsonUpstream(t *testing.T, data map[string][]string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body jsonBody
		for _, addr := range data[r.URL.Query().Get("name")] {
			body.Answer = append(body.Answer, struct {
				Type int    `json:"type"`
				Data string `json:"data"`
			}{Type: 1, Data: addr})
		}

		w.Header().Set("Content-Type", "application/dns-json")
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func testProxy(t *testing.T, data map[string][]string) *Proxy {
	t.Helper()

	up := jsonUpstream(t, data)
	t.Cleanup(up.Close)

	cfg := new(config.Config)
	cfg.Bind = "127.0.0.1:0"
	cfg.AccessList = []string{"127.0.0.0/8", "::1/128"}
	cfg.CacheSize = 1024
	cfg.CacheTTL.Duration = 300 * time.Second
	cfg.AnswerTTL = 300
	cfg.QueryTimeout.Duration = 2 * time.Second
	cfg.ResolveTimeout.Duration = 2 * time.Second

	r := resolver.NewWithProvider(cfg, resolver.Provider{Name: "test", JSONEndpoint: up.URL})

	p := New(cfg, r)
	require.NoError(t, p.Start())
	t.Cleanup(p.Stop)

	return p
}

func exchange(t *testing.T, addr string, query []byte) []byte {
	t.Helper()

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(query)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	return buf[:n]
}

func Test_ProxyServesQuery(t *testing.T) {
	p := testProxy(t, map[string][]string{"example.com": {"93.184.216.34"}})

	query, err := codec.EncodeQuery("example.com")
	require.NoError(t, err)

	resp := exchange(t, p.Addr(), query)

	assert.Equal(t, query[:2], resp[:2])
	assert.Equal(t, []string{"93.184.216.34"}, codec.ParseResponse(resp))

	msg := new(dns.Msg)
	require.NoError(t, msg.Unpack(resp))
	assert.True(t, msg.Response)
	assert.Equal(t, dns.RcodeSuccess, msg.Rcode)
}

func Test_ProxyServfailOnResolutionFailure(t *testing.T) {
	p := testProxy(t, map[string][]string{})

	query, err := codec.EncodeQuery("nonexistent.invalid")
	require.NoError(t, err)

	resp := exchange(t, p.Addr(), query)

	msg := new(dns.Msg)
	require.NoError(t, msg.Unpack(resp))
	assert.Equal(t, dns.RcodeServerFailure, msg.Rcode)
}

func Test_ProxyServfailOnGarbage(t *testing.T) {
	p := testProxy(t, map[string][]string{})

	// header-sized but no question section
	garbage := make([]byte, 12)
	garbage[0], garbage[1] = 0xAB, 0xCD

	resp := exchange(t, p.Addr(), garbage)

	assert.Equal(t, []byte{0xAB, 0xCD}, resp[:2])
	assert.NotZero(t, resp[2]&0x80)
	assert.Equal(t, byte(2), resp[3]&0x0F)
}

func Test_ProxyTinyDatagrams(t *testing.T) {
	p := testProxy(t, map[string][]string{"example.com": {"192.0.2.1"}})

	conn, err := net.Dial("udp", p.Addr())
	require.NoError(t, err)
	defer conn.Close()

	// 0 and 1 byte datagrams must never crash the listener; no
	// response is acceptable
	_, err = conn.Write(nil)
	if err == nil {
		_, _ = conn.Write([]byte{0x00})
	}

	// listener still alive afterwards
	query, err := codec.EncodeQuery("example.com")
	require.NoError(t, err)

	resp := exchange(t, p.Addr(), query)
	assert.Equal(t, []string{"192.0.2.1"}, codec.ParseResponse(resp))
}

func Test_ProxyLifecycle(t *testing.T) {
	cfg := new(config.Config)
	cfg.Bind = "127.0.0.1:0"
	cfg.AccessList = []string{"127.0.0.0/8"}
	cfg.CacheSize = 256
	cfg.CacheTTL.Duration = time.Minute
	cfg.AnswerTTL = 300
	cfg.QueryTimeout.Duration = time.Second
	cfg.ResolveTimeout.Duration = time.Second

	r := resolver.NewWithProvider(cfg, resolver.Provider{Name: "test", Wire: true, Endpoint: "http://127.0.0.1:0"})
	p := New(cfg, r)

	assert.Equal(t, Stopped, p.State())
	assert.Equal(t, "stopped", p.State().String())

	require.NoError(t, p.Start())
	assert.Equal(t, Running, p.State())
	assert.True(t, p.Running())
	assert.NotEmpty(t, p.Addr())

	// double start fails, state unchanged
	assert.ErrorIs(t, p.Start(), ErrAlreadyRunning)
	assert.Equal(t, Running, p.State())

	p.Stop()
	assert.Equal(t, Stopped, p.State())
	assert.Zero(t, p.ActiveQueries())
	assert.Empty(t, p.Addr())

	// stop is idempotent
	p.Stop()
	assert.Equal(t, Stopped, p.State())

	// restart works
	require.NoError(t, p.Start())
	assert.Equal(t, Running, p.State())
	p.Stop()
}

func Test_ProxyRebindSamePort(t *testing.T) {
	cfg := new(config.Config)
	cfg.Bind = "127.0.0.1:0"
	cfg.AccessList = []string{"127.0.0.0/8"}
	cfg.CacheSize = 256
	cfg.CacheTTL.Duration = time.Minute
	cfg.AnswerTTL = 300
	cfg.QueryTimeout.Duration = time.Second
	cfg.ResolveTimeout.Duration = time.Second

	r := resolver.NewWithProvider(cfg, resolver.Provider{Name: "test", Wire: true, Endpoint: "http://127.0.0.1:0"})
	p := New(cfg, r)

	require.NoError(t, p.Start())
	addr := p.Addr()
	p.Stop()

	// the reusable socket lets a restart claim the exact endpoint
	// the previous run held, with no settle delay
	cfg.Bind = addr
	require.NoError(t, p.Start())
	assert.Equal(t, addr, p.Addr())
	p.Stop()
}

func Test_ProxyRateLimit(t *testing.T) {
	up := jsonUpstream(t, map[string][]string{"example.com": {"93.184.216.34"}})
	t.Cleanup(up.Close)

	cfg := new(config.Config)
	cfg.Bind = "127.0.0.1:0"
	cfg.AccessList = []string{"127.0.0.0/8", "::1/128"}
	cfg.RateLimit = 1
	cfg.CacheSize = 1024
	cfg.CacheTTL.Duration = time.Minute
	cfg.AnswerTTL = 300
	cfg.QueryTimeout.Duration = 2 * time.Second
	cfg.ResolveTimeout.Duration = 2 * time.Second

	r := resolver.NewWithProvider(cfg, resolver.Provider{Name: "test", JSONEndpoint: up.URL})
	p := New(cfg, r)
	require.NoError(t, p.Start())
	t.Cleanup(p.Stop)

	query, err := codec.EncodeQuery("example.com")
	require.NoError(t, err)

	// the burst token covers the first query
	resp := exchange(t, p.Addr(), query)
	assert.Equal(t, []string{"93.184.216.34"}, codec.ParseResponse(resp))

	// queries past the limit are dropped without an answer, not
	// answered with SERVFAIL
	conn, err := net.Dial("udp", p.Addr())
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		_, err = conn.Write(query)
		require.NoError(t, err)
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(400*time.Millisecond)))
	buf := make([]byte, 512)
	_, err = conn.Read(buf)
	require.Error(t, err)
	assert.True(t, err.(net.Error).Timeout())

	// once the limiter refills the proxy serves again
	time.Sleep(1200 * time.Millisecond)

	resp = exchange(t, p.Addr(), query)
	assert.Equal(t, []string{"93.184.216.34"}, codec.ParseResponse(resp))
}

func Test_ProxyAccessList(t *testing.T) {
	cfg := new(config.Config)
	cfg.Bind = "127.0.0.1:0"
	cfg.AccessList = []string{"127.0.0.0/8", "::1/128"}
	cfg.CacheSize = 256
	cfg.CacheTTL.Duration = time.Minute

	r := resolver.NewWithProvider(cfg, resolver.Provider{Name: "test", Wire: true, Endpoint: "http://127.0.0.1:0"})
	p := New(cfg, r)

	assert.True(t, p.allowed(net.ParseIP("127.0.0.1")))
	assert.True(t, p.allowed(net.ParseIP("127.255.255.254")))
	assert.True(t, p.allowed(net.ParseIP("::1")))

	assert.False(t, p.allowed(net.ParseIP("192.0.2.1")))
	assert.False(t, p.allowed(net.ParseIP("8.8.8.8")))
	assert.False(t, p.allowed(net.ParseIP("2001:db8::1")))

	// a widened access list admits the matching range only
	cfg.AccessList = []string{"192.0.2.0/24"}
	p = New(cfg, r)

	assert.True(t, p.allowed(net.ParseIP("192.0.2.42")))
	assert.False(t, p.allowed(net.ParseIP("127.0.0.1")))
}

func Test_ProxyBindFailure(t *testing.T) {
	cfg := new(config.Config)
	cfg.Bind = "256.0.0.1:bad"
	cfg.AccessList = []string{"127.0.0.0/8"}
	cfg.CacheSize = 256
	cfg.CacheTTL.Duration = time.Minute

	r := resolver.NewWithProvider(cfg, resolver.Provider{Name: "test", Wire: true, Endpoint: "http://127.0.0.1:0"})
	p := New(cfg, r)

	assert.Error(t, p.Start())
	assert.Equal(t, Stopped, p.State())
}

func Test_ProxyIPv6Filtered(t *testing.T) {
	p := testProxy(t, map[string][]string{"dual.example.com": {"2606:2800:220:1::1", "93.184.216.34"}})

	query, err := codec.EncodeQuery("dual.example.com")
	require.NoError(t, err)

	resp := exchange(t, p.Addr(), query)

	// only the IPv4 answer survives synthesis
	assert.Equal(t, []string{"93.184.216.34"}, codec.ParseResponse(resp))
}
