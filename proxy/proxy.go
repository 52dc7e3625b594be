// Package proxy runs the local DNS-compatible UDP service. It
// accepts single-question A queries from allowed clients, drives the
// resolver, and answers with synthesized responses, falling back to
// SERVFAIL instead of silently dropping a client.
package proxy

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/semihalev/zlog/v2"
	"github.com/yl2chen/cidranger"
	"golang.org/x/time/rate"

	"github.com/bigc0127/evoarc-dns/codec"
	"github.com/bigc0127/evoarc-dns/config"
	"github.com/bigc0127/evoarc-dns/resolver"
)

// State is the listener lifecycle state.
type State int32

// Listener states.
const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// ErrAlreadyRunning is returned by Start on a non-stopped proxy.
var ErrAlreadyRunning = errors.New("proxy already running")

// Proxy is the local UDP listener.
type Proxy struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	ranger   cidranger.Ranger
	limiter  *rate.Limiter

	mu      sync.Mutex
	state   State
	conn    *net.UDPConn
	cancel  context.CancelFunc
	queries map[uint64]struct{}
	nextID  uint64
	wg      sync.WaitGroup
}

// New returns a proxy serving cfg.Bind through r.
func New(cfg *config.Config, r *resolver.Resolver) *Proxy {
	p := &Proxy{
		cfg:      cfg,
		resolver: r,
		ranger:   cidranger.NewPCTrieRanger(),
		queries:  make(map[uint64]struct{}),
	}

	for _, cidr := range cfg.AccessList {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			zlog.Error("Access list parse cidr failed", "cidr", cidr, "error", err.Error())
			continue
		}
		_ = p.ranger.Insert(cidranger.NewBasicRangerEntry(*ipnet))
	}

	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	return p
}

// (*Proxy).Start binds the UDP socket and begins serving. A bind
// failure is fatal to Start and leaves the proxy stopped with no
// half-open socket.
func (p *Proxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Stopped {
		return ErrAlreadyRunning
	}
	p.state = Starting

	lc := net.ListenConfig{Control: reuseControl}

	pconn, err := lc.ListenPacket(context.Background(), "udp", p.cfg.Bind)
	if err != nil {
		p.state = Stopped
		return err
	}
	conn := pconn.(*net.UDPConn)

	ctx, cancel := context.WithCancel(context.Background())

	p.conn = conn
	p.cancel = cancel
	p.state = Running

	p.wg.Add(1)
	go p.serve(ctx, conn)

	zlog.Info("DNS proxy listening...", "net", "udp", "addr", conn.LocalAddr().String())

	return nil
}

// (*Proxy).Stop cancels the listener and every in-flight query, then
// waits for them to drain. Calling it while already stopped is a
// no-op.
func (p *Proxy) Stop() {
	p.mu.Lock()

	if p.state != Running {
		p.mu.Unlock()
		return
	}
	p.state = Stopping

	p.cancel()
	_ = p.conn.Close()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.queries = make(map[uint64]struct{})
	p.conn = nil
	p.cancel = nil
	p.state = Stopped
	p.mu.Unlock()

	zlog.Info("DNS proxy stopped")
}

// (*Proxy).State returns the lifecycle state.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// (*Proxy).Running reports whether the proxy serves queries.
func (p *Proxy) Running() bool { return p.State() == Running }

// (*Proxy).ActiveQueries returns the number of in-flight queries.
func (p *Proxy) ActiveQueries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

// (*Proxy).Addr returns the bound address, empty when stopped.
func (p *Proxy) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return ""
	}
	return p.conn.LocalAddr().String()
}

func (p *Proxy) serve(ctx context.Context, conn *net.UDPConn) {
	defer p.wg.Done()

	buf := make([]byte, codec.MaxUDPSize)

	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}

			// receive errors terminate nothing but this datagram
			zlog.Debug("Receive failed", "error", err.Error())
			continue
		}

		if !p.allowed(raddr.IP) {
			udpQueries.WithLabelValues("denied").Inc()
			continue
		}

		if p.limiter != nil && !p.limiter.Allow() {
			udpQueries.WithLabelValues("ratelimited").Inc()
			continue
		}

		query := make([]byte, n)
		copy(query, buf[:n])

		id := p.register()

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.deregister(id)

			p.handle(ctx, conn, raddr, query)
		}()
	}
}

func (p *Proxy) register() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	p.queries[p.nextID] = struct{}{}
	return p.nextID
}

func (p *Proxy) deregister(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.queries, id)
}

func (p *Proxy) allowed(ip net.IP) bool {
	allowed, _ := p.ranger.Contains(ip)
	return allowed
}

func (p *Proxy) handle(ctx context.Context, conn *net.UDPConn, raddr *net.UDPAddr, query []byte) {
	hostname, err := codec.ExtractHostname(query)
	if err != nil {
		zlog.Debug("Query decode failed", "client", raddr.String(), "error", err.Error())
		p.servfail(conn, raddr, query)
		return
	}

	addrs := p.resolver.Resolve(ctx, hostname)
	if len(addrs) == 0 {
		p.servfail(conn, raddr, query)
		return
	}

	resp, err := codec.SynthesizeResponse(query, ipv4Only(addrs), p.cfg.AnswerTTL)
	if err != nil {
		p.servfail(conn, raddr, query)
		return
	}

	if _, err := conn.WriteToUDP(resp, raddr); err != nil {
		zlog.Debug("Send failed", "client", raddr.String(), "error", err.Error())
		return
	}

	udpQueries.WithLabelValues("served").Inc()
}

func (p *Proxy) servfail(conn *net.UDPConn, raddr *net.UDPAddr, query []byte) {
	resp, err := codec.SynthesizeServfail(query)
	if err != nil {
		// not even a header to answer on
		udpQueries.WithLabelValues("dropped").Inc()
		return
	}

	_, _ = conn.WriteToUDP(resp, raddr)
	udpQueries.WithLabelValues("servfail").Inc()
}

// ipv4Only filters addrs down to what an A answer can carry.
func ipv4Only(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			out = append(out, addr)
		}
	}
	return out
}
