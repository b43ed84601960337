// Package monitor periodically resolves the blocked sites against an
// upstream DNS server and keeps the answers in a bounded TTL cache. The
// hosts table pins those names locally, so queries go straight to the
// upstream rather than through the system resolver.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/dzli1/blocking/internal/blocker/common/clock"
	"github.com/dzli1/blocking/internal/blocker/common/log"
	"github.com/dzli1/blocking/internal/blocker/domain"
	"github.com/dzli1/blocking/internal/blocker/repos/resolvecache"
)

const (
	queryTimeout = 5 * time.Second

	// answer TTLs are clamped into this window before caching
	minTTL = time.Minute
	maxTTL = time.Hour

	fallbackUpstream = "1.1.1.1:53"
)

// Exchanger sends a single DNS query. *dns.Client satisfies it.
type Exchanger interface {
	Exchange(m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// StatusSource yields the current blocklist snapshot.
type StatusSource interface {
	Status() domain.Status
}

// Options wires the monitor.
type Options struct {
	Interval time.Duration
	Upstream string // host:port, taken from resolv.conf when empty
	Source   StatusSource
	Cache    *resolvecache.Cache
	Exchange Exchanger
	Clock    clock.Clock
	Logger   log.Logger
}

// Monitor sweeps the blocklist on a fixed interval.
type Monitor struct {
	interval time.Duration
	upstream string
	source   StatusSource
	cache    *resolvecache.Cache
	exchange Exchanger
	clock    clock.Clock
	logger   log.Logger
}

// New validates the wiring and returns a monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Source == nil {
		return nil, errors.New("monitor: status source is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("monitor: cache is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("monitor: interval must be positive")
	}
	if opts.Exchange == nil {
		opts.Exchange = &dns.Client{Timeout: queryTimeout}
	}
	if opts.Upstream == "" {
		opts.Upstream = ResolvConfUpstream("/etc/resolv.conf")
	}
	if _, _, err := net.SplitHostPort(opts.Upstream); err != nil {
		opts.Upstream = net.JoinHostPort(opts.Upstream, "53")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Monitor{
		interval: opts.Interval,
		upstream: opts.Upstream,
		source:   opts.Source,
		cache:    opts.Cache,
		exchange: opts.Exchange,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}, nil
}

// ResolvConfUpstream picks the first nameserver from path, falling back
// to a public resolver when the file is unreadable or names none.
func ResolvConfUpstream(path string) string {
	cc, err := dns.ClientConfigFromFile(path)
	if err != nil || len(cc.Servers) == 0 {
		return fallbackUpstream
	}
	return net.JoinHostPort(cc.Servers[0], cc.Port)
}

// Run sweeps once immediately, then on every interval until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info(map[string]any{
		"upstream": m.upstream,
		"interval": m.interval.String(),
	}, "resolution monitor started")

	m.sweep(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep refreshes cache entries for every blocked site whose previous
// answer has aged out.
func (m *Monitor) sweep(ctx context.Context) {
	st := m.source.Status()
	now := m.clock.Now()
	var resolved, cached, failed int
	for _, site := range st.Blocked {
		if ctx.Err() != nil {
			return
		}
		if _, ok := m.cache.Get(site, now); ok {
			cached++
			continue
		}
		entry, err := m.lookup(site, now)
		if err != nil {
			failed++
			m.logger.Debug(map[string]any{"site": site, "error": err.Error()}, "upstream lookup failed")
			continue
		}
		m.cache.Set(entry)
		resolved++
		m.logger.Debug(map[string]any{
			"site":  site,
			"addrs": entry.Addrs,
			"ttl":   entry.ExpiresAt.Sub(now).String(),
		}, "site resolved")
	}
	m.logger.Info(map[string]any{
		"enabled":    st.Enabled,
		"sites":      len(st.Blocked),
		"exceptions": len(st.Exceptions),
		"resolved":   resolved,
		"cached":     cached,
		"failed":     failed,
	}, "resolution sweep complete")
}

// lookup queries the upstream for A records and clamps the lowest
// answer TTL into the cache window.
func (m *Monitor) lookup(site string, now time.Time) (resolvecache.Entry, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(site), dns.TypeA)
	resp, _, err := m.exchange.Exchange(q, m.upstream)
	if err != nil {
		return resolvecache.Entry{}, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return resolvecache.Entry{}, fmt.Errorf("upstream returned %s", dns.RcodeToString[resp.Rcode])
	}

	addrs := make([]string, 0, len(resp.Answer))
	ttl := maxTTL
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		addrs = append(addrs, a.A.String())
		if lease := time.Duration(a.Hdr.Ttl) * time.Second; lease < ttl {
			ttl = lease
		}
	}
	if len(addrs) == 0 {
		return resolvecache.Entry{}, fmt.Errorf("no A records for %s", site)
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	return resolvecache.Entry{
		Site:       site,
		Addrs:      addrs,
		ResolvedAt: now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}
