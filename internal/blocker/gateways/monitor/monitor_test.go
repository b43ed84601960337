package monitor

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzli1/blocking/internal/blocker/common/clock"
	"github.com/dzli1/blocking/internal/blocker/domain"
	"github.com/dzli1/blocking/internal/blocker/repos/resolvecache"
)

type fakeSource struct{ st domain.Status }

func (f *fakeSource) Status() domain.Status { return f.st }

type fakeExchanger struct {
	responses map[string]*dns.Msg
	err       error
	calls     []string
}

func (f *fakeExchanger) Exchange(m *dns.Msg, _ string) (*dns.Msg, time.Duration, error) {
	name := m.Question[0].Name
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, 0, f.err
	}
	resp, ok := f.responses[name]
	if !ok {
		r := new(dns.Msg)
		r.SetRcode(m, dns.RcodeNameError)
		return r, 0, nil
	}
	return resp, 0, nil
}

func aResponse(name string, ttl uint32, addrs ...string) *dns.Msg {
	r := new(dns.Msg)
	r.Rcode = dns.RcodeSuccess
	for _, addr := range addrs {
		r.Answer = append(r.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
			A:   net.ParseIP(addr),
		})
	}
	return r
}

func newTestMonitor(t *testing.T, sites []string, ex *fakeExchanger) (*Monitor, *resolvecache.Cache, *clock.MockClock) {
	t.Helper()
	cache, err := resolvecache.New(16)
	require.NoError(t, err)
	clk := &clock.MockClock{CurrentTime: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	mon, err := New(Options{
		Interval: time.Minute,
		Upstream: "10.0.0.1:53",
		Source: &fakeSource{st: domain.Status{
			Enabled:    true,
			Blocked:    sites,
			Exceptions: []domain.ExceptionView{},
			Effective:  sites,
		}},
		Cache:    cache,
		Exchange: ex,
		Clock:    clk,
	})
	require.NoError(t, err)
	return mon, cache, clk
}

func TestNewValidatesWiring(t *testing.T) {
	cache, err := resolvecache.New(4)
	require.NoError(t, err)
	src := &fakeSource{}

	_, err = New(Options{Interval: time.Minute, Cache: cache})
	assert.Error(t, err)

	_, err = New(Options{Interval: time.Minute, Source: src})
	assert.Error(t, err)

	_, err = New(Options{Source: src, Cache: cache})
	assert.Error(t, err)
}

func TestNewAppendsDefaultPort(t *testing.T) {
	cache, err := resolvecache.New(4)
	require.NoError(t, err)

	mon, err := New(Options{
		Interval: time.Minute,
		Upstream: "9.9.9.9",
		Source:   &fakeSource{},
		Cache:    cache,
		Exchange: &fakeExchanger{},
	})

	require.NoError(t, err)
	assert.Equal(t, "9.9.9.9:53", mon.upstream)
}

func TestSweepPopulatesCache(t *testing.T) {
	ex := &fakeExchanger{responses: map[string]*dns.Msg{
		"facebook.com.": aResponse("facebook.com.", 300, "157.240.1.35"),
		"reddit.com.":   aResponse("reddit.com.", 30, "151.101.1.140", "151.101.65.140"),
	}}
	mon, cache, clk := newTestMonitor(t, []string{"facebook.com", "reddit.com"}, ex)

	mon.sweep(context.Background())

	now := clk.Now()
	entry, ok := cache.Get("facebook.com", now)
	require.True(t, ok)
	assert.Equal(t, []string{"157.240.1.35"}, entry.Addrs)
	assert.Equal(t, now.Add(5*time.Minute), entry.ExpiresAt)

	entry, ok = cache.Get("reddit.com", now)
	require.True(t, ok)
	assert.Len(t, entry.Addrs, 2)
	// a 30s answer is clamped up to the floor
	assert.Equal(t, now.Add(time.Minute), entry.ExpiresAt)
}

func TestSweepClampsLongTTLs(t *testing.T) {
	ex := &fakeExchanger{responses: map[string]*dns.Msg{
		"example.com.": aResponse("example.com.", 86400, "93.184.216.34"),
	}}
	mon, cache, clk := newTestMonitor(t, []string{"example.com"}, ex)

	mon.sweep(context.Background())

	entry, ok := cache.Get("example.com", clk.Now())
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(time.Hour), entry.ExpiresAt)
}

func TestSweepSkipsLiveEntries(t *testing.T) {
	ex := &fakeExchanger{responses: map[string]*dns.Msg{
		"facebook.com.": aResponse("facebook.com.", 300, "157.240.1.35"),
	}}
	mon, _, clk := newTestMonitor(t, []string{"facebook.com"}, ex)

	mon.sweep(context.Background())
	require.Len(t, ex.calls, 1)

	mon.sweep(context.Background())
	assert.Len(t, ex.calls, 1, "live entry should not be re-queried")

	clk.Advance(6 * time.Minute)
	mon.sweep(context.Background())
	assert.Len(t, ex.calls, 2, "expired entry should be refreshed")
}

func TestSweepSurvivesLookupFailures(t *testing.T) {
	ex := &fakeExchanger{err: errors.New("i/o timeout")}
	mon, cache, clk := newTestMonitor(t, []string{"facebook.com", "reddit.com"}, ex)

	mon.sweep(context.Background())

	assert.Len(t, ex.calls, 2)
	_, ok := cache.Get("facebook.com", clk.Now())
	assert.False(t, ok)
}

func TestLookupRejectsEmptyAnswers(t *testing.T) {
	ex := &fakeExchanger{responses: map[string]*dns.Msg{
		"empty.example.": aResponse("empty.example.", 300),
	}}
	mon, _, clk := newTestMonitor(t, nil, ex)

	_, err := mon.lookup("empty.example", clk.Now())
	assert.ErrorContains(t, err, "no A records")

	_, err = mon.lookup("missing.example", clk.Now())
	assert.ErrorContains(t, err, "NXDOMAIN")
}

func TestResolvConfUpstream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 10.1.2.3\nnameserver 10.4.5.6\n"), 0o644))

	assert.Equal(t, "10.1.2.3:53", ResolvConfUpstream(path))
	assert.Equal(t, fallbackUpstream, ResolvConfUpstream(filepath.Join(dir, "missing.conf")))
}

func TestRunStopsOnCancel(t *testing.T) {
	mon, _, _ := newTestMonitor(t, nil, &fakeExchanger{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}
