package scrape

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// rateAlpha is the smoothing factor for the rolling success rate.
const rateAlpha = 0.2

// blockAfterFailures flips an endpoint to blocked once this many consecutive
// failures accumulate.
const blockAfterFailures = 3

// proxyEntry wraps one endpoint with its own lock so concurrent site tasks
// never serialize on unrelated proxies.
type proxyEntry struct {
	mu          sync.Mutex
	ep          model.ProxyEndpoint
	consecFails int
}

// ProxyPool rotates over active proxy endpoints and tracks their health.
type ProxyPool struct {
	mu      sync.Mutex
	entries []*proxyEntry
	next    int
}

// NewProxyPool creates a pool from the configured endpoints.
func NewProxyPool(endpoints []model.ProxyEndpoint) *ProxyPool {
	p := &ProxyPool{}
	for _, ep := range endpoints {
		if ep.Status == "" {
			ep.Status = model.ProxyActive
		}
		if ep.SuccessRate == 0 {
			ep.SuccessRate = 1.0
		}
		p.entries = append(p.entries, &proxyEntry{ep: ep})
	}
	return p
}

// Next returns the next non-blocked endpoint by rotation, or nil when the
// pool is empty or fully blocked (callers fetch without a proxy then).
func (p *ProxyPool) Next() *model.ProxyEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	for range p.entries {
		e := p.entries[p.next%len(p.entries)]
		p.next++
		e.mu.Lock()
		if e.ep.Status != model.ProxyBlocked {
			ep := e.ep
			e.mu.Unlock()
			return &ep
		}
		e.mu.Unlock()
	}
	return nil
}

func (p *ProxyPool) find(address string) *proxyEntry {
	for _, e := range p.entries {
		if e.ep.Address == address {
			return e
		}
	}
	return nil
}

// ReportSuccess updates the rolling success rate after a successful fetch.
func (p *ProxyPool) ReportSuccess(address string) {
	e := p.find(address)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecFails = 0
	e.ep.SuccessRate = e.ep.SuccessRate*(1-rateAlpha) + rateAlpha
}

// ReportFailure updates the rolling success rate and blocks the endpoint
// after repeated consecutive failures.
func (p *ProxyPool) ReportFailure(address string) {
	e := p.find(address)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecFails++
	e.ep.SuccessRate = e.ep.SuccessRate * (1 - rateAlpha)
	if e.consecFails >= blockAfterFailures && e.ep.Status != model.ProxyBlocked {
		e.ep.Status = model.ProxyBlocked
		zap.L().Warn("proxy: blocked after repeated failures",
			zap.String("address", e.ep.Address),
			zap.Float64("success_rate", e.ep.SuccessRate),
		)
	}
}

// MarkBlocked immediately flips an endpoint to blocked (e.g. after a
// detected anti-bot challenge through it).
func (p *ProxyPool) MarkBlocked(address string) {
	e := p.find(address)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ep.Status = model.ProxyBlocked
}

// Snapshot returns a copy of the pool state for observability.
func (p *ProxyPool) Snapshot() []model.ProxyEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ProxyEndpoint, 0, len(p.entries))
	for _, e := range p.entries {
		e.mu.Lock()
		out = append(out, e.ep)
		e.mu.Unlock()
	}
	return out
}
