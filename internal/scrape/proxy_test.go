package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

func testPool() *ProxyPool {
	return NewProxyPool([]model.ProxyEndpoint{
		{Address: "10.0.0.1:8080", Protocol: "http"},
		{Address: "10.0.0.2:8080", Protocol: "http"},
		{Address: "10.0.0.3:8080", Protocol: "http"},
	})
}

func TestProxyPool_RoundRobin(t *testing.T) {
	p := testPool()

	var seen []string
	for i := 0; i < 6; i++ {
		ep := p.Next()
		require.NotNil(t, ep)
		seen = append(seen, ep.Address)
	}
	assert.Equal(t, []string{
		"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:8080",
		"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:8080",
	}, seen)
}

func TestProxyPool_SkipsBlocked(t *testing.T) {
	p := testPool()
	p.MarkBlocked("10.0.0.2:8080")

	var seen []string
	for i := 0; i < 4; i++ {
		ep := p.Next()
		require.NotNil(t, ep)
		seen = append(seen, ep.Address)
	}
	assert.NotContains(t, seen, "10.0.0.2:8080")
}

func TestProxyPool_BlocksAfterConsecutiveFailures(t *testing.T) {
	p := testPool()

	for i := 0; i < blockAfterFailures; i++ {
		p.ReportFailure("10.0.0.1:8080")
	}

	for _, ep := range p.Snapshot() {
		if ep.Address == "10.0.0.1:8080" {
			assert.Equal(t, model.ProxyBlocked, ep.Status)
		} else {
			assert.Equal(t, model.ProxyActive, ep.Status)
		}
	}
}

func TestProxyPool_SuccessResetsFailureStreak(t *testing.T) {
	p := testPool()

	p.ReportFailure("10.0.0.1:8080")
	p.ReportFailure("10.0.0.1:8080")
	p.ReportSuccess("10.0.0.1:8080")
	p.ReportFailure("10.0.0.1:8080")
	p.ReportFailure("10.0.0.1:8080")

	for _, ep := range p.Snapshot() {
		if ep.Address == "10.0.0.1:8080" {
			assert.Equal(t, model.ProxyActive, ep.Status)
		}
	}
}

func TestProxyPool_SuccessRateDecays(t *testing.T) {
	p := testPool()

	p.ReportFailure("10.0.0.1:8080")
	for _, ep := range p.Snapshot() {
		if ep.Address == "10.0.0.1:8080" {
			assert.InDelta(t, 0.8, ep.SuccessRate, 0.001)
		}
	}
}

func TestProxyPool_EmptyAndExhausted(t *testing.T) {
	assert.Nil(t, NewProxyPool(nil).Next())

	p := testPool()
	for _, ep := range p.Snapshot() {
		p.MarkBlocked(ep.Address)
	}
	assert.Nil(t, p.Next())
}
