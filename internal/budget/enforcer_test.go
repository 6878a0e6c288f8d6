package budget

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEnforcer_CapReached(t *testing.T) {
	e := NewEnforcer(Caps{HTTP: 1000}, nil)

	for i := 0; i < 1000; i++ {
		require.True(t, e.CanSpend("govdeals", BandHTTP, 1))
		e.Spend("govdeals", BandHTTP, 1)
	}
	assert.False(t, e.CanSpend("govdeals", BandHTTP, 1))
}

func TestEnforcer_DailyReset(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEnforcer(Caps{LLM: 5}, nil).WithNow(fixedClock(day1))

	for i := 0; i < 5; i++ {
		e.Spend("copart", BandLLM, 1)
	}
	assert.False(t, e.CanSpend("copart", BandLLM, 1))

	e.WithNow(fixedClock(day1.Add(24 * time.Hour)))
	assert.True(t, e.CanSpend("copart", BandLLM, 1))
	assert.Equal(t, 0, e.Usage("copart")[BandLLM].Used)
}

func TestEnforcer_PerSiteOverride(t *testing.T) {
	e := NewEnforcer(Caps{Headless: 10}, map[string]Caps{
		"copart": {Headless: 2},
	})

	e.Spend("copart", BandHeadless, 2)
	assert.False(t, e.CanSpend("copart", BandHeadless, 1))
	assert.True(t, e.CanSpend("govdeals", BandHeadless, 10))
}

func TestEnforcer_SpendDoesNotClamp(t *testing.T) {
	e := NewEnforcer(Caps{Captcha: 1}, nil)

	e.Spend("copart", BandCaptcha, 3)
	u := e.Usage("copart")[BandCaptcha]
	assert.Equal(t, 3, u.Used)
	assert.False(t, e.CanSpend("copart", BandCaptcha, 1))
}

func TestEnforcer_Guard_RefusesBeforeOp(t *testing.T) {
	e := NewEnforcer(Caps{LLM: 0}, nil)

	called := false
	err := e.Guard(context.Background(), "copart", BandLLM, 1, func(context.Context) error {
		called = true
		return nil
	})

	assert.True(t, IsExceeded(err))
	assert.False(t, called)
	assert.Equal(t, 0, e.Usage("copart")[BandLLM].Used)
}

func TestEnforcer_Guard_ChargesOnFailure(t *testing.T) {
	e := NewEnforcer(Caps{LLM: 10}, nil)

	opErr := errors.New("model unavailable")
	err := e.Guard(context.Background(), "copart", BandLLM, 1, func(context.Context) error {
		return opErr
	})

	require.Error(t, err)
	assert.False(t, IsExceeded(err))
	// Failed paid operations are still charged.
	assert.Equal(t, 1, e.Usage("copart")[BandLLM].Used)
}

func TestEnforcer_Guard_ChargesOnSuccess(t *testing.T) {
	e := NewEnforcer(Caps{Headless: 10}, nil)

	err := e.Guard(context.Background(), "copart", BandHeadless, 2, func(context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, e.Usage("copart")[BandHeadless].Used)
}

func TestEnforcer_Guard_ConcurrentReservationsHonorCap(t *testing.T) {
	e := NewEnforcer(Caps{LLM: 5}, nil)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int64
		refused  atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Guard(context.Background(), "copart", BandLLM, 1, func(context.Context) error {
				time.Sleep(5 * time.Millisecond)
				return nil
			})
			switch {
			case err == nil:
				admitted.Add(1)
			case IsExceeded(err):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), admitted.Load())
	assert.Equal(t, int64(45), refused.Load())
	assert.Equal(t, 5, e.Usage("copart")[BandLLM].Used)
}

func TestEnforcer_ConcurrentSpendStaysConsistent(t *testing.T) {
	e := NewEnforcer(Caps{HTTP: 10000}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e.Spend("govdeals", BandHTTP, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5000, e.Usage("govdeals")[BandHTTP].Used)
}

func TestEnforcer_UsageProjection(t *testing.T) {
	noon := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEnforcer(Caps{HTTP: 1000}, nil).WithNow(fixedClock(noon))

	e.Spend("govdeals", BandHTTP, 100)
	u := e.Usage("govdeals")[BandHTTP]

	assert.Equal(t, 100, u.Used)
	assert.InDelta(t, 10.0, u.Percent, 0.001)
	// 100 units in 12h extrapolates to 200 by end of day.
	assert.Equal(t, 200, u.Projected)
}

func TestParseBand(t *testing.T) {
	for _, name := range []string{"http", "headless", "llm", "captcha"} {
		b, ok := ParseBand(name)
		require.True(t, ok, name)
		assert.Equal(t, name, b.String())
	}
	_, ok := ParseBand("premium")
	assert.False(t, ok)
}
