package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() *Registry {
	return NewRegistry(Config{Threshold: 2, ResetTimeout: time.Minute, MonitoringWindow: time.Minute},
		zap.NewNop().Sugar(), nil)
}

func TestRegistry_GetOrCreateReturnsSameInstance(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	a := r.GetOrCreate("payment-gateway")
	b := r.GetOrCreate("payment-gateway")
	c := r.GetOrCreate("inventory")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "payment-gateway", a.Name())
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	var wg sync.WaitGroup
	results := make([]*Breaker, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestRegistry_States(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	r.GetOrCreate("a")
	r.GetOrCreate("b").Trip()

	states := r.States()
	require.Len(t, states, 2)
	assert.Equal(t, StateClosed, states["a"])
	assert.Equal(t, StateOpen, states["b"])
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()

	b := r.GetOrCreate("flaky")
	b.Trip()
	require.Equal(t, StateOpen, b.State())

	r.Reset("flaky")
	assert.Equal(t, StateClosed, b.State())

	// unknown names are ignored
	r.Reset("missing")
}

func TestRegistry_AppliesDefaults(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Config{}, zap.NewNop().Sugar(), nil)
	b := r.GetOrCreate("x")
	assert.Equal(t, DefaultConfig().Threshold, b.cfg.Threshold)
}
