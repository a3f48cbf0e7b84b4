package circuitbreaker

import (
	"sync"

	"fulfillment/pkg/metrics"

	"go.uber.org/zap"
)

// Registry owns the process's breakers, keyed by the protected call-site
// name. It is created once by the composition root and injected into call
// sites; there are no package-level breakers.
type Registry struct {
	defaults Config
	logger   *zap.SugaredLogger
	m        *metrics.Metrics

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry(defaults Config, logger *zap.SugaredLogger, m *metrics.Metrics) *Registry {
	return &Registry{
		defaults: defaults.withDefaults(),
		logger:   logger,
		m:        m,
		breakers: make(map[string]*Breaker),
	}
}

// GetOrCreate returns the breaker for name, creating it with the registry
// defaults on first use.
func (r *Registry) GetOrCreate(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok = r.breakers[name]; ok {
		return b
	}

	b = New(name, r.defaults)
	b.onChange = r.stateChanged
	b.onReject = r.callRejected
	r.breakers[name] = b

	r.logger.Infof("[breaker %s] created, threshold=%d resetTimeout=%s",
		name, r.defaults.Threshold, r.defaults.ResetTimeout)

	return b
}

// Reset forces a named breaker closed. No-op for unknown names.
func (r *Registry) Reset(name string) {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		b.Reset()
	}
}

// States snapshots every breaker's state for health reporting.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}

func (r *Registry) stateChanged(name string, from, to State) {
	r.logger.Warnf("[breaker %s] %s -> %s", name, from, to)
	if r.m != nil {
		r.m.Breaker.TransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
		r.m.Breaker.State.WithLabelValues(name).Set(stateGaugeValue(to))
	}
}

func (r *Registry) callRejected(name string) {
	if r.m != nil {
		r.m.Breaker.RejectedTotal.WithLabelValues(name).Inc()
	}
}

func stateGaugeValue(s State) float64 {
	switch s {
	case StateOpen:
		return 2
	case StateHalfOpen:
		return 1
	default:
		return 0
	}
}
