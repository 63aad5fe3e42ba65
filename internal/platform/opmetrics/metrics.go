package opmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "walletd"

type OpStat struct {
	Count        int   `json:"count"`
	Errors       int   `json:"errors"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
	MaxLatencyMs int64 `json:"max_latency_ms"`
}

type opState struct {
	count   int
	errors  int
	totalNs int64
	maxNs   int64
}

// Recorder tracks forwarded daemon commands both as prometheus collectors and
// as an in-process snapshot for diagnostics.
type Recorder struct {
	commands  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	lifecycle *prometheus.CounterVec

	mu  sync.Mutex
	ops map[string]*opState
}

// New registers the collectors on reg. A nil reg keeps them unregistered.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Daemon commands by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent holding the daemon handle per operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 9),
		}, []string{"operation"}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Daemon lifecycle transitions.",
		}, []string{"event"}),
		ops: make(map[string]*opState),
	}
	if reg != nil {
		reg.MustRegister(r.commands, r.latency, r.lifecycle)
	}
	return r
}

// RecordCommand records one command. outcome is "ok" or an error kind.
func (r *Recorder) RecordCommand(operation, outcome string, started time.Time) {
	if r == nil {
		return
	}
	elapsed := time.Since(started)
	r.commands.WithLabelValues(operation, outcome).Inc()
	r.latency.WithLabelValues(operation).Observe(elapsed.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		st = &opState{}
		r.ops[operation] = st
	}
	st.count++
	if outcome != OutcomeOK {
		st.errors++
	}
	st.totalNs += elapsed.Nanoseconds()
	if elapsed.Nanoseconds() > st.maxNs {
		st.maxNs = elapsed.Nanoseconds()
	}
}

func (r *Recorder) RecordLifecycle(event string) {
	if r == nil {
		return
	}
	r.lifecycle.WithLabelValues(event).Inc()
}

func (r *Recorder) Snapshot() map[string]OpStat {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OpStat, len(r.ops))
	for name, st := range r.ops {
		avg := int64(0)
		if st.count > 0 {
			avg = st.totalNs / int64(st.count) / int64(time.Millisecond)
		}
		out[name] = OpStat{
			Count:        st.count,
			Errors:       st.errors,
			AvgLatencyMs: avg,
			MaxLatencyMs: st.maxNs / int64(time.Millisecond),
		}
	}
	return out
}

const (
	OutcomeOK = "ok"

	EventStarted     = "started"
	EventStartFailed = "start_failed"
	EventStopped     = "stopped"
	EventDied        = "died"
	EventPanicked    = "panicked"
)
