// Package metrics defines the Prometheus instrumentation surface for a LOT
// Context, in the direct-client-golang-usage style of the sockstats and
// keda repos: a small struct of pre-created collectors, registered against
// whatever prometheus.Registerer the embedding application provides.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every collector a Context updates over its lifetime.
type Registry struct {
	SessionsOpened      *prometheus.CounterVec
	SessionsClosed      *prometheus.CounterVec
	BlocksSent          prometheus.Counter
	BlocksReceived      prometheus.Counter
	BlocksRetransmitted prometheus.Counter
	DuplicateBlocks     prometheus.Counter
	WindowsCompleted    *prometheus.CounterVec
	AckTimeouts         prometheus.Counter
	RetriesExhausted    prometheus.Counter
}

// NewRegistry constructs a Registry with unregistered collectors; call
// Register to attach them to a prometheus.Registerer.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		SessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Number of LOT sessions opened, by direction.",
		}, []string{"direction"}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Number of LOT sessions closed, by direction and result.",
		}, []string{"direction", "result"}),
		BlocksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_sent_total",
			Help:      "Number of DATA blocks transmitted.",
		}),
		BlocksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_received_total",
			Help:      "Number of DATA blocks accepted into a receive buffer.",
		}),
		BlocksRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_retransmitted_total",
			Help:      "Number of DATA blocks retransmitted due to a selective ACK; full-window re-emits on timer expiry are counted in blocks_sent_total only.",
		}),
		DuplicateBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_blocks_total",
			Help:      "Number of DATA blocks silently dropped as duplicates.",
		}),
		WindowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_completed_total",
			Help:      "Number of windows fully acknowledged or fully delivered, by direction.",
		}, []string{"direction"}),
		AckTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ack_timeouts_total",
			Help:      "Number of times the receiver's delayed-ACK timer fired.",
		}),
		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_exhausted_total",
			Help:      "Number of send sessions that exhausted max_retries and became Resumable.",
		}),
	}
}

// Register attaches every collector in r to reg. It is safe to call with a
// fresh prometheus.Registry or the global DefaultRegisterer.
func (r *Registry) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		r.SessionsOpened,
		r.SessionsClosed,
		r.BlocksSent,
		r.BlocksReceived,
		r.BlocksRetransmitted,
		r.DuplicateBlocks,
		r.WindowsCompleted,
		r.AckTimeouts,
		r.RetriesExhausted,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
