package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"factorhub/core/events"
)

var (
	eventCounterOnce sync.Once
	eventCounter     *prometheus.CounterVec
)

func emittedEvents() *prometheus.CounterVec {
	eventCounterOnce.Do(func() {
		eventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "factorhub",
			Name:      "events_emitted_total",
			Help:      "Count of ledger events emitted by the engines, by event type.",
		}, []string{"type"})
		prometheus.MustRegister(eventCounter)
	})
	return eventCounter
}

// CountingEmitter forwards events to the wrapped emitter while counting each
// emission by event type.
type CountingEmitter struct {
	next events.Emitter
}

// NewCountingEmitter wraps next; a nil next falls back to a no-op sink.
func NewCountingEmitter(next events.Emitter) *CountingEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &CountingEmitter{next: next}
}

// Emit counts and forwards the event.
func (c *CountingEmitter) Emit(evt *events.Event) {
	if c == nil || evt == nil {
		return
	}
	emittedEvents().WithLabelValues(evt.Type).Inc()
	c.next.Emit(evt)
}
