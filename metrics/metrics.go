package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	prometheus.Collector
}

type Metrics struct {
	// MessagesCount counts guild messages received from the host.
	MessagesCount Observer
	// CommandCount counts command invocations, labeled by command name.
	CommandCount Observer
	// CraftCount counts completed crafting sessions.
	CraftCount Observer
	// SlapCount counts resolved slaps, labeled by outcome.
	SlapCount Observer
	// ClaimCount counts successful daily claims.
	ClaimCount Observer
	// MuteFailures counts host mute calls that failed.
	MuteFailures Observer
	// MuteSeconds is the distribution of drawn mute durations.
	MuteSeconds Observer
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesCount,
		m.CommandCount,
		m.CraftCount,
		m.SlapCount,
		m.ClaimCount,
		m.MuteFailures,
		m.MuteSeconds,
	}
}

// New creates the game metrics.
// They are not registered with any registry.
func New() *Metrics {
	return &Metrics{
		MessagesCount: NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "brick",
					Subsystem: "host",
					Name:      "messages",
					Help:      "Number of guild messages received.",
				},
			),
		),
		CommandCount: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "brick",
					Subsystem: "host",
					Name:      "commands",
					Help:      "Number of command invocations by command.",
				},
				[]string{"command"},
			),
		),
		CraftCount: NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "brick",
					Subsystem: "game",
					Name:      "crafted",
					Help:      "Number of bricks finished crafting.",
				},
			),
		),
		SlapCount: NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "brick",
					Subsystem: "game",
					Name:      "slaps",
					Help:      "Number of slaps by outcome, either hit or backfire.",
				},
				[]string{"outcome"},
			),
		),
		ClaimCount: NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "brick",
					Subsystem: "game",
					Name:      "claims",
					Help:      "Number of successful daily claims.",
				},
			),
		),
		MuteFailures: NewPromCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: "brick",
					Subsystem: "game",
					Name:      "mute_failures",
					Help:      "Number of times the host failed to mute a slapped user.",
				},
			),
		),
		MuteSeconds: NewPromHistogram(
			prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Buckets:   []float64{5, 10, 30, 60, 120, 300, 600},
					Namespace: "brick",
					Subsystem: "game",
					Name:      "mute_seconds",
					Help:      "Durations of mutes resulting from slaps in seconds.",
				},
			),
		),
	}
}
