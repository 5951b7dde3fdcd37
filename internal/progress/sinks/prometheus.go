package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/hiparis-pubscraper/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus metrics.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runsActive   prometheus.Gauge
	runDuration  *prometheus.HistogramVec
	runStep      prometheus.Gauge
	runTotal     prometheus.Gauge

	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	publications *prometheus.CounterVec
	documents    *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubscraper_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubscraper_runs_finished_total",
			Help: "Crawl runs that left the running state, partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubscraper_runs_active",
			Help: "Runs whose work loop is currently active.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pubscraper_run_duration_seconds",
			Help:    "Wall time of finished runs.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}, []string{"result"}),
		runStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubscraper_run_step",
			Help: "Units completed by the most recent run.",
		}),
		runTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubscraper_run_total_steps",
			Help: "Units in the work queue of the most recent run.",
		}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubscraper_units_total",
			Help: "Conference/author units processed, partitioned by conference and result.",
		}, []string{"conference", "result"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pubscraper_unit_duration_seconds",
			Help:    "Time spent per conference/author unit.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80},
		}, []string{"conference"}),
		publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubscraper_publications_total",
			Help: "New publications recorded per conference.",
		}, []string{"conference"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubscraper_documents_total",
			Help: "PDF lookups partitioned by result.",
		}, []string{"result"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsActive,
		s.runDuration,
		s.runStep,
		s.runTotal,
		s.units,
		s.unitDuration,
		s.publications,
		s.documents,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.activate(evt.RunID)
		s.observeCursor(evt)
	case progress.StageRunResume:
		s.activate(evt.RunID)
	case progress.StageRunPause:
		s.deactivate(evt.RunID)
	case progress.StageRunDone:
		s.finish(evt, "success")
	case progress.StageRunError:
		s.finish(evt, "error")
	case progress.StageUnitDone:
		s.units.WithLabelValues(evt.Conference, "done").Inc()
		s.observeUnit(evt)
		if evt.Records > 0 {
			s.publications.WithLabelValues(evt.Conference).Add(float64(evt.Records))
		}
	case progress.StageUnitSkip:
		s.units.WithLabelValues(evt.Conference, "skipped").Inc()
		s.observeUnit(evt)
	case progress.StageDocFound:
		s.documents.WithLabelValues("resolved").Inc()
	case progress.StageDocMissing:
		s.documents.WithLabelValues("missing").Inc()
	}
}

func (s *PrometheusSink) observeUnit(evt progress.Event) {
	if evt.Dur > 0 {
		s.unitDuration.WithLabelValues(evt.Conference).Observe(evt.Dur.Seconds())
	}
	s.observeCursor(evt)
}

func (s *PrometheusSink) observeCursor(evt progress.Event) {
	s.runStep.Set(float64(evt.Step))
	s.runTotal.Set(float64(evt.Total))
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.runsFinished.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	s.deactivate(evt.RunID)
}

func (s *PrometheusSink) activate(id [16]byte) {
	if s.tracker.start(id) {
		s.runsActive.Inc()
	}
}

func (s *PrometheusSink) deactivate(id [16]byte) {
	if s.tracker.stop(id) {
		s.runsActive.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu     sync.Mutex
	active map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) stop(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
