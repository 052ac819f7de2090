package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/core"
	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sheetflow"

// Observer records workflow runs as Prometheus metrics. It implements core.Observer and owns its own
// registry so several runs in one process never collide with the default registerer.
type Observer struct {
	registry *prometheus.Registry

	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	workflowsTotal  *prometheus.CounterVec
	stepsInProgress prometheus.Gauge

	mu      sync.Mutex
	started map[int]time.Time
	now     func() time.Time
}

var _ core.Observer = (*Observer)(nil)

func NewObserver() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),

		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of workflow steps finished, by type and result status",
			},
			[]string{"step_type", "status"},
		),

		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time spent executing a step, including its remote request",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"step_type"},
		),

		workflowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflows_total",
				Help:      "Total number of workflow runs, by final status",
			},
			[]string{"status"},
		),

		stepsInProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "steps_in_progress",
				Help:      "Number of steps currently executing",
			},
		),

		started: make(map[int]time.Time),
		now:     time.Now,
	}

	o.registry.MustRegister(o.stepsTotal, o.stepDuration, o.workflowsTotal, o.stepsInProgress)
	return o
}

func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

func (o *Observer) OnStepStart(index int, step steprunner.Step) {
	o.mu.Lock()
	o.started[index] = o.now()
	o.mu.Unlock()
	o.stepsInProgress.Inc()
}

func (o *Observer) OnStepComplete(index int, step steprunner.Step, result *types.StepResult) {
	stepType := string(step.Type())
	o.stepsTotal.WithLabelValues(stepType, string(result.Status)).Inc()

	o.mu.Lock()
	start, ok := o.started[index]
	delete(o.started, index)
	o.mu.Unlock()

	// Disabled steps complete without starting.
	if !ok {
		return
	}
	o.stepsInProgress.Dec()
	o.stepDuration.WithLabelValues(stepType).Observe(o.now().Sub(start).Seconds())
}

// OnStepError is a no-op: the failed result has already been counted by OnStepComplete.
func (o *Observer) OnStepError(int, steprunner.Step, error) {}

func (o *Observer) OnWorkflowComplete(snapshot core.Snapshot) {
	o.workflowsTotal.WithLabelValues(string(core.StatusCompleted)).Inc()
}

func (o *Observer) OnWorkflowError(snapshot core.Snapshot, err error) {
	o.workflowsTotal.WithLabelValues(string(snapshot.Status)).Inc()
}

func (o *Observer) OnWorkflowCancelled(snapshot core.Snapshot) {
	o.workflowsTotal.WithLabelValues(string(core.StatusCancelled)).Inc()
}

// WriteTextfile writes every metric in the node_exporter textfile format.
func (o *Observer) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, o.registry); err != nil {
		return fmt.Errorf("writing metrics to %q: %w", path, err)
	}
	return nil
}
