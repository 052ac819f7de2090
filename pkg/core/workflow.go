package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
	"github.com/google/uuid"
)

// StepBuilder turns a stored step config into a live Step.
type StepBuilder func(cfg StepConfig) (steprunner.Step, error)

// NewStepBuilder returns a StepBuilder that resolves configs through the step registry. Each step gets a
// logger scoped to its id and type.
func NewStepBuilder(logger types.Logger, processor types.Processor) StepBuilder {
	if logger == nil {
		logger = types.NopLogger()
	}
	return func(cfg StepConfig) (steprunner.Step, error) {
		scopedLogger := logger.With().Str("step_id", cfg.ID).Str("step_type", string(cfg.Type)).Logger()
		return steprunner.NewStep(types.ExecutionContext{
			Step:      cfg,
			Logger:    scopedLogger,
			Processor: processor,
		})
	}
}

// Workflow is an ordered pipeline of steps. The live steps and their configs are kept in lockstep: every
// structural change updates both.
type Workflow struct {
	mu          sync.RWMutex
	id          string
	name        string
	description string
	inputs      []Input
	createdAt   time.Time
	updatedAt   time.Time

	steps   []steprunner.Step
	configs []StepConfig
	build   StepBuilder
}

func NewWorkflow(id, name, description string, build StepBuilder) *Workflow {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	return &Workflow{
		id:          id,
		name:        name,
		description: description,
		createdAt:   now,
		updatedAt:   now,
		build:       build,
	}
}

// LoadWorkflow hydrates a Workflow from its stored definition, building every step with build.
func LoadWorkflow(def Definition, build StepBuilder) (*Workflow, error) {
	if build == nil {
		return nil, fmt.Errorf("loading workflow %q: no step builder", def.Name)
	}

	wf := NewWorkflow(def.ID, def.Name, def.Description, build)
	wf.inputs = append([]Input(nil), def.Inputs...)
	if !def.CreatedAt.IsZero() {
		wf.createdAt = def.CreatedAt
	}
	if !def.UpdatedAt.IsZero() {
		wf.updatedAt = def.UpdatedAt
	}

	steps := make([]steprunner.Step, 0, len(def.Steps))
	for i, cfg := range def.Steps {
		step, err := build(cfg)
		if err != nil {
			return nil, fmt.Errorf("building step %d (%q): %w", i, cfg.ID, err)
		}
		steps = append(steps, step)
	}
	wf.setSteps(steps, false)
	return wf, nil
}

func (w *Workflow) ID() string          { return w.id }
func (w *Workflow) Name() string        { return w.name }
func (w *Workflow) Description() string { return w.description }

// Steps returns a copy of the step list; reordering it does not affect the workflow.
func (w *Workflow) Steps() []steprunner.Step {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]steprunner.Step(nil), w.steps...)
}

// Step returns the step at index i, or nil when i is out of range.
func (w *Workflow) Step(i int) steprunner.Step {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if i < 0 || i >= len(w.steps) {
		return nil
	}
	return w.steps[i]
}

func (w *Workflow) StepByID(id string) steprunner.Step {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if i := w.indexOf(id); i >= 0 {
		return w.steps[i]
	}
	return nil
}

func (w *Workflow) StepCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.steps)
}

// SetSteps replaces every step at once. The config list is rebuilt from the steps.
func (w *Workflow) SetSteps(steps []steprunner.Step) {
	w.setSteps(steps, true)
}

func (w *Workflow) setSteps(steps []steprunner.Step, touch bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.steps = append([]steprunner.Step(nil), steps...)
	w.configs = make([]StepConfig, len(steps))
	for i, s := range steps {
		w.configs[i] = s.Config()
	}
	if touch {
		w.touch()
	}
}

func (w *Workflow) AddStep(step steprunner.Step) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.steps = append(w.steps, step)
	w.configs = append(w.configs, step.Config())
	w.touch()
}

// RemoveStep deletes the step with the given id. It returns false if no such step exists.
func (w *Workflow) RemoveStep(stepID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexOf(stepID)
	if i < 0 {
		return false
	}
	w.steps = append(w.steps[:i], w.steps[i+1:]...)
	w.configs = append(w.configs[:i], w.configs[i+1:]...)
	w.touch()
	return true
}

// UpdateStep replaces the config of the step with the given id and rebuilds the live step from it, so the
// next Execute or Retry runs with the new config. It returns false, changing nothing, if the id is unknown
// or the new config cannot be built.
func (w *Workflow) UpdateStep(stepID string, cfg StepConfig) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.indexOf(stepID)
	if i < 0 {
		return false
	}
	if cfg.ID == "" {
		cfg.ID = stepID
	}
	if cfg.ID != stepID && w.indexOf(cfg.ID) >= 0 {
		return false
	}

	if w.build != nil {
		step, err := w.build(cfg)
		if err != nil {
			return false
		}
		w.steps[i] = step
	}
	w.configs[i] = cfg.Clone()
	w.touch()
	return true
}

// ReorderSteps moves the step at from to position to. Out-of-range indices return false and leave the
// workflow untouched.
func (w *Workflow) ReorderSteps(from, to int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.steps)
	if from < 0 || from >= n || to < 0 || to >= n {
		return false
	}
	if from == to {
		return true
	}

	step, cfg := w.steps[from], w.configs[from]
	w.steps = append(w.steps[:from], w.steps[from+1:]...)
	w.configs = append(w.configs[:from], w.configs[from+1:]...)

	w.steps = append(w.steps[:to], append([]steprunner.Step{step}, w.steps[to:]...)...)
	w.configs = append(w.configs[:to], append([]StepConfig{cfg}, w.configs[to:]...)...)
	w.touch()
	return true
}

// ValidationReport aggregates every step's validation, keyed by step id.
type ValidationReport struct {
	Valid  bool
	Errors map[string][]string
}

// Validate checks every step. The workflow is valid only if all of its steps are and their ids are unique.
func (w *Workflow) Validate() ValidationReport {
	w.mu.RLock()
	defer w.mu.RUnlock()

	report := ValidationReport{Valid: true, Errors: make(map[string][]string)}
	seen := make(map[string]bool, len(w.steps))
	for i, step := range w.steps {
		key := step.ID()
		if key == "" {
			key = fmt.Sprintf("#%d", i)
			report.Errors[key] = append(report.Errors[key], "step is missing 'id'")
		} else if seen[key] {
			report.Errors[key] = append(report.Errors[key], fmt.Sprintf("duplicate step id %q", key))
		}
		seen[key] = true

		if !step.Config().IsEnabled() {
			continue
		}
		if res := step.Validate(); !res.Valid {
			report.Errors[key] = append(report.Errors[key], res.Errors...)
		}
	}
	report.Valid = len(report.Errors) == 0
	return report
}

// Clone copies the workflow under a new identity with fresh timestamps and freshly built steps. An empty
// newID generates one.
func (w *Workflow) Clone(newID string) (*Workflow, error) {
	def := w.Definition()
	def.ID = newID
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	def.CreatedAt = time.Time{}
	def.UpdatedAt = time.Time{}
	return LoadWorkflow(def, w.build)
}

// Definition exports the workflow in its persisted form.
func (w *Workflow) Definition() Definition {
	w.mu.RLock()
	defer w.mu.RUnlock()

	def := Definition{
		ID:          w.id,
		Name:        w.name,
		Description: w.description,
		Inputs:      append([]Input(nil), w.inputs...),
		Steps:       make([]StepConfig, len(w.configs)),
		CreatedAt:   w.createdAt,
		UpdatedAt:   w.updatedAt,
	}
	for i, cfg := range w.configs {
		def.Steps[i] = cfg.Clone()
	}
	return def
}

func (w *Workflow) indexOf(stepID string) int {
	for i, s := range w.steps {
		if s.ID() == stepID {
			return i
		}
	}
	return -1
}

func (w *Workflow) touch() {
	w.updatedAt = time.Now()
}
