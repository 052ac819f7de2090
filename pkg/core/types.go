package core

import (
	"time"

	"github.com/arnavsurve/sheetflow/pkg/types"
)

type StepConfig = types.StepConfig

type StepResult = types.StepResult

type ExecutionContext = types.ExecutionContext

type Input struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required,omitempty"`
	Secret   bool   `yaml:"secret,omitempty"`
	Default  string `yaml:"default,omitempty"`
}

// Definition is the persisted form of a workflow: identity, inputs and ordered step configs.
type Definition struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Inputs      []Input      `yaml:"inputs,omitempty"`
	Steps       []StepConfig `yaml:"steps"`
	CreatedAt   time.Time    `yaml:"created_at,omitempty"`
	UpdatedAt   time.Time    `yaml:"updated_at,omitempty"`
}

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := d
	out.Inputs = append([]Input(nil), d.Inputs...)
	out.Steps = make([]StepConfig, len(d.Steps))
	for i, s := range d.Steps {
		out.Steps[i] = s.Clone()
	}
	return out
}

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether a run in this status has finished for good.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
