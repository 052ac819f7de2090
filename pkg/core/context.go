package core

import (
	"sync"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/types"
)

// Snapshot is a point-in-time copy of a WorkflowContext, safe to read while the run continues.
type Snapshot struct {
	WorkflowID       string              `json:"workflow_id"`
	CurrentStepIndex int                 `json:"current_step_index"`
	CurrentFile      *types.File         `json:"-"`
	CurrentFileURL   string              `json:"current_file_url,omitempty"`
	StepResults      []*types.StepResult `json:"step_results"`
	Status           Status              `json:"status"`
	StartedAt        time.Time           `json:"started_at,omitzero"`
	CompletedAt      time.Time           `json:"completed_at,omitzero"`
	Metadata         map[string]any      `json:"metadata,omitempty"`
}

// WorkflowContext is the mutable record of one run. Only the executor running it should mutate it; the
// current file is owned by the context once handed over and is replaced without notice.
type WorkflowContext struct {
	mu               sync.RWMutex
	workflowID       string
	currentStepIndex int
	currentFile      *types.File
	currentFileURL   string
	stepResults      []*types.StepResult
	stepInputs       []*types.File
	status           Status
	startedAt        time.Time
	completedAt      time.Time
	metadata         map[string]any
}

// NewWorkflowContext seeds a run with its initial input file.
func NewWorkflowContext(workflowID string, input *types.File) *WorkflowContext {
	return &WorkflowContext{
		workflowID:  workflowID,
		currentFile: input,
		status:      StatusIdle,
		metadata:    make(map[string]any),
	}
}

func (c *WorkflowContext) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		WorkflowID:       c.workflowID,
		CurrentStepIndex: c.currentStepIndex,
		CurrentFile:      c.currentFile,
		CurrentFileURL:   c.currentFileURL,
		StepResults:      make([]*types.StepResult, len(c.stepResults)),
		Status:           c.status,
		StartedAt:        c.startedAt,
		CompletedAt:      c.completedAt,
		Metadata:         make(map[string]any, len(c.metadata)),
	}
	for i, r := range c.stepResults {
		s.StepResults[i] = r.Clone()
	}
	for k, v := range c.metadata {
		s.Metadata[k] = v
	}
	return s
}

func (c *WorkflowContext) WorkflowID() string {
	return c.workflowID
}

func (c *WorkflowContext) CurrentStepIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentStepIndex
}

func (c *WorkflowContext) SetCurrentStepIndex(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentStepIndex = i
}

func (c *WorkflowContext) CurrentFile() *types.File {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentFile
}

func (c *WorkflowContext) SetCurrentFile(f *types.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentFile = f
}

func (c *WorkflowContext) CurrentFileURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentFileURL
}

func (c *WorkflowContext) SetCurrentFileURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentFileURL = u
}

func (c *WorkflowContext) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus records a transition. StartedAt is stamped the first time the run enters running and
// CompletedAt the first time it reaches a terminal status. Transition rules are the executor's concern.
func (c *WorkflowContext) SetStatus(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
	now := time.Now()
	if status == StatusRunning && c.startedAt.IsZero() {
		c.startedAt = now
	}
	if status.IsTerminal() && c.completedAt.IsZero() {
		c.completedAt = now
	}
}

func (c *WorkflowContext) AddStepResult(r *types.StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepResults = append(c.stepResults, r.Clone())
}

// UpdateStepResult replaces the result recorded for stepID. It returns false if there is none.
func (c *WorkflowContext) UpdateStepResult(stepID string, r *types.StepResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.stepResults {
		if existing.StepID == stepID {
			c.stepResults[i] = r.Clone()
			return true
		}
	}
	return false
}

func (c *WorkflowContext) StepResult(stepID string) *types.StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.stepResults {
		if r.StepID == stepID {
			return r.Clone()
		}
	}
	return nil
}

func (c *WorkflowContext) StepResultCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stepResults)
}

func (c *WorkflowContext) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// RecordStepInput remembers the file step index was fed so a later retry from that step can restore it.
func (c *WorkflowContext) RecordStepInput(index int, f *types.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 {
		return
	}
	for len(c.stepInputs) <= index {
		c.stepInputs = append(c.stepInputs, nil)
	}
	c.stepInputs[index] = f
}

// ResetForRetry arms a rerun from fromStepIndex: results for that step and every later one are dropped so
// the rerun never sits next to stale attempts. If the step's input was recorded it becomes the current
// file again.
func (c *WorkflowContext) ResetForRetry(fromStepIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fromStepIndex < 0 {
		fromStepIndex = 0
	}
	c.currentStepIndex = fromStepIndex
	c.status = StatusIdle
	c.completedAt = time.Time{}
	if len(c.stepResults) > fromStepIndex {
		c.stepResults = c.stepResults[:fromStepIndex]
	}
	if fromStepIndex < len(c.stepInputs) {
		if f := c.stepInputs[fromStepIndex]; f != nil {
			c.currentFile = f
		}
		c.stepInputs = c.stepInputs[:fromStepIndex+1]
	}
}
