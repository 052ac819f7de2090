package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

// FileFetcher downloads the file a step left at its download URL so it can feed the next step.
type FileFetcher interface {
	Download(ctx context.Context, url string) (*types.File, error)
}

type ExecutorOption func(*WorkflowExecutor)

func WithObserver(o Observer) ExecutorOption {
	return func(e *WorkflowExecutor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

func WithLogger(logger types.Logger) ExecutorOption {
	return func(e *WorkflowExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithFileFetcher(f FileFetcher) ExecutorOption {
	return func(e *WorkflowExecutor) {
		e.fetcher = f
	}
}

// WorkflowExecutor runs a Workflow's steps one at a time against a WorkflowContext, handing each step's
// output file to the next. It borrows both for the duration of a run. Only one run may be in flight per
// executor; a second concurrent Execute or Retry returns ErrAlreadyRunning.
type WorkflowExecutor struct {
	workflow  *Workflow
	wfCtx     *WorkflowContext
	fetcher   FileFetcher
	logger    types.Logger
	observers observers

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func NewWorkflowExecutor(wf *Workflow, wfCtx *WorkflowContext, opts ...ExecutorOption) *WorkflowExecutor {
	e := &WorkflowExecutor{
		workflow: wf,
		wfCtx:    wfCtx,
		logger:   types.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *WorkflowExecutor) Workflow() *Workflow { return e.workflow }
func (e *WorkflowExecutor) Context() *WorkflowContext { return e.wfCtx }

func (e *WorkflowExecutor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Execute validates the workflow and runs its steps starting at the context's current step index.
//
// A step that reports a failed result pauses the run and its error is returned as a *StepError. A
// cancellation, through Cancel or ctx, ends the run in the cancelled status and returns nil.
func (e *WorkflowExecutor) Execute(ctx context.Context) error {
	return e.execute(ctx, -1)
}

// Retry drops the results from fromStepIndex onwards and runs again from that step.
func (e *WorkflowExecutor) Retry(ctx context.Context, fromStepIndex int) error {
	if fromStepIndex < 0 || fromStepIndex > e.workflow.StepCount() {
		return fmt.Errorf("retry index %d out of range [0, %d]", fromStepIndex, e.workflow.StepCount())
	}
	return e.execute(ctx, fromStepIndex)
}

// RetryFailed reruns the step the last run stopped at.
func (e *WorkflowExecutor) RetryFailed(ctx context.Context) error {
	return e.Retry(ctx, e.wfCtx.CurrentStepIndex())
}

// Cancel stops the run in flight, aborting the request of the step currently executing. It does nothing
// when no run is in flight.
func (e *WorkflowExecutor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.logger.Info().Msg("Cancelling workflow run")
		e.cancel()
	}
}

func (e *WorkflowExecutor) execute(ctx context.Context, resetFrom int) error {
	runCtx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer e.end()

	if resetFrom >= 0 {
		e.logger.Info().Int("from_step", resetFrom).Msg("Resetting workflow context for retry")
		e.wfCtx.ResetForRetry(resetFrom)
	}

	report := e.workflow.Validate()
	if !report.Valid {
		verr := &ValidationError{Errors: report.Errors}
		e.logger.Error().Err(verr).Msg("Workflow validation failed")
		return verr
	}

	e.wfCtx.SetMetadata("workflow_name", e.workflow.Name())
	e.wfCtx.SetStatus(StatusRunning)
	e.logger.Info().
		Str("workflow_id", e.workflow.ID()).
		Int("from_step", e.wfCtx.CurrentStepIndex()).
		Int("step_count", e.workflow.StepCount()).
		Msgf("Executing workflow %q", e.workflow.Name())

	if err := e.run(runCtx); err != nil {
		if e.wfCtx.Status() != StatusPaused {
			e.wfCtx.SetStatus(StatusFailed)
		}
		e.logger.Error().Err(err).Str("status", string(e.wfCtx.Status())).Msg("Workflow stopped with an error")
		e.observers.OnWorkflowError(e.wfCtx.Snapshot(), err)
		return err
	}
	return nil
}

func (e *WorkflowExecutor) begin(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	return runCtx, nil
}

func (e *WorkflowExecutor) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = nil
	e.running = false
}

func (e *WorkflowExecutor) run(ctx context.Context) error {
	count := e.workflow.StepCount()
	for i := e.wfCtx.CurrentStepIndex(); i < count; i++ {
		e.wfCtx.SetCurrentStepIndex(i)

		if ctx.Err() != nil {
			e.markCancelled()
			return nil
		}

		step := e.workflow.Step(i)
		if step == nil {
			return fmt.Errorf("workflow changed while running: no step at index %d", i)
		}

		input := e.wfCtx.CurrentFile()
		if input == nil {
			return fmt.Errorf("%w %q (index %d)", ErrMissingInput, step.ID(), i)
		}

		e.wfCtx.RecordStepInput(i, input)

		if !step.Config().IsEnabled() {
			e.logger.Info().Str("step_id", step.ID()).Msg("Step disabled, passing input through")
			skipped := &types.StepResult{
				StepID:     step.ID(),
				StepType:   step.Type(),
				Status:     types.StatusSkipped,
				ExecutedAt: time.Now(),
			}
			e.wfCtx.AddStepResult(skipped)
			e.observers.OnStepComplete(i, step, skipped)
			continue
		}

		e.logger.Info().Msgf("Running step %q (type=%s)", step.ID(), step.Type())
		e.observers.OnStepStart(i, step)

		started := time.Now()
		result := e.executeStep(ctx, step, input)
		e.logger.Info().
			Str("step_id", step.ID()).
			Str("status", string(result.Status)).
			Dur("duration", time.Since(started)).
			Msg("Step finished")
		e.wfCtx.AddStepResult(result)
		e.observers.OnStepComplete(i, step, result)

		switch result.Status {
		case types.StatusFailed:
			msg := "step failed"
			if result.Error != nil {
				msg = result.Error.Message
			}
			return e.pause(i, step, &StepError{Index: i, StepID: step.ID(), Message: msg})
		case types.StatusCancelled:
			e.markCancelled()
			return nil
		}

		if result.Output == nil || result.Output.DownloadURL == "" {
			e.logger.Warn().Str("step_id", step.ID()).Msg("Step produced no download URL, next step reuses the current file")
			continue
		}
		if err := e.handoff(ctx, step, result); err != nil {
			if ctx.Err() != nil {
				e.markCancelled()
				return nil
			}
			return e.pause(i, step, &StepError{
				Index:   i,
				StepID:  step.ID(),
				Message: fmt.Sprintf("downloading output: %v", err),
				Cause:   err,
			})
		}
	}

	e.wfCtx.SetCurrentStepIndex(count)
	e.wfCtx.SetStatus(StatusCompleted)
	e.logger.Info().Msg("Workflow completed successfully.")
	e.observers.OnWorkflowComplete(e.wfCtx.Snapshot())
	return nil
}

// executeStep shields the run from a misbehaving step: a panic or a nil result becomes a failed result.
func (e *WorkflowExecutor) executeStep(ctx context.Context, step steprunner.Step, input *types.File) (result *types.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("step_id", step.ID()).Msg("Step panicked")
			result = failedResult(step, fmt.Sprintf("step panicked: %v", r))
		}
	}()

	result = step.Execute(ctx, input)
	if result == nil {
		result = failedResult(step, "step returned no result")
	}
	return result
}

// handoff makes the step's remote output the current file for the next step.
func (e *WorkflowExecutor) handoff(ctx context.Context, step steprunner.Step, result *types.StepResult) error {
	if e.fetcher == nil {
		return fmt.Errorf("no file fetcher configured to download %q", result.Output.DownloadURL)
	}

	file, err := e.fetcher.Download(ctx, result.Output.DownloadURL)
	if err != nil {
		return err
	}
	switch {
	case result.Output.FileName != "":
		file.Name = result.Output.FileName
	case file.Name == "":
		file.Name = fmt.Sprintf("%s-output", step.ID())
	}

	e.wfCtx.SetCurrentFile(file)
	e.wfCtx.SetCurrentFileURL(result.Output.DownloadURL)
	e.logger.Debug().
		Str("step_id", step.ID()).
		Str("file", file.Name).
		Int("size_bytes", file.Size()).
		Msg("Handed step output to next step")
	return nil
}

func (e *WorkflowExecutor) pause(index int, step steprunner.Step, err *StepError) error {
	e.wfCtx.SetStatus(StatusPaused)
	e.observers.OnStepError(index, step, err)
	return err
}

func (e *WorkflowExecutor) markCancelled() {
	e.wfCtx.SetStatus(StatusCancelled)
	e.logger.Warn().Int("step_index", e.wfCtx.CurrentStepIndex()).Msg("Workflow cancelled")
	e.observers.OnWorkflowCancelled(e.wfCtx.Snapshot())
}

func failedResult(step steprunner.Step, msg string) *types.StepResult {
	return &types.StepResult{
		StepID:     step.ID(),
		StepType:   step.Type(),
		Status:     types.StatusFailed,
		Error:      &types.StepError{Message: msg},
		ExecutedAt: time.Now(),
	}
}
