package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/apiclient"
	"github.com/arnavsurve/sheetflow/pkg/core"
	"github.com/arnavsurve/sheetflow/pkg/metrics"
	"github.com/arnavsurve/sheetflow/pkg/security"
	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
	"github.com/google/uuid"

	// Ensure all step implementations are registered
	_ "github.com/arnavsurve/sheetflow/pkg/steprunner/runners"
)

// APIFlags configure the processing API client.
type APIFlags struct {
	APIURL  string        `name:"api-url" help:"Base URL of the processing API." env:"SHEETFLOW_API_URL" required:""`
	APIKey  string        `name:"api-key" help:"API key sent with every request." env:"SHEETFLOW_API_KEY"`
	Timeout time.Duration `help:"Timeout for each API request." env:"SHEETFLOW_TIMEOUT" default:"120s"`
}

type RunCmd struct {
	SourceFlags `embed:""`
	APIFlags    `embed:""`
	LogFlags    `embed:""`

	Input       string        `help:"The spreadsheet fed to the first step." short:"i" required:"" type:"existingfile"`
	Output      string        `help:"Where to write the final file. Defaults to the last step's file name in the current directory." short:"o"`
	FromStep    string        `name:"from-step" help:"Start at this step id, feeding it the input file."`
	Retries     int           `help:"How many times to retry a failed step before giving up." default:"0"`
	RetryDelay  time.Duration `name:"retry-delay" help:"Pause between retries." default:"2s"`
	MetricsFile string        `name:"metrics-file" help:"Write Prometheus textfile metrics for the run to this path."`
	Report      string        `help:"Write a JSON snapshot of the run to this path."`
}

func (r *RunCmd) Run(globals *Globals) error {
	runID := uuid.New().String()
	logPath := core.RunLogPath(".", runID)

	cmdLogger, err := newCommandLogger(r.LogFlags, logPath)
	if err != nil {
		return err
	}
	defer cmdLogger.Close()

	cmdLogger.Info().Msgf("Starting workflow run with ID: %s", runID)
	cmdLogger.Info().Msgf("Logs will be saved to %q", logPath)

	loaded, err := r.SourceFlags.load(cmdLogger, globals.Store)
	if err != nil {
		return err
	}
	cmdLogger.router.Redactor = security.NewRedactor(loaded.def.Inputs, loaded.varCtx, r.APIKey)

	client, err := apiclient.New(apiclient.Config{
		BaseURL: r.APIURL,
		APIKey:  r.APIKey,
		Timeout: r.Timeout,
		Logger:  cmdLogger.With().Str("component", "apiclient").Logger(),
	})
	if err != nil {
		return fmt.Errorf("configuring processing API client: %w", err)
	}

	wf, err := core.LoadWorkflow(*loaded.def, core.NewStepBuilder(cmdLogger, client))
	if err != nil {
		cmdLogger.Error().Err(err).Msg("Failed to build workflow steps")
		return err
	}

	startIndex := 0
	if r.FromStep != "" {
		startIndex = stepIndex(wf, r.FromStep)
		if startIndex < 0 {
			return fmt.Errorf("--from-step: workflow %q has no step %q", wf.Name(), r.FromStep)
		}
	}

	input, err := types.OpenFile(r.Input)
	if err != nil {
		return fmt.Errorf("opening input file: %w", err)
	}

	wfCtx := core.NewWorkflowContext(wf.ID(), input)
	wfCtx.SetMetadata("run_id", runID)

	opts := []core.ExecutorOption{
		core.WithLogger(cmdLogger),
		core.WithFileFetcher(client),
		core.WithObserver(progressObserver(cmdLogger, wf.StepCount())),
	}
	var metricsObserver *metrics.Observer
	if r.MetricsFile != "" {
		metricsObserver = metrics.NewObserver()
		opts = append(opts, core.WithObserver(metricsObserver))
	}
	executor := core.NewWorkflowExecutor(wf, wfCtx, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		executor.Cancel()
	}()

	if startIndex > 0 {
		err = executor.Retry(ctx, startIndex)
	} else {
		err = executor.Execute(ctx)
	}
	for attempt := 1; attempt <= r.Retries && retryable(err); attempt++ {
		cmdLogger.Warn().Err(err).Msgf("Retrying failed step (attempt %d of %d) in %s", attempt, r.Retries, r.RetryDelay)
		select {
		case <-ctx.Done():
		case <-time.After(r.RetryDelay):
		}
		if ctx.Err() != nil {
			break
		}
		err = executor.RetryFailed(ctx)
	}

	if metricsObserver != nil {
		if mErr := metricsObserver.WriteTextfile(r.MetricsFile); mErr != nil {
			cmdLogger.Warn().Err(mErr).Msg("Could not write metrics file")
		}
	}
	if r.Report != "" {
		if rErr := writeReport(r.Report, wfCtx.Snapshot()); rErr != nil {
			cmdLogger.Warn().Err(rErr).Msg("Could not write run report")
		}
	}

	if err != nil {
		return err
	}

	switch wfCtx.Status() {
	case core.StatusCancelled:
		return fmt.Errorf("workflow %q was cancelled at step %d", wf.Name(), wfCtx.CurrentStepIndex())
	case core.StatusCompleted:
	default:
		return fmt.Errorf("workflow %q stopped in status %s", wf.Name(), wfCtx.Status())
	}

	outPath, err := writeOutput(r.Output, wfCtx.CurrentFile())
	if err != nil {
		return err
	}
	cmdLogger.Info().Msgf("Workflow completed successfully. Output written to %q, logs can be found at %q", outPath, logPath)
	return nil
}

func retryable(err error) bool {
	var stepErr *core.StepError
	return errors.As(err, &stepErr)
}

func stepIndex(wf *core.Workflow, id string) int {
	for i, step := range wf.Steps() {
		if step.ID() == id {
			return i
		}
	}
	return -1
}

func progressObserver(logger types.Logger, total int) core.Observer {
	return core.ObserverFuncs{
		StepStart: func(index int, step steprunner.Step) {
			logger.Info().Msgf("==> [%d/%d] %s (%s)", index+1, total, step.Name(), step.Type())
		},
		StepError: func(index int, step steprunner.Step, err error) {
			logger.Error().Err(err).Str("step_id", step.ID()).Msg("Step failed, workflow paused")
		},
		WorkflowCancelled: func(snapshot core.Snapshot) {
			logger.Warn().Int("completed_steps", len(snapshot.StepResults)).Msg("Workflow cancelled")
		},
	}
}

func writeOutput(path string, file *types.File) (string, error) {
	if file == nil {
		return "", fmt.Errorf("workflow finished without an output file")
	}
	if path == "" {
		path = filepath.Base(file.Name)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("creating output directory %q: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, file.Data, 0644); err != nil {
		return "", fmt.Errorf("writing output file %q: %w", path, err)
	}
	return path, nil
}

func writeReport(path string, snapshot core.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing run report %q: %w", path, err)
	}
	return nil
}
