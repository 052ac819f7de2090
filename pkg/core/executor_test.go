package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arnavsurve/sheetflow/pkg/core"
	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	backend  *fakeBackend
	fetcher  *fakeFetcher
	workflow *core.Workflow
	wfCtx    *core.WorkflowContext
	executor *core.WorkflowExecutor
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newHarness(t *testing.T, configs ...core.StepConfig) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(),
		fetcher: &fakeFetcher{},
		events:  &eventLog{},
	}
	wf, err := core.LoadWorkflow(core.Definition{ID: "wf-1", Name: "Test workflow", Steps: configs}, h.backend.builder())
	require.NoError(t, err)
	h.workflow = wf
	h.wfCtx = core.NewWorkflowContext(wf.ID(), inputFile())
	h.executor = core.NewWorkflowExecutor(wf, h.wfCtx,
		core.WithFileFetcher(h.fetcher),
		core.WithObserver(h.recorder()),
	)
	return h
}

func (h *harness) recorder() core.Observer {
	return core.ObserverFuncs{
		StepStart:    func(i int, s steprunner.Step) { h.events.add("start:" + s.ID()) },
		StepComplete: func(i int, s steprunner.Step, r *types.StepResult) { h.events.add("complete:" + s.ID() + ":" + string(r.Status)) },
		StepError:    func(i int, s steprunner.Step, err error) { h.events.add("error:" + s.ID()) },
		WorkflowComplete: func(snap core.Snapshot) {
			h.events.add("workflow:completed")
		},
		WorkflowError: func(snap core.Snapshot, err error) {
			h.events.add("workflow:error:" + string(snap.Status))
		},
		WorkflowCancelled: func(snap core.Snapshot) {
			h.events.add("workflow:cancelled")
		},
	}
}

func threeSteps() []core.StepConfig {
	return []core.StepConfig{
		cfg("extract", types.StepExtraction),
		mappingCfg("map", map[string]string{"A": "Alpha"}),
		cfg("to-json", types.StepJSONGeneration),
	}
}

func TestExecutor_AllStepsSucceed(t *testing.T) {
	h := newHarness(t, threeSteps()...)

	require.NoError(t, h.executor.Execute(context.Background()))

	snap := h.wfCtx.Snapshot()
	assert.Equal(t, core.StatusCompleted, snap.Status)
	assert.Equal(t, 3, snap.CurrentStepIndex)
	require.Len(t, snap.StepResults, 3)
	for _, r := range snap.StepResults {
		assert.Equal(t, types.StatusSuccess, r.Status)
	}
	assert.False(t, snap.StartedAt.IsZero())
	assert.False(t, snap.CompletedAt.IsZero())
	assert.Equal(t, "Test workflow", snap.Metadata["workflow_name"])

	assert.Equal(t, []string{"extract", "map", "to-json"}, h.backend.Calls())
	assert.Equal(t, []string{"mem://extract", "mem://map", "mem://to-json"}, h.fetcher.URLs())
	assert.False(t, h.executor.IsRunning())

	assert.Equal(t, []string{
		"start:extract", "complete:extract:success",
		"start:map", "complete:map:success",
		"start:to-json", "complete:to-json:success",
		"workflow:completed",
	}, h.events.all())
}

func TestExecutor_HandsOutputToNextStep(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	require.NoError(t, h.executor.Execute(context.Background()))

	assert.Equal(t, []string{"input.xlsx"}, h.backend.InputsOf("extract"))
	assert.Equal(t, []string{"extract.out"}, h.backend.InputsOf("map"))
	assert.Equal(t, []string{"map.out"}, h.backend.InputsOf("to-json"))

	final := h.wfCtx.CurrentFile()
	require.NotNil(t, final)
	assert.Equal(t, "to-json.out", final.Name)
	assert.Equal(t, "contents of to-json", string(final.Data))
	assert.Equal(t, "mem://to-json", h.wfCtx.CurrentFileURL())
}

func TestExecutor_InvalidWorkflowMakesNoCalls(t *testing.T) {
	tests := []struct {
		name    string
		configs []core.StepConfig
		errKey  string
	}{
		{
			name:    "step config invalid",
			configs: []core.StepConfig{cfg("extract", types.StepExtraction), mappingCfg("map", nil)},
			errKey:  "map",
		},
		{
			name:    "duplicate ids",
			configs: []core.StepConfig{cfg("extract", types.StepExtraction), cfg("extract", types.StepSearch)},
			errKey:  "extract",
		},
		{
			name:    "missing id",
			configs: []core.StepConfig{{Type: types.StepSearch, Name: "no id"}},
			errKey:  "#0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.configs...)

			err := h.executor.Execute(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidWorkflow)

			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Errors[tt.errKey])

			assert.Empty(t, h.backend.Calls())
			assert.Empty(t, h.events.all())
			assert.Equal(t, core.StatusIdle, h.wfCtx.Status())
		})
	}
}

func TestExecutor_DisabledStepIsSkipped(t *testing.T) {
	disabled := mappingCfg("map", nil)
	disabled.Enabled = boolPtr(false)
	h := newHarness(t, cfg("extract", types.StepExtraction), disabled, cfg("to-json", types.StepJSONGeneration))

	require.NoError(t, h.executor.Execute(context.Background()))

	assert.Equal(t, []string{"extract", "to-json"}, h.backend.Calls())
	assert.Equal(t, []string{"extract.out"}, h.backend.InputsOf("to-json"))

	skipped := h.wfCtx.StepResult("map")
	require.NotNil(t, skipped)
	assert.Equal(t, types.StatusSkipped, skipped.Status)
	assert.Equal(t, 3, h.wfCtx.StepResultCount())
}

func TestExecutor_FailurePausesAtStep(t *testing.T) {
	configs := []core.StepConfig{
		cfg("s0", types.StepExtraction),
		cfg("s1", types.StepNormalization),
		cfg("s2", types.StepSearch),
		cfg("s3", types.StepJSONGeneration),
	}

	for k := range configs {
		h := newHarness(t, configs...)
		failing := configs[k].ID
		h.backend.setFail(failing, "remote error")

		err := h.executor.Execute(context.Background())
		require.Error(t, err, "failing step %d", k)
		assert.ErrorIs(t, err, core.ErrStepFailed)

		var stepErr *core.StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, k, stepErr.Index)
		assert.Equal(t, failing, stepErr.StepID)
		assert.Equal(t, "remote error", stepErr.Message)

		snap := h.wfCtx.Snapshot()
		assert.Equal(t, k, snap.CurrentStepIndex)
		assert.Len(t, snap.StepResults, k+1)
		assert.Equal(t, core.StatusPaused, snap.Status)
		assert.True(t, snap.CompletedAt.IsZero(), "paused is not terminal")
		assert.Len(t, h.backend.Calls(), k+1)

		events := h.events.all()
		assert.Contains(t, events, "error:"+failing)
		assert.Equal(t, "workflow:error:paused", events[len(events)-1])
	}
}

func TestExecutor_RetryKeepsEarlierResults(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	h.backend.setFail("to-json", "timeout")

	require.Error(t, h.executor.Execute(context.Background()))
	first := h.wfCtx.Snapshot()
	require.Len(t, first.StepResults, 3)

	h.backend.setFail("to-json", "")
	require.NoError(t, h.executor.RetryFailed(context.Background()))

	second := h.wfCtx.Snapshot()
	assert.Equal(t, core.StatusCompleted, second.Status)
	require.Len(t, second.StepResults, 3)
	for i := 0; i < 2; i++ {
		assert.Equal(t, first.StepResults[i].ExecutedAt, second.StepResults[i].ExecutedAt)
	}
	assert.Equal(t, types.StatusSuccess, second.StepResults[2].Status)
	assert.NotEqual(t, first.StepResults[2].ExecutedAt, second.StepResults[2].ExecutedAt)

	assert.Equal(t, []string{"extract", "map", "to-json", "to-json"}, h.backend.Calls())
	assert.Equal(t, []string{"map.out", "map.out"}, h.backend.InputsOf("to-json"))
}

func TestExecutor_RetryFromEarlierStepRestoresItsInput(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	require.NoError(t, h.executor.Execute(context.Background()))

	require.NoError(t, h.executor.Retry(context.Background(), 1))

	assert.Equal(t, []string{"extract.out", "extract.out"}, h.backend.InputsOf("map"))
	assert.Len(t, h.backend.InputsOf("extract"), 1)
	assert.Equal(t, core.StatusCompleted, h.wfCtx.Status())
	assert.Equal(t, 3, h.wfCtx.StepResultCount())
}

func TestExecutor_RetryOutOfRange(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	assert.Error(t, h.executor.Retry(context.Background(), -1))
	assert.Error(t, h.executor.Retry(context.Background(), 4))
	assert.Empty(t, h.backend.Calls())
}

func TestExecutor_ThreeStepExampleWithCorrectedMapping(t *testing.T) {
	h := newHarness(t,
		func() core.StepConfig {
			c := cfg("extract", types.StepExtraction)
			c.Extraction = &types.ExtractionConfig{Columns: []string{"A", "B"}}
			return c
		}(),
		mappingCfg("map", map[string]string{"Missing": "Alpha"}),
		func() core.StepConfig {
			c := cfg("to-json", types.StepJSONGeneration)
			c.JSONGeneration = &types.JSONGenerationConfig{PrettyPrint: true}
			return c
		}(),
	)

	err := h.executor.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column not found")

	snap := h.wfCtx.Snapshot()
	require.Len(t, snap.StepResults, 2)
	assert.Equal(t, types.StatusSuccess, snap.StepResults[0].Status)
	assert.Equal(t, types.StatusFailed, snap.StepResults[1].Status)
	assert.Equal(t, 1, snap.CurrentStepIndex)
	assert.Equal(t, core.StatusPaused, snap.Status)

	require.True(t, h.workflow.UpdateStep("map", mappingCfg("map", map[string]string{"A": "Alpha"})))
	require.NoError(t, h.executor.RetryFailed(context.Background()))

	assert.Equal(t, []string{"extract", "map", "map", "to-json"}, h.backend.Calls())
	snap = h.wfCtx.Snapshot()
	assert.Equal(t, core.StatusCompleted, snap.Status)
	require.Len(t, snap.StepResults, 3)
	assert.Equal(t, types.StatusSuccess, snap.StepResults[1].Status)
	assert.Equal(t, types.StatusSuccess, snap.StepResults[2].Status)
}

func TestExecutor_CancelBeforeStart(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.executor.Execute(ctx))

	assert.Equal(t, core.StatusCancelled, h.wfCtx.Status())
	assert.Empty(t, h.backend.Calls())
	assert.Equal(t, []string{"workflow:cancelled"}, h.events.all())
	assert.False(t, h.wfCtx.Snapshot().CompletedAt.IsZero())
}

func TestExecutor_CancelMidRun(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	h.backend.blockOn["map"] = true

	var executor *core.WorkflowExecutor
	executor = core.NewWorkflowExecutor(h.workflow, h.wfCtx,
		core.WithFileFetcher(h.fetcher),
		core.WithObserver(h.recorder()),
		core.WithObserver(core.ObserverFuncs{
			StepStart: func(i int, s steprunner.Step) {
				if s.ID() == "map" {
					executor.Cancel()
				}
			},
		}),
	)

	require.NoError(t, executor.Execute(context.Background()))

	snap := h.wfCtx.Snapshot()
	assert.Equal(t, core.StatusCancelled, snap.Status)
	assert.Equal(t, 1, snap.CurrentStepIndex)
	assert.Equal(t, []string{"extract", "map"}, h.backend.Calls())
	require.Len(t, snap.StepResults, 2)
	assert.Equal(t, types.StatusCancelled, snap.StepResults[1].Status)

	events := h.events.all()
	assert.Equal(t, "workflow:cancelled", events[len(events)-1])
	assert.NotContains(t, events, "start:to-json")
}

func TestExecutor_CancelWithoutRunIsNoop(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	h.executor.Cancel()
	h.executor.Cancel()

	require.NoError(t, h.executor.Execute(context.Background()))
	assert.Equal(t, core.StatusCompleted, h.wfCtx.Status())
}

func TestExecutor_ConcurrentExecuteRejected(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	h.backend.blockOn["extract"] = true

	started := make(chan struct{})
	var executor *core.WorkflowExecutor
	executor = core.NewWorkflowExecutor(h.workflow, h.wfCtx,
		core.WithFileFetcher(h.fetcher),
		core.WithObserver(core.ObserverFuncs{
			StepStart: func(int, steprunner.Step) { close(started) },
		}),
	)

	done := make(chan error, 1)
	go func() { done <- executor.Execute(context.Background()) }()
	<-started

	assert.True(t, executor.IsRunning())
	assert.ErrorIs(t, executor.Execute(context.Background()), core.ErrAlreadyRunning)
	assert.ErrorIs(t, executor.RetryFailed(context.Background()), core.ErrAlreadyRunning)

	executor.Cancel()
	require.NoError(t, <-done)
	assert.Equal(t, core.StatusCancelled, h.wfCtx.Status())
}

func TestExecutor_MissingInputIsFatal(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	h.wfCtx.SetCurrentFile(nil)

	err := h.executor.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingInput)
	assert.Equal(t, core.StatusFailed, h.wfCtx.Status())
	assert.Empty(t, h.backend.Calls())
	assert.Equal(t, []string{"workflow:error:failed"}, h.events.all())
}

func TestExecutor_PanickingStepBecomesFailedResult(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	h.backend.panicOn["map"] = true

	err := h.executor.Execute(context.Background())
	var stepErr *core.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Contains(t, stepErr.Message, "boom")

	r := h.wfCtx.StepResult("map")
	require.NotNil(t, r)
	assert.Equal(t, types.StatusFailed, r.Status)
	assert.Equal(t, core.StatusPaused, h.wfCtx.Status())
}

func TestExecutor_NoDownloadURLReusesFile(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	h.backend.noURL["extract"] = true

	require.NoError(t, h.executor.Execute(context.Background()))
	assert.Equal(t, []string{"input.xlsx"}, h.backend.InputsOf("map"))
	assert.Equal(t, []string{"mem://map", "mem://to-json"}, h.fetcher.URLs())
}

func TestExecutor_DownloadFailurePauses(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	downloadErr := errors.New("connection reset")
	h.fetcher.err = downloadErr

	err := h.executor.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStepFailed)
	assert.ErrorIs(t, err, downloadErr)

	assert.Equal(t, core.StatusPaused, h.wfCtx.Status())
	assert.Equal(t, 0, h.wfCtx.CurrentStepIndex())

	h.fetcher.mu.Lock()
	h.fetcher.err = nil
	h.fetcher.mu.Unlock()
	require.NoError(t, h.executor.RetryFailed(context.Background()))
	assert.Equal(t, core.StatusCompleted, h.wfCtx.Status())
}

func TestExecutor_CancelDuringDownload(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	h.fetcher.block = true

	var executor *core.WorkflowExecutor
	executor = core.NewWorkflowExecutor(h.workflow, h.wfCtx,
		core.WithFileFetcher(h.fetcher),
		core.WithObserver(core.ObserverFuncs{
			StepComplete: func(int, steprunner.Step, *types.StepResult) { executor.Cancel() },
		}),
	)

	require.NoError(t, executor.Execute(context.Background()))
	assert.Equal(t, core.StatusCancelled, h.wfCtx.Status())
	assert.Equal(t, []string{"extract"}, h.backend.Calls())
}

func TestExecutor_NoFetcherPauses(t *testing.T) {
	h := newHarness(t, threeSteps()...)
	executor := core.NewWorkflowExecutor(h.workflow, h.wfCtx)

	err := executor.Execute(context.Background())
	var stepErr *core.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "extract", stepErr.StepID)
	assert.Equal(t, core.StatusPaused, h.wfCtx.Status())
}
