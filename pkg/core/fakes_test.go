package core_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/core"
	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

// fakeBackend stands in for the processing API. Steps built by its builder record every call here.
type fakeBackend struct {
	mu     sync.Mutex
	calls  []string
	inputs map[string][]string

	// failWith makes the named step report a failed result with the given message.
	failWith map[string]string
	// blockOn makes the named step wait for ctx cancellation.
	blockOn map[string]bool
	panicOn map[string]bool
	// noURL makes the named step succeed without a download URL.
	noURL map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		inputs:   make(map[string][]string),
		failWith: make(map[string]string),
		blockOn:  make(map[string]bool),
		panicOn:  make(map[string]bool),
		noURL:    make(map[string]bool),
	}
}

func (b *fakeBackend) builder() core.StepBuilder {
	return func(cfg core.StepConfig) (steprunner.Step, error) {
		if cfg.Type == "unbuildable" {
			return nil, fmt.Errorf("cannot build %q", cfg.ID)
		}
		return &fakeStep{cfg: cfg, backend: b, status: types.StatusPending}, nil
	}
}

func (b *fakeBackend) record(id string, input *types.File) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, id)
	b.inputs[id] = append(b.inputs[id], input.Name)
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) InputsOf(id string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.inputs[id]...)
}

func (b *fakeBackend) setFail(id, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg == "" {
		delete(b.failWith, id)
		return
	}
	b.failWith[id] = msg
}

type fakeStep struct {
	cfg     core.StepConfig
	backend *fakeBackend

	mu     sync.Mutex
	status types.StepStatus
	result *types.StepResult
}

func (s *fakeStep) ID() string               { return s.cfg.ID }
func (s *fakeStep) Type() types.StepType     { return s.cfg.Type }
func (s *fakeStep) Name() string             { return s.cfg.Name }
func (s *fakeStep) Config() types.StepConfig { return s.cfg.Clone() }

func (s *fakeStep) Status() types.StepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeStep) Result() *types.StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result.Clone()
}

// Validate rejects steps without a name, and mapping steps without columns.
func (s *fakeStep) Validate() types.ValidationResult {
	var errs []string
	if s.cfg.Name == "" {
		errs = append(errs, fmt.Sprintf("step %q must define 'name'", s.cfg.ID))
	}
	if s.cfg.Type == types.StepMapping && (s.cfg.Mapping == nil || len(s.cfg.Mapping.Columns) == 0) {
		errs = append(errs, fmt.Sprintf("mapping step %q must define 'mapping.columns'", s.cfg.ID))
	}
	return types.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func (s *fakeStep) Execute(ctx context.Context, input *types.File) *types.StepResult {
	b := s.backend
	b.record(s.cfg.ID, input)

	b.mu.Lock()
	failMsg := b.failWith[s.cfg.ID]
	block := b.blockOn[s.cfg.ID]
	shouldPanic := b.panicOn[s.cfg.ID]
	noURL := b.noURL[s.cfg.ID]
	b.mu.Unlock()

	if shouldPanic {
		panic("boom")
	}

	// Mapping steps that reference a column named "Missing" fail like the real API would.
	if s.cfg.Mapping != nil {
		if _, ok := s.cfg.Mapping.Columns["Missing"]; ok {
			failMsg = "column not found: Missing"
		}
	}

	result := &types.StepResult{
		StepID:     s.cfg.ID,
		StepType:   s.cfg.Type,
		ExecutedAt: time.Now(),
	}

	switch {
	case block:
		<-ctx.Done()
		result.Status = types.StatusCancelled
		result.Error = &types.StepError{Message: "step cancelled"}
	case failMsg != "":
		result.Status = types.StatusFailed
		result.Error = &types.StepError{Message: failMsg}
	case noURL:
		result.Status = types.StatusSuccess
		result.Metadata = map[string]any{"rows": 3.0}
	default:
		result.Status = types.StatusSuccess
		result.Output = &types.StepOutput{
			DownloadURL: "mem://" + s.cfg.ID,
			FileName:    s.cfg.ID + ".out",
		}
	}

	s.mu.Lock()
	s.status = result.Status
	s.result = result.Clone()
	s.mu.Unlock()
	return result
}

// fakeFetcher serves downloads from memory.
type fakeFetcher struct {
	mu    sync.Mutex
	urls  []string
	err   error
	block bool
}

func (f *fakeFetcher) Download(ctx context.Context, url string) (*types.File, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	err, block := f.err, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return types.NewFile("", []byte("contents of "+strings.TrimPrefix(url, "mem://"))), nil
}

func (f *fakeFetcher) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func cfg(id string, stepType types.StepType) core.StepConfig {
	return core.StepConfig{ID: id, Type: stepType, Name: "Step " + id}
}

func mappingCfg(id string, columns map[string]string) core.StepConfig {
	c := cfg(id, types.StepMapping)
	c.Mapping = &types.MappingConfig{Columns: columns}
	return c
}

func inputFile() *types.File {
	return types.NewFile("input.xlsx", []byte("raw"))
}

func boolPtr(b bool) *bool { return &b }
