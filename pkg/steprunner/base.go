package steprunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arnavsurve/sheetflow/pkg/types"
)

// Request describes the remote call a concrete step wants Base.Run to make.
type Request struct {
	Endpoint string
	Fields   map[string]string
	// DefaultFileName is used for the output when the config has no output_filename.
	DefaultFileName string
	// RequireDownload marks endpoints that must answer with a download_url.
	RequireDownload bool
}

// Base carries the state shared by every concrete step: its config, status and last result.
// Concrete steps embed *Base and supply Validate and Execute.
type Base struct {
	cfg       types.StepConfig
	logger    types.Logger
	processor types.Processor

	mu     sync.RWMutex
	status types.StepStatus
	result *types.StepResult
}

func NewBase(ctx types.ExecutionContext) *Base {
	logger := ctx.Logger
	if logger == nil {
		logger = types.NopLogger()
	}
	return &Base{
		cfg:       ctx.Step.Clone(),
		logger:    logger,
		processor: ctx.Processor,
		status:    types.StatusPending,
	}
}

func (b *Base) ID() string               { return b.cfg.ID }
func (b *Base) Type() types.StepType     { return b.cfg.Type }
func (b *Base) Name() string             { return b.cfg.Name }
func (b *Base) Config() types.StepConfig { return b.cfg.Clone() }
func (b *Base) Logger() types.Logger     { return b.logger }

func (b *Base) Status() types.StepStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *Base) Result() *types.StepResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.result.Clone()
}

// detailer is implemented by transport errors that carry a server payload.
type detailer interface {
	Details() any
}

// Run performs the remote call described by build and folds every outcome into a StepResult.
func (b *Base) Run(ctx context.Context, input *types.File, build func(input *types.File) (Request, error)) (result *types.StepResult) {
	b.setStatus(types.StatusRunning)

	result = &types.StepResult{
		StepID:     b.cfg.ID,
		StepType:   b.cfg.Type,
		Status:     types.StatusRunning,
		ExecutedAt: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("Step panicked")
			fail(result, fmt.Sprintf("step panicked: %v", r), nil)
		}
		b.finish(result)
	}()

	if input == nil {
		fail(result, "no input file provided", nil)
		return result
	}

	req, err := build(input)
	if err != nil {
		fail(result, err.Error(), nil)
		return result
	}
	result.Input = echoInput(input, req.Fields)

	if b.processor == nil {
		fail(result, "no processing API configured", nil)
		return result
	}

	b.logger.Info().
		Str("endpoint", req.Endpoint).
		Str("file", input.Name).
		Int("size_bytes", input.Size()).
		Msg("Submitting file to processing API")

	resp, err := b.processor.Submit(ctx, &types.OperationRequest{
		Endpoint: req.Endpoint,
		File:     input,
		Fields:   req.Fields,
	})
	if err != nil {
		if ctx.Err() != nil {
			b.logger.Warn().Err(err).Msg("Step cancelled while waiting for processing API")
			result.Status = types.StatusCancelled
			result.Error = &types.StepError{Message: "step cancelled"}
			return result
		}
		var details any
		var d detailer
		if errors.As(err, &d) {
			details = d.Details()
		}
		fail(result, err.Error(), details)
		return result
	}

	if req.RequireDownload && resp.DownloadURL == "" {
		fail(result, fmt.Sprintf("%s step %q: processing API response did not include a download_url", b.cfg.Type, b.cfg.ID), resp.Body)
		return result
	}

	fileName := b.cfg.OutputFilename
	if fileName == "" {
		fileName = req.DefaultFileName
	}

	result.Status = types.StatusSuccess
	result.Output = &types.StepOutput{
		DownloadURL: resp.DownloadURL,
		FileName:    fileName,
	}
	result.Metadata = collectMetadata(resp.Body)

	b.logger.Info().
		Str("output_file", fileName).
		Str("url", resp.DownloadURL).
		Msg("Processing API call succeeded")

	return result
}

func (b *Base) setStatus(status types.StepStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func (b *Base) finish(result *types.StepResult) {
	if result.Status == types.StatusFailed {
		b.logger.Error().Str("status", string(result.Status)).Msg(result.Error.Message)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = result.Status
	b.result = result.Clone()
}

func fail(result *types.StepResult, msg string, details any) {
	result.Status = types.StatusFailed
	result.Output = nil
	result.Error = &types.StepError{Message: msg, Details: details}
}
