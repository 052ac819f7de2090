package types

import "context"

// ExecutionContext contains the context needed to build a step
type ExecutionContext struct {
	Step      StepConfig
	Logger    Logger
	Processor Processor
}

// OperationRequest is a multipart submission of a file to one remote endpoint.
type OperationRequest struct {
	Endpoint string
	File     *File
	Fields   map[string]string
}

// OperationResponse is the decoded JSON body of a successful remote call.
type OperationResponse struct {
	StatusCode  int
	DownloadURL string
	Body        map[string]any
}

// Processor is the remote processing API as seen by steps.
type Processor interface {
	Submit(ctx context.Context, req *OperationRequest) (*OperationResponse, error)
}
