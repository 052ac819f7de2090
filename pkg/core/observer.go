package core

import (
	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

// Observer receives the executor's progress events. Calls are made synchronously, inline with Execute,
// in the order the events happen.
type Observer interface {
	OnStepStart(index int, step steprunner.Step)
	OnStepComplete(index int, step steprunner.Step, result *types.StepResult)
	OnStepError(index int, step steprunner.Step, err error)
	OnWorkflowComplete(snapshot Snapshot)
	OnWorkflowError(snapshot Snapshot, err error)
	OnWorkflowCancelled(snapshot Snapshot)
}

// ObserverFuncs adapts optional callbacks to the Observer interface. Nil funcs are skipped.
type ObserverFuncs struct {
	StepStart         func(index int, step steprunner.Step)
	StepComplete      func(index int, step steprunner.Step, result *types.StepResult)
	StepError         func(index int, step steprunner.Step, err error)
	WorkflowComplete  func(snapshot Snapshot)
	WorkflowError     func(snapshot Snapshot, err error)
	WorkflowCancelled func(snapshot Snapshot)
}

func (f ObserverFuncs) OnStepStart(index int, step steprunner.Step) {
	if f.StepStart != nil {
		f.StepStart(index, step)
	}
}

func (f ObserverFuncs) OnStepComplete(index int, step steprunner.Step, result *types.StepResult) {
	if f.StepComplete != nil {
		f.StepComplete(index, step, result)
	}
}

func (f ObserverFuncs) OnStepError(index int, step steprunner.Step, err error) {
	if f.StepError != nil {
		f.StepError(index, step, err)
	}
}

func (f ObserverFuncs) OnWorkflowComplete(snapshot Snapshot) {
	if f.WorkflowComplete != nil {
		f.WorkflowComplete(snapshot)
	}
}

func (f ObserverFuncs) OnWorkflowError(snapshot Snapshot, err error) {
	if f.WorkflowError != nil {
		f.WorkflowError(snapshot, err)
	}
}

func (f ObserverFuncs) OnWorkflowCancelled(snapshot Snapshot) {
	if f.WorkflowCancelled != nil {
		f.WorkflowCancelled(snapshot)
	}
}

// observers fans each event out to every registered Observer in registration order.
type observers []Observer

func (o observers) OnStepStart(index int, step steprunner.Step) {
	for _, obs := range o {
		obs.OnStepStart(index, step)
	}
}

func (o observers) OnStepComplete(index int, step steprunner.Step, result *types.StepResult) {
	for _, obs := range o {
		obs.OnStepComplete(index, step, result)
	}
}

func (o observers) OnStepError(index int, step steprunner.Step, err error) {
	for _, obs := range o {
		obs.OnStepError(index, step, err)
	}
}

func (o observers) OnWorkflowComplete(snapshot Snapshot) {
	for _, obs := range o {
		obs.OnWorkflowComplete(snapshot)
	}
}

func (o observers) OnWorkflowError(snapshot Snapshot, err error) {
	for _, obs := range o {
		obs.OnWorkflowError(snapshot, err)
	}
}

func (o observers) OnWorkflowCancelled(snapshot Snapshot) {
	for _, obs := range o {
		obs.OnWorkflowCancelled(snapshot)
	}
}
