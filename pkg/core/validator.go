package core

import (
	"fmt"

	"github.com/arnavsurve/sheetflow/pkg/steprunner"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

// ValidateDefinitionStructure checks fields at the workflow level: workflow name, input uniqueness, and
// step id uniqueness and type. Per-step config rules are checked by Workflow.Validate.
func ValidateDefinitionStructure(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("workflow is missing 'name'")
	}

	inputNames := make(map[string]bool)
	for i, input := range def.Inputs {
		if input.Name == "" {
			return fmt.Errorf("input %d is missing 'name'", i)
		}
		if inputNames[input.Name] {
			return fmt.Errorf("duplicate input name: %q", input.Name)
		}
		inputNames[input.Name] = true
	}

	known := make(map[types.StepType]bool)
	for _, t := range steprunner.RegisteredTypes() {
		known[t] = true
	}

	stepIDs := make(map[string]bool)
	for i, step := range def.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d is missing 'id'", i)
		}
		if stepIDs[step.ID] {
			return fmt.Errorf("duplicate step id: %q", step.ID)
		}
		stepIDs[step.ID] = true

		if step.Type == "" {
			return fmt.Errorf("step %q is missing 'type'", step.ID)
		}
		if !known[step.Type] {
			return fmt.Errorf("step %q has unknown type %q", step.ID, step.Type)
		}
	}

	return nil
}

func ValidateRequiredInputs(def *Definition, varCtx VarContext) error {
	for _, input := range def.Inputs {
		if input.Required {
			if _, exists := varCtx[input.Name]; !exists && input.Default == "" {
				return fmt.Errorf("required input %q is missing from the varfile and no default value is provided", input.Name)
			}
		}
	}
	return nil
}

// ValidateDefinition builds every step of def without a processing API and runs the full workflow
// validation, returning a *ValidationError when any step is invalid.
func ValidateDefinition(def *Definition) error {
	if err := ValidateDefinitionStructure(def); err != nil {
		return err
	}

	wf, err := LoadWorkflow(*def, NewStepBuilder(nil, nil))
	if err != nil {
		return err
	}
	if report := wf.Validate(); !report.Valid {
		return &ValidationError{Errors: report.Errors}
	}
	return nil
}
