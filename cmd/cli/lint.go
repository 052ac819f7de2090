package cli

import (
	"fmt"

	"github.com/arnavsurve/sheetflow/pkg/core"

	// Ensure all step implementations are registered
	_ "github.com/arnavsurve/sheetflow/pkg/steprunner/runners"
)

type LintCmd struct {
	SourceFlags `embed:""`
	LogFlags    `embed:""`
}

func (l *LintCmd) Run(globals *Globals) error {
	cmdLogger, err := newCommandLogger(l.LogFlags, "")
	if err != nil {
		return err
	}
	defer cmdLogger.Close()

	if l.ID != "" {
		cmdLogger.Info().Msgf("Validating saved workflow %q using %s", l.ID, l.Varfile)
	} else {
		cmdLogger.Info().Msgf("Validating %s using %s", l.Workflow, l.Varfile)
	}

	loaded, err := l.SourceFlags.load(cmdLogger, globals.Store)
	if err != nil {
		return err
	}

	wf, err := core.LoadWorkflow(*loaded.def, core.NewStepBuilder(cmdLogger, nil))
	if err != nil {
		cmdLogger.Error().Err(err).Msg("Error building workflow steps")
		return err
	}

	cmdLogger.Info().Msg("Validating individual steps...")
	report := wf.Validate()
	for _, step := range wf.Steps() {
		stepLogger := cmdLogger.With().
			Str("step_id", step.ID()).
			Str("step_type", string(step.Type())).
			Logger()

		if !step.Config().IsEnabled() {
			stepLogger.Info().Msg("Step is disabled, skipping validation")
			continue
		}
		if msgs := report.Errors[step.ID()]; len(msgs) > 0 {
			for _, msg := range msgs {
				stepLogger.Error().Msg(msg)
			}
			continue
		}
		stepLogger.Info().Msg("Step configuration validation passed")
	}

	if !report.Valid {
		verr := &core.ValidationError{Errors: report.Errors}
		return fmt.Errorf("validating workflow %q: %w", wf.Name(), verr)
	}

	cmdLogger.Info().Msg("Successfully validated workflow configuration ✅")
	return nil
}
