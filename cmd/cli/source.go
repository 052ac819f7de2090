package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arnavsurve/sheetflow/pkg/core"
	"github.com/arnavsurve/sheetflow/pkg/store"
	"github.com/arnavsurve/sheetflow/pkg/types"
)

// SourceFlags select a workflow definition, either from a YAML file or by id from the local store.
type SourceFlags struct {
	Workflow string `help:"The workflow definition file." default:"sheetflow.yml" short:"w"`
	ID       string `name:"id" help:"Run a saved workflow from the store instead of a file."`
	Varfile  string `help:"The YAML varfile for input variables." default:"sfvars.yml"`
}

// Globals are flags accepted by every command.
type Globals struct {
	Store string `help:"Path of the saved workflow store." env:"SHEETFLOW_STORE" default:".sheetflow/workflows.yml"`
}

// loadedDefinition is a definition with its variables resolved and injected.
type loadedDefinition struct {
	def    *core.Definition
	varCtx core.VarContext
	dir    string
}

func (s SourceFlags) load(logger types.Logger, storePath string) (*loadedDefinition, error) {
	def, dir, err := s.definition(logger, storePath)
	if err != nil {
		return nil, err
	}
	logger.Info().Msgf("Successfully loaded workflow: %q", def.Name)

	varCtx := s.vars(logger, dir)
	varCtx = core.ApplyInputDefaults(def, varCtx)

	if err := core.ValidateRequiredInputs(def, varCtx); err != nil {
		logger.Error().Err(err).Msg("Required input validation failed")
		return nil, fmt.Errorf("validating required inputs: %w", err)
	}
	logger.Info().Msg("Required input validation passed")

	resolved, err := core.InjectVarsIntoDefinition(def, varCtx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve variables for workflow")
		return nil, fmt.Errorf("resolving variables for workflow: %w", err)
	}

	return &loadedDefinition{def: resolved, varCtx: varCtx, dir: dir}, nil
}

func (s SourceFlags) definition(logger types.Logger, storePath string) (*core.Definition, string, error) {
	if s.ID != "" {
		def, err := store.NewFileStore(storePath).Get(s.ID)
		if err != nil {
			logger.Error().Err(err).Msgf("Failed to load workflow %q from store %s", s.ID, storePath)
			return nil, "", err
		}
		return def, ".", nil
	}

	def, err := core.LoadDefinitionFromFile(s.Workflow)
	if err != nil {
		logger.Error().Err(err).Msgf("Failed to load workflow file %s", s.Workflow)
		return nil, "", fmt.Errorf("loading workflow file %q: %w", s.Workflow, err)
	}
	abs, err := filepath.Abs(s.Workflow)
	if err != nil {
		return nil, "", fmt.Errorf("determining absolute path for workflow file %q: %w", s.Workflow, err)
	}
	return def, filepath.Dir(abs), nil
}

// vars loads the varfile. A missing varfile is not an error: required inputs are checked afterwards.
func (s SourceFlags) vars(logger types.Logger, workflowDir string) core.VarContext {
	path := s.Varfile
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = core.ResolvePathFromWorkflow(workflowDir, s.Varfile)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warn().Msgf("Varfile %s not found. Proceeding without variables.", s.Varfile)
		return make(core.VarContext)
	}

	varCtx, err := core.ResolveVarfile(path)
	if err != nil {
		logger.Warn().Err(err).Msgf("Could not resolve varfile %q. Some variable validations might be affected.", path)
		return make(core.VarContext)
	}
	logger.Info().Msgf("Successfully loaded and resolved varfile: %s", path)
	return varCtx
}
