package core

import "path/filepath"

const (
	// StateDir holds everything sheetflow writes next to the workflows it runs.
	StateDir = ".sheetflow"
	// DefaultStoreFile is the saved-definition store, relative to the working directory.
	DefaultStoreFile = StateDir + "/workflows.yml"
)

// ResolvePathFromWorkflow resolves a path from a workflow file.
// If the provided path is already absolute, it's returned as is.
// If it's relative, it's joined with the workflowDir.
func ResolvePathFromWorkflow(workflowDir, pathFromYAML string) string {
	if pathFromYAML == "" || filepath.IsAbs(pathFromYAML) {
		return pathFromYAML
	}
	return filepath.Join(workflowDir, pathFromYAML)
}

// RunLogPath is where the JSON log of one run is written.
func RunLogPath(baseDir, runID string) string {
	return filepath.Join(baseDir, StateDir, "logs", runID+".json")
}
