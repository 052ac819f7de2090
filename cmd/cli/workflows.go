package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/arnavsurve/sheetflow/pkg/core"
	"github.com/arnavsurve/sheetflow/pkg/store"
	"github.com/fatih/color"

	// Ensure all step implementations are registered
	_ "github.com/arnavsurve/sheetflow/pkg/steprunner/runners"
)

// WorkflowsCmd manages the local store of saved workflow definitions.
type WorkflowsCmd struct {
	List   WorkflowsListCmd   `cmd:"" help:"List saved workflows, most recently updated first."`
	Show   WorkflowsShowCmd   `cmd:"" help:"Print a saved workflow as YAML."`
	Save   WorkflowsSaveCmd   `cmd:"" help:"Save a workflow file into the store, replacing any entry with the same id."`
	Delete WorkflowsDeleteCmd `cmd:"" help:"Delete a saved workflow."`
}

type WorkflowsListCmd struct{}

func (c *WorkflowsListCmd) Run(globals *Globals) error {
	defs, err := store.NewFileStore(globals.Store).List()
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		fmt.Fprintf(color.Output, "No saved workflows in %s\n", globals.Store)
		return nil
	}

	w := tabwriter.NewWriter(color.Output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTEPS\tUPDATED")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", def.ID, def.Name, len(def.Steps), def.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

type WorkflowsShowCmd struct {
	ID string `arg:"" help:"Id of the saved workflow."`
}

func (c *WorkflowsShowCmd) Run(globals *Globals) error {
	def, err := store.NewFileStore(globals.Store).Get(c.ID)
	if err != nil {
		return err
	}
	data, err := core.MarshalDefinition(def)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

type WorkflowsSaveCmd struct {
	File string `arg:"" help:"Workflow definition file to save." type:"existingfile"`
}

func (c *WorkflowsSaveCmd) Run(globals *Globals) error {
	def, err := core.LoadDefinitionFromFile(c.File)
	if err != nil {
		return err
	}
	if err := core.ValidateDefinition(def); err != nil {
		return fmt.Errorf("not saving %q: %w", c.File, err)
	}

	saved, err := store.NewFileStore(globals.Store).Save(*def)
	if err != nil {
		return err
	}
	color.Green("Saved workflow %q with id %s", saved.Name, saved.ID)
	return nil
}

type WorkflowsDeleteCmd struct {
	ID string `arg:"" help:"Id of the saved workflow."`
}

func (c *WorkflowsDeleteCmd) Run(globals *Globals) error {
	if err := store.NewFileStore(globals.Store).Delete(c.ID); err != nil {
		return err
	}
	color.Yellow("Deleted workflow %s", c.ID)
	return nil
}
