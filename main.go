package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/arnavsurve/sheetflow/cmd/cli"
	"github.com/joho/godotenv"
)

type CLI struct {
	cli.Globals

	Run       cli.RunCmd       `cmd:"" help:"Run a workflow against a spreadsheet."`
	Lint      cli.LintCmd      `cmd:"" help:"Validate a workflow definition without calling the API."`
	Workflows cli.WorkflowsCmd `cmd:"" help:"Manage saved workflows."`
}

func main() {
	// .env is loaded before parsing so SHEETFLOW_* variables in it reach the flag defaults.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	var c CLI
	ctx := kong.Parse(&c,
		kong.Name("sheetflow"),
		kong.Description("Chain spreadsheet processing operations into resumable workflows."),
		kong.UsageOnError(),
		kong.Bind(&c.Globals),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
