package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bookship/cmd/bookship/commands"
	"git.home.luguber.info/inful/bookship/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("bookship"),
		kong.Description("Build a book and ship it to its pages branch."),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("bookship %s (commit %s, built %s)",
				version.Version, version.GitCommit, version.BuildTime),
		},
	)
	ctx.FatalIfErrorf(ctx.Run(&commands.Global{}, &cli))
}
