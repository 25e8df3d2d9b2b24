package commands

import (
	"fmt"

	"git.home.luguber.info/inful/bookship/internal/book"
	"git.home.luguber.info/inful/bookship/internal/linkcheck"
	"git.home.luguber.info/inful/bookship/internal/pipeline"
	"git.home.luguber.info/inful/bookship/internal/render"
)

// BuildCmd implements the 'build' command: a local render with no git and
// no publish.
type BuildCmd struct {
	Output string `short:"o" help:"Output directory, overriding output.directory"`
	Dir    string `arg:"" optional:"" default:"." help:"Book directory, or a parent containing one"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfigOrDefault(root)
	if err != nil {
		return err
	}

	bookDir, err := book.LocateBookDir(b.Dir, cfg.Source.Dir)
	if err != nil {
		return err
	}
	bk, err := book.Load(bookDir)
	if err != nil {
		return err
	}

	outDir := b.Output
	if outDir == "" {
		outDir = cfg.Output.Directory
	}
	if cfg.Output.Clean {
		if err := pipeline.CleanSiteDir(outDir); err != nil {
			return err
		}
	}

	res, err := render.New().Render(bk, outDir)
	if err != nil {
		return err
	}
	fmt.Printf("Rendered %q: %d pages, %d assets -> %s\n", bk.Title(), res.Pages, res.Assets, res.OutDir)

	if cfg.Pipeline.LinkCheck.Enabled {
		report, err := linkcheck.Check(outDir)
		if err != nil {
			return err
		}
		if !report.Ok() && cfg.Pipeline.LinkCheck.Fatal {
			return fmt.Errorf("linkcheck found %d broken links", len(report.Issues))
		}
		fmt.Printf("Checked %d links across %d pages\n", report.Checked, report.Pages)
	}
	return nil
}
