package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/bookship/internal/deploykey"
	"git.home.luguber.info/inful/bookship/internal/publish"
)

// PublishCmd implements the 'publish' command, the manual escape hatch for
// pushing a directory that was already built.
type PublishCmd struct {
	SiteDir string `arg:"" optional:"" help:"Built site directory (defaults to output.directory)"`
	DryRun  bool   `name:"dry-run" help:"Compute and print the change set without pushing"`
}

func (p *PublishCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	siteDir := p.SiteDir
	if siteDir == "" {
		siteDir = cfg.Output.Directory
	}

	var key *deploykey.Key
	if cfg.Publish.DeployKeyEnv != "" || cfg.Publish.DeployKeyPath != "" {
		key, err = deploykey.Load(cfg.Publish)
		if err != nil {
			return err
		}
		slog.Info("Deploy key loaded",
			slog.String("fingerprint", key.Fingerprint), slog.String("source", key.Source))
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := publish.New(cfg.Publish, key).Publish(ctx, publish.Request{
		SiteDir:  siteDir,
		Pipeline: cfg.Pipeline.Name,
		Ref:      cfg.Pipeline.Ref,
		DryRun:   p.DryRun,
	})
	if err != nil {
		return err
	}

	switch {
	case res.DryRun:
		fmt.Printf("Dry run: +%d ~%d -%d against %s\n", res.Added, res.Modified, res.Deleted, res.Branch)
	case res.Skipped:
		fmt.Printf("Nothing to publish, %s already matches %s\n", res.Branch, siteDir)
	default:
		fmt.Printf("Published %s to %s (+%d ~%d -%d)\n", res.CommitHash, res.Branch, res.Added, res.Modified, res.Deleted)
	}
	return nil
}
