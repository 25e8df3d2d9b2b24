package commands

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/bookship/internal/notify"
	"git.home.luguber.info/inful/bookship/internal/pipeline"
)

// RunCmd implements the 'run' command: one full pipeline execution, the
// same path a webhook delivery takes in daemon mode.
type RunCmd struct {
	Ref             string `help:"Trigger ref as a webhook would supply it (defaults to pipeline.ref)"`
	DryRun          bool   `name:"dry-run" help:"Stage the publish and report the change set without pushing"`
	Force           bool   `help:"Rebuild even when nothing changed since the last successful run"`
	IgnoreEnginePin bool   `name:"ignore-engine-pin" help:"Run even when this binary does not satisfy pipeline.engine_version"`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var opts []pipeline.Option
	store, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
		opts = append(opts, pipeline.WithStore(store), pipeline.WithWorkDir(cfg.Daemon.DataDir))
	}

	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return fmt.Errorf("configure notifiers: %w", err)
	}
	defer notifier.Close()
	opts = append(opts, pipeline.WithNotifier(notifier))

	if r.IgnoreEnginePin {
		opts = append(opts, pipeline.WithoutEngineCheck())
	}

	runner := pipeline.NewRunner(cfg, opts...)
	st, err := runner.Execute(ctx, pipeline.Trigger{
		Kind:   pipeline.TriggerManual,
		Ref:    r.Ref,
		DryRun: r.DryRun,
		Force:  r.Force,
	})
	if st != nil {
		printRunSummary(st)
	}
	return err
}

// printRunSummary prints the per-stage outcomes and the publish change set.
func printRunSummary(st *pipeline.State) {
	fmt.Printf("Run %s: %s\n", st.Run.ID, st.Run.Status)
	for _, stage := range st.Stages {
		line := fmt.Sprintf("  %-10s %-9s %s", stage.Name, stage.Outcome, stage.Duration.Round(time.Millisecond))
		if stage.SkipReason != "" {
			line += "  (" + stage.SkipReason + ")"
		}
		if stage.Err != nil {
			line += "  " + stage.Err.Error()
		}
		fmt.Println(line)
	}
	if res := st.Publish; res != nil {
		if res.DryRun {
			fmt.Printf("Dry run: +%d ~%d -%d against %s\n", res.Added, res.Modified, res.Deleted, res.Branch)
		} else if res.Skipped {
			fmt.Printf("Publish skipped, %s already matches\n", res.Branch)
		} else {
			fmt.Printf("Published %s to %s (+%d ~%d -%d)\n", res.CommitHash, res.Branch, res.Added, res.Modified, res.Deleted)
		}
	}
}
