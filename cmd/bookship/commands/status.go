package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"git.home.luguber.info/inful/bookship/internal/runstore"
)

// StatusCmd implements the 'status' command: recent runs straight from the
// run store, no daemon required.
type StatusCmd struct {
	Limit int  `short:"n" default:"10" help:"How many runs to show"`
	JSON  bool `help:"Emit JSON instead of a table"`
}

func (s *StatusCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	store, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("no daemon data directory configured, there is no run history to read")
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runs, err := store.RecentRuns(ctx, s.Limit)
	if err != nil {
		return err
	}

	if s.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	fmt.Printf("%-36s  %-8s  %-19s  %-20s  %-9s  %s\n",
		"RUN", "TRIGGER", "STATUS", "STARTED", "DURATION", "COMMIT")
	for _, run := range runs {
		fmt.Printf("%-36s  %-8s  %-19s  %-20s  %-9s  %s\n",
			run.ID, run.Trigger, statusCell(run),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Duration.Round(time.Millisecond), shortCommit(run.Commit))
	}
	return nil
}

func statusCell(run runstore.Run) string {
	if run.Status == runstore.StatusSkipped && run.SkipReason != "" {
		return run.Status + ":" + run.SkipReason
	}
	return run.Status
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
