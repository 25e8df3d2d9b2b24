package commands

import (
	"fmt"

	"git.home.luguber.info/inful/bookship/internal/daemon"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	DataDir string `short:"d" help:"Override daemon.data_dir"`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if d.DataDir != "" && cfg.Daemon != nil {
		cfg.Daemon.DataDir = d.DataDir
	}

	ctx, cancel := signalContext()
	defer cancel()

	dm, err := daemon.New(cfg, root.Config)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	return dm.Run(ctx)
}
