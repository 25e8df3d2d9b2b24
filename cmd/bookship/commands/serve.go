package commands

import (
	"git.home.luguber.info/inful/bookship/internal/book"
	"git.home.luguber.info/inful/bookship/internal/serve"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `help:"Listen address, overriding serve.addr"`
	Open bool   `help:"Open the browser once the preview is up"`
	Dir  string `arg:"" optional:"" default:"." help:"Book directory, or a parent containing one"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfigOrDefault(root)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Serve.Addr = s.Addr
	}
	if s.Open {
		cfg.Serve.Open = true
	}

	bookDir, err := book.LocateBookDir(s.Dir, cfg.Source.Dir)
	if err != nil {
		return err
	}

	srv, err := serve.New(cfg, bookDir)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return srv.Run(ctx)
}
