package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/romedit/romedit/internal/config"
	"github.com/romedit/romedit/internal/logger"
	"github.com/romedit/romedit/pkg/rom"
)

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Apply an edited TSV dump directory back into a ROM image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "map", Required: true, Usage: "map directory"},
			&cli.StringFlag{Name: "rom", Required: true, Usage: "original ROM image path"},
			&cli.StringFlag{Name: "dump", Required: true, Usage: "dump directory to load edits from"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "output ROM image path"},
			&cli.StringFlag{Name: "patch-out", Usage: "also write an IPS patch of the changes to this path"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug|info|warn|error"},
			&cli.BoolFlag{Name: "strict", Value: true, Usage: "promote overflow/encoding/pointer warnings to fatal errors"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			log := appLogger(cmd)

			cfg := config.Load()
			strict := config.ApplyStrict(cmd, cfg, true)

			r, err := rom.Open(cmd.String("map"), cmd.String("rom"))
			if err != nil {
				return fmt.Errorf("opening ROM: %w", err)
			}
			defer func() { _ = r.Close() }()

			warnings, err := r.Load(cmd.String("dump"), strict)
			if err != nil {
				return fmt.Errorf("loading dump: %w", err)
			}
			logger.WarnAll(log, "field encoded with a warning", warnings)

			p := r.Diff()
			log.Info("applying dump", "changes", len(p.Changes), "strict", strict)

			if err := r.Save(cmd.String("out")); err != nil {
				return fmt.Errorf("saving ROM: %w", err)
			}

			if patchOut := cmd.String("patch-out"); patchOut != "" {
				if err := writeIPSFile(p, patchOut); err != nil {
					return fmt.Errorf("writing patch: %w", err)
				}
			}

			log.Info("build complete", "out", cmd.String("out"))
			return nil
		},
	}
}
