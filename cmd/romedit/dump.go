package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/romedit/romedit/internal/config"
	"github.com/romedit/romedit/internal/logger"
	"github.com/romedit/romedit/pkg/rom"
)

func dumpCmd() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Dump a ROM's tables to an editable TSV directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "map", Required: true, Usage: "map directory"},
			&cli.StringFlag{Name: "rom", Required: true, Usage: "ROM image path"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "output dump directory"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug|info|warn|error"},
			&cli.BoolFlag{Name: "strict", Usage: "promote overflow/encoding/pointer warnings to fatal errors"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			log := appLogger(cmd)

			cfg := config.Load()
			strict := config.ApplyStrict(cmd, cfg, false)

			r, err := rom.Open(cmd.String("map"), cmd.String("rom"))
			if err != nil {
				return fmt.Errorf("opening ROM: %w", err)
			}
			defer func() { _ = r.Close() }()

			log.Info("dumping ROM", "entities", len(r.Entities), "strict", strict)
			warnings, err := r.Dump(cmd.String("out"), strict)
			if err != nil {
				return fmt.Errorf("dump: %w", err)
			}
			logger.WarnAll(log, "field decoded with a warning", warnings)
			log.Info("dump complete", "dir", cmd.String("out"))
			return nil
		},
	}
}
