package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/romedit/romedit/internal/config"
	"github.com/romedit/romedit/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "romedit",
		Usage: "Game-independent binary ROM editor",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			dumpCmd(),
			buildCmd(),
			ips2ipstCmd(),
			ipst2ipsCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func appLogger(c *cli.Command) logger.Logger {
	cfg := config.Load()
	level := config.ApplyLogLevel(c, cfg, c.String("log-level"))
	return logger.Pretty(os.Stderr, logger.ParseLevel(level))
}
