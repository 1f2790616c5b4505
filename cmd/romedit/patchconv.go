package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/romedit/romedit/pkg/patch"
)

func writeIPSFile(p *patch.Patch, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return p.ToIPS(f, patch.EncodeOptions{})
}

func ips2ipstCmd() *cli.Command {
	return &cli.Command{
		Name:  "ips2ipst",
		Usage: "Convert a binary IPS patch to textual IPST",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Required: true, Usage: "input .ips path"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "output .ipst path"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			in, err := os.Open(cmd.String("in"))
			if err != nil {
				return fmt.Errorf("opening patch: %w", err)
			}
			defer func() { _ = in.Close() }()

			p, err := patch.FromIPS(in)
			if err != nil {
				return fmt.Errorf("reading IPS: %w", err)
			}

			out, err := os.Create(cmd.String("out"))
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			defer func() { _ = out.Close() }()

			if err := p.ToIPST(out, patch.EncodeOptions{}); err != nil {
				return fmt.Errorf("writing IPST: %w", err)
			}
			return nil
		},
	}
}

func ipst2ipsCmd() *cli.Command {
	return &cli.Command{
		Name:  "ipst2ips",
		Usage: "Convert a textual IPST patch to binary IPS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Required: true, Usage: "input .ipst path"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "output .ips path"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			in, err := os.Open(cmd.String("in"))
			if err != nil {
				return fmt.Errorf("opening patch: %w", err)
			}
			defer func() { _ = in.Close() }()

			p, err := patch.FromIPST(in)
			if err != nil {
				return fmt.Errorf("reading IPST: %w", err)
			}

			out, err := os.Create(cmd.String("out"))
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			defer func() { _ = out.Close() }()

			if err := p.ToIPS(out, patch.EncodeOptions{}); err != nil {
				return fmt.Errorf("writing IPS: %w", err)
			}
			return nil
		},
	}
}
