package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build and publish a network map from the configured store once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cfg, logger, clockwork.NewRealClock())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.service.Build("cli")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "network-map %s\n", res.MapHash)
			fmt.Fprintf(out, "network-parameters %s\n", res.ParametersHash)
			fmt.Fprintf(out, "entries %d\n", len(res.NetworkMap.NodeInfoHashes))
			return nil
		},
	}
}
