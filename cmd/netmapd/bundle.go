package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xdao.co/netmap/netmap"
	"xdao.co/netmap/storage/bundle"
)

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export or import registry contents as a deterministic TAR",
	}
	cmd.AddCommand(newBundleExportCmd(), newBundleImportCmd())
	return cmd
}

func newBundleExportCmd() *cobra.Command {
	var (
		out        string
		noIndex    bool
		includeMap bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every registered node info to a bundle",
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

			opts := bundle.ExportOptions{IncludeIndex: !noIndex}
			if includeMap {
				nm, err := a.service.NetworkMap()
				if err != nil && !netmap.IsKind(err, netmap.KindNotFound) {
					return err
				}
				opts.NetworkMap = nm
			}
			var buf bytes.Buffer
			if err := bundle.Export(&buf, a.registry, opts); err != nil {
				return err
			}
			if err := atomic.WriteFile(out, &buf); err != nil {
				return err
			}
			logger.Info("bundle exported", zap.String("path", out))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "netmap-bundle.tar", "bundle file")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "omit index.json")
	cmd.Flags().BoolVar(&includeMap, "include-map", false, "include the latest published network map")
	return cmd
}

func newBundleImportCmd() *cobra.Command {
	var (
		in            string
		keepGoing     bool
		ignoreUnknown bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Verify and register every node info in a bundle",
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

			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()
			rep, err := bundle.ImportWithOptions(f, a.registry, bundle.ImportOptions{
				KeepGoing:     keepGoing,
				IgnoreUnknown: ignoreUnknown,
			})
			for _, r := range rep.Rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "rejected %s: %v\n", r.Hash, r.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, rejected %d\n", len(rep.Imported), len(rep.Rejected))
			return err
		},
	}
	cmd.Flags().StringVar(&in, "in", "netmap-bundle.tar", "bundle file")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "report rejected entries instead of stopping")
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "skip unknown archive entries")
	return cmd
}
