// Command netmapd runs the network map registry and its operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"xdao.co/netmap/config"
	"xdao.co/netmap/logging"

	_ "xdao.co/netmap/storage/grpcstore"
	_ "xdao.co/netmap/storage/leveldb"
	_ "xdao.co/netmap/storage/localfs"
	_ "xdao.co/netmap/storage/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "netmapd",
		Short:         "Network map registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "configuration file (yaml, json or toml)")
	addConfigFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(),
		newBuildCmd(),
		newCACmd(),
		newNodeInfoCmd(),
		newBundleCmd(),
		newKeyCmd(),
	)
	return root
}

// addConfigFlags exposes the commonly overridden settings as flags. Defaults
// mirror config.Default so an unset flag never masks the config file.
func addConfigFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String(config.FlagName("listen"), d.Listen, "HTTP listen address")
	fs.Duration(config.FlagName("build_interval"), d.BuildInterval, "interval between scheduled builds")
	fs.String(config.FlagName("log.level"), d.Log.Level, "log level")
	fs.String(config.FlagName("log.encoding"), d.Log.Encoding, "log encoding (console or json)")
	fs.Bool(config.FlagName("trust.dev_mode"), d.Trust.DevMode, "trust and sign with the development root")
	fs.StringSlice(config.FlagName("trust.root_cert_files"), nil, "PEM files of trusted root certificates")
	fs.String(config.FlagName("authority.scheme"), d.Authority.Scheme, "signature scheme of a generated authority")
	fs.String(config.FlagName("authority.key_file"), "", "provisioned authority key file")
	fs.String(config.FlagName("authority.cert_file"), "", "provisioned authority certificate path (PEM, leaf first)")
	fs.String(config.FlagName("authority.root_key_file"), "", "root key used to issue an authority at startup")
	fs.String(config.FlagName("authority.root_cert_file"), "", "root certificate used to issue an authority at startup")
	fs.String(config.FlagName("publish.backend"), d.Publish.Backend, "publication backend (memory, localfs, sqlite, leveldb)")
	fs.String(config.FlagName("publish.dir"), "", "publication directory for localfs")
	fs.String(config.FlagName("duplicates"), d.Duplicates, "duplicate submission policy (permissive or strict)")
	fs.Bool(config.FlagName("metrics"), d.Metrics, "serve Prometheus metrics at /metrics")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}
