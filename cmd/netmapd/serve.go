package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/netmap/httpapi"
	"xdao.co/netmap/schedule"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept node infos over HTTP and publish network maps on a schedule",
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

			// Nothing can be signed without a usable authority, so fail before serving.
			if _, err := a.service.CheckAuthority(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	handler := httpapi.NewHandler(a.service, httpapi.Options{
		Logger:  a.logger,
		Metrics: a.cfg.Metrics,
	})
	srv := httpapi.NewServer(a.cfg.Listen, handler, a.logger)
	sched := schedule.New(a.service,
		schedule.WithLogger(a.logger),
		schedule.WithInterval(a.cfg.BuildInterval),
		schedule.WithInitialBuild(),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.ListenAndServe(ctx) })
	eg.Go(func() error { return sched.Run(ctx) })
	err := eg.Wait()
	a.logger.Info("netmapd stopped", zap.Error(err))
	return err
}
