// Command netmap-storegrpcd serves a node info store backend over gRPC so
// several netmapd instances can share it.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/netmap/logging"
	"xdao.co/netmap/storage/backends"
	"xdao.co/netmap/storage/grpcstore"

	_ "xdao.co/netmap/storage/leveldb"
	_ "xdao.co/netmap/storage/localfs"
	_ "xdao.co/netmap/storage/sqlite"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("netmap-storegrpcd", pflag.ContinueOnError)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "store backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "log level")
	logEncoding := fs.String("log-encoding", logging.EncodingConsole, "log encoding (console or json)")

	backends.RegisterFlags(fs, backends.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range backends.List(backends.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logger, err := logging.New(logging.Config{Level: *logLevel, Encoding: *logEncoding})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	store, closeFn, err := backends.Open(*backend, backends.UsageDaemon, backends.FlagConfig(fs, *backend))
	if err != nil {
		logger.Error("open backend", zap.String("backend", *backend), zap.Error(err))
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("listen", zap.Error(err))
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcstore.RegisterStoreServer(s, &grpcstore.Server{Store: store})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info("netmap-storegrpcd listening",
		zap.Stringer("addr", lis.Addr()),
		zap.String("backend", *backend),
	)
	if err := s.Serve(lis); err != nil {
		logger.Error("serve", zap.Error(err))
		return 1
	}
	return 0
}
