package grpcstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/netmap/storage"
	"xdao.co/netmap/storage/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "grpc",
		Description: "gRPC store client (talks to netmap-storegrpcd)",
		Usage:       backends.UsageServer,
		Options: []backends.Option{
			{Key: "grpc-target", Usage: "gRPC target host:port"},
			{Key: "grpc-dial-timeout", Default: "5s", Usage: "Dial timeout"},
			{Key: "grpc-timeout", Default: "0s", Usage: "Per-RPC timeout"},
			{Key: "grpc-max-msg-bytes", Default: "0", Usage: "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults"},
		},
		Open: func(cfg map[string]string) (storage.Store, func() error, error) {
			target := strings.TrimSpace(cfg["grpc-target"])
			if target == "" {
				return nil, nil, fmt.Errorf("missing grpc-target")
			}
			dialTimeout, err := time.ParseDuration(cfg["grpc-dial-timeout"])
			if err != nil {
				return nil, nil, fmt.Errorf("grpc-dial-timeout: %w", err)
			}
			timeout, err := time.ParseDuration(cfg["grpc-timeout"])
			if err != nil {
				return nil, nil, fmt.Errorf("grpc-timeout: %w", err)
			}
			maxMsg, err := strconv.Atoi(cfg["grpc-max-msg-bytes"])
			if err != nil {
				return nil, nil, fmt.Errorf("grpc-max-msg-bytes: %w", err)
			}
			client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}
