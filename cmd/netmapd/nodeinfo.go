package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"xdao.co/netmap/cert"
	"xdao.co/netmap/envelope"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/netmap"
)

func newNodeInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodeinfo",
		Short: "Create and inspect signed node infos",
	}
	cmd.AddCommand(newNodeInfoSignCmd(), newNodeInfoHashCmd())
	return cmd
}

func newNodeInfoSignCmd() *cobra.Command {
	var (
		certFile        string
		addresses       []string
		platformVersion int32
		serial          int64
		hashAlg         string
		out             string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a node info with a node identity key",
		Args:  cobra.NoArgs,
	}
	key := newKeyRef(cmd.Flags(), "key", "node identity")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		kp, err := key.load()
		if err != nil {
			return err
		}
		path, err := cert.LoadFile(certFile)
		if err != nil {
			return err
		}
		if path[0].Role != cert.RoleNodeIdentity {
			return fmt.Errorf("%s: leaf certificate role is %s, want %s", certFile, path[0].Role, cert.RoleNodeIdentity)
		}
		info := netmap.NodeInfo{
			LegalName:       path[0].Subject,
			PlatformVersion: platformVersion,
			Serial:          serial,
		}
		if info.Serial == 0 {
			info.Serial = time.Now().UnixMilli()
		}
		for _, a := range addresses {
			hp, err := netmap.ParseHostAndPort(a)
			if err != nil {
				return fmt.Errorf("--address %q: %w", a, err)
			}
			info.Addresses = append(info.Addresses, hp)
		}
		if err := info.Validate(); err != nil {
			return err
		}
		s, err := envelope.Wrap(info, kp, path, hashAlg)
		if err != nil {
			return err
		}
		b, err := s.Marshal()
		if err != nil {
			return err
		}
		if err := atomic.WriteFile(out, bytes.NewReader(b)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.Hash())
		return nil
	}
	cmd.Flags().StringVar(&certFile, "cert", "", "node identity certificate path (PEM, leaf first)")
	cmd.Flags().StringArrayVar(&addresses, "address", nil, "host:port the node is reachable at (repeatable)")
	cmd.Flags().Int32Var(&platformVersion, "platform-version", 1, "platform version")
	cmd.Flags().Int64Var(&serial, "serial", 0, "node info serial (default: current unix milliseconds)")
	cmd.Flags().StringVar(&hashAlg, "hash-alg", keys.DefaultHashAlg, "digest to sign")
	cmd.Flags().StringVar(&out, "out", "nodeInfo.ser", "output file")
	_ = cmd.MarkFlagRequired("cert")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func newNodeInfoHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the registry hash of a signed node info",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := envelope.Parse[netmap.NodeInfo](b)
			if err != nil {
				return err
			}
			h := s.Hash()
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", h, h.CID())
			return nil
		},
	}
}
