package main

import (
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/netmap/keys"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage operator seeds used by the ca commands",
	}
	var dir string
	cmd.PersistentFlags().StringVar(&dir, "store", "", "key store directory (default ~/.xdao/netmap/keys)")

	var (
		name    string
		scheme  string
		seedHex string
		force   bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a root key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := keys.ParseScheme(scheme)
			if err != nil {
				return err
			}
			var seed []byte
			if seedHex != "" {
				if seed, err = keys.ParseSeedHex(seedHex); err != nil {
					return fmt.Errorf("invalid --seed-hex: %w", err)
				}
			} else {
				seed = make([]byte, keys.SeedSize)
				if _, err := rand.Read(seed); err != nil {
					return err
				}
			}
			ks, err := keys.CreateKeyStore(dir)
			if err != nil {
				return err
			}
			kp, path, err := ks.InitializeRootKey(name, s, seed, force)
			if err != nil {
				return fmt.Errorf("write key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "root key %s\n", keys.PublicKeyString(kp.Scheme, kp.Public))
			fmt.Fprintf(cmd.OutOrStdout(), "written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&name, "name", "", "key identifier")
	initCmd.Flags().StringVar(&scheme, "scheme", string(keys.Ed25519), "signature scheme")
	initCmd.Flags().StringVar(&seedHex, "seed-hex", "", "optional seed as 64 hex chars (for reproducible setups)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")
	_ = initCmd.MarkFlagRequired("name")

	var from, role string
	deriveCmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a role key from a root key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := keys.CreateKeyStore(dir)
			if err != nil {
				return err
			}
			kp, path, err := ks.DeriveKeyFromRole(from, role, force)
			if err != nil {
				return fmt.Errorf("derive role key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "role key %s\n", keys.PublicKeyString(kp.Scheme, kp.Public))
			fmt.Fprintf(cmd.OutOrStdout(), "written to %s\n", path)
			return nil
		},
	}
	deriveCmd.Flags().StringVar(&from, "from", "", "root key identifier")
	deriveCmd.Flags().StringVar(&role, "role", "", "role identifier (e.g. node-ca, identity)")
	deriveCmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")
	_ = deriveCmd.MarkFlagRequired("from")
	_ = deriveCmd.MarkFlagRequired("role")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := keys.CreateKeyStore(dir)
			if err != nil {
				return err
			}
			entries, err := ks.ListKeys()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e.Identifier)
				for _, r := range e.Roles {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", r)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, deriveCmd, listCmd)
	return cmd
}
