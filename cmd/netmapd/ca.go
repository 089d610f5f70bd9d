package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"xdao.co/netmap/authority"
	"xdao.co/netmap/cert"
	"xdao.co/netmap/keys"
)

func newCACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ca",
		Short: "Certificate authority tooling",
	}
	cmd.AddCommand(newCAInitRootCmd(), newCAIssueAuthorityCmd(), newCAIssueCmd())
	return cmd
}

func writePEM(path string, certs ...*cert.Certificate) error {
	b, err := cert.EncodePEM(certs...)
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(b))
}

func newCAInitRootCmd() *cobra.Command {
	var (
		scheme   string
		name     string
		validity time.Duration
		keyOut   string
		certOut  string
		dev      bool
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "init-root",
		Short: "Create a self-signed root certificate",
		Args:  cobra.NoArgs,
	}
	key := newKeyRef(cmd.Flags(), "key", "root")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		s, err := keys.ParseScheme(scheme)
		if err != nil {
			return err
		}
		var root *authority.Root
		if dev {
			if root, err = authority.DevRoot(s); err != nil {
				return err
			}
			if keyOut != "" {
				if err := keys.WriteKeyFile(keyOut, root.Key, force); err != nil {
					return fmt.Errorf("write key: %w", err)
				}
			}
		} else {
			if err := cert.ValidateName(name); err != nil {
				return err
			}
			kp, err := key.loadOrGenerate(s, keyOut, force)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			c, err := cert.SelfSign(kp, cert.Template{
				Role:      cert.RoleRootCA,
				Subject:   name,
				NotBefore: now,
				NotAfter:  now.Add(validity),
			})
			if err != nil {
				return err
			}
			root = &authority.Root{Cert: c, Key: kp}
		}
		if err := writePEM(certOut, root.Cert); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "root %q fingerprint %s\n", root.Cert.Subject, root.Cert.Fingerprint())
		return nil
	}
	cmd.Flags().StringVar(&scheme, "scheme", string(keys.Ed25519), "signature scheme of a generated key")
	cmd.Flags().StringVar(&name, "name", "", "root distinguished name")
	cmd.Flags().DurationVar(&validity, "validity", 20*365*24*time.Hour, "certificate lifetime")
	cmd.Flags().StringVar(&keyOut, "key-out", "", "where to write a generated key")
	cmd.Flags().StringVar(&certOut, "cert-out", "root.pem", "where to write the certificate (PEM)")
	cmd.Flags().BoolVar(&dev, "dev", false, "export the well-known development root instead")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}

func newCAIssueAuthorityCmd() *cobra.Command {
	var (
		rootCert string
		scheme   string
		name     string
		hashAlg  string
		validity time.Duration
		keyOut   string
		certOut  string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "issue-authority",
		Short: "Issue a network map signing certificate under a root",
		Args:  cobra.NoArgs,
	}
	rootKey := newKeyRef(cmd.Flags(), "root-key", "root")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		kp, err := rootKey.load()
		if err != nil {
			return err
		}
		certs, err := cert.LoadFile(rootCert)
		if err != nil {
			return err
		}
		a, err := authority.IssueNetworkMapCA(&authority.Root{Cert: certs[0], Key: kp}, authority.IssueOptions{
			Scheme:   keys.Scheme(scheme),
			Name:     name,
			Validity: validity,
			HashAlg:  hashAlg,
		})
		if err != nil {
			return err
		}
		if err := keys.WriteKeyFile(keyOut, a.Key, force); err != nil {
			return fmt.Errorf("write key: %w", err)
		}
		if err := writePEM(certOut, a.Path...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "authority %q fingerprint %s\n", a.Cert.Subject, a.Cert.Fingerprint())
		return nil
	}
	cmd.Flags().StringVar(&rootCert, "root-cert", "root.pem", "issuing root certificate (PEM)")
	cmd.Flags().StringVar(&scheme, "scheme", "", "signature scheme (default: the root's)")
	cmd.Flags().StringVar(&name, "name", authority.DefaultName, "authority distinguished name")
	cmd.Flags().StringVar(&hashAlg, "hash-alg", keys.DefaultHashAlg, "digest signed by the authority")
	cmd.Flags().DurationVar(&validity, "validity", authority.DefaultValidity, "certificate lifetime")
	cmd.Flags().StringVar(&keyOut, "key-out", "network-map.key", "where to write the authority key")
	cmd.Flags().StringVar(&certOut, "cert-out", "network-map.pem", "where to write the certificate path (PEM)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}

// newCAIssueCmd issues any certificate the issuer's role permits, which is
// how doorman, node CA and node identity certificates are made.
func newCAIssueCmd() *cobra.Command {
	var (
		issuerCert string
		role       string
		subject    string
		scheme     string
		validity   time.Duration
		keyOut     string
		certOut    string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a certificate under an issuing CA",
		Args:  cobra.NoArgs,
	}
	issuerKey := newKeyRef(cmd.Flags(), "issuer-key", "issuer")
	subjectKey := newKeyRef(cmd.Flags(), "key", "subject")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		r := cert.Role(role)
		if !r.Valid() {
			return fmt.Errorf("unknown role %q", role)
		}
		if err := cert.ValidateName(subject); err != nil {
			return err
		}
		ikp, err := issuerKey.load()
		if err != nil {
			return err
		}
		path, err := cert.LoadFile(issuerCert)
		if err != nil {
			return err
		}
		s := ikp.Scheme
		if scheme != "" {
			if s, err = keys.ParseScheme(scheme); err != nil {
				return err
			}
		}
		kp, err := subjectKey.loadOrGenerate(s, keyOut, force)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		notAfter := now.Add(validity)
		if issuerEnd := time.Unix(path[0].NotAfter, 0); notAfter.After(issuerEnd) {
			notAfter = issuerEnd
		}
		c, err := cert.Issue(path[0], ikp, kp.Scheme, kp.Public, cert.Template{
			Role:      r,
			Subject:   subject,
			NotBefore: now,
			NotAfter:  notAfter,
		})
		if err != nil {
			return err
		}
		chain := append([]*cert.Certificate{c}, path...)
		if err := writePEM(certOut, chain...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %q fingerprint %s\n", c.Role, c.Subject, c.Fingerprint())
		return nil
	}
	cmd.Flags().StringVar(&issuerCert, "issuer-cert", "", "issuer certificate path (PEM, leaf first)")
	cmd.Flags().StringVar(&role, "role", string(cert.RoleNodeIdentity), "role of the new certificate")
	cmd.Flags().StringVar(&subject, "subject", "", "distinguished name of the new certificate")
	cmd.Flags().StringVar(&scheme, "scheme", "", "signature scheme of a generated key (default: the issuer's)")
	cmd.Flags().DurationVar(&validity, "validity", 5*365*24*time.Hour, "certificate lifetime")
	cmd.Flags().StringVar(&keyOut, "key-out", "", "where to write a generated key")
	cmd.Flags().StringVar(&certOut, "cert-out", "", "where to write the certificate path (PEM)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	_ = cmd.MarkFlagRequired("issuer-cert")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("cert-out")
	return cmd
}
