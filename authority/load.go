package authority

import (
	"fmt"

	"xdao.co/netmap/cert"
	"xdao.co/netmap/keys"
)

// LoadRoot reads a root key file and its PEM certificate.
func LoadRoot(keyFile, certFile string) (*Root, error) {
	kp, err := keys.ReadKeyFile(keyFile)
	if err != nil {
		return nil, err
	}
	certs, err := cert.LoadFile(certFile)
	if err != nil {
		return nil, err
	}
	c := certs[0]
	if !c.Role.IsCA() {
		return nil, fmt.Errorf("authority: %s: certificate role %s cannot issue", certFile, c.Role)
	}
	if c.Scheme != kp.Scheme || string(c.PublicKey) != string(kp.Public) {
		return nil, fmt.Errorf("authority: %s does not match %s", keyFile, certFile)
	}
	return &Root{Cert: c, Key: kp}, nil
}

// LoadAuthority reads an authority key file and its PEM certificate path,
// leaf first.
func LoadAuthority(keyFile, certFile, hashAlg string) (*Authority, error) {
	kp, err := keys.ReadKeyFile(keyFile)
	if err != nil {
		return nil, err
	}
	certs, err := cert.LoadFile(certFile)
	if err != nil {
		return nil, err
	}
	return New(kp, certs, hashAlg)
}

// LoadTrust builds a trust store from PEM files. Every certificate in every
// file must be a self-signed root.
func LoadTrust(files ...string) (*cert.TrustStore, error) {
	ts, err := cert.NewTrustStore()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		certs, err := cert.LoadFile(f)
		if err != nil {
			return nil, err
		}
		for _, c := range certs {
			if err := ts.Add(c); err != nil {
				return nil, fmt.Errorf("%s: %w", f, err)
			}
		}
	}
	return ts, nil
}
