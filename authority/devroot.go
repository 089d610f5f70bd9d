package authority

import (
	"crypto/sha256"
	"time"

	"xdao.co/netmap/cert"
	"xdao.co/netmap/keys"
)

// DevRootName is the subject of the development root.
const DevRootName = "CN=XDAO Development Root CA,O=XDAO,L=London,C=GB"

// The development root key is derived from a published constant. Anyone can
// sign as it, so it must only be trusted in development and test networks.
var devRootSeed = sha256.Sum256([]byte("xdao netmap development root ca"))

var (
	devNotBefore = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	devNotAfter  = time.Date(2120, 1, 1, 0, 0, 0, 0, time.UTC)
)

// DevRoot returns the well-known development root for scheme. The result is
// identical on every call and in every process.
func DevRoot(scheme keys.Scheme) (*Root, error) {
	seed, err := keys.DeriveRoleSeed(devRootSeed[:], "root-ca-"+string(scheme))
	if err != nil {
		return nil, err
	}
	kp, err := keys.FromSeed(scheme, seed)
	if err != nil {
		return nil, err
	}
	c, err := cert.SelfSign(kp, cert.Template{
		Role:      cert.RoleRootCA,
		Subject:   DevRootName,
		Serial:    1,
		NotBefore: devNotBefore,
		NotAfter:  devNotAfter,
	})
	if err != nil {
		return nil, err
	}
	return &Root{Cert: c, Key: kp}, nil
}
