// Package netmap defines the documents exchanged through the network map
// registry and the structured error taxonomy shared by the protocol packages.
//
// All documents are serialized with Marshal; hashes and signatures are always
// computed over those canonical bytes.
package netmap

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"xdao.co/netmap/digest"
)

// HostAndPort is a network address a participant can be reached at.
type HostAndPort struct {
	Host string `cbor:"host"`
	Port uint16 `cbor:"port"`
}

func (a HostAndPort) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// ParseHostAndPort parses "host:port".
func ParseHostAndPort(s string) (HostAndPort, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return HostAndPort{}, err
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return HostAndPort{}, fmt.Errorf("invalid port %q: %w", port, err)
	}
	return HostAndPort{Host: host, Port: uint16(p)}, nil
}

// NodeInfo is a participant's self-asserted identity and address record.
//
// LegalName must equal the subject of the identity certificate that signs the
// envelope carrying it.
type NodeInfo struct {
	Addresses       []HostAndPort `cbor:"addresses"`
	LegalName       string        `cbor:"legalName"`
	PlatformVersion int32         `cbor:"platformVersion"`
	Serial          int64         `cbor:"serial"`
}

// Validate checks the structural requirements that decoding cannot express.
func (n NodeInfo) Validate() error {
	if n.LegalName == "" {
		return NewError(KindMalformed, "NM-NODE-001", "node info has no legal name")
	}
	if len(n.Addresses) == 0 {
		return NewError(KindMalformed, "NM-NODE-002", "node info has no addresses")
	}
	for _, a := range n.Addresses {
		if a.Host == "" || a.Port == 0 {
			return NewError(KindMalformed, "NM-NODE-003", "node info has an invalid address")
		}
	}
	if n.PlatformVersion < 1 {
		return NewError(KindMalformed, "NM-NODE-004", "platform version must be positive")
	}
	return nil
}

// NotaryInfo is one entry of the network parameters' notary list.
type NotaryInfo struct {
	Identity   string `cbor:"identity"`
	Validating bool   `cbor:"validating"`
}

// NetworkParameters are the network-wide constants every participant must agree on.
type NetworkParameters struct {
	MinimumPlatformVersion int32        `cbor:"minimumPlatformVersion"`
	Notaries               []NotaryInfo `cbor:"notaries"`
	MaxMessageSize         int32        `cbor:"maxMessageSize"`
	MaxTransactionSize     int32        `cbor:"maxTransactionSize"`
	// ModifiedTime is the validity start time in unix milliseconds.
	ModifiedTime int64             `cbor:"modifiedTime"`
	Epoch        int32             `cbor:"epoch"`
	Settings     map[string]string `cbor:"settings"`
}

const defaultMaxMessageSize = 10485760

// DefaultParameters returns the stub parameters used when none are configured.
func DefaultParameters(modified time.Time) NetworkParameters {
	return NetworkParameters{
		MinimumPlatformVersion: 1,
		Notaries:               []NotaryInfo{},
		MaxMessageSize:         defaultMaxMessageSize,
		MaxTransactionSize:     math.MaxInt32,
		ModifiedTime:           modified.UnixMilli(),
		Epoch:                  10,
		Settings:               map[string]string{},
	}
}

// Validate checks parameter sanity.
func (p NetworkParameters) Validate() error {
	var errs []error
	if p.MinimumPlatformVersion < 1 {
		errs = append(errs, errors.New("minimum platform version must be positive"))
	}
	if p.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("max message size must be positive"))
	}
	if p.MaxTransactionSize <= 0 {
		errs = append(errs, errors.New("max transaction size must be positive"))
	}
	if p.MaxTransactionSize < p.MaxMessageSize {
		errs = append(errs, errors.New("max transaction size must be at least max message size"))
	}
	if p.Epoch < 1 {
		errs = append(errs, errors.New("epoch must be positive"))
	}
	if len(errs) > 0 {
		return WrapError(KindMalformed, "NM-PARAM-001", "invalid network parameters", errors.Join(errs...))
	}
	return nil
}

// ParametersUpdate announces a pending change of network parameters.
type ParametersUpdate struct {
	NewParametersHash digest.SecureHash `cbor:"newParametersHash"`
	Description       string            `cbor:"description"`
	// UpdateDeadline is in unix milliseconds.
	UpdateDeadline int64 `cbor:"updateDeadline"`
}

// NetworkMap is the document every participant fetches.
//
// NodeInfoHashes are kept in ascending byte order so the serialization of a
// given membership set is unique.
type NetworkMap struct {
	NodeInfoHashes        []digest.SecureHash `cbor:"nodeInfoHashes"`
	NetworkParametersHash digest.SecureHash   `cbor:"networkParametersHash"`
	ParametersUpdate      *ParametersUpdate   `cbor:"parametersUpdate"`
}
