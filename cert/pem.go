package cert

import (
	"bytes"
	"encoding/pem"
	"fmt"
	"os"
)

// PEMType is the PEM block type used for encoded certificates.
const PEMType = "NETMAP CERTIFICATE"

// EncodePEM renders certs as concatenated PEM blocks.
func EncodePEM(certs ...*Certificate) ([]byte, error) {
	var buf bytes.Buffer
	for _, c := range certs {
		b, err := c.Encode()
		if err != nil {
			return nil, err
		}
		if err := pem.Encode(&buf, &pem.Block{Type: PEMType, Bytes: b}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodePEM parses every certificate block in data. Other block types are an error.
func DecodePEM(data []byte) ([]*Certificate, error) {
	var out []*Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != PEMType {
			return nil, fmt.Errorf("cert: unexpected PEM block %q", block.Type)
		}
		c, err := Decode(block.Bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("cert: no certificates found")
	}
	if len(bytes.TrimSpace(rest)) > 0 {
		return nil, fmt.Errorf("cert: trailing data after certificates")
	}
	return out, nil
}

// LoadFile reads a PEM certificate file.
func LoadFile(path string) ([]*Certificate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	certs, err := DecodePEM(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return certs, nil
}
