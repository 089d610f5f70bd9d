package model

import (
	"xdao.co/netmap/cert"
	"xdao.co/netmap/digest"
	"xdao.co/netmap/netmap"
)

// SubmitResponse is returned for an accepted node info.
type SubmitResponse struct {
	Hash string `json:"hash"`
	CID  string `json:"cid"`
}

func NewSubmitResponse(h digest.SecureHash) SubmitResponse {
	return SubmitResponse{Hash: h.String(), CID: h.CID().String()}
}

// Hashes renders hashes as hex strings. The result is never nil.
func Hashes(hs []digest.SecureHash) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.String())
	}
	return out
}

// Signer describes the leaf certificate of a signature path.
type Signer struct {
	Subject     string `json:"subject"`
	Role        string `json:"role"`
	Scheme      string `json:"scheme"`
	Fingerprint string `json:"fingerprint"`
}

func NewSigner(c *cert.Certificate) *Signer {
	if c == nil {
		return nil
	}
	return &Signer{
		Subject:     c.Subject,
		Role:        string(c.Role),
		Scheme:      string(c.Scheme),
		Fingerprint: c.Fingerprint().String(),
	}
}

// NodeInfoView is a JSON projection of a verified node info.
type NodeInfoView struct {
	Hash            string   `json:"hash"`
	LegalName       string   `json:"legalName"`
	Addresses       []string `json:"addresses"`
	PlatformVersion int32    `json:"platformVersion"`
	Serial          int64    `json:"serial"`
	Signer          *Signer  `json:"signer"`
}

func NewNodeInfoView(h digest.SecureHash, n netmap.NodeInfo, signer *cert.Certificate) NodeInfoView {
	addrs := make([]string, 0, len(n.Addresses))
	for _, a := range n.Addresses {
		addrs = append(addrs, a.String())
	}
	return NodeInfoView{
		Hash:            h.String(),
		LegalName:       n.LegalName,
		Addresses:       addrs,
		PlatformVersion: n.PlatformVersion,
		Serial:          n.Serial,
		Signer:          NewSigner(signer),
	}
}

type ParametersUpdateView struct {
	NewParametersHash string `json:"newParametersHash"`
	Description       string `json:"description"`
	UpdateDeadline    int64  `json:"updateDeadline"`
}

// NetworkMapView is a JSON projection of a signed network map.
type NetworkMapView struct {
	Hash                  string                `json:"hash"`
	NodeInfoHashes        []string              `json:"nodeInfoHashes"`
	NetworkParametersHash string                `json:"networkParametersHash"`
	ParametersUpdate      *ParametersUpdateView `json:"parametersUpdate,omitempty"`
	Signer                *Signer               `json:"signer"`
}

func NewNetworkMapView(h digest.SecureHash, nm netmap.NetworkMap, signer *cert.Certificate) NetworkMapView {
	v := NetworkMapView{
		Hash:                  h.String(),
		NodeInfoHashes:        Hashes(nm.NodeInfoHashes),
		NetworkParametersHash: nm.NetworkParametersHash.String(),
		Signer:                NewSigner(signer),
	}
	if u := nm.ParametersUpdate; u != nil {
		v.ParametersUpdate = &ParametersUpdateView{
			NewParametersHash: u.NewParametersHash.String(),
			Description:       u.Description,
			UpdateDeadline:    u.UpdateDeadline,
		}
	}
	return v
}
