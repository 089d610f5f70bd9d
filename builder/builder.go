// Package builder assembles and signs the network map from a registry snapshot.
package builder

import (
	"xdao.co/netmap/authority"
	"xdao.co/netmap/digest"
	"xdao.co/netmap/envelope"
	"xdao.co/netmap/netmap"
)

// Result is the output of one build. The signed byte slices are what gets
// published; the decoded fields are for logging and tests.
type Result struct {
	SignedNetworkMap []byte
	SignedParameters []byte

	NetworkMap     netmap.NetworkMap
	MapHash        digest.SecureHash
	ParametersHash digest.SecureHash
}

// Build signs params and a network map listing snapshot with the authority.
//
// The snapshot is sorted and deduplicated, so any permutation of the same
// set produces the same document. An empty snapshot yields a valid map with
// no entries. With deterministic signature schemes the output is a pure
// function of the inputs.
func Build(snapshot []digest.SecureHash, auth *authority.Authority, params netmap.NetworkParameters) (*Result, error) {
	if auth == nil || auth.Key == nil || len(auth.Path) == 0 {
		return nil, netmap.NewError(netmap.KindAuthorityUnavailable, "NM-BUILD-001", "no authority to sign with")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	signedParams, err := envelope.Wrap(params, auth.Key, auth.Path, auth.HashAlg)
	if err != nil {
		return nil, netmap.WrapError(netmap.KindInternal, "NM-BUILD-002", "sign network parameters", err)
	}
	paramsBytes, err := signedParams.Marshal()
	if err != nil {
		return nil, err
	}

	hashes := digest.SortedUnique(snapshot)
	if hashes == nil {
		hashes = []digest.SecureHash{}
	}
	nm := netmap.NetworkMap{
		NodeInfoHashes:        hashes,
		NetworkParametersHash: signedParams.Hash(),
	}
	signedMap, err := envelope.Wrap(nm, auth.Key, auth.Path, auth.HashAlg)
	if err != nil {
		return nil, netmap.WrapError(netmap.KindInternal, "NM-BUILD-003", "sign network map", err)
	}
	mapBytes, err := signedMap.Marshal()
	if err != nil {
		return nil, err
	}

	return &Result{
		SignedNetworkMap: mapBytes,
		SignedParameters: paramsBytes,
		NetworkMap:       nm,
		MapHash:          signedMap.Hash(),
		ParametersHash:   signedParams.Hash(),
	}, nil
}
