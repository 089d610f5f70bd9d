package model

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"xdao.co/netmap/digest"
	"xdao.co/netmap/netmap"
)

func TestSnapshot_NodeInfoView_JSONShape(t *testing.T) {
	h := digest.Of([]byte("node"))
	v := NewNodeInfoView(h, netmap.NodeInfo{
		Addresses:       []netmap.HostAndPort{{Host: "node.example.net", Port: 10002}},
		LegalName:       "O=Alice,L=Paris,C=FR",
		PlatformVersion: 4,
		Serial:          1,
	}, nil)

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent failed: %v", err)
	}

	want := "{\n" +
		"  \"hash\": \"" + h.String() + "\",\n" +
		"  \"legalName\": \"O=Alice,L=Paris,C=FR\",\n" +
		"  \"addresses\": [\n" +
		"    \"node.example.net:10002\"\n" +
		"  ],\n" +
		"  \"platformVersion\": 4,\n" +
		"  \"serial\": 1,\n" +
		"  \"signer\": null\n" +
		"}"

	if string(b) != want {
		t.Fatalf("snapshot mismatch:\n%s", string(b))
	}
}

func TestSnapshot_NetworkMapView_EmptyMembership(t *testing.T) {
	h := digest.Of([]byte("map"))
	p := digest.Of([]byte("params"))
	v := NewNetworkMapView(h, netmap.NetworkMap{NetworkParametersHash: p}, nil)

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent failed: %v", err)
	}

	want := "{\n" +
		"  \"hash\": \"" + h.String() + "\",\n" +
		"  \"nodeInfoHashes\": [],\n" +
		"  \"networkParametersHash\": \"" + p.String() + "\",\n" +
		"  \"signer\": null\n" +
		"}"

	if string(b) != want {
		t.Fatalf("snapshot mismatch:\n%s", string(b))
	}
}

func TestFromError(t *testing.T) {
	cases := []struct {
		err    error
		code   ErrorCode
		status int
	}{
		{netmap.NewError(netmap.KindMalformed, "NM-ENV-001", "x"), ErrMalformed, http.StatusBadRequest},
		{netmap.NewError(netmap.KindInvalidSignature, "NM-ENV-010", "x"), ErrInvalidSignature, http.StatusForbidden},
		{netmap.NewError(netmap.KindUntrustedRoot, "NM-CERT-020", "x"), ErrUntrustedRoot, http.StatusForbidden},
		{netmap.NewError(netmap.KindNotFound, "NM-REG-020", "x"), ErrNotFound, http.StatusNotFound},
		{netmap.NewError(netmap.KindConflict, "NM-REG-004", "x"), ErrConflict, http.StatusConflict},
		{netmap.NewError(netmap.KindAuthorityUnavailable, "NM-AUTH-001", "x"), ErrAuthorityUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", netmap.NewError(netmap.KindStorage, "NM-REG-010", "x")), ErrStorage, http.StatusInternalServerError},
		{fmt.Errorf("plain"), ErrInternal, http.StatusInternalServerError},
		{NewError(ErrInvalidHash, "bad"), ErrInvalidHash, http.StatusBadRequest},
	}
	for _, tc := range cases {
		ce := FromError(tc.err)
		if ce.Code != tc.code {
			t.Fatalf("%v: code = %s, want %s", tc.err, ce.Code, tc.code)
		}
		if ce.HTTPStatus() != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, ce.HTTPStatus(), tc.status)
		}
	}

	if FromError(netmap.NewError(netmap.KindNotFound, "NM-REG-020", "x")).Rule != "NM-REG-020" {
		t.Fatalf("rule id not carried")
	}
	if FromError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
