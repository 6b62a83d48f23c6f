// Package hev implements the EBICS version probe (ebicsHEVRequest /
// ebicsHEVResponse): an unsigned exchange that causes no connection state
// change and exists only to surface bank capability.
package hev

import (
	"bytes"
	"context"

	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// SupportedVersion is one (protocol, version) pair the bank advertises.
type SupportedVersion struct {
	Protocol string
	Version  string
}

// Probe sends an unsigned ebicsHEVRequest for hostID and returns the
// bank-advertised supported protocol/version pairs. No connection state is
// changed by this call.
func Probe(ctx context.Context, client *transport.Client, hostID string) ([]SupportedVersion, error) {
	req := xmlenc.NewElement("ebicsHEVRequest",
		xmlenc.NewText("HostID", hostID),
	)

	respBody, err := client.Post(ctx, xmlenc.Serialize(req))
	if err != nil {
		return nil, err
	}

	root, err := xmlenc.Parse(bytes.NewReader(respBody))
	if err != nil {
		return nil, errors.Parse(err, "hev: malformed response")
	}
	if err := xmlenc.RequireRoot(root, "ebicsHEVResponse"); err != nil {
		return nil, errors.Parse(err, "hev: unexpected root element")
	}

	sysReturnCode, err := xmlenc.RequireUniqueChild(root, "SystemReturnCode")
	if err != nil {
		return nil, err
	}
	returnCodeNode, err := xmlenc.RequireUniqueChild(sysReturnCode, "ReturnCode")
	if err != nil {
		return nil, err
	}
	if returnCodeNode.TrimmedText() != "000000" {
		return nil, errors.Protocol(returnCodeNode.TrimmedText(), "", "hev: bank returned non-OK system return code")
	}

	var versions []SupportedVersion
	err = xmlenc.MapEachChild(root, "VersionNumber", func(n *xmlenc.Node) error {
		protocol, _ := n.Attr("ProtocolVersion")
		versions = append(versions, SupportedVersion{Protocol: protocol, Version: n.TrimmedText()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return versions, nil
}
