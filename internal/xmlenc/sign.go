package xmlenc

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

// AuthSignature is the digest/signature material EBICS envelopes exchange:
// SHA-256 digests of the canonicalized authenticate="true" elements, the
// canonical ds:SignedInfo that references them, and the X002 RSA-SHA256
// signature over that SignedInfo.
type AuthSignature struct {
	DigestValues    [][32]byte // one per authenticate="true" element, in document order
	SignedInfoBytes []byte     // canonical SignedInfo the signature covers
	SignatureValue  []byte
}

// CollectAuthenticated walks root depth-first and returns every element
// marked authenticate="true", in document order — the reference set
// ds:SignedInfo must cover.
func CollectAuthenticated(root *Node) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		if n.Authenticate {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// buildSignedInfo renders a minimal ds:SignedInfo covering digests, using
// SHA-256 digests and the fixed RSA-SHA256 signature method.
func buildSignedInfo(digests [][32]byte) *Node {
	info := &Node{Local: "SignedInfo"}
	info.Children = append(info.Children, &Node{
		Local: "SignatureMethod",
		Attrs: []xml.Attr{{Name: xml.Name{Local: "Algorithm"}, Value: "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"}},
	})
	for _, d := range digests {
		ref := &Node{Local: "Reference"}
		ref.Children = append(ref.Children,
			&Node{Local: "DigestMethod", Attrs: []xml.Attr{{Name: xml.Name{Local: "Algorithm"}, Value: "http://www.w3.org/2001/04/xmlenc#sha256"}}},
			&Node{Local: "DigestValue", Text: base64.StdEncoding.EncodeToString(d[:])},
		)
		info.Children = append(info.Children, ref)
	}
	return info
}

// Sign computes the AuthSignature for root: one digest per authenticate
// element, a SignedInfo covering them, and an X002 signature over the
// canonical SignedInfo produced by signFn.
func Sign(root *Node, signFn func([]byte) ([]byte, error)) (AuthSignature, error) {
	targets := CollectAuthenticated(root)
	if len(targets) == 0 {
		return AuthSignature{}, errors.State("no authenticate=\"true\" elements found to sign")
	}

	digests := make([][32]byte, len(targets))
	for i, t := range targets {
		digests[i] = sha256.Sum256(Canonicalize(t))
	}

	signedInfoBytes := Canonicalize(buildSignedInfo(digests))
	sig, err := signFn(signedInfoBytes)
	if err != nil {
		return AuthSignature{}, err
	}

	return AuthSignature{DigestValues: digests, SignedInfoBytes: signedInfoBytes, SignatureValue: sig}, nil
}

// Verify recomputes the digests and SignedInfo from root and checks sig
// against them with verifyFn (an X002 verification).
func Verify(root *Node, sig []byte, verifyFn func(sig, data []byte) bool) bool {
	targets := CollectAuthenticated(root)
	if len(targets) == 0 {
		return false
	}

	digests := make([][32]byte, len(targets))
	for i, t := range targets {
		digests[i] = sha256.Sum256(Canonicalize(t))
	}

	signedInfoBytes := Canonicalize(buildSignedInfo(digests))
	return verifyFn(sig, signedInfoBytes)
}

// SignWithKey is a convenience wrapper around Sign for RSA keys.
func SignWithKey(root *Node, priv *rsa.PrivateKey, signFn func([]byte, *rsa.PrivateKey) ([]byte, error)) (AuthSignature, error) {
	return Sign(root, func(data []byte) ([]byte, error) { return signFn(data, priv) })
}
