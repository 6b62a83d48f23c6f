package xmlenc

import (
	"bytes"
	"encoding/xml"
)

// Serialize renders n and its subtree as wire-format XML. Unlike
// Canonicalize, this is meant for producing a document to send over the
// wire, not for digesting, so it includes an XML declaration.
func Serialize(n *Node) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	writeCanonical(&buf, n)
	return buf.Bytes()
}

// NewElement builds a Node with the given local name and children, for
// constructing outbound documents programmatically (as opposed to parsing
// one received over the wire).
func NewElement(local string, children ...*Node) *Node {
	return &Node{Local: local, Children: children}
}

// NewText builds a leaf Node carrying text content.
func NewText(local, text string) *Node {
	return &Node{Local: local, Text: text}
}

// WithAttr attaches an attribute to n and returns n for chaining.
func (n *Node) WithAttr(name, value string) *Node {
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
	if name == "authenticate" && value == "true" {
		n.Authenticate = true
	}
	return n
}
