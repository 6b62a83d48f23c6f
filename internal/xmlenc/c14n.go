package xmlenc

import (
	"bytes"
	"sort"
	"strings"
)

// Canonicalize renders n and its subtree as exclusive-C14N-style bytes:
// attributes sorted by local name, no insignificant whitespace, standard
// XML escaping. This is a pragmatic subset of XML-C14N 1.0 exclusive
// sufficient for EBICS AuthSignature digesting (the only C14N consumer in
// this codebase) — it is not a general-purpose C14N implementation.
func Canonicalize(n *Node) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, n)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, n *Node) {
	buf.WriteByte('<')
	buf.WriteString(n.Local)

	var attrs []struct{ name, value string }
	for _, a := range n.Attrs {
		attrs = append(attrs, struct{ name, value string }{a.Name.Local, a.Value})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].name < attrs[j].name })

	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.name)
		buf.WriteString(`="`)
		buf.WriteString(escapeAttr(a.value))
		buf.WriteByte('"')
	}
	buf.WriteByte('>')

	for _, c := range n.Children {
		writeCanonical(buf, c)
	}
	buf.WriteString(escapeText(strings.TrimSpace(n.Text)))

	buf.WriteString("</")
	buf.WriteString(n.Local)
	buf.WriteByte('>')
}

func escapeAttr(s string) string {
	r := strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `"`, "&quot;", "\r", "&#xD;", "\n", "&#xA;")
	return r.Replace(s)
}

func escapeText(s string) string {
	r := strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", "\r", "&#xD;")
	return r.Replace(s)
}
