package xmlenc

import "encoding/xml"

// Node is one element of the parsed document tree. Attributes keep their
// namespace; Local is always the element's local name, ignoring prefix —
// destructuring below matches on Local only, which is what "namespace-
// insensitive" means for this codec.
type Node struct {
	Space      string
	Local      string
	Attrs      []xml.Attr
	Children   []*Node
	Text       string
	Authenticate bool // true when this node carries authenticate="true"
}

// Attr returns the value of the first attribute named name (local name,
// any namespace), and whether it was present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
