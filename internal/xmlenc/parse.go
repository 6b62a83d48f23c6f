package xmlenc

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/paynet/ebics-gateway/pkg/errors"
)

// Parse reads r as XML and returns its root Node.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)

	var (
		root  *Node
		stack []*Node
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Parse(err, "xml tokenize")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Space: t.Name.Space, Local: t.Name.Local, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if v, ok := n.Attr("authenticate"); ok && v == "true" {
				n.Authenticate = true
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.Parse(nil, "unbalanced xml: unexpected end element %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				cur := stack[len(stack)-1]
				cur.Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, errors.Parse(nil, "empty xml document")
	}
	return root, nil
}

// TrimmedText returns n's text content with leading/trailing whitespace
// removed — most ISO 20022 leaf values need exactly this.
func (n *Node) TrimmedText() string {
	return strings.TrimSpace(n.Text)
}
