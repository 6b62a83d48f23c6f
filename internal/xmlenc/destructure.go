package xmlenc

import "github.com/paynet/ebics-gateway/pkg/errors"

// RequireRoot fails unless root's local name equals name.
func RequireRoot(root *Node, name string) error {
	if root == nil || root.Local != name {
		got := "<nil>"
		if root != nil {
			got = root.Local
		}
		return errors.Parse(nil, "expected root element %q, got %q", name, got)
	}
	return nil
}

// RequireUniqueChild returns n's single child named localName, failing if
// there are zero or more than one.
func RequireUniqueChild(n *Node, localName string) (*Node, error) {
	var found *Node
	count := 0
	for _, c := range n.Children {
		if c.Local == localName {
			found = c
			count++
		}
	}
	switch count {
	case 0:
		return nil, errors.Parse(nil, "missing required element %q under %q", localName, n.Local)
	case 1:
		return found, nil
	default:
		return nil, errors.Parse(nil, "expected exactly one %q under %q, found %d", localName, n.Local, count)
	}
}

// MaybeUniqueChild returns n's single child named localName if present. It
// fails only if there is more than one match; zero matches is not an error.
func MaybeUniqueChild(n *Node, localName string) (*Node, bool, error) {
	var found *Node
	count := 0
	for _, c := range n.Children {
		if c.Local == localName {
			found = c
			count++
		}
	}
	if count > 1 {
		return nil, false, errors.Parse(nil, "expected at most one %q under %q, found %d", localName, n.Local, count)
	}
	return found, count == 1, nil
}

// MapEachChild invokes f for every child of n named localName, in document
// order, stopping at the first error.
func MapEachChild(n *Node, localName string, f func(*Node) error) error {
	for _, c := range n.Children {
		if c.Local != localName {
			continue
		}
		if err := f(c); err != nil {
			return err
		}
	}
	return nil
}

// EachChild invokes f for every direct child of n, regardless of name.
func EachChild(n *Node, f func(*Node) error) error {
	for _, c := range n.Children {
		if err := f(c); err != nil {
			return err
		}
	}
	return nil
}
