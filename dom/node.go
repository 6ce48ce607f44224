package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element creates a detached element. attrs are key, value pairs.
func Element(tag string, attrs ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// Text creates a detached text node.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Append adds children to the end of parent, detaching them first.
func Append(parent *html.Node, children ...*html.Node) {
	for _, c := range children {
		Detach(c)
		parent.AppendChild(c)
	}
}

// InsertBefore puts child in parent before ref. A nil ref, or one that is not
// a child of parent, appends.
func InsertBefore(parent, child, ref *html.Node) {
	Detach(child)
	if ref == nil || ref.Parent != parent {
		parent.AppendChild(child)
		return
	}
	parent.InsertBefore(child, ref)
}

// ReplaceChildren removes all children of n and appends children.
func ReplaceChildren(n *html.Node, children ...*html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	Append(n, children...)
}

// Detach removes n from its parent, if it has one.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// GetAttr returns an attribute of n.
func GetAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute of n.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// AddClass adds classes to n's class list, skipping ones already present.
func AddClass(n *html.Node, classes ...string) {
	cur, _ := GetAttr(n, "class")
	list := strings.Fields(cur)
	for _, c := range classes {
		if !contains(list, c) {
			list = append(list, c)
		}
	}
	SetAttr(n, "class", strings.Join(list, " "))
}

// RemoveClass removes a class from n's class list.
func RemoveClass(n *html.Node, class string) {
	cur, ok := GetAttr(n, "class")
	if !ok {
		return
	}
	var keep []string
	for _, c := range strings.Fields(cur) {
		if c != class {
			keep = append(keep, c)
		}
	}
	SetAttr(n, "class", strings.Join(keep, " "))
}

// HasClass reports whether n carries class.
func HasClass(n *html.Node, class string) bool {
	cur, _ := GetAttr(n, "class")
	return contains(strings.Fields(cur), class)
}

// Clone returns a deep, detached copy of n.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// FindByID walks the tree under n looking for an element with the given id.
func FindByID(n *html.Node, id string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		if v, ok := GetAttr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// TextContent concatenates all text under n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Render serialises n as HTML.
func Render(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
