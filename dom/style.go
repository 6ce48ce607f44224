package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// SetStyle sets one inline CSS property on n, keeping the others in order.
func SetStyle(n *html.Node, prop, value string) {
	decls := parseStyle(n)
	found := false
	for i := range decls {
		if decls[i][0] == prop {
			decls[i][1] = value
			found = true
			break
		}
	}
	if !found {
		decls = append(decls, [2]string{prop, value})
	}
	writeStyle(n, decls)
}

// Style returns one inline CSS property of n.
func Style(n *html.Node, prop string) (string, bool) {
	for _, d := range parseStyle(n) {
		if d[0] == prop {
			return d[1], true
		}
	}
	return "", false
}

// SetStyles sets several properties at once. kv are property, value pairs.
func SetStyles(n *html.Node, kv ...string) {
	for i := 0; i+1 < len(kv); i += 2 {
		SetStyle(n, kv[i], kv[i+1])
	}
}

func parseStyle(n *html.Node) [][2]string {
	raw, _ := GetAttr(n, "style")
	var decls [][2]string
	for _, part := range strings.Split(raw, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		decls = append(decls, [2]string{prop, strings.TrimSpace(value)})
	}
	return decls
}

func writeStyle(n *html.Node, decls [][2]string) {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d[0] + ": " + d[1]
	}
	SetAttr(n, "style", strings.Join(parts, "; "))
}
