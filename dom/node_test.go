package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildAndRender(t *testing.T) {
	span := Element("span", "id", "c")
	a := Element("a", "href", "#")
	Append(a, Text("Copy"))
	Append(span, a)
	AddClass(a, "btn", "btn")
	AddClass(a, "small")

	assert.Equal(t, `<span id="c"><a href="#" class="btn small">Copy</a></span>`, Render(span))
	assert.True(t, HasClass(a, "small"))
	RemoveClass(a, "btn")
	assert.False(t, HasClass(a, "btn"))
}

func TestInsertBefore(t *testing.T) {
	parent := Element("div")
	first := Element("i")
	Append(parent, first)

	InsertBefore(parent, Element("b"), first)
	InsertBefore(parent, Element("u"), nil)
	InsertBefore(parent, Element("s"), Element("em"))

	assert.Equal(t, "<div><b></b><i></i><u></u><s></s></div>", Render(parent))
}

func TestCloneIsDeepAndDetached(t *testing.T) {
	parent := Element("div")
	icon := Element("svg", "class", "octicon")
	Append(icon, Element("path", "d", "M0"))
	Append(parent, icon)

	c := Clone(icon)
	assert.Nil(t, c.Parent)
	assert.Equal(t, Render(icon), Render(c))
	SetAttr(c, "class", "changed")
	v, _ := GetAttr(icon, "class")
	assert.Equal(t, "octicon", v)
}

func TestReplaceChildrenAndText(t *testing.T) {
	n := Element("p")
	Append(n, Text("a"), Element("b"))
	ReplaceChildren(n, Text("x"), Text("y"))
	assert.Equal(t, "xy", TextContent(n))
}

func TestStyle(t *testing.T) {
	n := Element("span", "style", "display: none; left: calc(100% + 0.5rem)")
	SetStyle(n, "display", "inline-block")
	SetStyles(n, "z-index", "10", "color", "red")

	v, ok := Style(n, "display")
	assert.True(t, ok)
	assert.Equal(t, "inline-block", v)
	v, _ = Style(n, "left")
	assert.Equal(t, "calc(100% + 0.5rem)", v)

	style, _ := GetAttr(n, "style")
	assert.Equal(t, "display: inline-block; left: calc(100% + 0.5rem); z-index: 10; color: red", style)

	_, ok = Style(n, "margin")
	assert.False(t, ok)
}
