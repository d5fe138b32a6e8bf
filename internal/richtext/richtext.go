// Package richtext resolves bilingual question content to a single language.
//
// Content is an HTML fragment in which language variants are marked with a
// class: elements carrying "lang-en" belong to the primary language and
// elements carrying "lang-hi" to the secondary one. Unmarked content is shown
// in both languages.
package richtext

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Language selects which variant of the content is shown.
type Language string

const (
	English Language = "en"
	Hindi   Language = "hi"
)

// TableWrapperClass is the class of the div every rendered table sits in.
const TableWrapperClass = "table-responsive"

// ParseLanguage maps a request value to a Language.
func ParseLanguage(s string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english", "primary":
		return English, true
	case "hi", "hindi", "secondary":
		return Hindi, true
	}
	return "", false
}

// Other returns the variant that is hidden when l is active.
func (l Language) Other() Language {
	if l == Hindi {
		return English
	}
	return Hindi
}

// Class is the marker class of l's variant spans.
func (l Language) Class() string {
	return "lang-" + string(l)
}

// Render returns content with only lang's variant kept. Every table ends up
// inside exactly one wrapper div, wherever it was nested.
func Render(content string, lang Language) string {
	root, ok := parse(content)
	if !ok {
		return html.EscapeString(content)
	}
	prune(root, lang.Other().Class())
	wrapTables(root)

	var b strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return html.EscapeString(content)
		}
	}
	return b.String()
}

// Text is Render without markup: the visible text with whitespace collapsed.
func Text(content string, lang Language) string {
	root, ok := parse(content)
	if !ok {
		return strings.Join(strings.Fields(content), " ")
	}
	prune(root, lang.Other().Class())

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if c.Type == html.ElementNode && isBlock(c) {
				parts = append(parts, " ")
			}
		}
	}
	walk(root)
	return strings.Join(strings.Fields(strings.Join(parts, "")), " ")
}

func parse(content string) (*html.Node, bool) {
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	if content == "" {
		return root, true
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), root)
	if err != nil {
		return nil, false
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, true
}

// prune removes every element marked with class, including its subtree.
func prune(n *html.Node, class string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && hasClass(c, class) {
			n.RemoveChild(c)
		} else {
			prune(c, class)
		}
		c = next
	}
}

func wrapTables(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Table && !isWrapper(n) {
			wrapper := &html.Node{
				Type:     html.ElementNode,
				Data:     "div",
				DataAtom: atom.Div,
				Attr:     []html.Attribute{{Key: "class", Val: TableWrapperClass}},
			}
			n.InsertBefore(wrapper, c)
			n.RemoveChild(c)
			wrapper.AppendChild(c)
			c = wrapper
			wrapTables(wrapper.FirstChild)
			continue
		}
		wrapTables(c)
	}
}

func isWrapper(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Div && hasClass(n, TableWrapperClass)
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, f := range strings.Fields(a.Val) {
			if f == class {
				return true
			}
		}
	}
	return false
}

func isBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.P, atom.Div, atom.Br, atom.Tr, atom.Td, atom.Th, atom.Li, atom.Table:
		return true
	}
	return false
}
