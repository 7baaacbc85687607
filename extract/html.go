package extract

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// fileDropTags are removed from uploaded HTML files.
var fileDropTags = []atom.Atom{atom.Script, atom.Style, atom.Noscript}

// pageDropTags are removed from fetched web pages, which also carry
// navigation chrome.
var pageDropTags = []atom.Atom{atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header}

// blockElements end a line of text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true, atom.Li: true,
	atom.Tr: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Blockquote: true, atom.Pre: true,
	atom.Table: true, atom.Section: true, atom.Article: true, atom.Title: true,
}

// HTML extracts the visible text of an HTML document, one trimmed
// non-empty line per block.
func HTML(r io.Reader) (string, error) {
	return htmlText(r, fileDropTags)
}

func htmlText(r io.Reader, drop []atom.Atom) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	dropped := make(map[atom.Atom]bool, len(drop))
	for _, a := range drop {
		dropped[a] = true
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if dropped[n.DataAtom] {
				return
			}
		case html.TextNode:
			b.WriteString(n.Data)
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return cleanLines(b.String()), nil
}

// cleanLines trims every line and drops the empty ones.
func cleanLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
