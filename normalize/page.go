package normalize

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"msimport/doctree"
)

// Page is a complete (X)HTML document: what was found in its head and the
// body to be normalized.
type Page struct {
	Title string
	// language declared on the root element, may be empty
	Lang string
	// hrefs of linked stylesheets as written in the document
	Links []string
	// content of embedded style elements
	Styles [][]byte

	body *html.Node
}

var reXMLEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*\sencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// ParsePage parses complete document. Character encoding is taken from XML
// declaration, byte order mark, meta tags or contentType (in this order),
// defaulting to UTF-8.
func ParsePage(data []byte, contentType string) (*Page, error) {
	var (
		r   io.Reader
		err error
	)
	if m := reXMLEncoding.FindSubmatch(data[:min(len(data), 256)]); m != nil {
		r, err = charset.NewReaderLabel(string(m[1]), bytes.NewReader(data))
	} else {
		r, err = charset.NewReader(bytes.NewReader(data), contentType)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to detect page encoding: %w", err)
	}

	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read page: %w", err)
	}
	if isXHTML(decoded, contentType) {
		decoded = expandSelfClosing(decoded)
	}

	doc, err := html.Parse(bytes.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("unable to parse page: %w", err)
	}

	p := &Page{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Html:
				p.Lang = attr(n, "lang")
				if p.Lang == "" {
					p.Lang = attr(n, "xml:lang")
				}
			case atom.Title:
				if p.Title == "" {
					p.Title = strings.TrimSpace(doctree.CleanText(textOf(n)))
				}
				return
			case atom.Link:
				if isStylesheet(n) {
					if href := strings.TrimSpace(attr(n, "href")); href != "" {
						p.Links = append(p.Links, href)
					}
				}
				return
			case atom.Style:
				p.Styles = append(p.Styles, []byte(textOf(n)))
				return
			case atom.Body:
				if p.body == nil {
					p.body = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if p.body == nil {
		p.body = doc
	}
	return p, nil
}

// HasText reports whether page body has any text outside of scripts and
// styles.
func (p *Page) HasText() bool {
	if p == nil || p.body == nil {
		return false
	}
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		switch n.Type {
		case html.TextNode:
			return strings.TrimSpace(n.Data) != ""
		case html.ElementNode:
			if skipped(n) {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return walk(p.body)
}

var reXHTMLNamespace = regexp.MustCompile(`xmlns\s*=\s*["']http://www\.w3\.org/1999/xhtml["']`)

// isXHTML reports whether document is served or declared as XML.
func isXHTML(data []byte, contentType string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	if strings.HasSuffix(strings.TrimSpace(mt), "xml") {
		return true
	}
	head := data[:min(len(data), 1024)]
	return bytes.HasPrefix(bytes.TrimSpace(head), []byte("<?xml")) || reXHTMLNamespace.Match(head)
}

// voidElements are the only HTML elements for which self-closing syntax
// means "no content".
var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true, atom.Embed: true,
	atom.Hr: true, atom.Img: true, atom.Input: true, atom.Keygen: true, atom.Link: true,
	atom.Meta: true, atom.Param: true, atom.Source: true, atom.Track: true, atom.Wbr: true,
}

// expandSelfClosing rewrites XML empty elements such as <title/> or <div/>
// into start and end tag pairs. HTML tree construction ignores self-closing
// flag of non-void elements, so <title/> would turn the rest of the document
// into title text.
func expandSelfClosing(data []byte) []byte {
	var (
		out bytes.Buffer
		pos int
	)
	out.Grow(len(data) + len(data)/16)
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()
		pos += len(raw)
		if tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}
		name, _ := z.TagName()
		if voidElements[atom.Lookup(name)] {
			out.Write(raw)
			continue
		}
		// element would otherwise start raw text (title, script, textarea)
		z.NextIsNotRawText()
		out.Write(bytes.TrimRight(raw[:len(raw)-2], " \t\r\n"))
		out.WriteString("></")
		out.Write(name)
		out.WriteByte('>')
	}
	// unfinished tag at the end is never returned as token
	if pos < len(data) {
		out.Write(data[pos:])
	}
	return out.Bytes()
}

func isStylesheet(n *html.Node) bool {
	for _, rel := range strings.Fields(attr(n, "rel")) {
		if strings.EqualFold(rel, "stylesheet") {
			t := attr(n, "type")
			return t == "" || strings.EqualFold(t, "text/css")
		}
	}
	return false
}

func textOf(n *html.Node) string {
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

// LooksLikeHTML reports whether text starts with markup using known HTML
// elements, as opposed to plain text which merely starts with "<".
func LooksLikeHTML(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for range 64 {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != 0 {
				return true
			}
		}
	}
	return false
}
