// Package normalize converts rich HTML into canonical document tree. The
// input is parsed with HTML5 tree construction so malformed markup is
// recovered the way browsers do it, then elements are mapped to document
// nodes with a fixed table. Elements not in the table are unwrapped, their
// content is kept. Embedded objects without text fallback (frames, plugins,
// form controls) are dropped and reported to the caller.
package normalize

import (
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"msimport/css"
	"msimport/doctree"
)

// Normalizer maps HTML to document trees. It is safe for sequential reuse.
type Normalizer struct {
	styles *css.Parser
	log    *zap.Logger
}

// New creates normalizer.
func New(log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{
		styles: css.NewParser(log),
		log:    log.Named("normalize"),
	}
}

// Normalize converts HTML fragment to document tree without any stylesheet.
func Normalize(fragment string) *doctree.Node {
	tree, _ := New(nil).Fragment(fragment, nil)
	return tree
}

// Fragment converts HTML fragment (no html/body wrapper assumed) to
// document tree. Emphasis defined by sheet (may be nil) and by inline style
// attributes is applied to text. Result is always a Document node, dropped
// lists names of elements whose content could not be kept.
func (n *Normalizer) Fragment(fragment string, sheet *css.Stylesheet) (tree *doctree.Node, dropped []string) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		// html tokenizer only fails on reader errors, keep the text anyway
		n.log.Warn("Unable to parse HTML fragment, using it as plain text", zap.Error(err))
		return doctree.Document(doctree.Paragraph(doctree.Text(strings.TrimSpace(doctree.CleanText(fragment)), doctree.Marks{}))), nil
	}
	w := n.newWalker(sheet)
	s := newSink(false)
	for _, node := range nodes {
		w.visit(node, doctree.Marks{}, s)
	}
	return w.finish(s)
}

// Page converts body of the parsed page to document tree, see Fragment.
func (n *Normalizer) Page(p *Page, sheet *css.Stylesheet) (tree *doctree.Node, dropped []string) {
	w := n.newWalker(sheet)
	s := newSink(false)
	if p != nil && p.body != nil {
		w.visitChildren(p.body, doctree.Marks{}, s)
	}
	return w.finish(s)
}

type walker struct {
	styles  *css.Parser
	sheet   *css.Stylesheet
	log     *zap.Logger
	unknown map[string]int
	dropped map[string]int
}

func (n *Normalizer) newWalker(sheet *css.Stylesheet) *walker {
	return &walker{
		styles:  n.styles,
		sheet:   sheet,
		log:     n.log,
		unknown: make(map[string]int),
		dropped: make(map[string]int),
	}
}

func (w *walker) finish(s *sink) (*doctree.Node, []string) {
	s.flush()
	if len(w.unknown) > 0 {
		w.log.Debug("Unwrapped unsupported elements", zap.Strings("tags", sortedKeys(w.unknown)))
	}
	var dropped []string
	if len(w.dropped) > 0 {
		dropped = sortedKeys(w.dropped)
		w.log.Debug("Dropped elements without text fallback", zap.Strings("tags", dropped))
	}
	return doctree.Document(s.blocks...), dropped
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// sink collects blocks of a container and inline content of the implied
// paragraph being built. Flat sink turns every block boundary into a space,
// it is used for content which may only hold inline nodes (headings).
type sink struct {
	blocks []*doctree.Node
	inline *doctree.InlineBuilder
	flat   bool
}

func newSink(flat bool) *sink {
	return &sink{inline: doctree.NewInlineBuilder(), flat: flat}
}

// flush closes implied paragraph. Inline content consisting of images only
// becomes standalone image blocks.
func (s *sink) flush() {
	if s.flat {
		return
	}
	empty := s.inline.Empty()
	nodes := s.inline.Nodes()
	if empty {
		return
	}
	if onlyImages(nodes) {
		s.blocks = append(s.blocks, imagesOf(nodes)...)
		return
	}
	s.blocks = append(s.blocks, doctree.Paragraph(nodes...))
}

func (s *sink) block(nodes ...*doctree.Node) {
	s.flush()
	for _, n := range nodes {
		if n != nil {
			s.blocks = append(s.blocks, n)
		}
	}
}

func onlyImages(nodes []*doctree.Node) bool {
	for _, n := range nodes {
		if n.Kind == doctree.KindText && strings.TrimSpace(n.Text) != "" {
			return false
		}
	}
	return true
}

func imagesOf(nodes []*doctree.Node) []*doctree.Node {
	var out []*doctree.Node
	for _, n := range nodes {
		if n.Kind == doctree.KindImage {
			out = append(out, n)
		}
	}
	return out
}

func (w *walker) visitChildren(parent *html.Node, marks doctree.Marks, s *sink) {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c, marks, s)
	}
}

func (w *walker) visit(node *html.Node, marks doctree.Marks, s *sink) {
	switch node.Type {
	case html.TextNode:
		s.inline.Text(node.Data, marks)
		return
	case html.DocumentNode:
		w.visitChildren(node, marks, s)
		return
	case html.ElementNode:
	default:
		// comments, doctype, raw nodes
		return
	}

	if skipped(node) || w.replaced(node, s) {
		return
	}
	marks = w.elementMarks(node, marks)

	switch node.DataAtom {
	case atom.Br:
		s.inline.Break(marks)
	case atom.Img:
		if src := strings.TrimSpace(attr(node, "src")); src != "" {
			s.inline.Inline(doctree.Image(src, strings.TrimSpace(doctree.CleanText(attr(node, "alt")))))
		}
	case atom.Hr:
		if !s.flat {
			s.block(doctree.HorizontalRule())
		} else {
			s.inline.Break(marks)
		}
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		if s.flat {
			w.container(node, marks, s)
			return
		}
		level := int(node.Data[1] - '0')
		s.block(w.inlineBlock(node, marks, func(inlines []*doctree.Node) *doctree.Node {
			return doctree.Heading(level, inlines...)
		})...)
	case atom.P, atom.Pre:
		if s.flat {
			w.container(node, marks, s)
			return
		}
		s.flush()
		sub := newSink(false)
		w.visitChildren(node, marks, sub)
		sub.flush()
		s.block(sub.blocks...)
	case atom.Blockquote:
		if s.flat {
			w.container(node, marks, s)
			return
		}
		if blocks := w.blocks(node, marks); len(blocks) > 0 {
			s.block(doctree.Blockquote(blocks...))
		}
	case atom.Ul, atom.Ol:
		if s.flat {
			w.container(node, marks, s)
			return
		}
		s.block(w.list(node, marks))
	case atom.Table:
		if s.flat {
			w.container(node, marks, s)
			return
		}
		s.block(w.table(node, marks)...)
	case atom.Body, atom.Html, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.Header, atom.Footer, atom.Aside, atom.Nav, atom.Figure, atom.Figcaption,
		atom.Address, atom.Center, atom.Dl, atom.Dt, atom.Dd, atom.Li, atom.Caption,
		atom.Tr, atom.Td, atom.Th, atom.Thead, atom.Tbody, atom.Tfoot, atom.Details, atom.Summary:
		// block containers: their own boundaries close implied paragraph
		w.container(node, marks, s)
	default:
		if !inlineAtoms[node.DataAtom] {
			w.unknown[node.Data]++
		}
		w.visitChildren(node, marks, s)
	}
}

// container handles element which has block boundaries but no node of its
// own.
func (w *walker) container(node *html.Node, marks doctree.Marks, s *sink) {
	if s.flat {
		s.inline.Break(marks)
		w.visitChildren(node, marks, s)
		s.inline.Break(marks)
		return
	}
	s.flush()
	w.visitChildren(node, marks, s)
	s.flush()
}

// blocks converts content of the element to list of blocks.
func (w *walker) blocks(node *html.Node, marks doctree.Marks) []*doctree.Node {
	sub := newSink(false)
	w.visitChildren(node, marks, sub)
	sub.flush()
	return sub.blocks
}

// inlineBlock collects all inline content of the element, flattening nested
// blocks, and wraps it with makeNode. Element holding only images yields
// image blocks.
func (w *walker) inlineBlock(node *html.Node, marks doctree.Marks, makeNode func([]*doctree.Node) *doctree.Node) []*doctree.Node {
	sub := newSink(true)
	w.visitChildren(node, marks, sub)
	empty := sub.inline.Empty()
	nodes := sub.inline.Nodes()
	switch {
	case len(nodes) == 0:
		return nil
	case empty || onlyImages(nodes):
		return imagesOf(nodes)
	}
	return []*doctree.Node{makeNode(nodes)}
}

func (w *walker) list(node *html.Node, marks doctree.Marks) *doctree.Node {
	var (
		items []*doctree.Node
		stray = newSink(false)
	)
	flushStray := func() {
		stray.flush()
		if len(stray.blocks) > 0 {
			items = append(items, doctree.ListItem(stray.blocks...))
			stray.blocks = nil
		}
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li && !skipped(c) {
			flushStray()
			if blocks := w.blocks(c, w.elementMarks(c, marks)); len(blocks) > 0 {
				items = append(items, doctree.ListItem(blocks...))
			}
			continue
		}
		// content outside of list items still belongs to the list
		w.visit(c, marks, stray)
	}
	flushStray()

	if len(items) == 0 {
		return nil
	}
	if node.DataAtom == atom.Ol {
		return doctree.OrderedList(items...)
	}
	return doctree.BulletList(items...)
}

// table returns table node preceded by its caption, if any.
func (w *walker) table(node *html.Node, marks doctree.Marks) []*doctree.Node {
	var (
		out  []*doctree.Node
		rows []*doctree.Node
	)
	var collect func(*html.Node)
	collect = func(parent *html.Node) {
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || skipped(c) {
				continue
			}
			switch c.DataAtom {
			case atom.Caption:
				out = append(out, w.blocks(c, w.elementMarks(c, marks))...)
			case atom.Thead, atom.Tbody, atom.Tfoot:
				collect(c)
			case atom.Tr:
				if row := w.row(c, w.elementMarks(c, marks)); row != nil {
					rows = append(rows, row)
				}
			}
		}
	}
	collect(node)
	if len(rows) > 0 {
		out = append(out, doctree.Table(rows...))
	}
	return out
}

func (w *walker) row(node *html.Node, marks doctree.Marks) *doctree.Node {
	var cells []*doctree.Node
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || skipped(c) || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		blocks := w.blocks(c, w.elementMarks(c, marks))
		if len(blocks) == 0 {
			// cells must hold at least one block
			blocks = []*doctree.Node{doctree.Paragraph()}
		}
		cell := doctree.TableCell(c.DataAtom == atom.Th, blocks...)
		for range span(c) {
			cells = append(cells, cell)
			cell = doctree.TableCell(c.DataAtom == atom.Th, doctree.Paragraph())
		}
	}
	if len(cells) == 0 {
		return nil
	}
	return doctree.TableRow(cells...)
}

// span returns number of columns cell occupies, limited to something sane.
func span(node *html.Node) int {
	n, err := strconv.Atoi(strings.TrimSpace(attr(node, "colspan")))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, 64)
}

// elementMarks computes marks of the element content: semantic marks of the
// tag, then stylesheet rules, then inline style attribute.
func (w *walker) elementMarks(node *html.Node, marks doctree.Marks) doctree.Marks {
	switch node.DataAtom {
	case atom.B, atom.Strong:
		marks = marks.With(doctree.Bold)
	case atom.I, atom.Em:
		marks = marks.With(doctree.Italic)
	case atom.U, atom.Ins:
		marks = marks.With(doctree.Underline)
	case atom.S, atom.Strike, atom.Del:
		marks = marks.With(doctree.Strike)
	case atom.A:
		if href := safeHref(attr(node, "href")); href != "" {
			marks = marks.WithLink(href)
		}
	}
	if w.sheet.Len() > 0 {
		marks = w.sheet.Lookup(node.Data, strings.Fields(attr(node, "class"))).Apply(marks)
	}
	if style := attr(node, "style"); style != "" {
		marks = w.styles.ParseInline(style).Apply(marks)
	}
	return marks
}

// safeHref drops links which would execute code when followed.
func safeHref(href string) string {
	href = strings.TrimSpace(href)
	scheme, _, found := strings.Cut(href, ":")
	if found {
		switch strings.ToLower(strings.TrimSpace(scheme)) {
		case "javascript", "vbscript", "data":
			return ""
		}
	}
	return href
}

// skipped reports markup which never holds text of the document.
func skipped(node *html.Node) bool {
	switch node.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Meta, atom.Link,
		atom.Template, atom.Noscript, atom.Input:
		return true
	}
	return false
}

// replaced handles embedded content. SVG contributes its images, object and
// media elements are unwrapped when they carry fallback content. Whatever
// cannot be kept is recorded as dropped. Returns false when node should be
// unwrapped as usual.
func (w *walker) replaced(node *html.Node, s *sink) bool {
	switch node.DataAtom {
	case atom.Svg:
		for _, src := range svgImages(node) {
			s.inline.Inline(doctree.Image(src, ""))
		}
		if strings.TrimSpace(textOf(node)) != "" {
			w.dropped[node.Data]++
		}
		return true
	case atom.Object:
		if hasFallback(node) {
			return false
		}
		data := strings.TrimSpace(attr(node, "data"))
		if data != "" && strings.HasPrefix(strings.ToLower(attr(node, "type")), "image/") {
			s.inline.Inline(doctree.Image(data, ""))
			return true
		}
	case atom.Audio, atom.Video, atom.Canvas:
		if hasFallback(node) {
			return false
		}
	case atom.Iframe, atom.Embed, atom.Select, atom.Textarea:
	default:
		return false
	}
	w.dropped[node.Data]++
	return true
}

// hasFallback reports whether element has text or images to show in place of
// the embedded content.
func hasFallback(node *html.Node) bool {
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) != "":
			return true
		case c.Type == html.ElementNode && c.DataAtom == atom.Img:
			return true
		case c.Type == html.ElementNode && hasFallback(c):
			return true
		}
	}
	return false
}

// svgImages returns sources of raster images referenced by SVG element, the
// usual way EPUB covers are wrapped.
func svgImages(node *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "image" {
			for _, a := range n.Attr {
				// xlink:href or SVG 2 plain href
				if a.Key == "href" && strings.TrimSpace(a.Val) != "" {
					out = append(out, strings.TrimSpace(a.Val))
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return out
}

// inlineAtoms are elements unwrapped silently, everything else unwrapped is
// reported in debug log.
var inlineAtoms = map[atom.Atom]bool{
	atom.Span: true, atom.A: true, atom.B: true, atom.Strong: true, atom.I: true,
	atom.Em: true, atom.U: true, atom.Ins: true, atom.S: true, atom.Strike: true,
	atom.Del: true, atom.Sup: true, atom.Sub: true, atom.Small: true, atom.Big: true,
	atom.Code: true, atom.Kbd: true, atom.Samp: true, atom.Var: true, atom.Cite: true,
	atom.Q: true, atom.Abbr: true, atom.Dfn: true, atom.Mark: true, atom.Font: true,
	atom.Tt: true, atom.Time: true, atom.Label: true, atom.Bdi: true, atom.Bdo: true,
	atom.Wbr: true, atom.Nobr: true, atom.Ruby: true, atom.Rt: true, atom.Rp: true,
}

func attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
