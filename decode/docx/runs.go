package docx

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"msimport/css"
	"msimport/doctree"
)

// converter turns WordprocessingML elements into document tree nodes.
type converter struct {
	styles    *styles
	numbering *numbering
	rels      map[string]relationship
	has       func(string) bool
	extra     map[string]bool
	log       *zap.Logger
	// receives anomalies found while converting
	warn func(part, msg string)
}

type paraInfo struct {
	style   string
	level   int // heading level, 0 for body text
	list    bool
	ilvl    int
	ordered bool
	quote   bool
	inlines []*doctree.Node
	// nothing but white space
	empty bool
}

func (p *paraInfo) text() string {
	return doctree.Paragraph(p.inlines...).PlainText()
}

func (c *converter) paragraph(p *etree.Element) paraInfo {
	var (
		info  paraInfo
		numID string
	)
	if pPr := p.SelectElement("pPr"); pPr != nil {
		if ps := pPr.SelectElement("pStyle"); ps != nil {
			info.style = val(ps)
		}
		if ol := pPr.SelectElement("outlineLvl"); ol != nil {
			info.level = outlineLevel(val(ol))
		}
		if np := pPr.SelectElement("numPr"); np != nil {
			numID, info.ilvl = numPr(np)
		}
	}
	if info.level == 0 {
		info.level = c.styles.headingLevel(info.style, c.extra)
	}
	if numID == "" {
		numID, info.ilvl = c.styles.numbering(info.style)
	}
	// numId 0 removes numbering inherited from style
	if info.level == 0 && numID != "" && numID != "0" {
		info.list = true
		info.ordered = c.numbering.ordered(numID, info.ilvl)
	}
	info.quote = c.styles.isQuote(info.style)

	b := doctree.NewInlineBuilder()
	c.inline(p, b, c.styles.runStyle(info.style), "")
	info.empty = b.Empty()
	info.inlines = b.Nodes()
	return info
}

// inline converts run level content of paragraph (or of a run container
// inside it).
func (c *converter) inline(parent *etree.Element, b *doctree.InlineBuilder, base css.Style, href string) {
	for _, el := range parent.ChildElements() {
		switch el.Tag {
		case "r":
			c.run(el, b, base, href)
		case "hyperlink":
			c.inline(el, b, base, c.hyperlink(el, href))
		case "ins", "smartTag", "customXml", "fldSimple", "dir", "bdo", "moveTo":
			c.inline(el, b, base, href)
		case "sdt":
			if sc := el.SelectElement("sdtContent"); sc != nil {
				c.inline(sc, b, base, href)
			}
		case "AlternateContent":
			if alt := alternative(el); alt != nil {
				c.inline(alt, b, base, href)
			}
		case "oMath", "oMathPara":
			c.warn("math", "equation skipped")
		}
		// pPr, deleted text, bookmarks, comments and proofing marks carry
		// no content
	}
}

func (c *converter) hyperlink(el *etree.Element, inherited string) string {
	if id := el.SelectAttrValue("id", ""); id != "" {
		if rel, ok := c.rels[id]; ok && rel.external {
			return rel.target
		}
	}
	if anchor := el.SelectAttrValue("anchor", ""); anchor != "" {
		return "#" + anchor
	}
	return inherited
}

func (c *converter) run(r *etree.Element, b *doctree.InlineBuilder, base css.Style, href string) {
	st := base
	if rPr := r.SelectElement("rPr"); rPr != nil {
		if v := rPr.SelectElement("vanish"); v != nil && toggle(v) {
			return
		}
		if rs := rPr.SelectElement("rStyle"); rs != nil {
			st = st.Merge(c.styles.runStyle(val(rs)))
		}
		st = st.Merge(runProps(rPr))
	}
	marks := st.Apply(doctree.Marks{}).WithLink(href)
	c.runContent(r, b, marks)
}

func (c *converter) runContent(r *etree.Element, b *doctree.InlineBuilder, marks doctree.Marks) {
	for _, el := range r.ChildElements() {
		switch el.Tag {
		case "t":
			b.Text(el.Text(), marks)
		case "tab", "ptab", "br", "cr":
			b.Break(marks)
		case "noBreakHyphen":
			b.Text("-", marks)
		case "drawing":
			c.drawing(el, b)
		case "pict":
			c.pict(el, b)
		case "object":
			c.warn("object", "embedded object skipped")
		case "AlternateContent":
			if alt := alternative(el); alt != nil {
				c.runContent(alt, b, marks)
			}
		}
	}
}

// alternative selects content of markup compatibility block: first choice
// when present, fallback otherwise.
func alternative(el *etree.Element) *etree.Element {
	if ch := el.SelectElement("Choice"); ch != nil {
		return ch
	}
	return el.SelectElement("Fallback")
}

func (c *converter) drawing(el *etree.Element, b *doctree.InlineBuilder) {
	var alt string
	if pr := el.FindElement(".//docPr"); pr != nil {
		alt = pr.SelectAttrValue("descr", "")
		if alt == "" {
			alt = pr.SelectAttrValue("title", "")
		}
	}
	blip := el.FindElement(".//blip")
	if blip == nil {
		switch {
		case el.FindElement(".//txbxContent") != nil:
			c.warn("drawing", "text box content skipped")
		case el.FindElement(".//chart") != nil:
			c.warn("drawing", "chart skipped")
		default:
			c.warn("drawing", "shape skipped")
		}
		return
	}
	id := blip.SelectAttrValue("embed", "")
	if id == "" {
		id = blip.SelectAttrValue("link", "")
	}
	c.image(id, alt, b)
}

// pict handles legacy VML pictures.
func (c *converter) pict(el *etree.Element, b *doctree.InlineBuilder) {
	data := el.FindElement(".//imagedata")
	if data == nil {
		c.warn("pict", "legacy shape skipped")
		return
	}
	c.image(data.SelectAttrValue("r:id", ""), data.SelectAttrValue("title", ""), b)
}

func (c *converter) image(id, alt string, b *doctree.InlineBuilder) {
	rel, ok := c.rels[id]
	if !ok {
		c.warn(id, "image relationship is missing")
		return
	}
	if !rel.external && !c.has(rel.target) {
		c.warn(rel.target, "image part is missing")
		return
	}
	b.Inline(doctree.Image(rel.target, strings.TrimSpace(doctree.CleanText(alt))))
}

// blockAcc accumulates blocks, consecutive list paragraphs are gathered
// into (nested) lists.
type blockAcc struct {
	blocks []*doctree.Node
	// open lists, index is nesting level
	lists []*doctree.Node
}

func (acc *blockAcc) block(n *doctree.Node) {
	if n == nil {
		return
	}
	acc.lists = nil
	acc.blocks = append(acc.blocks, n)
}

// add converts paragraph. Empty paragraphs are spacing and are dropped.
func (acc *blockAcc) add(info paraInfo) {
	if info.empty {
		return
	}
	if imagesOnly(info.inlines) {
		for _, n := range info.inlines {
			if n.Kind == doctree.KindImage {
				acc.block(n)
			}
		}
		return
	}
	switch {
	case info.list:
		acc.listItem(info.ilvl, info.ordered, doctree.ListItem(doctree.Paragraph(info.inlines...)))
	case info.level > 0:
		acc.block(doctree.Heading(info.level, info.inlines...))
	case info.quote:
		p := doctree.Paragraph(info.inlines...)
		if l := len(acc.blocks); l > 0 && acc.lists == nil && acc.blocks[l-1].Kind == doctree.KindBlockquote {
			acc.blocks[l-1].Append(p)
			return
		}
		acc.block(doctree.Blockquote(p))
	default:
		acc.block(doctree.Paragraph(info.inlines...))
	}
}

// imagesOnly reports whether inline content has images and white space
// only.
func imagesOnly(nodes []*doctree.Node) bool {
	found := false
	for _, n := range nodes {
		switch {
		case n.Kind == doctree.KindImage:
			found = true
		case n.Kind == doctree.KindText && strings.TrimSpace(n.Text) == "":
		default:
			return false
		}
	}
	return found
}

func (acc *blockAcc) listItem(level int, ordered bool, item *doctree.Node) {
	// cannot go deeper than one level below currently open list
	level = min(max(level, 0), len(acc.lists))
	acc.lists = acc.lists[:min(len(acc.lists), level+1)]
	if len(acc.lists) == level+1 && (acc.lists[level].Kind == doctree.KindOrderedList) != ordered {
		acc.lists = acc.lists[:level]
	}
	if len(acc.lists) == level {
		var list *doctree.Node
		if ordered {
			list = doctree.OrderedList()
		} else {
			list = doctree.BulletList()
		}
		if level == 0 {
			acc.blocks = append(acc.blocks, list)
		} else {
			parent := acc.lists[level-1]
			parent.Children[len(parent.Children)-1].Append(list)
		}
		acc.lists = append(acc.lists, list)
	}
	acc.lists[level].Append(item)
}

// blocks converts block level content of a container (table cell, content
// control).
func (c *converter) blocks(parent *etree.Element) []*doctree.Node {
	var acc blockAcc
	c.walkBlocks(parent, func(el *etree.Element) {
		switch el.Tag {
		case "p":
			acc.add(c.paragraph(el))
		case "tbl":
			acc.block(c.table(el))
		}
	})
	return acc.blocks
}

// walkBlocks calls fn for every block level element, unwrapping content
// controls and custom markup.
func (c *converter) walkBlocks(parent *etree.Element, fn func(*etree.Element)) {
	for _, el := range parent.ChildElements() {
		switch el.Tag {
		case "sdt":
			if sc := el.SelectElement("sdtContent"); sc != nil {
				c.walkBlocks(sc, fn)
			}
		case "customXml", "ins", "moveTo":
			c.walkBlocks(el, fn)
		case "AlternateContent":
			if alt := alternative(el); alt != nil {
				c.walkBlocks(alt, fn)
			}
		default:
			fn(el)
		}
	}
}

func (c *converter) table(tbl *etree.Element) *doctree.Node {
	var rows []*doctree.Node
	for _, tr := range tbl.SelectElements("tr") {
		header := false
		if th := tr.FindElement("trPr/tblHeader"); th != nil {
			header = toggle(th)
		}
		var cells []*doctree.Node
		for _, tc := range tr.SelectElements("tc") {
			span := 1
			if gs := tc.FindElement("tcPr/gridSpan"); gs != nil {
				if n, err := strconv.Atoi(val(gs)); err == nil && n > 1 {
					span = min(n, 64)
				}
			}
			blocks := c.blocks(tc)
			if len(blocks) == 0 {
				blocks = []*doctree.Node{doctree.Paragraph()}
			}
			cells = append(cells, doctree.TableCell(header, blocks...))
			for range span - 1 {
				cells = append(cells, doctree.TableCell(header, doctree.Paragraph()))
			}
		}
		if len(cells) > 0 {
			rows = append(rows, doctree.TableRow(cells...))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return doctree.Table(rows...)
}
