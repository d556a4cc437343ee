// Package doctree defines canonical structured representation of chapter
// content shared by all decoders, the import session and the store.
package doctree

// Kind distinguishes the different kinds of document nodes.
type Kind int

const (
	KindDocument Kind = iota
	KindParagraph
	KindHeading
	KindBulletList
	KindOrderedList
	KindListItem
	KindBlockquote
	KindTable
	KindTableRow
	KindTableCell
	KindHorizontalRule
	KindImage
	KindText
)

var kindNames = map[Kind]string{
	KindDocument:       "doc",
	KindParagraph:      "paragraph",
	KindHeading:        "heading",
	KindBulletList:     "bulletList",
	KindOrderedList:    "orderedList",
	KindListItem:       "listItem",
	KindBlockquote:     "blockquote",
	KindTable:          "table",
	KindTableRow:       "tableRow",
	KindTableCell:      "tableCell",
	KindHorizontalRule: "horizontalRule",
	KindImage:          "image",
	KindText:           "text",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsBlock reports whether nodes of this kind may be children of a document,
// list item, blockquote or table cell.
func (k Kind) IsBlock() bool {
	switch k {
	case KindParagraph, KindHeading, KindBulletList, KindOrderedList, KindBlockquote,
		KindTable, KindHorizontalRule, KindImage:
		return true
	}
	return false
}

// IsInline reports whether nodes of this kind may be children of paragraphs
// and headings.
func (k Kind) IsInline() bool {
	return k == KindText || k == KindImage
}

// MaxHeadingLevel is the deepest heading level kept, deeper ones are clamped.
const MaxHeadingLevel = 3

// Node is a single element of the document tree. Which fields are
// meaningful depends on Kind.
type Node struct {
	Kind     Kind
	Level    int    // heading
	Text     string // text
	Marks    Marks  // text
	Src      string // image
	Alt      string // image
	Header   bool   // table cell
	Children []*Node
}

// Document creates root node, nil children are skipped.
func Document(children ...*Node) *Node {
	return &Node{Kind: KindDocument, Children: compact(children)}
}

// Paragraph creates paragraph holding inline nodes.
func Paragraph(inlines ...*Node) *Node {
	return &Node{Kind: KindParagraph, Children: compact(inlines)}
}

// Heading creates heading, level is clamped to 1..MaxHeadingLevel.
func Heading(level int, inlines ...*Node) *Node {
	return &Node{Kind: KindHeading, Level: ClampLevel(level), Children: compact(inlines)}
}

// ClampLevel brings heading level into supported range.
func ClampLevel(level int) int {
	switch {
	case level < 1:
		return 1
	case level > MaxHeadingLevel:
		return MaxHeadingLevel
	}
	return level
}

func BulletList(items ...*Node) *Node {
	return &Node{Kind: KindBulletList, Children: compact(items)}
}

func OrderedList(items ...*Node) *Node {
	return &Node{Kind: KindOrderedList, Children: compact(items)}
}

func ListItem(blocks ...*Node) *Node {
	return &Node{Kind: KindListItem, Children: compact(blocks)}
}

func Blockquote(blocks ...*Node) *Node {
	return &Node{Kind: KindBlockquote, Children: compact(blocks)}
}

func Table(rows ...*Node) *Node {
	return &Node{Kind: KindTable, Children: compact(rows)}
}

func TableRow(cells ...*Node) *Node {
	return &Node{Kind: KindTableRow, Children: compact(cells)}
}

func TableCell(header bool, blocks ...*Node) *Node {
	return &Node{Kind: KindTableCell, Header: header, Children: compact(blocks)}
}

func HorizontalRule() *Node {
	return &Node{Kind: KindHorizontalRule}
}

func Image(src, alt string) *Node {
	return &Node{Kind: KindImage, Src: src, Alt: alt}
}

// Text creates text leaf. Empty text yields nil, so it may be passed to
// other constructors directly.
func Text(s string, marks Marks) *Node {
	if s == "" {
		return nil
	}
	return &Node{Kind: KindText, Text: s, Marks: marks}
}

func compact(nodes []*Node) []*Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// IsEmpty reports whether node carries no content: no text, no images and
// no horizontal rules anywhere below it.
func (n *Node) IsEmpty() bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case KindText:
		return len(n.Text) == 0
	case KindImage, KindHorizontalRule:
		return false
	}
	for _, c := range n.Children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Append adds non-nil children to the node.
func (n *Node) Append(children ...*Node) {
	n.Children = append(n.Children, compact(children)...)
}

// Clone makes a deep copy of the subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Walk calls fn for node and all its descendants in document order. When fn
// returns false children of the node are not visited.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
