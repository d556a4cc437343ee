package doctree

import (
	"strconv"

	"msimport/utils/debug"
)

// Dump returns readable indented representation of the tree. It exists for
// debug reports and test failure messages.
func Dump(n *Node) string {
	tw := debug.NewTreeWriter()
	dump(tw, n, 0)
	return tw.String()
}

func dump(tw *debug.TreeWriter, n *Node, depth int) {
	if n == nil {
		tw.Line(depth, "<nil>")
		return
	}
	switch n.Kind {
	case KindText:
		tw.Attrs(depth, "text", "value", n.Text, "marks", n.Marks.String(), "href", n.Marks.Href)
		return
	case KindHeading:
		tw.Attrs(depth, "heading", "level", strconv.Itoa(n.Level))
	case KindImage:
		tw.Attrs(depth, "image", "src", n.Src, "alt", n.Alt)
		return
	case KindTableCell:
		if n.Header {
			tw.Line(depth, "tableHeader")
		} else {
			tw.Line(depth, "tableCell")
		}
	default:
		tw.Line(depth, "%s", n.Kind)
	}
	for _, c := range n.Children {
		dump(tw, c, depth+1)
	}
}
