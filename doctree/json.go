package doctree

import (
	"encoding/json"
	"fmt"
)

// Serialized form follows the ProseMirror/TipTap JSON document layout which
// is what the rest of the platform stores and renders.

type jsonMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

type jsonNode struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []jsonMark     `json:"marks,omitempty"`
	Content []*jsonNode    `json:"content,omitempty"`
}

func (n *Node) toJSON() *jsonNode {
	jn := &jsonNode{Type: n.Kind.String()}
	switch n.Kind {
	case KindHeading:
		jn.Attrs = map[string]any{"level": n.Level}
	case KindImage:
		jn.Attrs = map[string]any{"src": n.Src, "alt": n.Alt}
	case KindTableCell:
		if n.Header {
			jn.Type = "tableHeader"
		}
	case KindText:
		jn.Text = n.Text
		for _, name := range n.Marks.Names() {
			m := jsonMark{Type: name}
			if name == "link" {
				m.Attrs = map[string]any{"href": n.Marks.Href}
			}
			jn.Marks = append(jn.Marks, m)
		}
	}
	for _, c := range n.Children {
		jn.Content = append(jn.Content, c.toJSON())
	}
	return jn
}

func (jn *jsonNode) toNode() (*Node, error) {
	n := &Node{}
	switch jn.Type {
	case "tableHeader":
		n.Kind, n.Header = KindTableCell, true
	default:
		found := false
		for k, name := range kindNames {
			if name == jn.Type {
				n.Kind, found = k, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown node type %q", jn.Type)
		}
	}

	switch n.Kind {
	case KindHeading:
		level, _ := jn.Attrs["level"].(float64)
		n.Level = ClampLevel(int(level))
	case KindImage:
		n.Src, _ = jn.Attrs["src"].(string)
		n.Alt, _ = jn.Attrs["alt"].(string)
	case KindText:
		n.Text = jn.Text
		for _, m := range jn.Marks {
			if m.Type == "link" {
				n.Marks.Href, _ = m.Attrs["href"].(string)
				continue
			}
			if f, ok := markByName(m.Type); ok {
				n.Marks.Flags |= f
			}
		}
	}

	for _, jc := range jn.Content {
		c, err := jc.toNode()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toJSON())
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var jn jsonNode
	if err := json.Unmarshal(data, &jn); err != nil {
		return err
	}
	res, err := jn.toNode()
	if err != nil {
		return err
	}
	*n = *res
	return nil
}
