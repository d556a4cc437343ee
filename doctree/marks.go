package doctree

import "strings"

// MarkFlags is a set of simple formatting marks.
type MarkFlags uint8

const (
	Bold MarkFlags = 1 << iota
	Italic
	Underline
	Strike
)

var markNames = []struct {
	flag MarkFlags
	name string
}{
	{Bold, "bold"},
	{Italic, "italic"},
	{Underline, "underline"},
	{Strike, "strike"},
}

// Marks is formatting applied to a text leaf. Link is a mark too, it is
// present when Href is not empty.
type Marks struct {
	Flags MarkFlags
	Href  string
}

func (m Marks) Has(f MarkFlags) bool {
	return m.Flags&f == f
}

func (m Marks) With(f MarkFlags) Marks {
	m.Flags |= f
	return m
}

func (m Marks) Without(f MarkFlags) Marks {
	m.Flags &^= f
	return m
}

func (m Marks) WithLink(href string) Marks {
	m.Href = href
	return m
}

// Merge combines two mark sets, link of the other set wins when present.
func (m Marks) Merge(o Marks) Marks {
	m.Flags |= o.Flags
	if o.Href != "" {
		m.Href = o.Href
	}
	return m
}

// Names lists mark names in stable order, link last.
func (m Marks) Names() []string {
	var names []string
	for _, mn := range markNames {
		if m.Has(mn.flag) {
			names = append(names, mn.name)
		}
	}
	if m.Href != "" {
		names = append(names, "link")
	}
	return names
}

func (m Marks) String() string {
	return strings.Join(m.Names(), ",")
}

func markByName(name string) (MarkFlags, bool) {
	for _, mn := range markNames {
		if mn.name == name {
			return mn.flag, true
		}
	}
	return 0, false
}
