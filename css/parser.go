// Package css extracts text emphasis (bold, italic, underline, strike) from
// stylesheets and inline style attributes of imported documents. Anything
// that does not affect emphasis is ignored.
package css

import (
	"bytes"
	"strconv"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	"msimport/doctree"
)

// Style is emphasis change requested by a set of declarations: marks to
// switch on and marks to switch off.
type Style struct {
	Set   doctree.MarkFlags
	Clear doctree.MarkFlags
}

// IsZero reports whether style changes nothing.
func (s Style) IsZero() bool {
	return s.Set == 0 && s.Clear == 0
}

// Apply returns marks with style applied.
func (s Style) Apply(m doctree.Marks) doctree.Marks {
	m.Flags = (m.Flags &^ s.Clear) | s.Set
	return m
}

// Merge combines styles, later declarations win.
func (s Style) Merge(o Style) Style {
	s.Set = (s.Set &^ o.Clear) | o.Set
	s.Clear = (s.Clear &^ o.Set) | o.Clear
	return s
}

// Stylesheet keeps emphasis defined by simple selectors: "tag", ".class"
// and "tag.class".
type Stylesheet struct {
	Tags    map[string]Style
	Classes map[string]Style
	// "tag.class" selectors
	Qualified map[string]Style
}

func NewStylesheet() *Stylesheet {
	return &Stylesheet{
		Tags:      make(map[string]Style),
		Classes:   make(map[string]Style),
		Qualified: make(map[string]Style),
	}
}

// Merge adds rules of the other stylesheet, its rules win on conflict.
func (s *Stylesheet) Merge(o *Stylesheet) {
	if o == nil {
		return
	}
	for k, v := range o.Tags {
		s.Tags[k] = s.Tags[k].Merge(v)
	}
	for k, v := range o.Classes {
		s.Classes[k] = s.Classes[k].Merge(v)
	}
	for k, v := range o.Qualified {
		s.Qualified[k] = s.Qualified[k].Merge(v)
	}
}

// Lookup computes style of an element from its tag and class list, in
// specificity order: tag, class, tag.class.
func (s *Stylesheet) Lookup(tag string, classes []string) Style {
	if s == nil {
		return Style{}
	}
	tag = strings.ToLower(tag)
	st := s.Tags[tag]
	for _, c := range classes {
		st = st.Merge(s.Classes[c])
	}
	for _, c := range classes {
		st = st.Merge(s.Qualified[tag+"."+c])
	}
	return st
}

// Len returns number of rules in the stylesheet.
func (s *Stylesheet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tags) + len(s.Classes) + len(s.Qualified)
}

// Parser parses CSS into emphasis rules.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css")}
}

// Parse parses CSS stylesheet. The optional source parameter identifies
// what's being parsed (for debug logging).
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	sheet := NewStylesheet()

	if len(source) > 0 && source[0] != "" {
		p.log.Debug("Parsing CSS", zap.String("source", source[0]), zap.Int("bytes", len(data)))
	}

	parser := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)
	var pending []string
	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err != nil && err.Error() != "EOF" {
				p.log.Debug("CSS parse error", zap.Error(err))
			}
			return sheet

		case css.BeginAtRuleGrammar:
			// @media, @font-face, @page and friends do not carry emphasis we
			// could use reliably
			p.log.Debug("Skipping @-rule", zap.String("rule", string(data)))
			skipAtRuleBlock(parser)

		case css.QualifiedRuleGrammar:
			// all but the last selector of a group, rule body follows later
			pending = append(pending, parseSelectors(data, parser.Values())...)

		case css.BeginRulesetGrammar:
			selectors := append(pending, parseSelectors(data, parser.Values())...)
			pending = nil
			style := p.parseDeclarations(parser)
			if style.IsZero() {
				continue
			}
			for _, sel := range selectors {
				if !sheet.add(sel, style) {
					p.log.Debug("Ignoring complex selector", zap.String("selector", sel))
				}
			}
		}
	}
}

// ParseInline parses value of the style attribute.
func (p *Parser) ParseInline(style string) Style {
	if strings.TrimSpace(style) == "" {
		return Style{}
	}
	parser := css.NewParser(parse.NewInputString(style), true)
	var st Style
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return st
		case css.DeclarationGrammar:
			st = st.Merge(declarationStyle(string(data), parser.Values()))
		}
	}
}

func (s *Stylesheet) add(selector string, style Style) bool {
	selector = strings.TrimSpace(selector)
	if selector == "" || strings.ContainsAny(selector, " >+~:[*#") {
		return false
	}
	tag, class, hasClass := strings.Cut(selector, ".")
	if hasClass && strings.Contains(class, ".") {
		return false
	}
	tag = strings.ToLower(tag)
	switch {
	case !hasClass:
		s.Tags[tag] = s.Tags[tag].Merge(style)
	case tag == "":
		s.Classes[class] = s.Classes[class].Merge(style)
	default:
		s.Qualified[tag+"."+class] = s.Qualified[tag+"."+class].Merge(style)
	}
	return true
}

// parseSelectors extracts selector strings from token data.
func parseSelectors(data []byte, values []css.Token) []string {
	var sb strings.Builder
	sb.Write(data)
	for _, v := range values {
		sb.Write(v.Data)
	}

	var selectors []string
	for s := range strings.SplitSeq(sb.String(), ",") {
		if s = strings.TrimSpace(s); s != "" {
			selectors = append(selectors, s)
		}
	}
	return selectors
}

// parseDeclarations parses property declarations until EndRulesetGrammar.
func (p *Parser) parseDeclarations(parser *css.Parser) Style {
	var st Style
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar, css.EndRulesetGrammar:
			return st
		case css.DeclarationGrammar:
			st = st.Merge(declarationStyle(string(data), parser.Values()))
		}
	}
}

func declarationStyle(property string, values []css.Token) Style {
	var words []string
	for _, t := range values {
		switch t.TokenType {
		case css.IdentToken, css.NumberToken:
			words = append(words, strings.ToLower(string(t.Data)))
		}
	}
	if len(words) == 0 {
		return Style{}
	}

	var st Style
	switch strings.ToLower(property) {
	case "font-weight":
		st = fontWeight(words[0])
	case "font-style":
		switch words[0] {
		case "italic", "oblique":
			st.Set = doctree.Italic
		case "normal":
			st.Clear = doctree.Italic
		}
	case "text-decoration", "text-decoration-line":
		for _, w := range words {
			switch w {
			case "underline":
				st.Set |= doctree.Underline
			case "line-through":
				st.Set |= doctree.Strike
			case "none":
				st.Clear |= doctree.Underline | doctree.Strike
			}
		}
	}
	return st
}

func fontWeight(v string) Style {
	switch v {
	case "bold", "bolder":
		return Style{Set: doctree.Bold}
	case "normal", "lighter":
		return Style{Clear: doctree.Bold}
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n >= 600 {
			return Style{Set: doctree.Bold}
		}
		return Style{Clear: doctree.Bold}
	}
	return Style{}
}

// skipAtRuleBlock skips tokens until the matching end of an @-rule block.
func skipAtRuleBlock(parser *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}
