package docx

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"unicode"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"msimport/archive"
	"msimport/css"
	"msimport/doctree"
)

// maximum length of basedOn chain followed, protects against loops
const maxStyleDepth = 16

type style struct {
	id      string
	name    string
	basedOn string
	// heading level from outline level, 0 when not set
	outline int
	numID   string
	ilvl    int
	marks   css.Style
}

type styles struct {
	byID map[string]*style
	// default language of the document runs
	lang string
}

// Localized built-in heading style names and ids, normalized. Word writes
// localized names for built-in styles in some versions and style ids lose
// non ASCII characters ("Überschrift 1" -> "berschrift1").
var headingPrefixes = []string{
	"heading", "überschrift", "berschrift", "titre", "titolo", "título", "titulo",
	"kop", "rubrik", "overskrift", "otsikko", "nagłówek", "nagwek", "заголовок",
	"nadpis", "címsor", "cmsor", "başlık", "balk", "encabezado",
}

func normalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			return -1
		}
		return unicode.ToLower(r)
	}, name)
}

// headingByName recognizes built-in heading style names ("heading 1",
// "Heading1", "Titre 2", ...) and returns heading level or 0.
func headingByName(name string) int {
	n := normalizeName(name)
	for _, p := range headingPrefixes {
		rest, ok := strings.CutPrefix(n, p)
		if !ok || rest == "" {
			continue
		}
		if lvl, err := strconv.Atoi(rest); err == nil && lvl >= 1 && lvl <= 9 {
			return lvl
		}
	}
	return 0
}

func isQuoteName(name string) bool {
	n := normalizeName(name)
	for _, s := range []string{"quote", "zitat", "citation", "цитата", "blocktext"} {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// chain returns style and its bases, most specific first. Unknown style id
// yields stub entry so that names may still be matched against the id.
func (s *styles) chain(id string) []*style {
	var out []*style
	seen := make(map[string]bool)
	for id != "" && !seen[id] && len(out) < maxStyleDepth {
		seen[id] = true
		st, ok := s.byID[id]
		if !ok {
			out = append(out, &style{id: id})
			break
		}
		out = append(out, st)
		id = st.basedOn
	}
	return out
}

// headingLevel of paragraph style, 0 when style is not a heading. extra
// holds normalized names of additional styles treated as top level headings.
func (s *styles) headingLevel(id string, extra map[string]bool) int {
	for _, st := range s.chain(id) {
		for _, n := range []string{st.name, st.id} {
			if n == "" {
				continue
			}
			if lvl := headingByName(n); lvl > 0 {
				return lvl
			}
			if extra[normalizeName(n)] {
				return 1
			}
		}
		if st.outline > 0 {
			return st.outline
		}
	}
	return 0
}

func (s *styles) isQuote(id string) bool {
	for _, st := range s.chain(id) {
		if isQuoteName(st.name) || isQuoteName(st.id) {
			return true
		}
	}
	return false
}

// numbering returns list numbering defined by paragraph style.
func (s *styles) numbering(id string) (string, int) {
	for _, st := range s.chain(id) {
		if st.numID != "" {
			return st.numID, st.ilvl
		}
	}
	return "", 0
}

// runStyle is run emphasis defined by style, bases applied first.
func (s *styles) runStyle(id string) css.Style {
	var out css.Style
	chain := s.chain(id)
	for i := len(chain) - 1; i >= 0; i-- {
		out = out.Merge(chain[i].marks)
	}
	return out
}

func readStyles(a *archive.Archive, part string, log *zap.Logger) *styles {
	s := &styles{byID: make(map[string]*style)}
	doc, err := a.ReadXML(part)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Unable to read styles, using style ids as names", zap.String("part", part), zap.Error(err))
		}
		return s
	}
	root := doc.Root()

	if lang := root.FindElement("docDefaults/rPrDefault/rPr/lang"); lang != nil {
		s.lang = val(lang)
	}
	for _, el := range root.SelectElements("style") {
		st := &style{id: el.SelectAttrValue("styleId", "")}
		if st.id == "" {
			continue
		}
		if name := el.SelectElement("name"); name != nil {
			st.name = val(name)
		}
		if based := el.SelectElement("basedOn"); based != nil {
			st.basedOn = val(based)
		}
		if pPr := el.SelectElement("pPr"); pPr != nil {
			if ol := pPr.SelectElement("outlineLvl"); ol != nil {
				st.outline = outlineLevel(val(ol))
			}
			if np := pPr.SelectElement("numPr"); np != nil {
				st.numID, st.ilvl = numPr(np)
			}
		}
		if rPr := el.SelectElement("rPr"); rPr != nil {
			st.marks = runProps(rPr)
		}
		s.byID[st.id] = st
	}
	log.Debug("Styles loaded", zap.String("part", part), zap.Int("styles", len(s.byID)))
	return s
}

// outlineLevel converts 0-based w:outlineLvl to heading level, level 9 is
// body text.
func outlineLevel(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 8 {
		return 0
	}
	return n + 1
}

func numPr(el *etree.Element) (string, int) {
	var (
		id   string
		ilvl int
	)
	if n := el.SelectElement("numId"); n != nil {
		id = val(n)
	}
	if l := el.SelectElement("ilvl"); l != nil {
		ilvl, _ = strconv.Atoi(val(l))
	}
	return id, max(ilvl, 0)
}

// runProps extracts emphasis toggles from run properties.
func runProps(rPr *etree.Element) css.Style {
	var st css.Style
	set := func(flag doctree.MarkFlags, on bool) {
		if on {
			st.Set |= flag
			st.Clear &^= flag
		} else {
			st.Clear |= flag
			st.Set &^= flag
		}
	}
	for _, el := range rPr.ChildElements() {
		switch el.Tag {
		case "b":
			set(doctree.Bold, toggle(el))
		case "i":
			set(doctree.Italic, toggle(el))
		case "u":
			set(doctree.Underline, val(el) != "none" && toggle(el))
		case "strike", "dstrike":
			set(doctree.Strike, toggle(el))
		}
	}
	return st
}

// toggle interprets on/off property: present without value means on.
func toggle(el *etree.Element) bool {
	switch strings.ToLower(val(el)) {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

func val(el *etree.Element) string {
	return el.SelectAttrValue("val", "")
}

type numbering struct {
	abstract map[string]string         // numId -> abstractNumId
	formats  map[string]map[int]string // abstractNumId -> ilvl -> numFmt
}

func readNumbering(a *archive.Archive, part string, log *zap.Logger) *numbering {
	n := &numbering{abstract: make(map[string]string), formats: make(map[string]map[int]string)}
	doc, err := a.ReadXML(part)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Unable to read numbering, all lists will be bulleted", zap.String("part", part), zap.Error(err))
		}
		return n
	}
	root := doc.Root()
	for _, an := range root.SelectElements("abstractNum") {
		id := an.SelectAttrValue("abstractNumId", "")
		levels := make(map[int]string)
		for _, lvl := range an.SelectElements("lvl") {
			ilvl, err := strconv.Atoi(lvl.SelectAttrValue("ilvl", ""))
			if err != nil {
				continue
			}
			if f := lvl.SelectElement("numFmt"); f != nil {
				levels[ilvl] = val(f)
			}
		}
		n.formats[id] = levels
	}
	for _, num := range root.SelectElements("num") {
		if an := num.SelectElement("abstractNumId"); an != nil {
			n.abstract[num.SelectAttrValue("numId", "")] = val(an)
		}
	}
	return n
}

// ordered reports whether list level is numbered rather than bulleted.
// Unknown lists are bulleted.
func (n *numbering) ordered(numID string, ilvl int) bool {
	f := n.formats[n.abstract[numID]][ilvl]
	return f != "" && f != "bullet" && f != "none"
}

type relationship struct {
	typ      string
	target   string // archive path, or URL when external
	external bool
}

// relsPath returns path of relationships part of the given part.
func relsPath(part string) string {
	dir, file := "", part
	if i := strings.LastIndexByte(part, '/'); i >= 0 {
		dir, file = part[:i+1], part[i+1:]
	}
	return dir + "_rels/" + file + ".rels"
}

func readRels(a *archive.Archive, part string, log *zap.Logger) map[string]relationship {
	out := make(map[string]relationship)
	doc, err := a.ReadXML(relsPath(part))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Unable to read relationships", zap.String("part", part), zap.Error(err))
		}
		return out
	}
	for _, el := range doc.Root().SelectElements("Relationship") {
		id, target := el.SelectAttrValue("Id", ""), el.SelectAttrValue("Target", "")
		if id == "" || target == "" {
			continue
		}
		rel := relationship{typ: el.SelectAttrValue("Type", "")}
		if strings.EqualFold(el.SelectAttrValue("TargetMode", ""), "External") {
			rel.target, rel.external = target, true
		} else {
			rel.target = archive.Resolve(part, target)
		}
		out[id] = rel
	}
	return out
}

// relTarget finds first relationship of given type (by suffix) or returns
// def.
func relTarget(rels map[string]relationship, typeSuffix, def string) string {
	for _, rel := range rels {
		if !rel.external && strings.HasSuffix(rel.typ, typeSuffix) && rel.target != "" {
			return rel.target
		}
	}
	return def
}
