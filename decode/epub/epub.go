// Package epub decodes EPUB containers into chapters. Content documents are
// visited in spine order, each is normalized and split on its own top level
// headings.
package epub

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"msimport/archive"
	"msimport/common"
	"msimport/content"
	"msimport/css"
	"msimport/doctree"
	"msimport/normalize"
)

const containerPath = "META-INF/container.xml"

// DefaultSplitLevel - headings of levels 1 and 2 start new chapters.
const DefaultSplitLevel = 2

// Options controls EPUB decoding.
type Options struct {
	// SplitLevel is the deepest top level heading which starts a chapter,
	// 0 means DefaultSplitLevel.
	SplitLevel int
	// FallbackTitle names chapter which has neither heading nor document
	// title. index is 1-based position of the chapter in the result, name
	// is the content document path, book is the title from package
	// metadata (may be empty). nil means "Chapter N".
	FallbackTitle func(index int, name, book string) string
	Archive       archive.Options
}

// Decoder decodes EPUB containers.
type Decoder struct {
	opts   Options
	norm   *normalize.Normalizer
	styles *css.Parser
	log    *zap.Logger
}

// New creates decoder.
func New(opts Options, log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SplitLevel <= 0 {
		opts.SplitLevel = DefaultSplitLevel
	}
	opts.SplitLevel = doctree.ClampLevel(opts.SplitLevel)
	if opts.FallbackTitle == nil {
		opts.FallbackTitle = func(index int, _, _ string) string {
			return fmt.Sprintf("Chapter %d", index)
		}
	}
	return &Decoder{
		opts:   opts,
		norm:   normalize.New(log),
		styles: css.NewParser(log),
		log:    log.Named("epub"),
	}
}

// Decode unpacks EPUB and produces manuscript. Failures to open archive are
// content.ErrorKindCorruptArchive, absent package document or spine is
// content.ErrorKindMissingManifest. Problems with individual content documents are
// warnings.
func (d *Decoder) Decode(ctx context.Context, name string, data []byte) (*content.Manuscript, error) {
	a, err := archive.Open(name, data, d.opts.Archive, d.log)
	if err != nil {
		return nil, err
	}

	opfPath, err := findPackage(a)
	if err != nil {
		return nil, err
	}
	pkg, err := readPackage(a, opfPath)
	if err != nil {
		return nil, err
	}

	m := &content.Manuscript{
		Source:   name,
		Format:   common.InputFmtEpub,
		Title:    pkg.title,
		Language: language.Und,
	}
	if pkg.lang != "" {
		if tag, err := language.Parse(pkg.lang); err == nil {
			m.Language = tag
		} else {
			d.log.Debug("Unable to parse book language, ignoring", zap.String("lang", pkg.lang), zap.Error(err))
		}
	}

	encrypted := readEncryption(a, d.log)
	sheets := make(map[string]*css.Stylesheet)

	for i, ref := range pkg.spine {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item, ok := pkg.manifest[ref]
		if !ok {
			d.log.Warn("Spine references unknown manifest item, skipping", zap.String("idref", ref))
			m.Warn(content.WarningKindUnsupportedPart, ref, "reading order references missing item")
			continue
		}
		if !isHTML(item.mediaType) {
			d.log.Warn("Skipping non HTML spine item", zap.String("href", item.href), zap.String("media-type", item.mediaType))
			m.Warn(content.WarningKindUnsupportedPart, item.href, fmt.Sprintf("content of type %q is not supported", item.mediaType))
			continue
		}
		if encrypted[item.href] {
			d.log.Warn("Skipping encrypted spine item", zap.String("href", item.href))
			m.Warn(content.WarningKindUnsupportedPart, item.href, "content is encrypted")
			continue
		}

		chapters, err := d.decodeItem(a, item, sheets, m)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				d.log.Warn("Spine item is missing from archive, skipping", zap.String("href", item.href))
				m.Warn(content.WarningKindUnsupportedPart, item.href, "content document is missing")
				continue
			}
			return nil, err
		}
		d.log.Debug("Spine item decoded", zap.Int("position", i), zap.String("href", item.href), zap.Int("chapters", len(chapters)))
		m.Chapters = append(m.Chapters, chapters...)
	}
	return m, nil
}

// decodeItem produces chapters of a single content document. Chapters are
// not added to m, it supplies fallback title values and receives warnings
// about the document.
func (d *Decoder) decodeItem(a *archive.Archive, item manifestItem, sheets map[string]*css.Stylesheet, m *content.Manuscript) ([]content.Chapter, error) {
	data, err := a.ReadFile(item.href)
	if err != nil {
		return nil, err
	}
	page, err := normalize.ParsePage(data, item.mediaType)
	if err != nil {
		// html parser only fails on reader errors, which means broken entry
		return nil, content.WrapError(content.ErrorKindCorruptArchive, item.href, err)
	}

	sheet := css.NewStylesheet()
	for _, link := range page.Links {
		target := archive.Resolve(item.href, link)
		if target == "" {
			continue
		}
		linked, ok := sheets[target]
		if !ok {
			if data, err := a.ReadFile(target); err == nil {
				linked = d.styles.Parse(data, target)
			} else {
				d.log.Debug("Unable to read linked stylesheet", zap.String("href", target), zap.Error(err))
			}
			sheets[target] = linked
		}
		sheet.Merge(linked)
	}
	for _, style := range page.Styles {
		sheet.Merge(d.styles.Parse(style, item.href))
	}

	tree, dropped := d.norm.Page(page, sheet)
	resolveImages(a, item.href, tree)
	if len(dropped) > 0 {
		d.log.Warn("Unsupported elements dropped", zap.String("href", item.href), zap.Strings("elements", dropped))
		m.Warn(content.WarningKindUnsupportedPart, item.href, "unsupported elements dropped: "+strings.Join(dropped, ", "))
	}
	if tree.IsEmpty() && page.HasText() {
		d.log.Warn("Content document has text but nothing readable", zap.String("href", item.href))
		m.Warn(content.WarningKindUnsupportedPart, item.href, "document text could not be converted")
	}

	sections := splitSections(tree, d.opts.SplitLevel)
	chapters := make([]content.Chapter, 0, len(sections))
	for _, s := range sections {
		title := s.title
		if !s.headed {
			title = page.Title
			if title == "" {
				title = d.opts.FallbackTitle(len(m.Chapters)+len(chapters)+1, item.href, m.Title)
			}
		}
		chapters = append(chapters, content.NewChapter(title, doctree.Document(s.blocks...)))
	}
	return chapters, nil
}

type section struct {
	title  string
	headed bool
	blocks []*doctree.Node
}

// splitSections splits top level blocks on headings of level up to
// splitLevel. Heading becomes section title and is not part of its body.
// Content before the first heading forms untitled section unless it is
// empty, empty document yields nothing.
func splitSections(tree *doctree.Node, splitLevel int) []section {
	var (
		out []section
		cur = section{}
	)
	flush := func() {
		if cur.headed || !doctree.Document(cur.blocks...).IsEmpty() {
			out = append(out, cur)
		}
	}
	for _, n := range tree.Children {
		if n.Kind == doctree.KindHeading && n.Level <= splitLevel {
			flush()
			cur = section{title: n.PlainText(), headed: true}
			continue
		}
		cur.blocks = append(cur.blocks, n)
	}
	flush()
	return out
}

// resolveImages rewrites image sources to archive paths.
func resolveImages(a *archive.Archive, base string, tree *doctree.Node) {
	tree.Walk(func(n *doctree.Node) bool {
		if n.Kind == doctree.KindImage {
			if target := archive.Resolve(base, n.Src); target != "" && a.Has(target) {
				n.Src = target
			}
		}
		return true
	})
}

func isHTML(mediaType string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(mediaType), ";")
	switch strings.TrimSpace(mt) {
	case "application/xhtml+xml", "text/html", "application/html", "text/x-oeb1-document":
		return true
	}
	return false
}

// findPackage returns path of the package document pointed to by container.
func findPackage(a *archive.Archive) (string, error) {
	doc, err := a.ReadXML(containerPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", content.NewError(content.ErrorKindMissingManifest, containerPath, "container is absent")
		}
		return "", content.WrapError(content.ErrorKindMissingManifest, containerPath, err)
	}

	var first string
	for _, rf := range doc.FindElements("//rootfile") {
		fullPath := strings.TrimSpace(rf.SelectAttrValue("full-path", ""))
		if fullPath == "" {
			continue
		}
		mt := rf.SelectAttrValue("media-type", "")
		if mt == "application/oebps-package+xml" {
			return fullPath, nil
		}
		if first == "" {
			first = fullPath
		}
	}
	if first == "" {
		return "", content.NewError(content.ErrorKindMissingManifest, containerPath, "no package document rootfile")
	}
	return first, nil
}

type manifestItem struct {
	id        string
	href      string // resolved archive path
	mediaType string
}

type packageDoc struct {
	title    string
	lang     string
	manifest map[string]manifestItem
	spine    []string
}

func readPackage(a *archive.Archive, opfPath string) (*packageDoc, error) {
	opfPath = strings.TrimPrefix(path.Clean("/"+opfPath), "/")
	doc, err := a.ReadXML(opfPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, content.NewError(content.ErrorKindMissingManifest, opfPath, "package document is absent")
		}
		return nil, content.WrapError(content.ErrorKindMissingManifest, opfPath, err)
	}

	root := doc.Root()
	if root.Tag != "package" {
		return nil, content.NewError(content.ErrorKindMissingManifest, opfPath, "unexpected root element %q", root.Tag)
	}

	pkg := &packageDoc{manifest: make(map[string]manifestItem)}
	if md := root.SelectElement("metadata"); md != nil {
		pkg.title = elementText(md.SelectElement("title"))
		pkg.lang = elementText(md.SelectElement("language"))
	}

	if mf := root.SelectElement("manifest"); mf != nil {
		for _, el := range mf.SelectElements("item") {
			id := el.SelectAttrValue("id", "")
			href := archive.Resolve(opfPath, el.SelectAttrValue("href", ""))
			if id == "" || href == "" {
				continue
			}
			pkg.manifest[id] = manifestItem{id: id, href: href, mediaType: el.SelectAttrValue("media-type", "")}
		}
	}

	spine := root.SelectElement("spine")
	if spine == nil {
		return nil, content.NewError(content.ErrorKindMissingManifest, opfPath, "package has no spine")
	}
	for _, ref := range spine.SelectElements("itemref") {
		if idref := strings.TrimSpace(ref.SelectAttrValue("idref", "")); idref != "" {
			pkg.spine = append(pkg.spine, idref)
		}
	}
	if len(pkg.spine) == 0 {
		return nil, content.NewError(content.ErrorKindMissingManifest, opfPath, "spine is empty")
	}
	return pkg, nil
}

// Font obfuscation is not encryption of content, such entries are readable.
var obfuscation = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

// readEncryption returns set of archive paths with encrypted content.
func readEncryption(a *archive.Archive, log *zap.Logger) map[string]bool {
	out := make(map[string]bool)
	doc, err := a.ReadXML("META-INF/encryption.xml")
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Debug("Unable to read encryption description, ignoring", zap.Error(err))
		}
		return out
	}
	for _, ed := range doc.FindElements("//EncryptedData") {
		if method := ed.SelectElement("EncryptionMethod"); method != nil && obfuscation[method.SelectAttrValue("Algorithm", "")] {
			continue
		}
		for _, ref := range ed.FindElements(".//CipherReference") {
			if p := archive.Resolve("", ref.SelectAttrValue("URI", "")); p != "" {
				out[p] = true
			}
		}
	}
	return out
}

func elementText(el *etree.Element) string {
	if el == nil {
		return ""
	}
	var b strings.Builder
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			b.WriteString(v.Data)
		case *etree.Element:
			b.WriteString(elementText(v))
		}
	}
	return strings.TrimSpace(doctree.CleanText(b.String()))
}
