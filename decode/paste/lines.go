package paste

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type pieceKind int

const (
	// text, inline tags, comments
	pieceInline pieceKind = iota
	// line feed or <br>
	pieceBreak
	// block element start, also self-closing block element
	pieceOpen
	// block element end
	pieceClose
)

// piece is a token of pasted markup with its position in the source.
type piece struct {
	kind       pieceKind
	start, end int
	name       atom.Atom
	text       string
	media      bool
}

func (p piece) separator() bool {
	return p.kind != pieceInline
}

// line is a run of inline pieces between separators, pieces [first, last)
// and source bytes [start, end). Empty line has start == end.
type line struct {
	first, last int
	start, end  int
	text        string
	media       bool
}

func (l line) blank() bool {
	return !l.media && strings.TrimSpace(l.text) == ""
}

// blockAtoms start a new line as the browser would when rendering.
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Ul: true, atom.Ol: true,
	atom.Li: true, atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Blockquote: true,
	atom.Pre: true, atom.Hr: true, atom.Table: true, atom.Thead: true, atom.Tbody: true,
	atom.Tfoot: true, atom.Tr: true, atom.Td: true, atom.Th: true, atom.Caption: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Aside: true, atom.Nav: true, atom.Main: true, atom.Figure: true,
	atom.Figcaption: true, atom.Address: true, atom.Center: true, atom.Details: true,
	atom.Summary: true, atom.Html: true, atom.Head: true, atom.Body: true,
}

// hiddenAtoms hold no visible text, nothing inside them forms a line.
var hiddenAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Title: true, atom.Template: true,
	atom.Noscript: true, atom.Textarea: true, atom.Select: true, atom.Iframe: true,
}

// scan splits markup into pieces covering the whole source.
func scan(raw string) []piece {
	var (
		out  []piece
		pos  int
		skip atom.Atom
	)
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		start := pos
		pos += len(z.Raw())

		switch tt {
		case html.TextToken:
			if skip == 0 {
				out = appendText(out, raw[start:pos], start)
				continue
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			p := piece{start: start, end: pos, name: atom.Lookup(name)}
			switch {
			case skip != 0:
				if tt == html.EndTagToken && p.name == skip {
					skip = 0
				}
			case p.name == atom.Br:
				p.kind = pieceBreak
			case p.name == atom.Img:
				p.media = true
			case blockAtoms[p.name]:
				p.kind = pieceOpen
				if tt == html.EndTagToken {
					p.kind = pieceClose
				}
			case tt == html.StartTagToken && hiddenAtoms[p.name]:
				skip = p.name
			}
			out = append(out, p)
			continue
		}
		out = append(out, piece{start: start, end: pos})
	}
	if pos < len(raw) {
		// unfinished tag, the parser drops it as well
		out = append(out, piece{start: pos, end: len(raw)})
	}
	return out
}

// appendText adds text token, every line feed in it becomes a break.
func appendText(out []piece, s string, offset int) []piece {
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		if i > 0 {
			out = append(out, piece{start: offset, end: offset + i, text: html.UnescapeString(s[:i])})
		}
		out = append(out, piece{kind: pieceBreak, start: offset + i, end: offset + i + 1})
		s, offset = s[i+1:], offset+i+1
	}
	if s != "" {
		out = append(out, piece{start: offset, end: offset + len(s), text: html.UnescapeString(s)})
	}
	return out
}

// splitLines groups pieces into lines. Indexes of returned lines refer to
// pieces.
func splitLines(pieces []piece) []line {
	var (
		lines []line
		b     strings.Builder
		cur   = line{start: -1}
	)
	closeLine := func(i, at int) {
		cur.last = i
		if cur.start < 0 {
			cur.start, cur.end = at, at
		}
		cur.text = b.String()
		lines = append(lines, cur)
		b.Reset()
		cur = line{first: i + 1, start: -1}
	}
	for i, p := range pieces {
		if p.separator() {
			closeLine(i, p.start)
			continue
		}
		if cur.start < 0 {
			cur.start = p.start
		}
		cur.end = p.end
		cur.media = cur.media || p.media
		b.WriteString(p.text)
	}
	at := 0
	if len(pieces) > 0 {
		at = pieces[len(pieces)-1].end
	}
	closeLine(len(pieces), at)
	return lines
}

// cut extends marker line [lo, hi) over block elements wrapping nothing but
// the marker, so <p>marker</p> leaves no empty paragraph behind.
func cut(pieces []piece, lo, hi int) (int, int) {
	for lo > 0 && hi < len(pieces) &&
		pieces[lo-1].kind == pieceOpen && pieces[hi].kind == pieceClose &&
		pieces[lo-1].name == pieces[hi].name {
		lo--
		hi++
	}
	return lo, hi
}

func hasBlocks(pieces []piece) bool {
	for _, p := range pieces {
		if p.kind == pieceOpen || p.kind == pieceClose {
			return true
		}
	}
	return false
}

// paragraphs wraps runs of non-blank lines into paragraphs, skipping line
// with the given index.
func paragraphs(raw string, lines []line, skip int) string {
	var (
		b          strings.Builder
		start, end = -1, -1
	)
	flush := func() {
		if start >= 0 {
			b.WriteString("<p>")
			b.WriteString(raw[start:end])
			b.WriteString("</p>")
		}
		start = -1
	}
	for i, l := range lines {
		if i == skip || l.blank() {
			flush()
			continue
		}
		if start < 0 {
			start = l.start
		}
		end = l.end
	}
	flush()
	return b.String()
}
