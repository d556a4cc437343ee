// Package text provides sentence level helpers used to build chapter
// previews.
package text

import (
	"iter"
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultExcerptRunes limits preview excerpt length.
const DefaultExcerptRunes = 160

// Splitter splits text into sentences. nil Splitter is valid and treats the
// whole input as a single sentence.
type Splitter struct {
	*sentences.DefaultSentenceTokenizer
}

// NewSplitter returns splitter for the language. Only English punctuation
// model is bundled with the tokenizer module, it is used for undetermined
// language too. For other languages nil is returned and callers fall back
// to simple splitting.
func NewSplitter(lang language.Tag, log *zap.Logger) *Splitter {
	base, confidence := lang.Base()
	if lang != language.Und && (confidence == language.No || base.String() != "en") {
		log.Debug("No sentence tokenizer model for language, using simple splitting",
			zap.Stringer("language", lang), zap.String("name", display.English.Languages().Name(lang)))
		return nil
	}

	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		log.Warn("Unable to load sentences tokenizer data", zap.Stringer("tag", lang), zap.Error(err))
		return nil
	}
	return &Splitter{tokenizer}
}

// Sentences returns an iterator over sentences. Leading white space the
// tokenizer attaches to the next sentence is moved back to the previous one.
func (s *Splitter) Sentences(in string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if s == nil {
			for _, sentence := range simpleSplit(in) {
				if !yield(sentence) {
					return
				}
			}
			return
		}

		tokens := s.Tokenize(in)
		for i := 0; i < len(tokens); i++ {
			text := tokens[i].Text
			if i+1 < len(tokens) {
				next := tokens[i+1].Text
				for idx, sym := range next {
					if !unicode.IsSpace(sym) {
						text += next[:idx]
						tokens[i+1].Text = next[idx:]
						break
					}
				}
			}
			if !yield(text) {
				return
			}
		}
	}
}

// simpleSplit cuts after sentence terminators followed by space.
func simpleSplit(in string) []string {
	var (
		out   []string
		start int
		runes = []rune(in)
	)
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(".!?…", runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && strings.ContainsRune(".!?…\"'»”)", runes[j]) {
			j++
		}
		if j < len(runes) && unicode.IsSpace(runes[j]) {
			out = append(out, string(runes[start:j]))
			start, i = j, j
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// Excerpt returns the first sentence of the text limited to maxRunes, an
// ellipsis marks truncation. maxRunes <= 0 selects DefaultExcerptRunes.
func (s *Splitter) Excerpt(in string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultExcerptRunes
	}
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}

	var first string
	for sentence := range s.Sentences(in) {
		first = strings.TrimSpace(sentence)
		if first != "" {
			break
		}
	}

	runes := []rune(first)
	if len(runes) <= maxRunes {
		return first
	}
	cut := strings.TrimRightFunc(string(runes[:maxRunes]), unicode.IsSpace)
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
