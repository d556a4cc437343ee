package decode

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
)

// DefaultFallbackTitle is used for chapters which have neither heading nor
// document title.
const DefaultFallbackTitle = "Chapter {{ .Index }}"

// TitleValues is a struct that holds variables we make available for
// fallback title template expansion.
type TitleValues struct {
	Index    int    // 1-based position of the chapter in the manuscript
	Document string // archive path of the content document
	Name     string // content document file name without extension
	Source   string // name of the source file
	Format   string
	Book     string // title from source metadata, may be empty
}

// TitleTemplate expands fallback chapter titles.
type TitleTemplate struct {
	tmpl *template.Template
}

// ParseTitleTemplate parses template field, slim-sprig functions are
// available. Empty field means DefaultFallbackTitle.
func ParseTitleTemplate(field string) (*TitleTemplate, error) {
	if strings.TrimSpace(field) == "" {
		field = DefaultFallbackTitle
	}
	funcMap := sprig.FuncMap()

	tmpl, err := template.New("fallback_title").Funcs(funcMap).Parse(field)
	if err != nil {
		return nil, fmt.Errorf("unable to parse fallback title template: %w", err)
	}
	return &TitleTemplate{tmpl: tmpl}, nil
}

// Expand produces title, result is trimmed and never empty.
func (t *TitleTemplate) Expand(values TitleValues) (string, error) {
	if values.Name == "" && values.Document != "" {
		base := path.Base(values.Document)
		values.Name = strings.TrimSuffix(base, path.Ext(base))
	}
	buf := new(bytes.Buffer)
	if err := t.tmpl.Execute(buf, values); err != nil {
		return "", fmt.Errorf("unable to expand fallback title template: %w", err)
	}
	title := strings.Join(strings.Fields(buf.String()), " ")
	if title == "" {
		return "", fmt.Errorf("fallback title template produced empty title for chapter %d", values.Index)
	}
	return title, nil
}
