package decode

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"

	"msimport/common"
	"msimport/content"
)

// Detect determines kind of the source from its content, falling back to
// file name extension. Valid UTF-8 data which is not a zip archive is
// treated as pasted text.
func Detect(name string, data []byte) (common.InputFmt, error) {
	kind, err := filetype.Match(data)
	if err == nil {
		switch kind.Extension {
		case "epub":
			return common.InputFmtEpub, nil
		case "docx":
			return common.InputFmtDocx, nil
		}
	}
	// generic zip, or container recognized as something else by its first
	// entry
	if f, ok := inspectZip(data); ok {
		return f, nil
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".epub":
		return common.InputFmtEpub, nil
	case ".docx", ".docm", ".dotx":
		return common.InputFmtDocx, nil
	}

	if filetype.Is(data, "zip") {
		return 0, content.NewError(content.ErrorKindCorruptArchive, name, "archive is neither EPUB nor DOCX")
	}
	if utf8.Valid(data) {
		return common.InputFmtPaste, nil
	}
	return 0, content.NewError(content.ErrorKindCorruptArchive, name, "unrecognized input format")
}

// inspectZip looks for well known container entries.
func inspectZip(data []byte) (common.InputFmt, bool) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, false
	}
	var docx bool
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if name == "meta-inf/container.xml" {
			return common.InputFmtEpub, true
		}
		if strings.HasPrefix(name, "word/") && strings.HasSuffix(name, ".xml") {
			docx = true
		}
	}
	if docx {
		return common.InputFmtDocx, true
	}
	return 0, false
}

// NewInput wraps source data into pipeline input of detected kind.
func NewInput(name string, data []byte) (content.Input, error) {
	f, err := Detect(name, data)
	if err != nil {
		return content.Input{}, err
	}
	switch f {
	case common.InputFmtEpub:
		return content.EpubInput(name, data), nil
	case common.InputFmtDocx:
		return content.DocxInput(name, data), nil
	}
	in := content.PasteInput(string(data))
	if name != "" {
		in.Name = name
	}
	return in, nil
}
