package content

import (
	"msimport/common"
)

// Input is the single source entering the pipeline: bytes of an EPUB or
// DOCX container or pasted text. Construct it with one of the helpers so
// Format always matches the populated field.
type Input struct {
	Format common.InputFmt
	Name   string
	Data   []byte
	Text   string
}

func EpubInput(name string, data []byte) Input {
	return Input{Format: common.InputFmtEpub, Name: name, Data: data}
}

func DocxInput(name string, data []byte) Input {
	return Input{Format: common.InputFmtDocx, Name: name, Data: data}
}

func PasteInput(text string) Input {
	return Input{Format: common.InputFmtPaste, Name: "paste", Text: text}
}

// Size of the input in bytes.
func (in Input) Size() int {
	if in.Format == common.InputFmtPaste {
		return len(in.Text)
	}
	return len(in.Data)
}
