// Package common keeps enums shared between configuration and processing
// code so that config does not have to import decoders.
package common

// Kind of manuscript source.
// ENUM(epub, docx, paste)
type InputFmt int

// Ext returns canonical file extension for the source kind.
func (f InputFmt) Ext() string {
	switch f {
	case InputFmtEpub:
		return ".epub"
	case InputFmtDocx:
		return ".docx"
	case InputFmtPaste:
		return ".txt"
	default:
		// this should never happen
		panic("unsupported input format")
	}
}

// IsArchive reports whether the source is a zip container.
func (f InputFmt) IsArchive() bool {
	return f == InputFmtEpub || f == InputFmtDocx
}

// Lifecycle of an import session.
// ENUM(empty, parsed, edited, committing, committed, abandoned)
type SessionState int

// Editable reports whether chapters may be changed in this state.
func (s SessionState) Editable() bool {
	return s == SessionStateParsed || s == SessionStateEdited
}
