package content

import (
	"errors"
	"fmt"
)

// Sentinels to be used with errors.Is.
var (
	ErrCorruptArchive     = errors.New("corrupt archive")
	ErrMissingManifest    = errors.New("missing manifest")
	ErrUnsupportedPart    = errors.New("unsupported part")
	ErrEmptyInput         = errors.New("empty input")
	ErrPersistConflict    = errors.New("chapter number conflict")
	ErrPersistUnavailable = errors.New("persistence unavailable")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrorKindCorruptArchive:
		return ErrCorruptArchive
	case ErrorKindMissingManifest:
		return ErrMissingManifest
	case ErrorKindUnsupportedPart:
		return ErrUnsupportedPart
	case ErrorKindEmptyInput:
		return ErrEmptyInput
	case ErrorKindPersistConflict:
		return ErrPersistConflict
	case ErrorKindPersistUnavailable:
		return ErrPersistUnavailable
	}
	return nil
}

// UserMessage is actionable explanation suitable for showing to authors.
func (k ErrorKind) UserMessage() string {
	switch k {
	case ErrorKindCorruptArchive:
		return "The file could not be opened. Make sure it is a valid EPUB or DOCX file and try exporting it again."
	case ErrorKindMissingManifest:
		return "The file does not contain a readable table of contents. Re-export it from your editor and try again."
	case ErrorKindUnsupportedPart:
		return "Some embedded content is not supported and was skipped."
	case ErrorKindEmptyInput:
		return "There is nothing to import. Paste your text or choose a file with content."
	case ErrorKindPersistConflict:
		return "Chapters were added to this story while importing. Please retry the import."
	case ErrorKindPersistUnavailable:
		return "Chapters could not be saved right now. Your import was not changed, please try again later."
	}
	return "Import failed."
}

// ImportError is the error type returned by decoders and committer.
type ImportError struct {
	Kind ErrorKind
	// part of the input the error is about, if any
	Part string
	Err  error
}

// NewError creates error of the given kind with formatted message.
func NewError(kind ErrorKind, part, format string, args ...any) *ImportError {
	return &ImportError{Kind: kind, Part: part, Err: fmt.Errorf(format, args...)}
}

// WrapError wraps err with kind. nil is returned for nil err.
func WrapError(kind ErrorKind, part string, err error) error {
	if err == nil {
		return nil
	}
	return &ImportError{Kind: kind, Part: part, Err: err}
}

func (e *ImportError) Error() string {
	msg := e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Part != "" {
		msg += " (" + e.Part + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCorruptArchive) and friends work.
func (e *ImportError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf extracts error kind from the chain, 0 when err is not ImportError.
func KindOf(err error) ErrorKind {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return 0
}
