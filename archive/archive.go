// Package archive gives read access to zip containers (EPUB, DOCX) held in
// memory. Entries with unsafe paths and entries larger than the configured
// limit make the whole archive unusable.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/beevik/etree"
	"github.com/maruel/natural"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"msimport/content"
)

// DefaultMaxPartSize limits uncompressed size of a single archive entry.
const DefaultMaxPartSize = 64 << 20

// Archive is a zip container opened from memory.
type Archive struct {
	name    string
	files   map[string]*zip.File
	folded  map[string]*zip.File
	names   []string
	maxSize uint64
	log     *zap.Logger
}

// Options controls archive access.
type Options struct {
	// MaxPartSize limits uncompressed size of any entry, 0 means
	// DefaultMaxPartSize.
	MaxPartSize uint64
	// CodePage is used to decode entry names not marked as UTF-8, nil keeps
	// names as is.
	CodePage encoding.Encoding
}

// Open reads zip directory from data. name identifies the archive in errors
// and logs. Any problem with archive structure is reported as
// content.ErrorKindCorruptArchive.
func Open(name string, data []byte, opts Options, log *zap.Logger) (*Archive, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, content.WrapError(content.ErrorKindCorruptArchive, name, err)
	}

	a := &Archive{
		name:    name,
		files:   make(map[string]*zip.File, len(r.File)),
		folded:  make(map[string]*zip.File, len(r.File)),
		maxSize: opts.MaxPartSize,
		log:     log.Named("archive"),
	}
	if a.maxSize == 0 {
		a.maxSize = DefaultMaxPartSize
	}

	for _, f := range r.File {
		entry := f.Name
		if opts.CodePage != nil && f.NonUTF8 {
			// zip "standard" does not define file name encoding, old
			// archives may need archaic code page
			if n, err := opts.CodePage.NewDecoder().String(entry); err == nil {
				entry = n
			} else {
				cp, _ := ianaindex.IANA.Name(opts.CodePage)
				a.log.Warn("Unable to convert archive name from specified encoding",
					zap.String("charset", cp), zap.String("path", entry), zap.Error(err))
			}
		}
		if !isSafePath(entry) {
			return nil, content.NewError(content.ErrorKindCorruptArchive, entry, "unsafe path (absolute or contains path traversal)")
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if f.UncompressedSize64 > a.maxSize {
			return nil, content.NewError(content.ErrorKindCorruptArchive, entry, "entry size %d exceeds limit %d", f.UncompressedSize64, a.maxSize)
		}
		entry = strings.TrimPrefix(entry, "./")
		if _, dup := a.files[entry]; dup {
			a.log.Warn("Duplicate archive entry, using first one", zap.String("archive", name), zap.String("path", entry))
			continue
		}
		a.files[entry] = f
		if _, ok := a.folded[strings.ToLower(entry)]; !ok {
			a.folded[strings.ToLower(entry)] = f
		}
		a.names = append(a.names, entry)
	}
	slices.SortFunc(a.names, func(x, y string) int {
		switch {
		case natural.Less(x, y):
			return -1
		case natural.Less(y, x):
			return 1
		}
		return 0
	})

	a.log.Debug("Archive opened", zap.String("archive", name), zap.Int("entries", len(a.names)))
	return a, nil
}

// Name returns name archive was opened with.
func (a *Archive) Name() string {
	return a.name
}

// Names lists all file entries in natural order.
func (a *Archive) Names() []string {
	return slices.Clone(a.names)
}

// Has reports whether the entry exists (see Lookup for matching rules).
func (a *Archive) Has(name string) bool {
	_, ok := a.Lookup(name)
	return ok
}

// Lookup finds entry by its full path. Producers are sloppy with letter
// case, so exact match is preferred and case-insensitive match is accepted.
func (a *Archive) Lookup(name string) (*zip.File, bool) {
	name = strings.TrimPrefix(name, "/")
	if f, ok := a.files[name]; ok {
		return f, true
	}
	f, ok := a.folded[strings.ToLower(name)]
	return f, ok
}

// ReadFile returns content of the entry. Missing entry error matches
// fs.ErrNotExist, unreadable entry is content.ErrorKindCorruptArchive.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f, ok := a.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", a.name, name, fs.ErrNotExist)
	}
	r, err := f.Open()
	if err != nil {
		return nil, content.WrapError(content.ErrorKindCorruptArchive, name, err)
	}
	defer r.Close()

	// declared size was checked already, do not trust it while reading
	data, err := io.ReadAll(io.LimitReader(r, int64(a.maxSize)+1))
	if err != nil {
		return nil, content.WrapError(content.ErrorKindCorruptArchive, name, err)
	}
	if uint64(len(data)) > a.maxSize {
		return nil, content.NewError(content.ErrorKindCorruptArchive, name, "entry exceeds size limit %d", a.maxSize)
	}
	return data, nil
}

// WalkFunc is the type of the function called for each file in archive
// visited by Walk. If an error is returned, processing stops.
type WalkFunc func(name string, file *zip.File) error

// Walk visits, in natural order, all files whose path starts with prefix.
func (a *Archive) Walk(prefix string, walkFn WalkFunc) error {
	for _, name := range a.names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := walkFn(name, a.files[name]); err != nil {
			return err
		}
	}
	return nil
}

// Resolve resolves href found in document base against base's directory.
// Fragment and query are dropped, escapes are decoded and absolute hrefs are
// taken from archive root. Empty string is returned for external references
// and for hrefs escaping archive root.
func Resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		// not a valid URL, take it literally
		u = &url.URL{Path: href}
	}
	if u.Scheme != "" || u.Host != "" {
		return ""
	}
	p := u.Path
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = path.Join(path.Dir(base), p)
		if p == ".." || strings.HasPrefix(p, "../") {
			return ""
		}
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" || !isSafePath(p) {
		return ""
	}
	return p
}

// isSafePath returns false for paths that could escape the archive root:
// absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) || (len(name) > 1 && name[1] == ':') {
		return false
	}
	for part := range strings.SplitSeq(strings.ReplaceAll(name, `\`, "/"), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// ReadXML reads and parses XML entry. Declared non UTF-8 encodings are
// honored.
func (a *Archive) ReadXML(name string) (*etree.Document, error) {
	data, err := a.ReadFile(name)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		ValidateInput: false,
		Permissive:    true,
	}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, content.WrapError(content.ErrorKindCorruptArchive, name, err)
	}
	if doc.Root() == nil {
		return nil, content.NewError(content.ErrorKindCorruptArchive, name, "no root element")
	}
	return doc, nil
}
