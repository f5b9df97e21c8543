// Package loader reads stored uploads back as plain text for vectorization.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// textExtensions are read as-is.
var textExtensions = []string{".txt", ".md", ".markdown"}

// Loader implements ports.DocumentLoader over an upload directory.
// Plain text is read directly; binary formats go through a DocumentParser.
type Loader struct {
	dir     string
	parsers map[string]ports.DocumentParser
}

// NewLoader creates a Loader rooted at dir. Each parser is registered for the
// formats it reports.
func NewLoader(dir string, parsers ...ports.DocumentParser) *Loader {
	l := &Loader{dir: dir, parsers: make(map[string]ports.DocumentParser)}
	for _, p := range parsers {
		for _, format := range p.SupportedFormats() {
			l.parsers["."+strings.ToLower(strings.TrimPrefix(format, "."))] = p
		}
	}
	return l
}

// Load returns the text of fileName. Only the base name is used, so a path
// can never escape the upload directory.
func (l *Loader) Load(ctx context.Context, fileName string) (string, error) {
	name := filepath.Base(fileName)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", errs.InvalidInput("invalid file name: " + fileName)
	}
	ext := strings.ToLower(filepath.Ext(name))

	parser, binary := l.parsers[ext]
	if !binary && !isText(ext) {
		return "", errs.InvalidInput("unsupported file type: " + ext)
	}

	data, err := os.ReadFile(filepath.Join(l.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.NotFound("upload not found: " + name)
		}
		return "", errors.Wrapf(err, "reading upload %s", name)
	}

	if !binary {
		return string(data), nil
	}
	text, err := parser.Parse(ctx, data, name)
	if err != nil {
		return "", err
	}
	return cleanExtracted(text), nil
}

// SupportedExtensions returns every extension Load accepts, sorted.
func (l *Loader) SupportedExtensions() []string {
	exts := append([]string(nil), textExtensions...)
	for ext := range l.parsers {
		if !isText(ext) {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

func isText(ext string) bool {
	for _, e := range textExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// cleanExtracted drops control characters that PDF extraction tends to leave
// behind, keeping printable text and line structure.
func cleanExtracted(content string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || (r != unicode.ReplacementChar && unicode.IsPrint(r)) {
			cleaned.WriteRune(r)
		}
	}
	return strings.TrimSpace(cleaned.String())
}
