// Package extract turns uploaded files and web pages into plain text ready
// for chunking.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragbot/core"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var (
	// ErrUnsupportedType is returned for file extensions that cannot be read.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrFetchFailed is returned when a URL cannot be downloaded.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrNoText is returned when a document yields no text at all.
	ErrNoText = fmt.Errorf("%w: %w: no text could be extracted", core.ErrValidation, core.ErrEmptyContent)
)

// SupportedExtensions lists the file extensions File understands.
var SupportedExtensions = []string{".txt", ".md", ".markdown", ".html", ".htm", ".pdf"}

// IsSupported reports whether name has a readable extension.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Document is the text of a file together with its type.
type Document struct {
	Text     string
	FileType string // Extension including the dot, e.g. ".pdf"
}

// File reads and extracts the file at path.
func File(path string) (Document, error) {
	if !IsSupported(path) {
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Bytes(filepath.Base(path), data)
}

// Bytes extracts text from data, choosing the parser from name's extension.
func Bytes(name string, data []byte) (Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = PDF(data)
	case ".html", ".htm":
		text, err = HTML(bytes.NewReader([]byte(Text(data))))
	case ".txt", ".md", ".markdown":
		text = Text(data)
	default:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	if err != nil {
		return Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Document{}, ErrNoText
	}
	return Document{Text: text, FileType: ext}, nil
}

// Text decodes data as UTF-8, falling back to GBK and then Latin-1.
func Text(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	if decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data); err == nil &&
		!bytes.ContainsRune(decoded, utf8.RuneError) {
		return string(decoded)
	}
	// Latin-1 maps every byte, so it cannot fail.
	decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(decoded)
}
