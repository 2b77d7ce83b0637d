// Package intake validates the single document a user selects for submission.
package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

const (
	MediaTypePDF  = "application/pdf"
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"

	// MaxFileBytes bounds a single upload held in memory.
	MaxFileBytes = 32 << 20

	maxFilenameRunes = 200

	// signatureWindow is how far into the file a signature may start when
	// the extension has to break a tie.
	signatureWindow = 1024
)

var (
	ErrMultipleFiles   = errors.New("only one file may be selected")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds upload limit")
)

var acceptedTypes = map[string]bool{
	MediaTypePDF:  true,
	MediaTypePNG:  true,
	MediaTypeJPEG: true,
}

var typeByExtension = map[string]string{
	".pdf":  MediaTypePDF,
	".png":  MediaTypePNG,
	".jpg":  MediaTypeJPEG,
	".jpeg": MediaTypeJPEG,
}

var signatures = map[string][]byte{
	MediaTypePDF:  []byte("%PDF-"),
	MediaTypePNG:  []byte("\x89PNG\r\n\x1a\n"),
	MediaTypeJPEG: []byte("\xff\xd8\xff"),
}

// Candidate is a file the user offered for upload.
type Candidate struct {
	Filename string
	Data     []byte
}

// Artifact is an accepted file ready to be sent to the Job API.
type Artifact struct {
	Filename     string `json:"filename"`
	MediaType    string `json:"media_type"`
	Size         int    `json:"size"`
	PageEstimate int    `json:"page_estimate"`
	Data         []byte `json:"-"`
}

// Accept validates candidates. No candidates yields (nil, nil): nothing is
// selected and the caller decides what to send instead.
func Accept(candidates []Candidate) (*Artifact, error) {
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, ErrMultipleFiles
	}

	c := candidates[0]
	if len(c.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(c.Data) > MaxFileBytes {
		return nil, ErrFileTooLarge
	}

	mediaType := DetectMediaType(c.Data)
	if isGeneric(mediaType) {
		mediaType = breakTie(mediaType, c.Filename, c.Data)
	}
	if !acceptedTypes[mediaType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}

	name := sanitizeFilename(c.Filename)
	if name == "" {
		name = "upload" + defaultExtension(mediaType)
	}

	return &Artifact{
		Filename:     name,
		MediaType:    mediaType,
		Size:         len(c.Data),
		PageEstimate: estimatePages(mediaType, c.Data),
		Data:         c.Data,
	}, nil
}

// OpenFile reads filename into a candidate.
func OpenFile(filename string) (Candidate, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Candidate{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileBytes+1))
	if err != nil {
		return Candidate{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxFileBytes {
		return Candidate{}, ErrFileTooLarge
	}
	return Candidate{Filename: filepath.Base(filename), Data: data}, nil
}

// DetectMediaType sniffs the content type from the leading bytes.
func DetectMediaType(data []byte) string {
	return http.DetectContentType(data)
}

func isGeneric(mediaType string) bool {
	return mediaType == "application/octet-stream" || strings.HasPrefix(mediaType, "text/plain")
}

// breakTie lets the filename extension decide when sniffing found no
// signature at offset zero. The extension's signature must still appear
// within the first signatureWindow bytes, as it does for files with a
// leading byte-order mark or padding.
func breakTie(sniffed, filename string, data []byte) string {
	want, ok := typeByExtension[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return sniffed
	}
	head := data
	if len(head) > signatureWindow {
		head = head[:signatureWindow]
	}
	if !bytes.Contains(head, signatures[want]) {
		return sniffed
	}
	return want
}

func estimatePages(mediaType string, data []byte) int {
	if mediaType != MediaTypePDF {
		return 1
	}
	n, err := countPDFPages(data)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func countPDFPages(data []byte) (n int, err error) {
	// The pdf reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

// sanitizeFilename strips any directory part, including Windows separators,
// and replaces characters outside a conservative set with '_'.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if runes := []rune(cleaned); len(runes) > maxFilenameRunes {
		cleaned = string(runes[:maxFilenameRunes])
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

func defaultExtension(mediaType string) string {
	switch mediaType {
	case MediaTypePDF:
		return ".pdf"
	case MediaTypePNG:
		return ".png"
	default:
		return ".jpg"
	}
}
