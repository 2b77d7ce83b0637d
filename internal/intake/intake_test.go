package intake

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

func TestAccept_NoCandidates(t *testing.T) {
	art, err := Accept(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art != nil {
		t.Fatalf("artifact = %+v, want nil", art)
	}
}

func TestAccept_MultipleRejected(t *testing.T) {
	_, err := Accept([]Candidate{
		{Filename: "a.png", Data: pngHeader},
		{Filename: "b.png", Data: pngHeader},
	})
	if !errors.Is(err, ErrMultipleFiles) {
		t.Fatalf("err = %v, want ErrMultipleFiles", err)
	}
}

func TestAccept_MediaTypes(t *testing.T) {
	pdfData, err := os.ReadFile(filepath.Join("testdata", "two_pages.pdf"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	tests := []struct {
		name      string
		candidate Candidate
		wantType  string
		wantErr   error
	}{
		{"pdf", Candidate{Filename: "resume.pdf", Data: pdfData}, MediaTypePDF, nil},
		{"png", Candidate{Filename: "scan.png", Data: pngHeader}, MediaTypePNG, nil},
		{"jpeg", Candidate{Filename: "photo.jpg", Data: jpegHeader}, MediaTypeJPEG, nil},
		{"text", Candidate{Filename: "notes.txt", Data: []byte("hello world")}, "", ErrUnsupportedType},
		{"gif", Candidate{Filename: "anim.gif", Data: []byte("GIF89a......")}, "", ErrUnsupportedType},
		{"pdf extension with text body", Candidate{Filename: "fake.pdf", Data: []byte("not a pdf")}, "", ErrUnsupportedType},
		{"empty", Candidate{Filename: "empty.pdf"}, "", ErrEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := Accept([]Candidate{tt.candidate})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if art.MediaType != tt.wantType {
				t.Errorf("media type = %q, want %q", art.MediaType, tt.wantType)
			}
			if art.Filename != tt.candidate.Filename {
				t.Errorf("filename = %q, want %q", art.Filename, tt.candidate.Filename)
			}
		})
	}
}

func TestAccept_ExtensionBreaksTie(t *testing.T) {
	padded := append([]byte("\x00\x00\x00\x00"), []byte("%PDF-1.4\n%%EOF")...)

	tests := []struct {
		name      string
		candidate Candidate
		wantType  string
		wantErr   error
	}{
		{"binary padding before pdf header", Candidate{Filename: "scan.PDF", Data: padded}, MediaTypePDF, nil},
		{"blank line before pdf header", Candidate{Filename: "scan.pdf", Data: []byte("\r\n%PDF-1.4\n%%EOF")}, MediaTypePDF, nil},
		{"padded png", Candidate{Filename: "scan.png", Data: append([]byte{0, 0}, pngHeader...)}, MediaTypePNG, nil},
		{"padded jpeg", Candidate{Filename: "photo.jpeg", Data: append([]byte{0, 0}, jpegHeader...)}, MediaTypeJPEG, nil},
		{"extension without signature", Candidate{Filename: "blob.pdf", Data: []byte{0, 1, 2, 3, 4}}, "", ErrUnsupportedType},
		{"signature of another type", Candidate{Filename: "scan.png", Data: padded}, "", ErrUnsupportedType},
		{"no extension", Candidate{Filename: "scan", Data: padded}, "", ErrUnsupportedType},
		{"signature past window", Candidate{Filename: "scan.pdf", Data: append(make([]byte, signatureWindow), []byte("%PDF-1.4")...)}, "", ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := Accept([]Candidate{tt.candidate})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if art.MediaType != tt.wantType {
				t.Errorf("media type = %q, want %q", art.MediaType, tt.wantType)
			}
		})
	}
}

func TestAccept_PDFPageEstimate(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "two_pages.pdf"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	art, err := Accept([]Candidate{{Filename: "two_pages.pdf", Data: data}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art.PageEstimate != 2 {
		t.Errorf("page estimate = %d, want 2", art.PageEstimate)
	}
}

func TestAccept_MalformedPDFFallsBackToOnePage(t *testing.T) {
	art, err := Accept([]Candidate{{Filename: "broken.pdf", Data: []byte("%PDF-1.4\ngarbage")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art.PageEstimate != 1 {
		t.Errorf("page estimate = %d, want 1", art.PageEstimate)
	}
}

func TestAccept_StripsDirectory(t *testing.T) {
	art, err := Accept([]Candidate{{Filename: "../../etc/scan.png", Data: pngHeader}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if art.Filename != "scan.png" {
		t.Errorf("filename = %q, want scan.png", art.Filename)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(path, pngHeader, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if c.Filename != "scan.png" || len(c.Data) != len(pngHeader) {
		t.Errorf("candidate = %q (%d bytes)", c.Filename, len(c.Data))
	}

	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"resume.pdf", "resume.pdf"},
		{`C:\Users\ada\Desktop\scan (1).png`, "scan (1).png"},
		{"../../etc/passwd.pdf", "passwd.pdf"},
		{"report\x00\x07.pdf", "report.pdf"},
		{`inv"oice;rm.pdf`, "inv_oice_rm.pdf"},
		{"résumé.pdf", "résumé.pdf"},
		{"..", ""},
		{"", ""},
		{strings.Repeat("a", 300) + ".pdf", strings.Repeat("a", 200)},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAccept_UnnamedUpload(t *testing.T) {
	art, err := Accept([]Candidate{{Filename: "", Data: pngHeader}})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if art.Filename != "upload.png" {
		t.Errorf("filename = %q, want upload.png", art.Filename)
	}
}
