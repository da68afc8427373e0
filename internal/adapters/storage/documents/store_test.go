package documents

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"scheda.pdf", "scheda.pdf"},
		{"My cool file.pdf", "My_cool_file.pdf"},
		{"../../etc/passwd", "etc_passwd"},
		{`C:\Users\anna\scheda.pdf`, "C_Users_anna_scheda.pdf"},
		{"perché.pdf", "perche.pdf"},
		{".hidden", "hidden"},
		{"../", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SecureFilename(tt.in); got != tt.want {
			t.Errorf("SecureFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirStore_SaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDirStore(dir)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	ctx := context.Background()

	name, err := s.Save(ctx, "m-1", "scheda allenamento.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if name != "m-1_scheda_allenamento.pdf" {
		t.Errorf("name = %q", name)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	rc, err := s.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF" {
		t.Errorf("content = %q", body)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir holds %d entries, want only the document", len(entries))
	}
}

func TestDirStore_Errors(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	ctx := context.Background()

	if _, err := s.Save(ctx, "m-1", "///", strings.NewReader("x")); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Save with empty name = %v", err)
	}
	for _, name := range []string{"missing.pdf", "../secret", ".upload-123", ""} {
		if _, err := s.Open(ctx, name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) = %v, want ErrNotFound", name, err)
		}
	}
}
