package imaging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestTesseractRunner_MissingBinary(t *testing.T) {
	r := NewTesseractRunner("definitely-not-tesseract-binary", "deu")
	if r.Available() {
		t.Fatal("Available() = true for missing binary")
	}
	if _, err := r.Recognize(context.Background(), []byte("img")); !errors.Is(err, ErrOCRUnavailable) {
		t.Errorf("Recognize() error = %v, want ErrOCRUnavailable", err)
	}
}

func TestTesseractRunner_Recognize(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-tesseract")
	body := "#!/bin/sh\ncat > /dev/null\nprintf '  JAZZ   NIGHT \\n\\n14.03.2026 20:00 Uhr\\n'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	r := NewTesseractRunner(script, "deu+eng")
	text, err := r.Recognize(context.Background(), []byte("image bytes"))
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if want := "JAZZ NIGHT\n14.03.2026 20:00 Uhr"; text != want {
		t.Errorf("Recognize() = %q, want %q", text, want)
	}
}

func TestTesseractRunner_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}

	script := filepath.Join(t.TempDir(), "broken-tesseract")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'Error in pixReadStream' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := NewTesseractRunner(script, "").Recognize(context.Background(), []byte("x"))
	if err == nil || errors.Is(err, ErrOCRUnavailable) {
		t.Errorf("Recognize() error = %v, want execution failure", err)
	}
}
