package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ErrOCRUnavailable means no OCR engine is installed.
var ErrOCRUnavailable = errors.New("ocr unavailable")

// OCRRunner recognizes text in an image.
type OCRRunner interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// TesseractRunner shells out to the tesseract binary, feeding the image on
// stdin and reading text from stdout.
type TesseractRunner struct {
	Binary    string
	Languages string

	once sync.Once
	path string
	err  error
}

// NewTesseractRunner creates a runner for binary (looked up on PATH) with
// languages such as "deu+eng".
func NewTesseractRunner(binary, languages string) *TesseractRunner {
	if binary == "" {
		binary = "tesseract"
	}
	return &TesseractRunner{Binary: binary, Languages: languages}
}

// Available reports whether the binary can be found.
func (t *TesseractRunner) Available() bool {
	_, err := t.resolve()
	return err == nil
}

func (t *TesseractRunner) resolve() (string, error) {
	t.once.Do(func() {
		t.path, t.err = exec.LookPath(t.Binary)
		if t.err != nil {
			t.err = fmt.Errorf("%w: %v", ErrOCRUnavailable, t.err)
		}
	})
	return t.path, t.err
}

// Recognize runs tesseract on image.
func (t *TesseractRunner) Recognize(ctx context.Context, image []byte) (string, error) {
	path, err := t.resolve()
	if err != nil {
		return "", err
	}

	args := []string{"stdin", "stdout"}
	if t.Languages != "" {
		args = append(args, "-l", t.Languages)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(image)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return cleanOCR(stdout.String()), nil
}

// cleanOCR drops empty lines and trims each remaining line.
func cleanOCR(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
