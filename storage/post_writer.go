package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"affiliate-poster/models"
)

// MarkdownWriter writes posts as files under a fixed directory.
type MarkdownWriter struct {
	dir string
}

// NewMarkdownWriter creates the output directory if needed.
func NewMarkdownWriter(dir string) (*MarkdownWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("posts: create output dir: %w", err)
	}
	return &MarkdownWriter{dir: dir}, nil
}

// Dir returns the output directory.
func (w *MarkdownWriter) Dir() string { return w.dir }

// Write creates dir/post.FileName exclusively. An existing file is never
// overwritten; ErrPostExists is returned instead.
func (w *MarkdownWriter) Write(post *models.Post) (string, error) {
	if err := CheckFileName(post.FileName); err != nil {
		return "", err
	}
	path := filepath.Join(w.dir, post.FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) {
		return path, fmt.Errorf("%w: %s", ErrPostExists, path)
	}
	if err != nil {
		return "", fmt.Errorf("posts: create %q: %w", path, err)
	}

	if _, err := f.WriteString(post.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("posts: write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("posts: close %q: %w", path, err)
	}
	return path, nil
}

// CheckFileName rejects names that would not land directly in the output
// directory.
func CheckFileName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return nil
}

// Exists reports whether fileName is already present in the output directory.
func (w *MarkdownWriter) Exists(fileName string) bool {
	_, err := os.Stat(filepath.Join(w.dir, fileName))
	return err == nil
}
