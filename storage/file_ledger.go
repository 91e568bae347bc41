package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"affiliate-poster/models"
)

// FileLedger stores posted ids as newline-delimited text. The file is only
// ever appended to.
type FileLedger struct {
	mu   sync.Mutex
	path string
	seen map[string]struct{}
}

// NewFileLedger opens the ledger at path. A missing file is an empty ledger;
// intermediate directories are created on first Record.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Load reads every non-blank line. Repeated lines (from older runs that
// appended without checking) are returned once.
func (l *FileLedger) Load(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *FileLedger) load() ([]string, error) {
	l.seen = make(map[string]struct{})

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", l.path, err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		if _, dup := l.seen[id]; dup {
			continue
		}
		l.seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read %q: %w", l.path, err)
	}
	return ids, nil
}

// Record appends id followed by a newline and syncs the file.
func (l *FileLedger) Record(ctx context.Context, id models.ProductID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := strings.TrimSpace(id.String())
	if key == "" {
		return fmt.Errorf("ledger: empty product id")
	}
	if l.seen == nil {
		if _, err := l.load(); err != nil {
			return err
		}
	}
	if _, dup := l.seen[key]; dup {
		return nil
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("ledger: create dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("ledger: open %q: %w", l.path, err)
	}
	if _, err := f.WriteString(key + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("ledger: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("ledger: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}

	l.seen[key] = struct{}{}
	return nil
}

func (l *FileLedger) Close() error { return nil }
