package checkpoint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const maxLineSize = 16 << 20

// FileBackend is a JSON-lines log, fsynced per append. Partial snapshots are
// whole files replaced through a temp file rename.
type FileBackend struct {
	path       string
	partialDir string

	mu sync.Mutex
}

func NewFileBackend(path, partialDir string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if err := os.MkdirAll(partialDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create partial directory: %w", err)
	}
	return &FileBackend{path: path, partialDir: partialDir}, nil
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) Append(_ context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	// start on a fresh line if a previous write was torn
	if info, err := file.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := file.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			line = append([]byte{'\n'}, line...)
		}
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Load reads every entry. A torn final line from a crash is skipped.
func (f *FileBackend) Load(_ context.Context) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.UnitID == "" {
			slog.Warn("Skipping unreadable checkpoint line", "path", f.path, "line", lineNo, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *FileBackend) SavePartial(_ context.Context, key string, snapshot []byte) error {
	tmp, err := os.CreateTemp(f.partialDir, ".partial-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(snapshot); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.partialPath(key))
}

func (f *FileBackend) LoadPartial(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(f.partialPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrPartialNotFound
	}
	return b, err
}

func (f *FileBackend) partialPath(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(f.partialDir, safe+".json")
}

func (f *FileBackend) Close() error { return nil }
