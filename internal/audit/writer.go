package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"main/internal/schema"
)

var ErrWriterClosed = errors.New("audit writer closed")

// Writer appends audit entries to a JSONL file, one record per line.
type Writer struct {
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// NewWriter opens (or creates) the audit file for appending.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: file, buf: bufio.NewWriter(file)}, nil
}

// Write appends one entry as a single JSON line.
func (w *Writer) Write(entry schema.AuditEntry) error {
	if w.closed {
		return ErrWriterClosed
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

// Flush pushes buffered lines to the file.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrWriterClosed
	}
	return w.buf.Flush()
}

// Close flushes, syncs and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadFile loads a JSONL audit file and returns its entries ordered by
// sequence regardless of file order.
func ReadFile(path string) ([]schema.AuditEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []schema.AuditEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry schema.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	return entries, nil
}
