package jsonldb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrRowNotFound is returned by Modify when no row has the requested ID.
var ErrRowNotFound = errors.New("row not found")

// Row is implemented by types stored in a Table.
type Row[T any] interface {
	Clone() T
	GetID() int64
}

// Table handles storage and in-memory caching for a single table in JSONL format.
//
// Mutations only touch memory. Flush writes a full snapshot of the table when
// it changed since the last successful flush.
type Table[T Row[T]] struct {
	path string

	mu    sync.RWMutex
	rows  []T
	lines [][]byte      // JSON encoding of rows[i]
	index map[int64]int // ID -> position in rows
	gen   uint64        // bumped on every mutation
	saved uint64        // gen covered by the file on disk

	flushMu sync.Mutex
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	table := &Table[T]{
		path:  path,
		index: make(map[int64]int),
	}

	if err := table.load(); err != nil {
		return nil, err
	}

	return table, nil
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = []T{}
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row %d in %s: %w", len(t.rows)+1, t.path, err)
		}
		id := row.GetID()
		if _, dup := t.index[id]; dup {
			return fmt.Errorf("duplicate id %d in %s", id, t.path)
		}
		t.index[id] = len(t.rows)
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, slices.Clone(line))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	if t.rows == nil {
		t.rows = []T{}
	}
	return nil
}

// Path returns the backing file.
func (t *Table[T]) Path() string {
	return t.path
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID.
func (t *Table[T]) Get(id int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.rows[i].Clone(), true
}

// All returns an iterator over clones of all rows.
//
// The read lock is held for the whole iteration; yield must not mutate the
// table.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table.
func (t *Table[T]) Append(row T) error {
	_, err := t.AppendFunc(func(int) (T, error) { return row, nil })
	return err
}

// AppendFunc builds a row from the current row count and adds it, atomically
// with respect to other mutations. It returns a clone of the stored row.
func (t *Table[T]) AppendFunc(build func(n int) (T, error)) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	row, err := build(len(t.rows))
	if err != nil {
		return zero, err
	}
	id := row.GetID()
	if _, dup := t.index[id]; dup {
		return zero, fmt.Errorf("duplicate id %d", id)
	}
	data, err := json.Marshal(row)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal row: %w", err)
	}

	t.index[id] = len(t.rows)
	t.rows = append(t.rows, row)
	t.lines = append(t.lines, data)
	t.gen++
	return row.Clone(), nil
}

// Modify runs fn on a clone of the row with the given ID while holding the
// write lock and stores the result. The row is left untouched if fn fails.
func (t *Table[T]) Modify(id int64, fn func(row T) (T, error)) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	i, ok := t.index[id]
	if !ok {
		return zero, ErrRowNotFound
	}
	row, err := fn(t.rows[i].Clone())
	if err != nil {
		return zero, err
	}
	if row.GetID() != id {
		return zero, fmt.Errorf("modify changed id %d to %d", id, row.GetID())
	}
	data, err := json.Marshal(row)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal row: %w", err)
	}
	t.rows[i] = row
	t.lines[i] = data
	t.gen++
	return row.Clone(), nil
}

// Dirty reports whether the table has changes not yet flushed.
func (t *Table[T]) Dirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen != t.saved
}

// Flush atomically replaces the table file with the current rows when there
// are unflushed changes. Writers are only blocked while the snapshot is taken.
func (t *Table[T]) Flush() error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.RLock()
	gen := t.gen
	if gen == t.saved {
		t.mu.RUnlock()
		return nil
	}
	// Encoded lines are never mutated in place, only replaced, so sharing
	// them with the snapshot is safe.
	lines := slices.Clone(t.lines)
	t.mu.RUnlock()

	if err := writeFile(t.path, lines); err != nil {
		return err
	}

	t.mu.Lock()
	t.saved = gen
	t.mu.Unlock()
	return nil
}

func writeFile(path string, lines [][]byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	writer := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync table file: %w", err)
	}
	closed = true
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close table file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // G304: directory of the table file
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	defer func() {
		_ = d.Close()
	}()
	// Some platforms do not support syncing directories; the rename already
	// happened so only report real I/O errors.
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}
