package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/creastat/descriptorstore/logging"
)

const maxLineSize = 64 << 20

// file is one append-only line file. Writers to the same path share a mutex.
type file struct {
	path string
	mu   *sync.Mutex
	log  *logging.Logger
}

func (f *file) entity() string {
	return filepath.Base(f.path)
}

func (f *file) exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

func (f *file) create() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	h, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return h.Close()
}

func (f *file) remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *file) truncate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return os.Truncate(f.path, 0)
}

// append writes all lines with a single write call.
func (f *file) append(lines ...[]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	h, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := h.Write(bytes.Join(lines, nil)); err != nil {
		h.Close()
		return err
	}
	return h.Close()
}

// lines lazily yields the decoded lines of the file. Malformed lines are
// logged and skipped; a missing file yields nothing.
func (f *file) lines(ctx context.Context) iter.Seq[[]attribute] {
	return func(yield func([]attribute) bool) {
		h, err := os.Open(f.path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				f.log.BackendError(ctx, f.entity(), "scan", err)
			}
			return
		}
		defer h.Close()

		sc := bufio.NewScanner(h)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			attrs, err := unmarshalLine(line)
			if err != nil {
				f.log.Skipped(ctx, f.entity(), err)
				continue
			}
			if !yield(attrs) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			f.log.BackendError(ctx, f.entity(), "scan", err)
		}
	}
}

// count returns the number of non-empty lines.
func (f *file) count(ctx context.Context) int64 {
	h, err := os.Open(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.log.BackendError(ctx, f.entity(), "count", err)
		}
		return 0
	}
	defer h.Close()

	var n int64
	sc := bufio.NewScanner(h)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		f.log.BackendError(ctx, f.entity(), "count", err)
	}
	return n
}
