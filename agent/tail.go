package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// TailSource follows a stream log on disk, delivering bytes as they are
// appended. The stream ends when the file is removed or renamed.
type TailSource struct {
	path string
}

func NewTailSource(path string) *TailSource {
	return &TailSource{path: path}
}

// Open ignores req; the file is the stream.
func (s *TailSource) Open(ctx context.Context, _ Request) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		f.Close()
		return nil, fmt.Errorf("watch %s: %w", s.path, err)
	}

	return &tailReader{ctx: ctx, path: filepath.Clean(s.path), file: f, watcher: watcher}, nil
}

type tailReader struct {
	ctx     context.Context
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	removed bool
}

func (t *tailReader) Read(p []byte) (int, error) {
	for {
		n, err := t.file.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if t.removed {
			return 0, io.EOF
		}

		select {
		case <-t.ctx.Done():
			return 0, t.ctx.Err()
		case event, ok := <-t.watcher.Events:
			if !ok {
				return 0, io.EOF
			}
			if filepath.Clean(event.Name) != t.path {
				continue
			}
			// Drain what was written before the file went away.
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				t.removed = true
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return 0, io.EOF
			}
			return 0, err
		}
	}
}

func (t *tailReader) Close() error {
	t.watcher.Close()
	return t.file.Close()
}
