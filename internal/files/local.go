// Package files provides upload storage backends behind the file port used
// by the sync coordinator: a local directory for development and an
// S3-compatible bucket for deployments.
package files

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"scribe/api/internal/filesync"
)

// LocalPort serves uploads from a directory on disk. The file id is the name
// without its extension, which keeps imports idempotent across restarts.
type LocalPort struct {
	dir    string
	logger *log.Logger
}

func NewLocalPort(dir string, logger *log.Logger) (*LocalPort, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &LocalPort{dir: dir, logger: logger}, nil
}

func fileID(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func (p *LocalPort) ListUploadedFiles(ctx context.Context) ([]filesync.UploadedFile, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}
	var files []filesync.UploadedFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		files = append(files, filesync.UploadedFile{
			ID:   fileID(name),
			Name: name,
			Path: name,
			Size: size,
		})
	}
	return files, nil
}

func (p *LocalPort) ReadFileAsText(ctx context.Context, path string) (string, error) {
	full := filepath.Join(p.dir, filepath.Clean("/"+path))
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", path, err)
	}
	return string(data), nil
}

// Watch invokes onChange whenever a file lands in or leaves the uploads
// directory. It blocks until ctx is done.
func (p *LocalPort) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.dir); err != nil {
		return fmt.Errorf("watch uploads dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Rename) {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Printf("files: watcher error: %v", err)
		}
	}
}
