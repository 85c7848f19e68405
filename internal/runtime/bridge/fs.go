package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

const maxReadBytes = 16 << 20

// Filesystem is the fs capability.
type Filesystem interface {
	Exists(ctx context.Context, path string) (bool, error)
	ReadText(ctx context.Context, path string) (string, error)
	WriteText(ctx context.Context, path, text string) error
	ListDir(ctx context.Context, path string) ([]string, error)
}

// FS is the scoped filesystem capability.
type FS struct {
	scope *Scope
	inv   invoker
}

var _ Filesystem = (*FS)(nil)

// Exists reports whether path exists. Out-of-scope paths are an error,
// not false.
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	v, err := f.inv.do(ctx, "fs", "exists", func(ctx context.Context) (interface{}, error) {
		target, err := f.scope.Resolve(path)
		if err != nil {
			return false, err
		}
		_, err = os.Stat(target)
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ReadText returns the UTF-8 contents of a file.
func (f *FS) ReadText(ctx context.Context, path string) (string, error) {
	v, err := f.inv.do(ctx, "fs", "readText", func(ctx context.Context) (interface{}, error) {
		target, err := f.scope.Resolve(path)
		if err != nil {
			return "", err
		}
		file, err := os.Open(target)
		if err != nil {
			return "", err
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxReadBytes+1))
		if err != nil {
			return "", err
		}
		if len(data) > maxReadBytes {
			return "", fmt.Errorf("file exceeds %d bytes", maxReadBytes)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("file is not valid UTF-8 text")
		}
		return string(data), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// WriteText replaces a file's contents, creating parent directories.
func (f *FS) WriteText(ctx context.Context, path, text string) error {
	_, err := f.inv.do(ctx, "fs", "writeText", func(ctx context.Context) (interface{}, error) {
		target, err := f.scope.Resolve(path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(target, []byte(text), 0o644)
	})
	return err
}

// ListDir returns the sorted entry names of a directory.
func (f *FS) ListDir(ctx context.Context, path string) ([]string, error) {
	v, err := f.inv.do(ctx, "fs", "listDir", func(ctx context.Context) (interface{}, error) {
		target, err := f.scope.Resolve(path)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(target)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}
