package plugin

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
)

const manifestPattern = "plugin.{json,yaml,yml,toml}"

// maxIconBytes bounds icons inlined as data URLs.
const maxIconBytes = 256 << 10

// found is one candidate plugin directory inside a root.
type found struct {
	dir       string
	manifests []string
}

// Discover walks roots in order and loads every plugin directory it finds.
// Directories matching an ignore glob (relative to their root) are skipped.
// Plugins that fail to load are returned as errors and do not stop the walk.
func Discover(ctx context.Context, roots, ignore []string) ([]*Plugin, []error) {
	var (
		plugins []*Plugin
		errs    []error
	)
	for rootIndex, root := range roots {
		dirs, err := scanRoot(ctx, root, ignore)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", root, err))
			continue
		}
		for _, f := range dirs {
			p, err := loadDir(f)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			p.Root = rootIndex
			plugins = append(plugins, p)
		}
	}
	return plugins, errs
}

func scanRoot(ctx context.Context, root string, ignore []string) ([]found, error) {
	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory")
	}

	var (
		mu     sync.Mutex
		byDir  = make(map[string]*found)
		config = fastwalk.Config{Follow: false}
	)

	err = fastwalk.Walk(&config, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && ignored(rel, ignore) {
				return filepath.SkipDir
			}
			return nil
		}

		if ok, _ := doublestar.Match(manifestPattern, d.Name()); !ok {
			return nil
		}
		dir := filepath.Dir(p)
		if dir == filepath.Clean(root) {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		f, exists := byDir[dir]
		if !exists {
			f = &found{dir: dir}
			byDir[dir] = f
		}
		f.manifests = append(f.manifests, d.Name())
		return nil
	})
	if err != nil {
		return nil, err
	}

	dirs := make([]found, 0, len(byDir))
	for _, f := range byDir {
		dirs = append(dirs, *f)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].dir < dirs[j].dir })
	return dirs, nil
}

func ignored(rel string, ignore []string) bool {
	for _, pattern := range ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// pickManifest applies ManifestNames precedence when a directory has more
// than one manifest.
func pickManifest(names []string) string {
	for _, want := range ManifestNames {
		for _, name := range names {
			if name == want {
				return name
			}
		}
	}
	return ""
}

func loadDir(f found) (*Plugin, error) {
	manifestPath := filepath.Join(f.dir, pickManifest(f.manifests))
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestError{Path: manifestPath, Reason: RejectParse, Err: err}
	}

	m, err := ParseManifest(manifestPath, data)
	if err != nil {
		return nil, err
	}

	entryPath := filepath.Join(f.dir, m.Entry)
	script, err := os.ReadFile(entryPath)
	if err != nil {
		return nil, &ManifestError{Path: manifestPath, Reason: RejectEntry, Err: err}
	}

	return &Plugin{
		Manifest:     m,
		Dir:          f.dir,
		ManifestPath: manifestPath,
		EntryPath:    entryPath,
		Script:       string(script),
		IconDataURL:  iconDataURL(filepath.Join(f.dir, m.Icon)),
	}, nil
}

// iconDataURL inlines the icon. A missing or oversized icon yields "".
func iconDataURL(path string) string {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() > maxIconBytes {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}

	mime := mimetype.Detect(data).String()
	if strings.EqualFold(filepath.Ext(path), ".svg") && !strings.HasPrefix(mime, "image/svg") {
		mime = "image/svg+xml"
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
