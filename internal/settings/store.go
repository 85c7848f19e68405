package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// Key is the settings.json key holding plugin settings.
const Key = "plugins"

// Store persists settings in a JSON document shared with other keys.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the plugin settings. A missing file or key yields Default;
// fields that are not arrays read as empty and non-string entries are
// skipped.
func (s *Store) Load() (PluginSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDoc()
	if err != nil {
		return Default(), err
	}

	raw, ok := doc[Key].(map[string]interface{})
	if !ok {
		return Default(), nil
	}
	return PluginSettings{
		Order:    stringList(raw["order"]),
		Disabled: stringList(raw["disabled"]),
	}, nil
}

// Save writes the plugin settings, keeping any other keys in the file.
func (s *Store) Save(settings PluginSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDoc()
	if err != nil {
		return err
	}
	if settings.Order == nil {
		settings.Order = []string{}
	}
	if settings.Disabled == nil {
		settings.Disabled = []string{}
	}
	doc[Key] = settings

	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeAtomic(s.path, data)
}

func (s *Store) readDoc() (map[string]interface{}, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]interface{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if len(data) == 0 {
		return make(map[string]interface{}), nil
	}

	var doc map[string]interface{}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", s.path, err)
	}
	if doc == nil {
		doc = make(map[string]interface{})
	}
	return doc, nil
}

func stringList(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// writeAtomic writes through a temp file in the same directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
