package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ValidationError lists invalid fields by their JSON path.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid settings: " + strings.Join(parts, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks s against its struct tags.
func Validate(s Settings) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		path := e.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		msg := e.Tag()
		if e.Param() != "" {
			msg += "=" + e.Param()
		}
		fields[path] = msg
	}
	return &ValidationError{Fields: fields}
}

// Store holds the settings document in memory and mirrors it to a JSON file.
// Every write replaces the file; the last writer wins.
type Store struct {
	mu      sync.Mutex
	path    string
	current Settings
	logger  *zap.Logger
}

// Load reads the document at path. A missing file yields Default. An empty
// path keeps the store in memory only.
func Load(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:    path,
		current: Default(),
		logger:  logger.With(zap.String("component", "settings")),
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("Settings file not found, using defaults", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	loaded := Settings{}
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if loaded.CurrentProvider == "" {
		loaded.CurrentProvider = ProviderGigaChat
	}
	loaded.normalize()
	if err := Validate(loaded); err != nil {
		return nil, err
	}
	s.current = loaded
	return s, nil
}

// NewMemoryStore returns a store that never touches disk.
func NewMemoryStore(initial Settings) *Store {
	initial = initial.Clone()
	initial.normalize()
	return &Store{current: initial, logger: zap.NewNop()}
}

// Get returns a copy of the current document.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Provider returns the configuration of one provider kind.
func (s *Store) Provider(kind string) (ProviderConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.current.Providers[kind]
	return p, ok
}

// Replace validates next and makes it the whole document.
func (s *Store) Replace(next Settings) error {
	next = next.Clone()
	next.normalize()
	if err := Validate(next); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// Update applies fn to a copy of the document under the store lock and saves
// the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	fn(&next)
	next.normalize()
	if err := Validate(next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// persist writes to a temporary file in the same directory, then renames it
// over the target. Callers hold s.mu.
func (s *Store) persist(next Settings) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	s.logger.Debug("Settings saved", zap.String("path", s.path))
	return nil
}
