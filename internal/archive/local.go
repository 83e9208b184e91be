package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Local writes originals under a directory.
type Local struct {
	dir string
}

// NewLocal creates the directory if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) path(name string) string {
	return filepath.Join(l.dir, ObjectKey(name))
}

func (l *Local) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	p := l.path(name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return p, nil
}

func (l *Local) Delete(ctx context.Context, name string) error {
	err := os.Remove(l.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
