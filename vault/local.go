package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Local stores the vault on the local filesystem. Commit messages are
// accepted and discarded, and SHAs are always empty.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) Get(_ context.Context, path string) (*File, error) {
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return &File{Content: string(data)}, nil
}

func (l *Local) Put(_ context.Context, path, content, _, _ string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	return "", nil
}

func (l *Local) Append(ctx context.Context, path, content, message string) (string, error) {
	existing, err := l.Get(ctx, path)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return l.Put(ctx, path, content, message, "")
	}
	return l.Put(ctx, path, existing.Content+content, message, "")
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Local) List(_ context.Context, folder string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.root, filepath.FromSlash(folder)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, folder+"/"+e.Name())
		}
	}
	sort.Strings(paths)
	return paths, nil
}
