package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/rulesync/command"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/resource"
)

// names checks resource names that become file names.
var names = command.NewSafeBuilder()

// GetResource implements backend.Reader.
func (b *Backend) GetResource(ctx context.Context, kind models.Kind, name string) (*models.Resource, error) {
	s, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	ref := models.Ref{Kind: kind, Name: name}
	e, ok := s.find(ref)
	if !ok {
		return nil, errors.NotFound(ref.String())
	}
	return b.load(e)
}

func (b *Backend) load(e entry) (*models.Resource, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, errors.BackendFailed("read resource", err).WithDetail("path", e.path)
	}
	return &models.Resource{Kind: e.ref.Kind, Name: e.ref.Name, Path: e.path, YAML: string(data)}, nil
}

// ListResources implements backend.Reader.
func (b *Backend) ListResources(ctx context.Context, kind models.Kind) ([]models.ResourceInfo, error) {
	s, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.ResourceInfo{}
	for _, e := range s.entries {
		if kind != "" && e.ref.Kind != kind {
			continue
		}
		out = append(out, models.ResourceInfo{Kind: e.ref.Kind, Name: e.ref.Name, Path: e.path})
	}
	return out, nil
}

// ReadRawFile implements backend.Reader.
func (b *Backend) ReadRawFile(ctx context.Context, path string) (string, error) {
	abs, err := b.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound(path)
		}
		return "", errors.BackendFailed("read file", err).WithDetail("path", path)
	}
	return string(data), nil
}

// CreateResource implements backend.Mutator.
func (b *Backend) CreateResource(ctx context.Context, kind models.Kind, name, yaml, path string) (*models.Resource, error) {
	doc, err := resource.ParseAs(kind, yaml)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = doc.Name
	}
	if doc.Name != name {
		return nil, errors.InvalidResource(fmt.Sprintf("document is named %q, expected %q", doc.Name, name))
	}
	if path == "" {
		if err := names.Validate("resourceName", name); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "resource name cannot be used as a file name").WithDetail("name", name)
		}
		path = models.DefaultPath(kind, name)
	}
	abs, err := b.resolve(path)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	ref := models.Ref{Kind: kind, Name: name}
	if e, ok := s.find(ref); ok {
		return nil, errors.AlreadyExists(ref.String()).WithDetail("path", e.path)
	}
	if _, err := os.Stat(abs); err == nil {
		return nil, errors.AlreadyExists(abs)
	}

	if err := writeFile(abs, yaml); err != nil {
		return nil, errors.BackendFailed("create resource", err).WithDetail("path", abs)
	}
	b.logger.WithField("resource", ref.String()).Info("Resource created")
	return &models.Resource{Kind: kind, Name: name, Path: abs, YAML: yaml}, nil
}

// UpdateResource implements backend.Mutator. The document may rename the
// resource as long as the new name is free.
func (b *Backend) UpdateResource(ctx context.Context, kind models.Kind, name, yaml string) (*models.Resource, error) {
	doc, err := resource.ParseAs(kind, yaml)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	ref := models.Ref{Kind: kind, Name: name}
	e, ok := s.find(ref)
	if !ok {
		return nil, errors.NotFound(ref.String())
	}
	if doc.Name != name {
		if other, taken := s.find(doc.Ref()); taken {
			return nil, errors.AlreadyExists(doc.Ref().String()).WithDetail("path", other.path)
		}
	}

	if err := writeFile(e.path, yaml); err != nil {
		return nil, errors.BackendFailed("update resource", err).WithDetail("path", e.path)
	}
	b.logger.WithField("resource", ref.String()).Info("Resource updated")
	return &models.Resource{Kind: kind, Name: doc.Name, Path: e.path, YAML: yaml}, nil
}

// DeleteResource implements backend.Mutator.
func (b *Backend) DeleteResource(ctx context.Context, kind models.Kind, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.scan(ctx)
	if err != nil {
		return err
	}
	ref := models.Ref{Kind: kind, Name: name}
	e, ok := s.find(ref)
	if !ok {
		return errors.NotFound(ref.String())
	}
	if err := os.Remove(e.path); err != nil {
		return errors.BackendFailed("delete resource", err).WithDetail("path", e.path)
	}
	b.logger.WithField("resource", ref.String()).Info("Resource deleted")
	return nil
}

// MoveFile implements backend.Mutator.
func (b *Backend) MoveFile(ctx context.Context, src, dst string) (models.OperationResult, error) {
	from, err := b.resolve(src)
	if err != nil {
		return failed(err), nil
	}
	to, err := b.resolve(dst)
	if err != nil {
		return failed(err), nil
	}
	if from == b.root {
		return failed(fmt.Errorf("cannot move the configuration root")), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(from); err != nil {
		return failed(fmt.Errorf("source %s does not exist", src)), nil
	}
	if info, err := os.Stat(to); err == nil && info.IsDir() {
		to = filepath.Join(to, filepath.Base(from))
	}
	if _, err := os.Stat(to); err == nil {
		return failed(fmt.Errorf("destination %s already exists", dst)), nil
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return failed(err), nil
	}
	if err := os.Rename(from, to); err != nil {
		return failed(err), nil
	}
	return models.OperationResult{Success: true}, nil
}

// CreateDirectory implements backend.Mutator.
func (b *Backend) CreateDirectory(ctx context.Context, path string) (models.OperationResult, error) {
	abs, err := b.resolve(path)
	if err != nil {
		return failed(err), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return failed(fmt.Errorf("directory %s already exists", path)), nil
		}
		return failed(fmt.Errorf("%s exists and is a file", path)), nil
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return failed(err), nil
	}
	return models.OperationResult{Success: true}, nil
}

// DeleteFile implements backend.Mutator. Directories are removed with their
// contents.
func (b *Backend) DeleteFile(ctx context.Context, path string) (models.OperationResult, error) {
	abs, err := b.resolve(path)
	if err != nil {
		return failed(err), nil
	}
	if abs == b.root {
		return failed(fmt.Errorf("cannot delete the configuration root")), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(abs); err != nil {
		return failed(fmt.Errorf("%s does not exist", path)), nil
	}
	if err := os.RemoveAll(abs); err != nil {
		return failed(err), nil
	}
	return models.OperationResult{Success: true}, nil
}

func failed(err error) models.OperationResult {
	return models.OperationResult{Success: false, Error: errors.Message(err)}
}

// writeFile replaces path atomically through a temp file in the same
// directory.
func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
