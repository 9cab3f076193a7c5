package local

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/resource"
)

// entry is a resource document found while scanning the root.
type entry struct {
	ref  models.Ref
	path string
}

// scan is one pass over the root: the tree plus the resource entries in
// tree order.
type scan struct {
	tree    *models.FileTreeNode
	entries []entry
	byRef   map[models.Ref]entry
}

func (s *scan) find(ref models.Ref) (entry, bool) {
	e, ok := s.byRef[ref]
	return e, ok
}

// GetFileTree implements backend.Reader.
func (b *Backend) GetFileTree(ctx context.Context) (*models.FileTreeNode, error) {
	s, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	return s.tree, nil
}

// matcher builds the ignore matcher from the configured patterns and the
// root's ignore file. The ignore file is re-read on every scan.
func (b *Backend) matcher() (*patternmatcher.PatternMatcher, error) {
	patterns := append([]string{}, b.ignore...)

	f, err := os.Open(filepath.Join(b.root, IgnoreFileName))
	if err == nil {
		defer f.Close()
		lines, err := ignorefile.ReadAll(f)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read "+IgnoreFileName)
		}
		patterns = append(patterns, lines...)
	} else if !os.IsNotExist(err) {
		return nil, errors.BackendFailed("read ignore file", err)
	}

	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid ignore pattern")
	}
	return pm, nil
}

func (b *Backend) scan(ctx context.Context) (*scan, error) {
	pm, err := b.matcher()
	if err != nil {
		return nil, err
	}

	s := &scan{byRef: make(map[models.Ref]entry)}
	s.tree = &models.FileTreeNode{
		Name:        filepath.Base(b.root),
		Path:        b.root,
		IsDirectory: true,
		Children:    []*models.FileTreeNode{},
	}
	if err := b.walk(ctx, pm, s, s.tree); err != nil {
		return nil, err
	}
	return s, nil
}

// walk fills dir's children. Directories sort before files, each group by
// name.
func (b *Backend) walk(ctx context.Context, pm *patternmatcher.PatternMatcher, s *scan, dir *models.FileTreeNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		return errors.BackendFailed("read directory", err).WithDetail("path", dir.Path)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, de := range entries {
		name := de.Name()
		if name == ".git" || name == IgnoreFileName {
			continue
		}
		abs := filepath.Join(dir.Path, name)
		rel, _ := filepath.Rel(b.root, abs)
		if ignored, err := pm.MatchesOrParentMatches(rel); err == nil && ignored {
			continue
		}

		node := &models.FileTreeNode{Name: name, Path: abs, IsDirectory: de.IsDir()}
		if de.IsDir() {
			node.Children = []*models.FileTreeNode{}
			if err := b.walk(ctx, pm, s, node); err != nil {
				return err
			}
		} else if isYAML(name) {
			b.associate(s, node)
		}
		dir.Children = append(dir.Children, node)
	}
	return nil
}

// associate links a file node to the resource it declares. When two files
// declare the same resource the first one in tree order keeps it.
func (b *Backend) associate(s *scan, node *models.FileTreeNode) {
	data, err := os.ReadFile(node.Path)
	if err != nil {
		b.logger.WithError(err).WithField("path", node.Path).Warn("Failed to read file")
		return
	}
	ref, ok := resource.Peek(string(data))
	if !ok {
		return
	}
	if prev, dup := s.byRef[ref]; dup {
		b.logger.WithFields(logrus.Fields{
			"resource": ref.String(),
			"path":     node.Path,
			"kept":     prev.path,
		}).Warn("Duplicate resource ignored")
		return
	}
	e := entry{ref: ref, path: node.Path}
	s.byRef[ref] = e
	s.entries = append(s.entries, e)
	node.Resource = &ref
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// resolve turns a root-relative or absolute path into an absolute path that
// is guaranteed to stay inside the root.
func (b *Backend) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "path is required")
	}
	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(b.root, p)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(b.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeInvalidInput, "path is outside the configuration root").
			WithDetail("path", p)
	}
	if rel == ".git" || strings.HasPrefix(rel, ".git"+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeInvalidInput, "path is inside the git directory").
			WithDetail("path", p)
	}
	return abs, nil
}

// relative returns p relative to the root, slash separated, for git.
func (b *Backend) relative(p string) (string, error) {
	abs, err := b.resolve(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(b.root, abs)
	if err != nil {
		return "", errors.New(errors.ErrCodeInvalidInput, "path is outside the configuration root")
	}
	return filepath.ToSlash(rel), nil
}
