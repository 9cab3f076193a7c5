package store

import (
	"context"
	"sync"

	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/resource"
)

// Collections holds the engine's cached views of one backend.
type Collections struct {
	store  *Store
	reader backend.Reader

	FileTree  *Query[*models.FileTreeNode]
	GitStatus *Query[*models.GitStatus]
	Branches  *Query[[]models.BranchInfo]
	Settings  *Query[*models.Settings]
	Resources *Query[[]models.ResourceInfo]

	treeIndex   *Derived[*models.FileTreeNode, *models.TreeIndex]
	statusIndex *Derived[*models.GitStatus, *models.StatusIndex]

	mu        sync.Mutex
	resources map[models.Ref]*Query[*models.Resource]
}

// NewCollections registers the standard queries for reader on st.
func NewCollections(st *Store, reader backend.Reader) *Collections {
	c := &Collections{
		store:     st,
		reader:    reader,
		resources: make(map[models.Ref]*Query[*models.Resource]),
	}
	c.FileTree = Register(st, KeyFileTree, reader.GetFileTree)
	c.GitStatus = Register(st, KeyGitStatus, reader.GetGitStatus)
	c.Branches = Register(st, KeyBranches, reader.GetBranches)
	c.Settings = Register(st, KeySettings, c.fetchSettings)
	c.Resources = Register(st, KeyResourceList, func(ctx context.Context) ([]models.ResourceInfo, error) {
		return reader.ListResources(ctx, "")
	})

	c.treeIndex = NewDerived(c.FileTree, models.NewTreeIndex)
	c.statusIndex = NewDerived(c.GitStatus, models.NewStatusIndex)
	return c
}

// Store returns the store the collections are registered on.
func (c *Collections) Store() *Store {
	return c.store
}

// Resource returns the single-resource query for ref, registering it on
// first use.
func (c *Collections) Resource(ref models.Ref) *Query[*models.Resource] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.resources[ref]; ok {
		return q
	}
	q := Register(c.store, ResourceKeyFor(ref), func(ctx context.Context) (*models.Resource, error) {
		return c.reader.GetResource(ctx, ref.Kind, ref.Name)
	})
	c.resources[ref] = q
	return q
}

// TreeIndex returns the path index of the current file tree.
func (c *Collections) TreeIndex(ctx context.Context) (*models.TreeIndex, error) {
	return c.treeIndex.Get(ctx)
}

// PeekTreeIndex returns the index of the cached file tree without fetching.
func (c *Collections) PeekTreeIndex() (*models.TreeIndex, bool) {
	return c.treeIndex.Peek()
}

// StatusIndex returns the path -> status label index of the current status.
func (c *Collections) StatusIndex(ctx context.Context) (*models.StatusIndex, error) {
	return c.statusIndex.Get(ctx)
}

// FileStatus returns the status label of path, if git reports one.
func (c *Collections) FileStatus(ctx context.Context, path string) (models.FileState, bool, error) {
	idx, err := c.statusIndex.Get(ctx)
	if err != nil {
		return "", false, err
	}
	label, ok := idx.Lookup(path)
	return label, ok, nil
}

// InitialLoadComplete reports whether both the file tree and the git status
// have been loaded at least once.
func (c *Collections) InitialLoadComplete() bool {
	return c.FileTree.State().Loaded && c.GitStatus.State().Loaded
}

// fetchSettings reads the single Settings resource. A root without one has
// zero settings.
func (c *Collections) fetchSettings(ctx context.Context) (*models.Settings, error) {
	infos, err := c.reader.ListResources(ctx, models.KindSettings)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return &models.Settings{}, nil
	}
	res, err := c.reader.GetResource(ctx, models.KindSettings, infos[0].Name)
	if err != nil {
		return nil, err
	}
	return resource.ParseSettings(res.YAML)
}
