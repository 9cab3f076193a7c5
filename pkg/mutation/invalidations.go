package mutation

import (
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/store"
)

// Op names a dispatcher operation.
type Op string

const (
	OpCreateResource  Op = "create-resource"
	OpUpdateResource  Op = "update-resource"
	OpDeleteResource  Op = "delete-resource"
	OpCommit          Op = "commit"
	OpPull            Op = "pull"
	OpCheckout        Op = "checkout"
	OpCreateBranch    Op = "create-branch"
	OpInitialize      Op = "initialize"
	OpMoveFile        Op = "move-file"
	OpCreateDirectory Op = "create-directory"
	OpDeleteFile      Op = "delete-file"
)

// Invalidations lists the collections each operation invalidates after it
// succeeds. Resource operations additionally invalidate the single-resource
// key of the resource they touched.
var Invalidations = map[Op][]store.QueryKey{
	OpCreateResource:  {store.KeyFileTree, store.KeyGitStatus, store.KeyResourceList},
	OpUpdateResource:  {store.KeyFileTree, store.KeyGitStatus, store.KeyResourceList},
	OpDeleteResource:  {store.KeyFileTree, store.KeyGitStatus, store.KeyResourceList},
	OpCommit:          {store.KeyGitStatus},
	OpPull:            {store.KeyFileTree, store.KeyGitStatus},
	OpCheckout:        {store.KeyFileTree, store.KeyGitStatus, store.KeyBranches},
	OpCreateBranch:    {store.KeyFileTree, store.KeyGitStatus, store.KeyBranches},
	OpInitialize:      {store.KeyFileTree, store.KeyGitStatus, store.KeyBranches, store.KeySettings},
	OpMoveFile:        {store.KeyFileTree, store.KeyGitStatus},
	OpCreateDirectory: {store.KeyFileTree, store.KeyGitStatus},
	OpDeleteFile:      {store.KeyFileTree, store.KeyGitStatus},
}

// KeysFor returns the keys op invalidates. ref is the touched resource, if
// any.
func KeysFor(op Op, ref *models.Ref) []store.QueryKey {
	keys := append([]store.QueryKey(nil), Invalidations[op]...)
	if ref != nil {
		keys = append(keys, store.ResourceKeyFor(*ref))
		// The settings singleton is a resource too.
		if ref.Kind == models.KindSettings {
			keys = append(keys, store.KeySettings)
		}
	}
	return keys
}
