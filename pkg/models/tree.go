package models

// FileTreeNode is a node of the configuration root's file tree. Directory
// nodes own their children; Path is unique within a tree.
type FileTreeNode struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	IsDirectory bool            `json:"isDirectory"`
	Children    []*FileTreeNode `json:"children,omitempty"`
	Resource    *Ref            `json:"resource,omitempty"`
}

// Walk visits n and its descendants depth-first in child order. Returning
// false from fn stops the walk.
func (n *FileTreeNode) Walk(fn func(*FileTreeNode) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// TreeIndex is a path -> node index over one FileTreeNode value. It is built
// once per tree and never mutated afterwards.
type TreeIndex struct {
	root   *FileTreeNode
	byPath map[string]*FileTreeNode
	byRef  map[Ref]*FileTreeNode
}

// NewTreeIndex indexes every node of root.
func NewTreeIndex(root *FileTreeNode) *TreeIndex {
	idx := &TreeIndex{
		root:   root,
		byPath: make(map[string]*FileTreeNode),
		byRef:  make(map[Ref]*FileTreeNode),
	}
	root.Walk(func(n *FileTreeNode) bool {
		idx.byPath[n.Path] = n
		if n.Resource != nil {
			idx.byRef[*n.Resource] = n
		}
		return true
	})
	return idx
}

// Root returns the indexed tree.
func (i *TreeIndex) Root() *FileTreeNode {
	if i == nil {
		return nil
	}
	return i.root
}

// Node returns the node at path.
func (i *TreeIndex) Node(path string) (*FileTreeNode, bool) {
	if i == nil {
		return nil, false
	}
	n, ok := i.byPath[path]
	return n, ok
}

// ResourceAt returns the resource associated with the file at path.
func (i *TreeIndex) ResourceAt(path string) (Ref, bool) {
	n, ok := i.Node(path)
	if !ok || n.IsDirectory || n.Resource == nil {
		return Ref{}, false
	}
	return *n.Resource, true
}

// PathOf returns the path of the file holding the given resource.
func (i *TreeIndex) PathOf(ref Ref) (string, bool) {
	if i == nil {
		return "", false
	}
	n, ok := i.byRef[ref]
	if !ok {
		return "", false
	}
	return n.Path, true
}

// Len returns the number of indexed nodes.
func (i *TreeIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byPath)
}
