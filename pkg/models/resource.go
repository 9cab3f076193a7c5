// Package models defines the data types shared by the rulesync engine, its
// backends and the wire protocol between them.
package models

import (
	"fmt"
	"path"
)

// Kind is the kind of a declarative configuration resource.
type Kind string

const (
	KindSettings     Kind = "Settings"
	KindVariable     Kind = "Variable"
	KindRule         Kind = "Rule"
	KindImportSource Kind = "ImportSource"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindSettings, KindVariable, KindRule, KindImportSource}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSettings, KindVariable, KindRule, KindImportSource:
		return true
	}
	return false
}

// ParseKind converts a string into a Kind, rejecting unknown kinds.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown resource kind %q", s)
	}
	return k, nil
}

// Ref identifies a resource. Uniqueness of (Kind, Name) is enforced by the
// backend store.
type Ref struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

func (r Ref) String() string {
	return string(r.Kind) + "/" + r.Name
}

// Resource is a resource body as stored on disk.
// A Resource with an empty Kind is a raw file that is not a resource document.
type Resource struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	Path string `json:"path"`
	YAML string `json:"yaml"`
}

// Ref returns the identity of the resource.
func (r *Resource) Ref() Ref {
	return Ref{Kind: r.Kind, Name: r.Name}
}

// IsRaw reports whether the resource is a plain file read through the raw
// file fallback.
func (r *Resource) IsRaw() bool {
	return r.Kind == ""
}

// ResourceInfo is a resource list entry.
type ResourceInfo struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Ref returns the identity of the listed resource.
func (i ResourceInfo) Ref() Ref {
	return Ref{Kind: i.Kind, Name: i.Name}
}

// DefaultPath returns the path, relative to the configuration root, where a
// new resource of the given kind is stored when the caller supplies none.
func DefaultPath(kind Kind, name string) string {
	switch kind {
	case KindSettings:
		return "settings.yaml"
	case KindVariable:
		return path.Join("variables", name+".yaml")
	case KindRule:
		return path.Join("rules", name+".yaml")
	case KindImportSource:
		return path.Join("import-sources", name+".yaml")
	}
	return name + ".yaml"
}

// Settings is the typed spec of the Settings resource. Only the sections the
// engine reads are modelled.
type Settings struct {
	Git GitSettings `json:"git" yaml:"git"`
}

// GitSettings configures the optional remote repository backing the
// configuration root.
type GitSettings struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Repository string `json:"repository" yaml:"repository"`
	Branch     string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// RemoteConfigured reports whether git sync is enabled with a repository set.
func (s *Settings) RemoteConfigured() bool {
	return s != nil && s.Git.Enabled && s.Git.Repository != ""
}
