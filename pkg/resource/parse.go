// Package resource is the parse boundary for resource documents. Text goes
// in, a validated Document or an error comes out; nothing downstream reads
// loosely typed YAML.
package resource

import (
	"fmt"
	"strings"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Document is a validated resource document.
type Document struct {
	APIVersion string
	Kind       models.Kind
	Name       string
	Labels     map[string]string
	Spec       map[string]interface{}
	Source     string
}

// Ref returns the identity of the document.
func (d *Document) Ref() models.Ref {
	return models.Ref{Kind: d.Kind, Name: d.Name}
}

// DecodeSpec decodes the spec block into target using its yaml tags.
func (d *Document) DecodeSpec(target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create spec decoder: %w", err)
	}
	if err := decoder.Decode(d.Spec); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidResource, fmt.Sprintf("invalid %s spec", d.Kind)).
			WithDetail("name", d.Name)
	}
	return nil
}

type header struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name   string            `yaml:"name"`
		Labels map[string]string `yaml:"labels"`
	} `yaml:"metadata"`
	Spec map[string]interface{} `yaml:"spec"`
}

// Parse decodes and validates a resource document. A document without
// metadata.name fails with ErrCodeMissingName; any other structural problem
// fails with ErrCodeInvalidResource.
func Parse(text string) (*Document, error) {
	raw, h, err := decode(text)
	if err != nil {
		return nil, err
	}
	return build(raw, h, text)
}

// ParseAs parses text and checks that it declares the expected kind. The
// name is checked first, so a body with neither kind nor name is reported as
// missing a name for kind.
func ParseAs(kind models.Kind, text string) (*Document, error) {
	raw, h, err := decode(text)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(h.Metadata.Name) == "" {
		return nil, errors.MissingName(string(kind))
	}
	doc, err := build(raw, h, text)
	if err != nil {
		return nil, err
	}
	if doc.Kind != kind {
		return nil, errors.InvalidResource(fmt.Sprintf("document declares kind %s, expected %s", doc.Kind, kind)).
			WithDetail("kind", string(kind))
	}
	return doc, nil
}

func decode(text string) (interface{}, *header, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, errors.InvalidResource("document is empty")
	}

	var raw interface{}
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInvalidResource, "document is not valid YAML")
	}
	if _, ok := raw.(map[string]interface{}); !ok {
		return nil, nil, errors.InvalidResource("document must be a mapping")
	}

	var h header
	if err := yaml.Unmarshal([]byte(text), &h); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInvalidResource, "document header is malformed")
	}
	return raw, &h, nil
}

func build(raw interface{}, h *header, text string) (*Document, error) {
	kind, err := models.ParseKind(h.Kind)
	if err != nil {
		return nil, errors.InvalidResource(err.Error()).WithDetail("kind", h.Kind)
	}
	if strings.TrimSpace(h.Metadata.Name) == "" {
		return nil, errors.MissingName(string(kind))
	}

	if err := validateEnvelope(raw); err != nil {
		return nil, errors.InvalidResource(err.Error()).
			WithDetail("kind", string(kind)).
			WithDetail("name", h.Metadata.Name)
	}

	return &Document{
		APIVersion: h.APIVersion,
		Kind:       kind,
		Name:       h.Metadata.Name,
		Labels:     h.Metadata.Labels,
		Spec:       h.Spec,
		Source:     text,
	}, nil
}

// Peek extracts the identity of a document without validating it. It is used
// to associate files with resources while building the file tree, where
// malformed files are simply treated as plain files.
func Peek(text string) (models.Ref, bool) {
	var h header
	if err := yaml.Unmarshal([]byte(text), &h); err != nil {
		return models.Ref{}, false
	}
	kind := models.Kind(h.Kind)
	if !kind.Valid() || strings.TrimSpace(h.Metadata.Name) == "" {
		return models.Ref{}, false
	}
	return models.Ref{Kind: kind, Name: h.Metadata.Name}, true
}

// ParseSettings decodes the typed spec of a Settings document.
func ParseSettings(text string) (*models.Settings, error) {
	doc, err := ParseAs(models.KindSettings, text)
	if err != nil {
		return nil, err
	}
	var settings models.Settings
	if err := doc.DecodeSpec(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Render builds the YAML text of a new document.
func Render(kind models.Kind, name string, spec map[string]interface{}) (string, error) {
	doc := map[string]interface{}{
		"kind":     string(kind),
		"metadata": map[string]interface{}{"name": name},
	}
	if spec != nil {
		doc["spec"] = spec
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render %s/%s: %w", kind, name, err)
	}
	return string(out), nil
}
