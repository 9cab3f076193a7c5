package resource

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	reflector "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Envelope is the shape every resource document shares. It only exists to
// reflect the JSON schema used at the parse boundary.
type Envelope struct {
	APIVersion string                 `json:"apiVersion,omitempty" jsonschema:"description=Optional API version of the document"`
	Kind       string                 `json:"kind" jsonschema:"enum=Settings,enum=Variable,enum=Rule,enum=ImportSource,description=Resource kind"`
	Metadata   EnvelopeMetadata       `json:"metadata" jsonschema:"description=Resource identity"`
	Spec       map[string]interface{} `json:"spec,omitempty" jsonschema:"description=Kind specific body"`
}

// EnvelopeMetadata is the metadata block of a resource document.
type EnvelopeMetadata struct {
	Name   string            `json:"name" jsonschema:"minLength=1,description=Unique name within the kind"`
	Labels map[string]string `json:"labels,omitempty"`
}

const schemaURL = "rulesync-resource.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// EnvelopeSchema returns the JSON schema reflected from Envelope.
func EnvelopeSchema() ([]byte, error) {
	r := &reflector.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	s := r.Reflect(&Envelope{})
	s.Title = "rulesync resource"
	s.Description = "Envelope shared by Settings, Variable, Rule and ImportSource documents."
	return json.MarshalIndent(s, "", "  ")
}

func envelopeValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := EnvelopeSchema()
		if err != nil {
			schemaErr = fmt.Errorf("failed to reflect resource schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(string(data))); err != nil {
			schemaErr = fmt.Errorf("failed to add resource schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// validateEnvelope checks a decoded document against the envelope schema.
func validateEnvelope(doc interface{}) error {
	schema, err := envelopeValidator()
	if err != nil {
		return err
	}

	// Round-trip through JSON so the validator only sees JSON-native types.
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document for validation: %w", err)
	}
	var data interface{}
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal document for validation: %w", err)
	}

	if err := schema.Validate(data); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var messages []string
			collectErrors(validationErr, &messages)
			return fmt.Errorf("%s", strings.Join(messages, "; "))
		}
		return err
	}
	return nil
}

func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*messages = append(*messages, fmt.Sprintf("%s: %s", loc, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
