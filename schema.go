package jsondelta

import (
	"strings"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/xeipuuv/gojsonschema"
)

// Issue is a single schema violation
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validator validates a record. An empty result means the record is valid.
type Validator interface {
	Validate(doc *Document) []Issue
}

// ScopedValidator is a Validator that can produce the validator for the elements of a nested array
type ScopedValidator interface {
	Validator
	// Scope returns the validator for elements of the array at the dot path, relative to this validator's root
	Scope(path string) (Validator, error)
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(doc *Document) []Issue

// Validate calls the function
func (v ValidatorFunc) Validate(doc *Document) []Issue {
	return v(doc)
}

// JSONSchema validates records against a json schema - https://json-schema.org/
type JSONSchema struct {
	raw    gjson.Result
	schema *gojsonschema.Schema
}

// NewJSONSchema loads a json schema from json or yaml content
func NewJSONSchema(content []byte) (*JSONSchema, error) {
	if len(content) == 0 {
		return nil, errors.New(errors.Validation, "empty schema content")
	}
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to convert schema to json")
	}
	return loadJSONSchema(jsonContent)
}

// MustJSONSchema loads a json schema and panics if it is invalid
func MustJSONSchema(content []byte) *JSONSchema {
	s, err := NewJSONSchema(content)
	if err != nil {
		panic(err)
	}
	return s
}

func loadJSONSchema(jsonContent []byte) (*JSONSchema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(jsonContent))
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to load json schema")
	}
	return &JSONSchema{
		raw:    gjson.ParseBytes(jsonContent),
		schema: schema,
	}, nil
}

// Validate validates the document against the schema
func (j *JSONSchema) Validate(doc *Document) []Issue {
	result, err := j.schema.Validate(gojsonschema.NewBytesLoader(doc.Bytes()))
	if err != nil {
		return []Issue{{Path: ".", Code: "invalid_document", Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	issues := make([]Issue, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		path := e.Field()
		if path == "(root)" {
			path = "."
		}
		issues = append(issues, Issue{
			Path:    path,
			Code:    e.Type(),
			Message: e.Description(),
		})
	}
	return issues
}

// String returns the schema as json
func (j *JSONSchema) String() string {
	return j.raw.Raw
}

// Scope returns the schema of elements of the array at the dot path. Intermediate arrays are
// stepped through, so "lists.items" resolves properties.lists.items.properties.items.items.
// Local references are followed and root definitions are carried into the sub-schema.
func (j *JSONSchema) Scope(path string) (Validator, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return j, nil
	}
	current := j.raw
	for _, seg := range segments {
		current = j.resolve(current).Get(joinPath([]string{"properties", seg}))
		if !current.Exists() {
			return nil, errors.New(errors.Validation, "schema has no property '%s' on path '%s'", seg, path)
		}
		current = j.resolve(current)
		for isArraySchema(current) {
			current = j.resolve(current.Get("items"))
		}
	}
	if t := current.Get("type"); !current.IsObject() || (t.Exists() && t.String() != "object") {
		return nil, errors.New(errors.Validation, "schema has no array of objects on path '%s'", path)
	}
	sub := current.Raw
	for _, key := range []string{"definitions", "$defs"} {
		defs := j.raw.Get(joinPath([]string{key}))
		if !defs.Exists() || current.Get(joinPath([]string{key})).Exists() {
			continue
		}
		var err error
		sub, err = sjson.SetRaw(sub, joinPath([]string{key}), defs.Raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to carry schema %s", key)
		}
	}
	return loadJSONSchema([]byte(sub))
}

// resolve follows local references such as "#/definitions/task"
func (j *JSONSchema) resolve(s gjson.Result) gjson.Result {
	for i := 0; i < 32; i++ {
		ref := s.Get(joinPath([]string{"$ref"})).String()
		if !strings.HasPrefix(ref, "#/") {
			return s
		}
		var segments []string
		for _, seg := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
			segments = append(segments, strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~"))
		}
		s = j.raw.Get(joinPath(segments))
	}
	return s
}

func isArraySchema(s gjson.Result) bool {
	t := s.Get("type")
	if t.IsArray() {
		for _, v := range t.Array() {
			if v.String() == "array" {
				return s.Get("items").IsObject()
			}
		}
		return false
	}
	return strings.EqualFold(t.String(), "array") && s.Get("items").IsObject()
}

// scopeValidator returns the validator for the array at path or nil when the validator cannot be scoped
func scopeValidator(v Validator, path string) (Validator, error) {
	if v == nil {
		return nil, nil
	}
	scoped, ok := v.(ScopedValidator)
	if !ok {
		return nil, nil
	}
	return scoped.Scope(path)
}

func validate(v Validator, doc *Document) []Issue {
	if v == nil {
		return nil
	}
	return v.Validate(doc)
}
