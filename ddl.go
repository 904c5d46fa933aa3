package jsondelta

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
	"github.com/samber/lo"
)

// RootPath is the DDL path of the top level collection
const RootPath = "."

// WriteStrategy decides how concurrent writes to a scope are resolved
type WriteStrategy string

const (
	// LastWriteWins keeps the latest write
	LastWriteWins WriteStrategy = "lww"
)

// Growset turns deletes on a scope into tombstones
type Growset struct {
	// DeleteKey is the boolean field set to true instead of removing the item
	DeleteKey string `json:"delete_key" validate:"required"`
}

// ScopeDefinition describes how items of one array are keyed and protected
type ScopeDefinition struct {
	PrimaryKey    string        `json:"primary_key" validate:"required"`
	Permissions   *Permissions  `json:"permissions,omitempty"`
	WriteStrategy WriteStrategy `json:"write_strategy,omitempty" validate:"omitempty,oneof=lww"`
	Growset       *Growset      `json:"growset,omitempty"`
}

// DDL maps the dot path of every array scope to its definition. RootPath (".") is the collection itself,
// nested paths are relative to the root record (e.g. "tasks" or "tasks.subtasks").
type DDL map[string]ScopeDefinition

// LoadDDL loads a DDL from json or yaml content
func LoadDDL(content []byte) (DDL, error) {
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to convert ddl to json")
	}
	var raw map[string]any
	if err := json.Unmarshal(jsonContent, &raw); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to decode ddl")
	}
	ddl := DDL{}
	for path, def := range raw {
		var d ScopeDefinition
		if err := util.Decode(def, &d); err != nil {
			return nil, errors.Wrap(err, errors.Validation, "failed to decode ddl scope '%s'", path)
		}
		ddl[path] = d
	}
	return ddl, ddl.Validate()
}

// MustLoadDDL loads a DDL and panics if it is invalid
func MustLoadDDL(content []byte) DDL {
	ddl, err := LoadDDL(content)
	if err != nil {
		panic(err)
	}
	return ddl
}

// Validate checks that the DDL has a root scope and that every scope definition is well formed
func (d DDL) Validate() error {
	if _, ok := d[RootPath]; !ok {
		return errors.New(errors.Validation, "ddl: missing root scope '%s'", RootPath)
	}
	for path, def := range d {
		if path != RootPath {
			for _, seg := range splitPath(path) {
				if seg == "" {
					return errors.New(errors.Validation, "ddl: invalid scope path '%s'", path)
				}
				if _, ok := unsafeSegments[seg]; ok {
					return errors.New(errors.Validation, "ddl: invalid scope path '%s'", path)
				}
			}
		}
		if err := util.ValidateStruct(def); err != nil {
			return errors.Wrap(err, errors.Validation, "ddl: invalid scope '%s'", path)
		}
		if def.Growset != nil {
			if err := util.ValidateStruct(def.Growset); err != nil {
				return errors.Wrap(err, errors.Validation, "ddl: invalid growset on scope '%s'", path)
			}
		}
	}
	return nil
}

// Scope is a compiled DDL scope. Nested scopes are addressed relative to their parent.
type Scope struct {
	// Path is the dot path of the scope from the root record
	Path string
	// Segments is the path of the scope relative to its parent
	Segments    []string
	PrimaryKey  PrimaryKey
	Permissions *Permissions
	Growset     *Growset
	Strategy    WriteStrategy
	children    map[string]*Scope
}

// Compile builds the scope tree of the DDL
func (d DDL) Compile() (*Scope, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	root := newScope(RootPath, nil, d[RootPath])
	paths := lo.Filter(lo.Keys(d), func(p string, _ int) bool {
		return p != RootPath
	})
	sort.Slice(paths, func(i, j int) bool {
		ci, cj := strings.Count(paths[i], "."), strings.Count(paths[j], ".")
		if ci != cj {
			return ci < cj
		}
		return paths[i] < paths[j]
	})
	all := map[string]*Scope{RootPath: root}
	for _, path := range paths {
		segments := splitPath(path)
		parent, rel := root, segments
		for i := len(segments) - 1; i > 0; i-- {
			if p, ok := all[strings.Join(segments[:i], ".")]; ok {
				parent, rel = p, segments[i:]
				break
			}
		}
		s := newScope(path, rel, d[path])
		parent.children[strings.Join(rel, ".")] = s
		all[path] = s
	}
	return root, nil
}

func newScope(path string, rel []string, def ScopeDefinition) *Scope {
	return &Scope{
		Path:        path,
		Segments:    rel,
		PrimaryKey:  FieldKey(def.PrimaryKey),
		Permissions: def.Permissions,
		Growset:     def.Growset,
		Strategy:    def.WriteStrategy,
		children:    map[string]*Scope{},
	}
}

// Child returns the nested scope at the path relative to this scope
func (s *Scope) Child(path string) (*Scope, bool) {
	c, ok := s.children[path]
	return c, ok
}

// Children returns the relative paths of the nested scopes in sorted order
func (s *Scope) Children() []string {
	keys := lo.Keys(s.children)
	sort.Strings(keys)
	return keys
}

// isArrayScope returns true if the field is the root of a nested scope, which may only be changed with array_scope
func (s *Scope) isArrayScope(field string) bool {
	for path := range s.children {
		if path == field || strings.HasPrefix(path, field+".") {
			return true
		}
	}
	return false
}
