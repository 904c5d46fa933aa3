package jsondelta

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
	flat2 "github.com/nqd/flat"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// flattenDelimiter joins flattened merge keys. It cannot appear in a json key written by a sane producer.
const flattenDelimiter = "\x1f"

// unsafeSegments never resolve when walking a path
var unsafeSegments = map[string]struct{}{
	"__proto__":   {},
	"prototype":   {},
	"constructor": {},
}

// Document is a JSON object record. Documents are treated as immutable values by this package:
// every transformation clones before writing so a document's pointer identifies its content.
type Document struct {
	result gjson.Result
}

// UnmarshalJSON satisfies the json Unmarshaler interface
func (d *Document) UnmarshalJSON(bytes []byte) error {
	doc, err := NewDocumentFromBytes(bytes)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// MarshalJSON satisfies the json Marshaler interface
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Bytes(), nil
}

// NewDocument creates a new empty json document
func NewDocument() *Document {
	return &Document{
		result: gjson.Parse("{}"),
	}
}

// NewDocumentFromBytes creates a new document from the given json bytes
func NewDocumentFromBytes(json []byte) (*Document, error) {
	if !gjson.ValidBytes(json) {
		return nil, errors.New(errors.Validation, "invalid json: %s", string(json))
	}
	d := &Document{
		result: gjson.ParseBytes(json),
	}
	if !d.result.IsObject() {
		return nil, errors.New(errors.Validation, "invalid document: expected a json object")
	}
	return d, nil
}

// NewDocumentFrom creates a new document from the given value - the value must be json compatible
func NewDocumentFrom(value any) (*Document, error) {
	if doc, ok := value.(*Document); ok {
		return doc.Clone(), nil
	}
	bits, err := json.Marshal(value)
	if err != nil {
		return nil, errors.New(errors.Validation, "failed to json encode value: %#v", value)
	}
	return NewDocumentFromBytes(bits)
}

// MustDocument creates a new document from the given value and panics if it is not a json object
func MustDocument(value any) *Document {
	d, err := NewDocumentFrom(value)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the document as a json string
func (d *Document) String() string {
	return d.result.Raw
}

// Bytes returns the document as json bytes
func (d *Document) Bytes() []byte {
	return []byte(d.result.Raw)
}

// Value returns the document as a map
func (d *Document) Value() map[string]any {
	return cast.ToStringMap(d.result.Value())
}

// Clone allocates a new document with identical values
func (d *Document) Clone() *Document {
	return &Document{result: gjson.Parse(d.result.Raw)}
}

// Exists returns true if the dot notation field exists on the document
func (d *Document) Exists(field string) bool {
	p, ok := toPath(field)
	if !ok {
		return false
	}
	return d.result.Get(p).Exists()
}

// Get gets a field on the document with dot notation. Numeric segments index into arrays.
func (d *Document) Get(field string) any {
	p, ok := toPath(field)
	if !ok {
		return nil
	}
	return d.result.Get(p).Value()
}

// GetString gets a string field value on the document
func (d *Document) GetString(field string) string {
	return cast.ToString(d.Get(field))
}

// GetFloat gets a float field value on the document
func (d *Document) GetFloat(field string) float64 {
	return cast.ToFloat64(d.Get(field))
}

// GetArray gets an array field on the document
func (d *Document) GetArray(field string) []any {
	return cast.ToSlice(d.Get(field))
}

// PathValue is a value found at a concrete path
type PathValue struct {
	// Segments are the concrete path segments including array indexes
	Segments []string
	// Value is the value found at the path
	Value any
}

// Path returns the concrete dot notation path of the value
func (p PathValue) Path() string {
	return strings.Join(p.Segments, ".")
}

// GetAll returns every value at the dot notation path, spreading over any intermediate arrays.
// A path through a missing key or an unsafe segment yields no values.
func (d *Document) GetAll(field string) []PathValue {
	segments := splitPath(field)
	for _, s := range segments {
		if _, ok := unsafeSegments[s]; ok {
			return nil
		}
	}
	var found []PathValue
	walkPath(d.result.Value(), segments, nil, &found)
	return found
}

func walkPath(value any, remaining []string, at []string, found *[]PathValue) {
	if len(remaining) == 0 {
		*found = append(*found, PathValue{
			Segments: append([]string{}, at...),
			Value:    value,
		})
		return
	}
	switch value := value.(type) {
	case map[string]any:
		next, ok := value[remaining[0]]
		if !ok {
			return
		}
		walkPath(next, remaining[1:], append(at, remaining[0]), found)
	case []any:
		if idx, err := strconv.Atoi(remaining[0]); err == nil {
			if idx >= 0 && idx < len(value) {
				walkPath(value[idx], remaining[1:], append(at, remaining[0]), found)
			}
			return
		}
		for i, element := range value {
			walkPath(element, remaining, append(at, strconv.Itoa(i)), found)
		}
	}
}

// Set sets a field on the document. Dot notation is supported.
func (d *Document) Set(field string, val any) error {
	return d.SetAll(map[string]any{
		field: val,
	})
}

// SetAll sets all fields on the document. Dot notation is supported.
func (d *Document) SetAll(values map[string]any) error {
	for _, k := range lo.Keys(values) {
		p, ok := toPath(k)
		if !ok {
			return errors.New(errors.Validation, "unsafe path: %s", k)
		}
		if err := d.set(p, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) set(path string, val any) error {
	var (
		result string
		err    error
	)
	switch val := val.(type) {
	case *Document:
		result, err = sjson.SetRaw(d.result.Raw, path, val.String())
	case []byte:
		result, err = sjson.SetRaw(d.result.Raw, path, string(val))
	default:
		result, err = sjson.Set(d.result.Raw, path, val)
	}
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to set %s", path)
	}
	if !gjson.Valid(result) {
		return errors.New(errors.Validation, "invalid document")
	}
	d.result = gjson.Parse(result)
	return nil
}

// Del deletes a field from the document
func (d *Document) Del(field string) error {
	return d.DelAll(field)
}

// DelAll deletes all fields from the document
func (d *Document) DelAll(fields ...string) error {
	for _, field := range fields {
		p, ok := toPath(field)
		if !ok {
			continue
		}
		if err := d.del(p); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) del(path string) error {
	result, err := sjson.Delete(d.result.Raw, path)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to delete %s", path)
	}
	d.result = gjson.Parse(result)
	return nil
}

// Merge deep merges the values into the document. Nested objects are merged, all other values
// (arrays included) replace the existing value. Keys set to DeleteField are removed.
func (d *Document) Merge(values map[string]any) error {
	normalized, err := normalizeUpdate(values)
	if err != nil {
		return err
	}
	flattened, err := flat2.Flatten(normalized, &flat2.Options{
		Delimiter: flattenDelimiter,
		Safe:      true,
	})
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to flatten merge values")
	}
	keys := lo.Keys(flattened)
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" {
			continue
		}
		path := joinPath(strings.Split(k, flattenDelimiter))
		val := flattened[k]
		if IsDeleteField(val) {
			if err := d.del(path); err != nil {
				return err
			}
			continue
		}
		if m, ok := val.(map[string]any); ok && len(m) == 0 && d.result.Get(path).IsObject() {
			continue
		}
		if err := d.set(path, val); err != nil {
			return err
		}
	}
	return nil
}

// Assign shallowly overwrites the top level keys of the document. Keys set to DeleteField are removed.
func (d *Document) Assign(values map[string]any) error {
	normalized, err := normalizeUpdate(values)
	if err != nil {
		return err
	}
	keys := lo.Keys(normalized)
	sort.Strings(keys)
	for _, k := range keys {
		path := joinPath([]string{k})
		if IsDeleteField(normalized[k]) {
			if err := d.del(path); err != nil {
				return err
			}
			continue
		}
		if err := d.set(path, normalized[k]); err != nil {
			return err
		}
	}
	return nil
}

// Equal returns true if the documents are structurally equal
func (d *Document) Equal(other *Document) bool {
	if d == other {
		return true
	}
	if d == nil || other == nil {
		return false
	}
	if d.result.Raw == other.result.Raw {
		return true
	}
	return util.Equal(d.Value(), other.Value())
}

// Contains returns true if every value in other is present in the document (a structural superset check)
func (d *Document) Contains(other *Document) bool {
	return containsValue(d.Value(), other.Value())
}

func containsValue(have, want any) bool {
	switch want := want.(type) {
	case map[string]any:
		h, ok := have.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range want {
			hv, ok := h[k]
			if !ok || !containsValue(hv, v) {
				return false
			}
		}
		return true
	case []any:
		h, ok := have.([]any)
		if !ok || len(h) != len(want) {
			return false
		}
		for i := range want {
			if !containsValue(h[i], want[i]) {
				return false
			}
		}
		return true
	default:
		return util.Equal(have, want)
	}
}

// FieldPaths returns the paths to fields & nested fields in dot notation format
func (d *Document) FieldPaths() []string {
	paths := &[]string{}
	d.paths(d.result, paths)
	return *paths
}

func (d *Document) paths(result gjson.Result, pathValues *[]string) {
	result.ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() {
			d.paths(value, pathValues)
		} else {
			*pathValues = append(*pathValues, value.Path(d.result.Raw))
		}
		return true
	})
}

// Scan scans the json document into the value
func (d *Document) Scan(value any) error {
	return util.Decode(d.Value(), value)
}

// Documents is an array of documents
type Documents []*Document

// Filter applies the filter function against the documents
func (documents Documents) Filter(predicate func(document *Document, i int) bool) Documents {
	return lo.Filter[*Document](documents, predicate)
}

// Clone deep copies every document in the array
func (documents Documents) Clone() Documents {
	return lo.Map[*Document, *Document](documents, func(d *Document, _ int) *Document {
		return d.Clone()
	})
}

// Equal returns true if both arrays hold structurally equal documents in the same order
func (documents Documents) Equal(other Documents) bool {
	if len(documents) != len(other) {
		return false
	}
	for i := range documents {
		if !documents[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

func splitPath(field string) []string {
	if field == "" || field == "." {
		return nil
	}
	return strings.Split(field, ".")
}

// toPath converts a dot notation path into an escaped gjson/sjson path
func toPath(field string) (string, bool) {
	segments := splitPath(field)
	for _, s := range segments {
		if _, ok := unsafeSegments[s]; ok {
			return "", false
		}
	}
	return joinPath(segments), true
}

const gjsonSpecial = `\.*?|#@!,:=<>(){}[]"`

func joinPath(segments []string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		var sb strings.Builder
		for _, r := range s {
			if strings.ContainsRune(gjsonSpecial, r) {
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
		escaped[i] = sb.String()
	}
	return strings.Join(escaped, ".")
}
