package jsondelta

import (
	"fmt"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
)

// PrimaryKeyValue uniquely identifies a document within a collection. It is a string or a float64.
type PrimaryKeyValue any

// PrimaryKey derives a document's primary key from a field or an accessor function
type PrimaryKey struct {
	// Field is the dot notation path of the primary key field
	Field string `json:"field"`
	// Func derives the key when set. It takes precedence over Field.
	Func func(d *Document) (PrimaryKeyValue, error) `json:"-"`
}

// FieldKey returns a PrimaryKey read from the given field
func FieldKey(field string) PrimaryKey {
	return PrimaryKey{Field: field}
}

// String returns a description of the key
func (p PrimaryKey) String() string {
	if p.Func != nil {
		return "func"
	}
	return p.Field
}

// Get returns the primary key of the document. A missing key is an error.
func (p PrimaryKey) Get(d *Document) (PrimaryKeyValue, error) {
	return p.get(d, false)
}

// GetAllowMissing returns the primary key of the document, or an empty string if it is missing
func (p PrimaryKey) GetAllowMissing(d *Document) PrimaryKeyValue {
	key, _ := p.get(d, true)
	return key
}

func (p PrimaryKey) get(d *Document, allowMissing bool) (PrimaryKeyValue, error) {
	if d == nil {
		if allowMissing {
			return "", nil
		}
		return nil, errors.New(errors.Validation, "missing primary key: empty document")
	}
	var (
		raw any
		err error
	)
	if p.Func != nil {
		raw, err = p.Func(d)
		if err != nil {
			if allowMissing {
				return "", nil
			}
			return nil, errors.Wrap(err, errors.Validation, "failed to derive primary key")
		}
	} else {
		raw = d.Get(p.Field)
	}
	key, ok := normalizeKey(raw)
	if !ok {
		if allowMissing {
			return "", nil
		}
		return nil, errors.New(errors.Validation, "missing primary key '%s' on document: %s", p.String(), d.String())
	}
	return key, nil
}

// normalizeKey coerces numbers to float64 so keys from go values and json documents compare equal
func normalizeKey(raw any) (PrimaryKeyValue, bool) {
	switch raw := raw.(type) {
	case string:
		if raw == "" {
			return nil, false
		}
		return raw, true
	case nil:
		return nil, false
	}
	if util.IsNumber(raw) {
		n, _ := util.Normalize(raw)
		return n, true
	}
	return nil, false
}

// NormalizeKeys coerces the keys to the form returned by PrimaryKey.Get
func NormalizeKeys(keys []PrimaryKeyValue) []PrimaryKeyValue {
	out := make([]PrimaryKeyValue, 0, len(keys))
	for _, k := range keys {
		if n, ok := normalizeKey(k); ok {
			out = append(out, n)
		}
	}
	return out
}

// keyString formats a key for error messages and logs
func keyString(key PrimaryKeyValue) string {
	return fmt.Sprintf("%v", key)
}

// keyIndex maps a collection's primary keys to their positions
type keyIndex struct {
	pk      PrimaryKey
	keys    []PrimaryKeyValue
	indexes map[PrimaryKeyValue]int
}

func newKeyIndex(pk PrimaryKey, items Documents) (*keyIndex, error) {
	idx := &keyIndex{
		pk:      pk,
		keys:    make([]PrimaryKeyValue, len(items)),
		indexes: make(map[PrimaryKeyValue]int, len(items)),
	}
	for i, item := range items {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		idx.keys[i] = key
		idx.indexes[key] = i
	}
	return idx, nil
}

func (k *keyIndex) has(key PrimaryKeyValue) bool {
	_, ok := k.indexes[key]
	return ok
}
