package jsondelta

import (
	"encoding/json"
	"time"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
	"github.com/tidwall/gjson"
)

// Timestamp orders deltas. It is a tuple of numbers and strings compared element by element,
// so a plain number and composite timestamps (e.g. [wall, counter, node]) share one ordering.
type Timestamp []any

// Now returns a numeric timestamp of the current unix time in milliseconds
func Now() Timestamp {
	return Timestamp{float64(time.Now().UnixMilli())}
}

// At returns a timestamp from the given elements
func At(elements ...any) Timestamp {
	ts := make(Timestamp, 0, len(elements))
	for _, e := range elements {
		if util.IsNumber(e) {
			n, _ := util.Normalize(e)
			ts = append(ts, n)
			continue
		}
		ts = append(ts, e)
	}
	return ts
}

// Compare returns -1, 0 or 1. Numbers sort before strings and a shorter prefix sorts first.
func (t Timestamp) Compare(other Timestamp) int {
	for i := 0; i < len(t) && i < len(other); i++ {
		c, ok := util.Compare(t[i], other[i])
		if !ok {
			c, _ = util.Compare(util.JSONString(t[i]), util.JSONString(other[i]))
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(t) < len(other):
		return -1
	case len(t) > len(other):
		return 1
	}
	return 0
}

// IsZero returns true if the timestamp is empty
func (t Timestamp) IsZero() bool {
	return len(t) == 0
}

// MarshalJSON encodes a single element timestamp as a scalar and composite timestamps as an array
func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch len(t) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(t[0])
	}
	return json.Marshal([]any(t))
}

// UnmarshalJSON decodes a number, string or array
func (t *Timestamp) UnmarshalJSON(bits []byte) error {
	var v any
	if err := json.Unmarshal(bits, &v); err != nil {
		return errors.Wrap(err, errors.Validation, "invalid timestamp")
	}
	switch v := v.(type) {
	case nil:
		*t = nil
	case []any:
		*t = At(v...)
	case float64, string:
		*t = Timestamp{v}
	default:
		return errors.New(errors.Validation, "invalid timestamp: %s", string(bits))
	}
	return nil
}

// Delta is a keyed transition between two collection snapshots. It is implemented by
// *ObjectsDelta (the strict shape) and *ObjectsDeltaApplicable (the flexible shape).
type Delta interface {
	// Applicable returns the delta in the flexible shape
	Applicable() *ObjectsDeltaApplicable
	// Timestamp returns when the delta was created
	Timestamp() Timestamp
	strict() bool
}

// ObjectsDelta represents a transition between two collection snapshots
type ObjectsDelta struct {
	Insert     Documents         `json:"insert"`
	Update     Documents         `json:"update"`
	RemoveKeys []PrimaryKeyValue `json:"remove_keys"`
	CreatedAt  Timestamp         `json:"created_at"`
}

// Applicable returns the delta in the flexible shape
func (d *ObjectsDelta) Applicable() *ObjectsDeltaApplicable {
	return &ObjectsDeltaApplicable{
		Insert:     d.Insert,
		Update:     d.Update,
		RemoveKeys: d.RemoveKeys,
		CreatedAt:  d.CreatedAt,
	}
}

// Timestamp returns when the delta was created
func (d *ObjectsDelta) Timestamp() Timestamp {
	return d.CreatedAt
}

func (d *ObjectsDelta) strict() bool {
	return true
}

// IsEmpty returns true if the delta changes nothing
func (d *ObjectsDelta) IsEmpty() bool {
	return len(d.Insert) == 0 && len(d.Update) == 0 && len(d.RemoveKeys) == 0
}

// ObjectsDeltaApplicable is a looser delta. Upsert entries are inserted or replace the existing item.
type ObjectsDeltaApplicable struct {
	Insert     Documents         `json:"insert,omitempty"`
	Update     Documents         `json:"update,omitempty"`
	Upsert     Documents         `json:"upsert,omitempty"`
	RemoveKeys []PrimaryKeyValue `json:"remove_keys,omitempty"`
	CreatedAt  Timestamp         `json:"created_at"`
}

// Applicable returns the delta itself
func (d *ObjectsDeltaApplicable) Applicable() *ObjectsDeltaApplicable {
	return d
}

// Timestamp returns when the delta was created
func (d *ObjectsDeltaApplicable) Timestamp() Timestamp {
	return d.CreatedAt
}

func (d *ObjectsDeltaApplicable) strict() bool {
	return false
}

// IsEmpty returns true if the delta changes nothing
func (d *ObjectsDeltaApplicable) IsEmpty() bool {
	return len(d.Insert) == 0 && len(d.Update) == 0 && len(d.Upsert) == 0 && len(d.RemoveKeys) == 0
}

// ValidateDelta returns a Conflict error if a key is both removed and inserted, updated or upserted
func ValidateDelta(delta Delta, pk PrimaryKey) error {
	d := delta.Applicable()
	if len(d.RemoveKeys) == 0 {
		return nil
	}
	removed := map[PrimaryKeyValue]struct{}{}
	for _, k := range NormalizeKeys(d.RemoveKeys) {
		removed[k] = struct{}{}
	}
	for _, list := range []Documents{d.Insert, d.Update, d.Upsert} {
		for _, item := range list {
			key, err := pk.Get(item)
			if err != nil {
				return err
			}
			if _, ok := removed[key]; ok {
				return errors.New(errors.Conflict, "delta conflict: key '%s' is both removed and modified (created_at: %s)", keyString(key), util.JSONString(d.CreatedAt))
			}
		}
	}
	return nil
}

// resolvedDelta is a validated delta indexed by key with implicit upserts resolved
type resolvedDelta struct {
	remove      map[PrimaryKeyValue]struct{}
	update      map[PrimaryKeyValue]*Document
	upsert      map[PrimaryKeyValue]*Document
	insert      map[PrimaryKeyValue]*Document
	upsertOrder []PrimaryKeyValue
	insertOrder []PrimaryKeyValue
}

// resolveDelta indexes the delta. A key in both insert and update becomes an upsert of the update value.
func resolveDelta(delta Delta, pk PrimaryKey) (*resolvedDelta, error) {
	if err := ValidateDelta(delta, pk); err != nil {
		return nil, err
	}
	d := delta.Applicable()
	r := &resolvedDelta{
		remove: map[PrimaryKeyValue]struct{}{},
		update: map[PrimaryKeyValue]*Document{},
		upsert: map[PrimaryKeyValue]*Document{},
		insert: map[PrimaryKeyValue]*Document{},
	}
	for _, k := range NormalizeKeys(d.RemoveKeys) {
		r.remove[k] = struct{}{}
	}
	for _, item := range d.Update {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		r.update[key] = item
	}
	for _, item := range d.Insert {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		if updated, ok := r.update[key]; ok {
			r.addUpsert(key, updated)
			continue
		}
		if _, ok := r.insert[key]; !ok {
			r.insertOrder = append(r.insertOrder, key)
		}
		r.insert[key] = item
	}
	for _, item := range d.Upsert {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		r.addUpsert(key, item)
	}
	for key := range r.upsert {
		delete(r.update, key)
		delete(r.insert, key)
	}
	return r, nil
}

func (r *resolvedDelta) addUpsert(key PrimaryKeyValue, item *Document) {
	if _, ok := r.upsert[key]; !ok {
		r.upsertOrder = append(r.upsertOrder, key)
	}
	r.upsert[key] = item
}

// ParseDelta parses a json or yaml delta. A delta with an upsert list is parsed in the flexible
// shape, anything else in the strict shape.
func ParseDelta(content []byte) (Delta, error) {
	bits, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to parse delta")
	}
	parsed := gjson.ParseBytes(bits)
	if !parsed.IsObject() {
		return nil, errors.New(errors.Validation, "delta must be an object")
	}
	var delta Delta = &ObjectsDelta{}
	if parsed.Get("upsert").Exists() {
		delta = &ObjectsDeltaApplicable{}
	}
	if err := json.Unmarshal(bits, delta); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to parse delta")
	}
	return delta, nil
}
