package jsondelta

import (
	"sort"

	"github.com/autom8ter/jsondelta/errors"
)

type bucket int

const (
	bucketNone bucket = iota
	bucketInsert
	bucketUpdate
	bucketUpsert
	bucketRemoved
)

// reduction folds deltas key by key, last write wins
type reduction struct {
	buckets map[PrimaryKeyValue]bucket
	latest  map[PrimaryKeyValue]*Document
	order   []PrimaryKeyValue
}

func newReduction() *reduction {
	return &reduction{
		buckets: map[PrimaryKeyValue]bucket{},
		latest:  map[PrimaryKeyValue]*Document{},
	}
}

func (r *reduction) touch(key PrimaryKeyValue) bucket {
	b, ok := r.buckets[key]
	if !ok {
		r.order = append(r.order, key)
	}
	return b
}

func (r *reduction) remove(key PrimaryKeyValue) {
	r.touch(key)
	r.buckets[key] = bucketRemoved
	delete(r.latest, key)
}

func (r *reduction) insert(key PrimaryKeyValue, item *Document) {
	switch r.touch(key) {
	case bucketNone, bucketInsert:
		r.buckets[key] = bucketInsert
	default:
		// a removed key is resurrected, and an insert racing an update or upsert replaces it
		r.buckets[key] = bucketUpsert
	}
	r.latest[key] = item
}

func (r *reduction) update(key PrimaryKeyValue, item *Document) {
	switch r.touch(key) {
	case bucketRemoved:
		return
	case bucketNone, bucketUpdate:
		r.buckets[key] = bucketUpdate
	case bucketInsert, bucketUpsert:
		r.buckets[key] = bucketUpsert
	}
	r.latest[key] = item
}

func (r *reduction) upsert(key PrimaryKeyValue, item *Document) {
	r.touch(key)
	r.buckets[key] = bucketUpsert
	r.latest[key] = item
}

func (r *reduction) fold(delta Delta, pk PrimaryKey) error {
	resolved, err := resolveDelta(delta, pk)
	if err != nil {
		return err
	}
	d := delta.Applicable()
	for _, key := range NormalizeKeys(d.RemoveKeys) {
		r.remove(key)
	}
	for _, item := range d.Update {
		key, _ := pk.Get(item)
		if _, ok := resolved.update[key]; ok {
			r.update(key, item)
		}
	}
	for _, key := range resolved.upsertOrder {
		r.upsert(key, resolved.upsert[key])
	}
	for _, key := range resolved.insertOrder {
		if item, ok := resolved.insert[key]; ok {
			r.insert(key, item)
		}
	}
	return nil
}

func (r *reduction) keys(b bucket) []PrimaryKeyValue {
	var keys []PrimaryKeyValue
	for _, key := range r.order {
		if r.buckets[key] == b {
			keys = append(keys, key)
		}
	}
	return keys
}

func (r *reduction) items(b bucket) Documents {
	var items Documents
	for _, key := range r.keys(b) {
		items = append(items, r.latest[key])
	}
	return items
}

func sortDeltas(deltas []Delta) []Delta {
	sorted := append([]Delta{}, deltas...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp().Compare(sorted[j].Timestamp()) < 0
	})
	return sorted
}

func reduceDeltas(deltas []Delta, pk PrimaryKey) (*reduction, Timestamp, error) {
	r := newReduction()
	sorted := sortDeltas(deltas)
	for _, d := range sorted {
		if d == nil {
			return nil, nil, errors.New(errors.Validation, "reduce: nil delta")
		}
		if err := ValidateDelta(d, pk); err != nil {
			return nil, nil, err
		}
	}
	for _, d := range sorted {
		if err := r.fold(d, pk); err != nil {
			return nil, nil, err
		}
	}
	return r, sorted[len(sorted)-1].Timestamp(), nil
}

// ReduceDeltas folds deltas into a single equivalent delta. Deltas are ordered by created_at
// (stable for equal timestamps) and the latest operation on a key wins. If every input is an
// *ObjectsDelta the result is an *ObjectsDelta, otherwise it is an *ObjectsDeltaApplicable that
// omits empty fields. No input yields an empty *ObjectsDeltaApplicable created now.
func ReduceDeltas(deltas []Delta, pk PrimaryKey) (Delta, error) {
	if len(deltas) == 0 {
		return &ObjectsDeltaApplicable{CreatedAt: Now()}, nil
	}
	strict := true
	for _, d := range deltas {
		if d != nil && !d.strict() {
			strict = false
		}
	}
	r, createdAt, err := reduceDeltas(deltas, pk)
	if err != nil {
		return nil, err
	}
	if strict {
		return r.strictDelta(createdAt), nil
	}
	return r.applicableDelta(createdAt), nil
}

// ReduceObjectsDeltas folds strict deltas into one strict delta
func ReduceObjectsDeltas(deltas []*ObjectsDelta, pk PrimaryKey) (*ObjectsDelta, error) {
	if len(deltas) == 0 {
		return &ObjectsDelta{
			Insert:     Documents{},
			Update:     Documents{},
			RemoveKeys: []PrimaryKeyValue{},
			CreatedAt:  Now(),
		}, nil
	}
	generic := make([]Delta, len(deltas))
	for i, d := range deltas {
		generic[i] = d
	}
	r, createdAt, err := reduceDeltas(generic, pk)
	if err != nil {
		return nil, err
	}
	return r.strictDelta(createdAt), nil
}

// ReduceApplicableDeltas folds deltas of any shape into one flexible delta
func ReduceApplicableDeltas(deltas []Delta, pk PrimaryKey) (*ObjectsDeltaApplicable, error) {
	if len(deltas) == 0 {
		return &ObjectsDeltaApplicable{CreatedAt: Now()}, nil
	}
	r, createdAt, err := reduceDeltas(deltas, pk)
	if err != nil {
		return nil, err
	}
	return r.applicableDelta(createdAt), nil
}

// strictDelta has no upsert field: an upsert is written to both insert and update,
// which ApplyDelta resolves back into an upsert
func (r *reduction) strictDelta(createdAt Timestamp) *ObjectsDelta {
	d := &ObjectsDelta{
		Insert:     Documents{},
		Update:     Documents{},
		RemoveKeys: []PrimaryKeyValue{},
		CreatedAt:  createdAt,
	}
	for _, key := range r.order {
		switch r.buckets[key] {
		case bucketInsert:
			d.Insert = append(d.Insert, r.latest[key])
		case bucketUpdate:
			d.Update = append(d.Update, r.latest[key])
		case bucketUpsert:
			d.Insert = append(d.Insert, r.latest[key])
			d.Update = append(d.Update, r.latest[key])
		case bucketRemoved:
			d.RemoveKeys = append(d.RemoveKeys, key)
		}
	}
	return d
}

func (r *reduction) applicableDelta(createdAt Timestamp) *ObjectsDeltaApplicable {
	return &ObjectsDeltaApplicable{
		Insert:     r.items(bucketInsert),
		Update:     r.items(bucketUpdate),
		Upsert:     r.items(bucketUpsert),
		RemoveKeys: r.keys(bucketRemoved),
		CreatedAt:  createdAt,
	}
}
