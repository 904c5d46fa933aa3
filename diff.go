package jsondelta

import (
	"sync"
)

type diffOptions struct {
	deepEqual bool
}

// DiffOpt configures Diff and Differ
type DiffOpt func(o *diffOptions)

// WithDeepEqual compares items structurally (the default). When false, items are compared by reference,
// which is only correct for producers that always allocate a new document when an item changes.
func WithDeepEqual(deepEqual bool) DiffOpt {
	return func(o *diffOptions) {
		o.deepEqual = deepEqual
	}
}

func newDiffOptions(opts []DiffOpt) diffOptions {
	o := diffOptions{deepEqual: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Diff returns the delta that transforms previous into current
func Diff(current, previous Documents, pk PrimaryKey, opts ...DiffOpt) (*ObjectsDelta, error) {
	return diff(current, previous, pk, newDiffOptions(opts))
}

func diff(current, previous Documents, pk PrimaryKey, o diffOptions) (*ObjectsDelta, error) {
	delta := &ObjectsDelta{
		Insert:     Documents{},
		Update:     Documents{},
		RemoveKeys: []PrimaryKeyValue{},
		CreatedAt:  Now(),
	}
	before, err := newKeyIndex(pk, previous)
	if err != nil {
		return nil, err
	}
	after, err := newKeyIndex(pk, current)
	if err != nil {
		return nil, err
	}
	for i, item := range current {
		idx, ok := before.indexes[after.keys[i]]
		if !ok {
			delta.Insert = append(delta.Insert, item)
			continue
		}
		prev := previous[idx]
		if o.deepEqual {
			if !item.Equal(prev) {
				delta.Update = append(delta.Update, item)
			}
		} else if item != prev {
			delta.Update = append(delta.Update, item)
		}
	}
	for _, key := range before.keys {
		if !after.has(key) {
			delta.RemoveKeys = append(delta.RemoveKeys, key)
		}
	}
	return delta, nil
}

// Differ remembers the previous snapshot so each call only needs the next one
type Differ struct {
	mu       sync.Mutex
	pk       PrimaryKey
	opts     diffOptions
	previous Documents
}

// NewDiffer creates a Differ whose first baseline is the given snapshot (which may be empty)
func NewDiffer(pk PrimaryKey, initial Documents, opts ...DiffOpt) *Differ {
	d := &Differ{
		pk:   pk,
		opts: newDiffOptions(opts),
	}
	d.previous = d.snapshot(initial)
	return d
}

// Next returns the delta from the previous snapshot to current and makes current the new baseline
func (d *Differ) Next(current Documents) (*ObjectsDelta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delta, err := diff(current, d.previous, d.pk, d.opts)
	if err != nil {
		return nil, err
	}
	d.previous = d.snapshot(current)
	return delta, nil
}

// snapshot copies the collection when comparing structurally so later mutation of the caller's
// documents cannot change the baseline
func (d *Differ) snapshot(items Documents) Documents {
	if d.opts.deepEqual {
		return items.Clone()
	}
	return append(Documents{}, items...)
}
