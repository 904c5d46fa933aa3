package jsondelta

import (
	"encoding/json"

	"github.com/autom8ter/jsondelta/errors"
)

// ChangeSet is a whole-object description of a collection change. Removals are carried either as
// full objects (Removed) or as keys (RemovedKeys); the keys shape is used when RemovedKeys is non-nil.
type ChangeSet struct {
	Added       Documents         `json:"added"`
	Updated     Documents         `json:"updated"`
	Removed     Documents         `json:"removed,omitempty"`
	RemovedKeys []PrimaryKeyValue `json:"removed_keys,omitempty"`
}

// HasRemovedKeys returns true if removals are carried as keys
func (c *ChangeSet) HasRemovedKeys() bool {
	return c.RemovedKeys != nil
}

// MarshalJSON writes exactly one of removed or removed_keys
func (c *ChangeSet) MarshalJSON() ([]byte, error) {
	added, updated := c.Added, c.Updated
	if added == nil {
		added = Documents{}
	}
	if updated == nil {
		updated = Documents{}
	}
	if c.HasRemovedKeys() {
		return json.Marshal(map[string]any{
			"added":        added,
			"updated":      updated,
			"removed_keys": c.RemovedKeys,
		})
	}
	removed := c.Removed
	if removed == nil {
		removed = Documents{}
	}
	return json.Marshal(map[string]any{
		"added":   added,
		"updated": updated,
		"removed": removed,
	})
}

// removedKeys returns the keys removed by the change set in order
func (c *ChangeSet) removedKeys(pk PrimaryKey) ([]PrimaryKeyValue, error) {
	if c.HasRemovedKeys() {
		return NormalizeKeys(c.RemovedKeys), nil
	}
	keys := make([]PrimaryKeyValue, 0, len(c.Removed))
	for _, item := range c.Removed {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ApplyChangeSet applies the change set to items and returns a new collection. An added item whose key
// already exists replaces it like an update. Updates for absent keys are ignored. New items are appended
// in the order they were added. WithWhitelist restricts survival, additions and updates.
func ApplyChangeSet(items Documents, cs *ChangeSet, pk PrimaryKey, opts ...ApplyOpt) (Documents, error) {
	o := newApplyOptions(opts)
	if cs == nil {
		cs = &ChangeSet{}
	}
	keys, err := cs.removedKeys(pk)
	if err != nil {
		return nil, err
	}
	if o.whitelist != nil && len(o.whitelist) == 0 {
		return Documents{}, nil
	}
	removed := make(map[PrimaryKeyValue]struct{}, len(keys))
	for _, key := range keys {
		removed[key] = struct{}{}
	}
	replacements := map[PrimaryKeyValue]*Document{}
	for _, item := range cs.Updated {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		replacements[key] = item
	}
	var addedOrder []PrimaryKeyValue
	added := map[PrimaryKeyValue]*Document{}
	for _, item := range cs.Added {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		if _, ok := added[key]; !ok {
			addedOrder = append(addedOrder, key)
		}
		added[key] = item
	}

	result := make(Documents, 0, len(items)+len(added))
	present := make(map[PrimaryKeyValue]struct{}, len(items))
	for _, item := range items {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		if !o.allowed(key) {
			continue
		}
		if _, ok := removed[key]; ok {
			continue
		}
		present[key] = struct{}{}
		if updated, ok := replacements[key]; ok {
			result = append(result, updated)
			continue
		}
		if again, ok := added[key]; ok {
			result = append(result, again)
			continue
		}
		result = append(result, item)
	}
	for _, key := range addedOrder {
		if _, ok := present[key]; ok || !o.allowed(key) {
			continue
		}
		if _, ok := removed[key]; ok {
			continue
		}
		present[key] = struct{}{}
		result = append(result, added[key])
	}
	return result, nil
}

// constraint partitions modified entries by a filter
type constraint struct {
	pk      PrimaryKey
	filter  Filter
	failing map[PrimaryKeyValue]*Document
	order   []PrimaryKeyValue
}

func newConstraint(filter Filter, pk PrimaryKey) *constraint {
	return &constraint{
		pk:      pk,
		filter:  filter,
		failing: map[PrimaryKeyValue]*Document{},
	}
}

func (c *constraint) check(lists ...Documents) error {
	for _, list := range lists {
		for _, item := range list {
			if Match(item, c.filter) {
				continue
			}
			key, err := c.pk.Get(item)
			if err != nil {
				return err
			}
			if _, ok := c.failing[key]; !ok {
				c.order = append(c.order, key)
				c.failing[key] = item
			}
		}
	}
	return nil
}

func (c *constraint) moved() bool {
	return len(c.order) > 0
}

// keep drops every entry whose key failed the filter
func (c *constraint) keep(list Documents) Documents {
	if list == nil {
		return nil
	}
	kept := make(Documents, 0, len(list))
	for _, item := range list {
		key := c.pk.GetAllowMissing(item)
		if _, ok := c.failing[key]; ok {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// removeKeys appends the failing keys not already present
func (c *constraint) removeKeys(existing []PrimaryKeyValue) []PrimaryKeyValue {
	out := append([]PrimaryKeyValue{}, existing...)
	seen := map[PrimaryKeyValue]struct{}{}
	for _, key := range NormalizeKeys(existing) {
		seen[key] = struct{}{}
	}
	for _, key := range c.order {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// removeObjects appends the failing objects whose keys are not already present
func (c *constraint) removeObjects(existing Documents) (Documents, error) {
	out := append(Documents{}, existing...)
	seen := map[PrimaryKeyValue]struct{}{}
	for _, item := range existing {
		key, err := c.pk.Get(item)
		if err != nil {
			return nil, err
		}
		seen[key] = struct{}{}
	}
	for _, key := range c.order {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c.failing[key])
	}
	return out, nil
}

// ConstrainChangeSetToFilter moves added and updated entries that fail the filter into the removal set,
// keeping its shape. The same change set is returned when nothing moved.
func ConstrainChangeSetToFilter(filter Filter, cs *ChangeSet, pk PrimaryKey) (*ChangeSet, error) {
	if cs == nil {
		return nil, errors.New(errors.Validation, "constrain: nil change set")
	}
	c := newConstraint(filter, pk)
	if err := c.check(cs.Added, cs.Updated); err != nil {
		return nil, err
	}
	if !c.moved() {
		return cs, nil
	}
	out := &ChangeSet{
		Added:   c.keep(cs.Added),
		Updated: c.keep(cs.Updated),
	}
	if cs.HasRemovedKeys() {
		out.RemovedKeys = c.removeKeys(cs.RemovedKeys)
		return out, nil
	}
	removed, err := c.removeObjects(cs.Removed)
	if err != nil {
		return nil, err
	}
	out.Removed = removed
	return out, nil
}

// ConstrainObjectsDeltaToFilter moves insert and update entries that fail the filter into remove_keys.
// The same delta is returned when nothing moved.
func ConstrainObjectsDeltaToFilter(filter Filter, delta *ObjectsDelta, pk PrimaryKey) (*ObjectsDelta, error) {
	if delta == nil {
		return nil, errors.New(errors.Validation, "constrain: nil delta")
	}
	c := newConstraint(filter, pk)
	if err := c.check(delta.Insert, delta.Update); err != nil {
		return nil, err
	}
	if !c.moved() {
		return delta, nil
	}
	return &ObjectsDelta{
		Insert:     c.keep(delta.Insert),
		Update:     c.keep(delta.Update),
		RemoveKeys: c.removeKeys(delta.RemoveKeys),
		CreatedAt:  delta.CreatedAt,
	}, nil
}

// ConstrainApplicableDeltaToFilter moves insert, update and upsert entries that fail the filter into
// remove_keys. The same delta is returned when nothing moved.
func ConstrainApplicableDeltaToFilter(filter Filter, delta *ObjectsDeltaApplicable, pk PrimaryKey) (*ObjectsDeltaApplicable, error) {
	if delta == nil {
		return nil, errors.New(errors.Validation, "constrain: nil delta")
	}
	c := newConstraint(filter, pk)
	if err := c.check(delta.Insert, delta.Update, delta.Upsert); err != nil {
		return nil, err
	}
	if !c.moved() {
		return delta, nil
	}
	return &ObjectsDeltaApplicable{
		Insert:     nonEmpty(c.keep(delta.Insert)),
		Update:     nonEmpty(c.keep(delta.Update)),
		Upsert:     nonEmpty(c.keep(delta.Upsert)),
		RemoveKeys: c.removeKeys(delta.RemoveKeys),
		CreatedAt:  delta.CreatedAt,
	}, nil
}

// ConstrainToFilter dispatches on the shape of value, which must be a *ChangeSet, *ObjectsDelta or
// *ObjectsDeltaApplicable, and returns the same shape.
func ConstrainToFilter(filter Filter, value any, pk PrimaryKey) (any, error) {
	switch v := value.(type) {
	case *ChangeSet:
		return ConstrainChangeSetToFilter(filter, v, pk)
	case *ObjectsDelta:
		return ConstrainObjectsDeltaToFilter(filter, v, pk)
	case *ObjectsDeltaApplicable:
		return ConstrainApplicableDeltaToFilter(filter, v, pk)
	}
	return nil, errors.New(errors.Validation, "constrain: unsupported type %T", value)
}

func nonEmpty(items Documents) Documents {
	if len(items) == 0 {
		return nil
	}
	return items
}
