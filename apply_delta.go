package jsondelta

type applyOptions struct {
	whitelist map[PrimaryKeyValue]struct{}
}

// ApplyOpt configures ApplyDelta and ApplyChangeSet
type ApplyOpt func(o *applyOptions)

// WithWhitelist restricts every operation to the given keys. Items outside the whitelist are dropped
// from the result. An empty whitelist always yields an empty collection.
func WithWhitelist(keys ...PrimaryKeyValue) ApplyOpt {
	return func(o *applyOptions) {
		o.whitelist = map[PrimaryKeyValue]struct{}{}
		for _, k := range NormalizeKeys(keys) {
			o.whitelist[k] = struct{}{}
		}
	}
}

func newApplyOptions(opts []ApplyOpt) applyOptions {
	var o applyOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o applyOptions) allowed(key PrimaryKeyValue) bool {
	if o.whitelist == nil {
		return true
	}
	_, ok := o.whitelist[key]
	return ok
}

// ApplyDelta applies the delta to items and returns a new collection. The input is never modified.
//
// A delta that both removes and modifies a key fails with a Conflict error before anything is applied.
// Surviving items keep their order, removals are applied first, then updates (ignored for absent keys),
// then upserts, then inserts (ignored for present keys). New items are appended in delta order.
func ApplyDelta(items Documents, delta Delta, pk PrimaryKey, opts ...ApplyOpt) (Documents, error) {
	o := newApplyOptions(opts)
	r, err := resolveDelta(delta, pk)
	if err != nil {
		return nil, err
	}
	if o.whitelist != nil && len(o.whitelist) == 0 {
		return Documents{}, nil
	}
	result := make(Documents, 0, len(items)+len(r.insert)+len(r.upsert))
	present := make(map[PrimaryKeyValue]struct{}, len(items))
	for _, item := range items {
		key, err := pk.Get(item)
		if err != nil {
			return nil, err
		}
		if !o.allowed(key) {
			continue
		}
		if _, ok := r.remove[key]; ok {
			continue
		}
		present[key] = struct{}{}
		if updated, ok := r.update[key]; ok {
			result = append(result, updated)
			continue
		}
		if upserted, ok := r.upsert[key]; ok {
			result = append(result, upserted)
			continue
		}
		result = append(result, item)
	}
	for _, key := range r.upsertOrder {
		if _, ok := present[key]; ok || !o.allowed(key) {
			continue
		}
		present[key] = struct{}{}
		result = append(result, r.upsert[key])
	}
	for _, key := range r.insertOrder {
		inserted, ok := r.insert[key]
		if !ok || !o.allowed(key) {
			continue
		}
		if _, ok := present[key]; ok {
			continue
		}
		present[key] = struct{}{}
		result = append(result, inserted)
	}
	return result, nil
}

// ApplyDeltaInPlace applies the delta and writes the result into the caller's collection,
// reusing its backing array where capacity allows.
func ApplyDeltaInPlace(items *Documents, delta Delta, pk PrimaryKey, opts ...ApplyOpt) error {
	result, err := ApplyDelta(*items, delta, pk, opts...)
	if err != nil {
		return err
	}
	copyInto(items, result)
	return nil
}

// copyInto replaces the contents of dst with src. src must not share a backing array with dst.
func copyInto(dst *Documents, src Documents) {
	*dst = append((*dst)[:0], src...)
}
