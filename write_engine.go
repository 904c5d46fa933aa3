package jsondelta

import (
	"context"
	"strings"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/internal/safe"
	"github.com/samber/lo"
)

// WriteStatus is the outcome of a batch of write actions
type WriteStatus string

const (
	WriteOK    WriteStatus = "ok"
	WriteError WriteStatus = "error"
)

// AppliedWrites is the net effect of a batch of write actions
type AppliedWrites struct {
	Insert     Documents         `json:"insert"`
	Update     Documents         `json:"update"`
	RemoveKeys []PrimaryKeyValue `json:"remove_keys"`
	// FinalItems is the resulting collection. Untouched items keep their pointer and the input
	// slice itself is returned when nothing changed.
	FinalItems Documents `json:"final_items"`
}

func (a AppliedWrites) changed() bool {
	return len(a.Insert) > 0 || len(a.Update) > 0 || len(a.RemoveKeys) > 0
}

// WriteResult is returned by WriteEngine.Apply
type WriteResult struct {
	Status            WriteStatus        `json:"status"`
	Changes           AppliedWrites      `json:"changes"`
	FailedActions     []FailedAction     `json:"failed_actions,omitempty"`
	SuccessfulActions []SuccessfulAction `json:"successful_actions,omitempty"`
}

// Delta returns the changes as a delta that can be applied to, or reduced with, other deltas
func (w *WriteResult) Delta() *ObjectsDelta {
	return &ObjectsDelta{
		Insert:     w.Changes.Insert,
		Update:     w.Changes.Update,
		RemoveKeys: w.Changes.RemoveKeys,
		CreatedAt:  Now(),
	}
}

// WriteEngine applies batches of write actions to collections described by a DDL. An engine is
// immutable after construction and safe for concurrent use.
type WriteEngine struct {
	root       *Scope
	validator  Validator
	logger     Logger
	validators *safe.Map[Validator]
	perms      *permissionChecker
}

// NewWriteEngine compiles the DDL into an engine. The validator validates root records; if it is a
// ScopedValidator nested array elements are validated against their sub-schemas.
func NewWriteEngine(ddl DDL, validator Validator, opts ...EngineOpt) (*WriteEngine, error) {
	root, err := ddl.Compile()
	if err != nil {
		return nil, err
	}
	e := &WriteEngine{
		root:       root,
		validator:  validator,
		logger:     NopLogger(),
		validators: safe.NewMap[Validator](nil),
		perms:      newPermissionChecker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ApplyWriteActions compiles the DDL and applies the actions in one call
func ApplyWriteActions(ctx context.Context, actions []WriteAction, items Documents, validator Validator, ddl DDL, opts ...WriteOpt) (*WriteResult, error) {
	e, err := NewWriteEngine(ddl, validator)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, actions, items, opts...)
}

// Scope returns the engine's compiled root scope
func (e *WriteEngine) Scope() *Scope {
	return e.root
}

func (e *WriteEngine) scopeValidator(scope *Scope) (Validator, error) {
	if scope == e.root {
		return e.validator, nil
	}
	return e.validators.GetOrCompute(scope.Path, func() (Validator, error) {
		return scopeValidator(e.validator, scope.Path)
	})
}

// Apply applies the actions to items. Malformed actions (unknown array scopes, updates replacing an
// array scope) and items without a primary key are returned as errors before anything is applied.
// Per item failures are reported in the result: unless partial success is allowed any failure leaves
// the collection unchanged.
func (e *WriteEngine) Apply(ctx context.Context, actions []WriteAction, items Documents, opts ...WriteOpt) (*WriteResult, error) {
	o := newWriteOptions(opts)
	for _, a := range actions {
		if err := e.validatePayload(e.root, a.Payload); err != nil {
			return nil, errors.Wrap(err, errors.Validation, "invalid write action '%s'", a.UUID)
		}
	}
	e.logger.Debug(ctx, "applying write actions", map[string]any{
		"actions": len(actions),
		"items":   len(items),
	})
	r := &run{
		ctx:       ctx,
		engine:    e,
		scope:     e.root,
		validator: e.validator,
		opts:      o,
		failures:  newFailureTracker(),
		successes: newSuccessTracker(),
	}
	changes, err := r.apply(items, actions)
	if err != nil {
		return nil, err
	}
	result := &WriteResult{
		Status:            WriteOK,
		Changes:           changes,
		SuccessfulActions: r.successes.list(),
	}
	if !r.failures.empty() {
		result.Status = WriteError
		result.FailedActions = r.failures.list()
		e.logger.Warn(ctx, "write actions failed", map[string]any{
			"failed":                len(result.FailedActions),
			"allow_partial_success": o.allowPartialSuccess,
		})
		if !o.allowPartialSuccess {
			result.Changes = AppliedWrites{
				Insert:     Documents{},
				Update:     Documents{},
				RemoveKeys: []PrimaryKeyValue{},
				FinalItems: items,
			}
			result.SuccessfulActions = nil
		}
	}
	e.logger.Debug(ctx, "applied write actions", map[string]any{
		"status": result.Status,
		"insert": len(result.Changes.Insert),
		"update": len(result.Changes.Update),
		"remove": len(result.Changes.RemoveKeys),
	})
	return result, nil
}

// ApplyInPlace applies the actions and writes the resulting collection into items, reusing its
// backing array. Only touched elements get new pointers.
func (e *WriteEngine) ApplyInPlace(ctx context.Context, actions []WriteAction, items *Documents, opts ...WriteOpt) (*WriteResult, error) {
	result, err := e.Apply(ctx, actions, *items, opts...)
	if err != nil {
		return nil, err
	}
	if result.Changes.changed() {
		copyInto(items, result.Changes.FinalItems)
	}
	result.Changes.FinalItems = *items
	return result, nil
}

func (e *WriteEngine) validatePayload(scope *Scope, p Payload) error {
	switch p := p.(type) {
	case *CreatePayload, *DeletePayload:
		return nil
	case *UpdatePayload:
		switch p.Method {
		case "", UpdateMerge, UpdateAssign:
		default:
			return errors.New(errors.Validation, "unsupported update method '%s'", p.Method)
		}
		data, err := normalizeUpdate(p.Data)
		if err != nil {
			return err
		}
		for k, v := range data {
			if p.Method == UpdateAssign && scope.isArrayScope(k) {
				return errors.New(errors.Validation, "update replaces array scope '%s': use array_scope", k)
			}
			if path := arrayScopeConflict(scope, k, v); path != "" {
				return errors.New(errors.Validation, "update replaces array scope '%s': use array_scope", path)
			}
		}
		return nil
	case *ArrayScopePayload:
		child, ok := scope.Child(p.Scope)
		if !ok {
			return errors.New(errors.Validation, "unknown array scope '%s' in scope '%s'", p.Scope, scope.Path)
		}
		return e.validatePayload(child, p.Action)
	case nil:
		return errors.New(errors.Validation, "missing payload")
	}
	return errors.New(errors.Validation, "unsupported payload %T", p)
}

// arrayScopeConflict returns the array scope a merged value would overwrite
func arrayScopeConflict(scope *Scope, path string, value any) string {
	if _, ok := scope.Child(path); ok {
		return path
	}
	if !scope.isArrayScope(path) {
		return ""
	}
	m, ok := value.(map[string]any)
	if !ok {
		return path
	}
	for k, v := range m {
		if c := arrayScopeConflict(scope, path+"."+k, v); c != "" {
			return c
		}
	}
	return ""
}

// successTracker records which items every action changed
type successTracker struct {
	order  []string
	byUUID map[string]*SuccessfulAction
}

func newSuccessTracker() *successTracker {
	return &successTracker{byUUID: map[string]*SuccessfulAction{}}
}

func (s *successTracker) add(action WriteAction, key PrimaryKeyValue) {
	sa, ok := s.byUUID[action.UUID]
	if !ok {
		sa = &SuccessfulAction{Action: action}
		s.byUUID[action.UUID] = sa
		s.order = append(s.order, action.UUID)
	}
	for _, k := range sa.AffectedItems {
		if k == key {
			return
		}
	}
	sa.AffectedItems = append(sa.AffectedItems, key)
}

func (s *successTracker) list() []SuccessfulAction {
	return lo.Map(s.order, func(uuid string, _ int) SuccessfulAction {
		return *s.byUUID[uuid]
	})
}

// itemState follows one record through a batch
type itemState struct {
	key PrimaryKeyValue
	// original is nil for records created by the batch
	original *Document
	current  *Document
	deleted  bool
}

// run applies actions to the items of one scope
type run struct {
	ctx       context.Context
	engine    *WriteEngine
	scope     *Scope
	validator Validator
	opts      *writeOptions
	failures  *failureTracker
	successes *successTracker
	// budget is the remaining simulated action applications, nil outside a recovery simulation
	budget *int
}

func (r *run) child(scope *Scope, validator Validator) *run {
	return &run{
		ctx:       r.ctx,
		engine:    r.engine,
		scope:     scope,
		validator: validator,
		opts:      r.opts,
		failures:  newFailureTracker(),
		successes: newSuccessTracker(),
		budget:    r.budget,
	}
}

func (r *run) apply(items Documents, actions []WriteAction) (AppliedWrites, error) {
	index, err := newKeyIndex(r.scope.PrimaryKey, items)
	if err != nil {
		return AppliedWrites{}, errors.Wrap(err, errors.Validation, "scope '%s'", r.scope.Path)
	}
	states := make([]*itemState, len(items))
	byKey := make(map[PrimaryKeyValue]*itemState, len(items))
	for i, item := range items {
		st := &itemState{key: index.keys[i], original: item, current: item}
		states[i] = st
		byKey[st.key] = st
	}
	var created []*itemState
	for i, a := range actions {
		p, ok := a.Payload.(*CreatePayload)
		if !ok {
			continue
		}
		if err := r.ctx.Err(); err != nil {
			return AppliedWrites{}, err
		}
		if st := r.create(a, p, actions[i+1:], byKey); st != nil {
			created = append(created, st)
		}
	}
	for _, st := range append(append([]*itemState{}, states...), created...) {
		if err := r.ctx.Err(); err != nil {
			return AppliedWrites{}, err
		}
		r.process(st, actions)
	}
	return collect(items, states, created), nil
}

// create stages a create action and returns the new record's state, or nil if nothing was staged
func (r *run) create(a WriteAction, p *CreatePayload, later []WriteAction, byKey map[PrimaryKeyValue]*itemState) *itemState {
	pk := r.scope.PrimaryKey
	key := pk.GetAllowMissing(p.Data)
	if key == "" {
		r.failures.fail(a, key, p.Data, ErrorDetails{
			Type:    FailureMissingKey,
			Message: "missing primary key '" + pk.String() + "'",
		})
		return nil
	}
	existing, exists := byKey[key]
	if exists {
		switch r.opts.recoverDuplicateCreate {
		case RecoverIfIdentical:
			if r.recoverable(existing.current, p.Data, later) {
				r.engine.logger.Debug(r.ctx, "recovered duplicate create", map[string]any{
					"scope":  r.scope.Path,
					"key":    key,
					"action": a.UUID,
				})
				r.successes.add(a, key)
				return nil
			}
			r.duplicate(a, key, p.Data)
			return nil
		case RecoverAlwaysUpdate:
			if reason := r.permit(existing.current, a); reason != "" {
				r.failures.fail(a, key, p.Data, denied(reason))
				return nil
			}
		default:
			r.duplicate(a, key, p.Data)
			return nil
		}
	}
	if issues := validate(r.validator, p.Data); len(issues) > 0 {
		r.failures.fail(a, key, p.Data, ErrorDetails{Type: FailureSchema, Issues: issues})
		return nil
	}
	if reason := r.permit(p.Data, a); reason != "" {
		r.failures.fail(a, key, p.Data, denied(reason))
		return nil
	}
	r.successes.add(a, key)
	if exists {
		existing.current = p.Data
		return nil
	}
	st := &itemState{key: key, current: p.Data}
	byKey[key] = st
	return st
}

func (r *run) duplicate(a WriteAction, key PrimaryKeyValue, data *Document) {
	r.failures.fail(a, key, data, ErrorDetails{
		Type:    FailureCreateDuplicatedKey,
		Message: "key '" + keyString(key) + "' already exists",
	})
}

// recoverable replays the later actions starting from the create's data and reports whether the
// existing record contains the result at any step
func (r *run) recoverable(existing, data *Document, later []WriteAction) bool {
	if existing.Contains(data) {
		return true
	}
	budget := r.budget
	if budget == nil {
		limit := r.opts.recoveryLimit
		budget = &limit
	}
	sim := r.child(r.scope, r.validator)
	sim.budget = budget
	st := &itemState{key: r.scope.PrimaryKey.GetAllowMissing(data), current: data}
	for _, a := range later {
		if _, ok := a.Payload.(*CreatePayload); ok {
			continue
		}
		if *budget <= 0 {
			return false
		}
		sim.process(st, []WriteAction{a})
		if st.deleted {
			return false
		}
		if existing.Contains(st.current) {
			return true
		}
	}
	return false
}

// process runs the non-create actions matching the record in order
func (r *run) process(st *itemState, actions []WriteAction) {
	for _, a := range actions {
		if st.deleted {
			return
		}
		if _, ok := a.Payload.(*CreatePayload); ok {
			continue
		}
		if !Match(st.current, payloadWhere(a.Payload)) {
			continue
		}
		if by, ok := r.failures.blockedBy(st.key); ok {
			r.failures.block(a, st.key, st.current, by)
			continue
		}
		if r.budget != nil {
			if *r.budget <= 0 {
				return
			}
			*r.budget--
		}
		switch p := a.Payload.(type) {
		case *DeletePayload:
			r.delete(st, a)
		case *UpdatePayload:
			r.update(st, p, a)
		case *ArrayScopePayload:
			r.arrayScope(st, p, a)
		}
	}
}

func (r *run) delete(st *itemState, a WriteAction) {
	if reason := r.permit(st.current, a); reason != "" {
		r.failures.failItem(a, st.key, st.current, denied(reason))
		return
	}
	if g := r.scope.Growset; g != nil {
		next := st.current.Clone()
		if err := next.Set(g.DeleteKey, true); err != nil {
			r.failures.failItem(a, st.key, st.current, custom(err))
			return
		}
		r.commit(st, next, a)
		return
	}
	st.deleted = true
	r.successes.add(a, st.key)
}

func (r *run) update(st *itemState, p *UpdatePayload, a WriteAction) {
	if reason := r.permit(st.current, a); reason != "" {
		r.failures.failItem(a, st.key, st.current, denied(reason))
		return
	}
	next := st.current.Clone()
	var err error
	if p.Method == UpdateAssign {
		err = next.Assign(p.Data)
	} else {
		err = next.Merge(p.Data)
	}
	if err != nil {
		r.failures.failItem(a, st.key, st.current, custom(err))
		return
	}
	r.commit(st, next, a)
}

// arrayScope applies the nested action to every array at the scope path. Nested failures fail the
// outer action on this record and leave it unchanged.
func (r *run) arrayScope(st *itemState, p *ArrayScopePayload, a WriteAction) {
	if reason := r.permit(st.current, a); reason != "" {
		r.failures.failItem(a, st.key, st.current, denied(reason))
		return
	}
	scope, ok := r.scope.Child(p.Scope)
	if !ok {
		r.failures.failItem(a, st.key, st.current, ErrorDetails{Type: FailureCustom, Message: "unknown array scope '" + p.Scope + "'"})
		return
	}
	validator, err := r.engine.scopeValidator(scope)
	if err != nil {
		r.failures.failItem(a, st.key, st.current, custom(err))
		return
	}
	nestedAction := WriteAction{Type: a.Type, Ts: a.Ts, UUID: a.UUID, Payload: p.Action}
	next := st.current.Clone()
	changed := false
	for _, found := range arraysAt(st.current, scope.Segments) {
		elements, err := toDocuments(found.Value)
		if err != nil {
			r.failures.failItem(a, st.key, st.current, custom(err))
			return
		}
		nested := r.child(scope, validator)
		out, err := nested.apply(elements, []WriteAction{nestedAction})
		if err != nil {
			r.failures.failItem(a, st.key, st.current, custom(err))
			return
		}
		if !nested.failures.empty() {
			r.failures.merge(a, st.key, st.current, nested.failures.list())
			return
		}
		if !out.changed() {
			continue
		}
		if err := next.set(joinPath(found.Segments), rawArray(out.FinalItems)); err != nil {
			r.failures.failItem(a, st.key, st.current, custom(err))
			return
		}
		changed = true
	}
	if !changed {
		r.successes.add(a, st.key)
		return
	}
	r.commit(st, next, a)
}

// commit checks the mutated record and makes it current
func (r *run) commit(st *itemState, next *Document, a WriteAction) {
	if key := r.scope.PrimaryKey.GetAllowMissing(next); key != st.key {
		r.failures.failItem(a, st.key, st.current, ErrorDetails{
			Type:    FailureUpdateAlteredKey,
			Message: "primary key '" + r.scope.PrimaryKey.String() + "' cannot be changed",
		})
		return
	}
	if issues := validate(r.validator, next); len(issues) > 0 {
		r.failures.failItem(a, st.key, st.current, ErrorDetails{Type: FailureSchema, Issues: issues})
		return
	}
	if reason := r.permit(next, a); reason != "" {
		r.failures.failItem(a, st.key, st.current, denied(reason))
		return
	}
	if !next.Equal(st.current) {
		st.current = next
	}
	r.successes.add(a, st.key)
}

func (r *run) permit(item *Document, a WriteAction) string {
	if r.opts.ownershipCheck != nil {
		return r.opts.ownershipCheck(r.scope, item, r.opts.user, a)
	}
	return r.engine.perms.check(r.scope, item, r.opts.user, a)
}

func denied(reason string) ErrorDetails {
	return ErrorDetails{Type: FailurePermissionDenied, Reason: reason, Message: "permission denied: " + reason}
}

func custom(err error) ErrorDetails {
	return ErrorDetails{Type: FailureCustom, Message: err.Error()}
}

// collect buckets the item states into the batch's changes
func collect(items Documents, states, created []*itemState) AppliedWrites {
	out := AppliedWrites{
		Insert:     Documents{},
		Update:     Documents{},
		RemoveKeys: []PrimaryKeyValue{},
	}
	final := make(Documents, 0, len(items)+len(created))
	for _, st := range states {
		if st.deleted {
			out.RemoveKeys = append(out.RemoveKeys, st.key)
			continue
		}
		if st.current != st.original && !st.current.Equal(st.original) {
			out.Update = append(out.Update, st.current)
			final = append(final, st.current)
			continue
		}
		final = append(final, st.original)
	}
	for _, st := range created {
		if st.deleted {
			continue
		}
		out.Insert = append(out.Insert, st.current)
		final = append(final, st.current)
	}
	if !out.changed() {
		final = items
	}
	out.FinalItems = final
	return out
}

// arraysAt returns every array at the scope path, spreading over intermediate arrays. A missing
// array whose parent object exists yields an empty array so nested creates can add to it.
func arraysAt(doc *Document, segments []string) []PathValue {
	found := lo.Filter(doc.GetAll(strings.Join(segments, ".")), func(pv PathValue, _ int) bool {
		_, ok := pv.Value.([]any)
		return ok
	})
	if len(found) > 0 {
		return found
	}
	if doc.Exists(strings.Join(segments, ".")) {
		return nil
	}
	if len(segments) > 1 {
		if _, ok := doc.Get(strings.Join(segments[:len(segments)-1], ".")).(map[string]any); !ok {
			return nil
		}
	}
	return []PathValue{{Segments: segments, Value: []any{}}}
}

func toDocuments(value any) (Documents, error) {
	elements, ok := value.([]any)
	if !ok {
		return nil, errors.New(errors.Validation, "expected an array, got %T", value)
	}
	items := make(Documents, 0, len(elements))
	for i, element := range elements {
		if _, ok := element.(map[string]any); !ok {
			return nil, errors.New(errors.Validation, "array element %d is not an object", i)
		}
		doc, err := NewDocumentFrom(element)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	return items, nil
}

func rawArray(items Documents) []byte {
	raw := lo.Map(items, func(item *Document, _ int) string {
		return item.String()
	})
	return []byte("[" + strings.Join(raw, ",") + "]")
}
