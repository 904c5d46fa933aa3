package jsondelta

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// Filter is a declarative predicate over documents. It is either a Logic node or a Where leaf.
type Filter interface {
	filterNode()
}

// LogicOp combines child filters
type LogicOp string

const (
	// LogicAnd matches if every child matches
	LogicAnd LogicOp = "and"
	// LogicOr matches if any child matches
	LogicOr LogicOp = "or"
	// LogicNot matches if its single child does not match
	LogicNot LogicOp = "not"
)

// Logic is a logical combination of filters
type Logic struct {
	Op      LogicOp
	Filters []Filter
}

func (Logic) filterNode() {}

// WhereOp is an operation belonging to a where clause
type WhereOp string

// WhereOpEq is an equality check. Against an array field it matches if any element is equal.
const WhereOpEq WhereOp = "eq"

// WhereOpNeq is a non-equality check
const WhereOpNeq WhereOp = "neq"

// WhereOpGt is a check whether a value is greater than another
const WhereOpGt WhereOp = "gt"

// WhereOpGte is a check whether a value is greater than or equal to another
const WhereOpGte WhereOp = "gte"

// WhereOpLt is a check whether a value is less than another
const WhereOpLt WhereOp = "lt"

// WhereOpLte is a check whether a values is less than or equal to another
const WhereOpLte WhereOp = "lte"

// WhereOpContains checks if a string field contains subtext
const WhereOpContains WhereOp = "contains"

// WhereOpIn is a check whether a value is one of a list of values
const WhereOpIn WhereOp = "in"

// WhereOpNin is a check whether a value is none of a list of values
const WhereOpNin WhereOp = "nin"

// WhereOpExists checks whether a field is present (true) or absent (false)
const WhereOpExists WhereOp = "exists"

// WhereOpContainsAll is a check whether an array contains all of the given array values
const WhereOpContainsAll WhereOp = "containsAll"

// WhereOpContainsAny is a check whether an array contains any of the given array values
const WhereOpContainsAny WhereOp = "containsAny"

// WhereOpElemMatch checks whether any element of an array matches a nested Filter
const WhereOpElemMatch WhereOp = "elemMatch"

// WhereOpHasPrefix is a check whether a string value has a prefix
const WhereOpHasPrefix WhereOp = "hasPrefix"

// WhereOpHasSuffix is a check whether a string value has a suffix
const WhereOpHasSuffix WhereOp = "hasSuffix"

// WhereOpRegex is a check whtether a string value matches a regex expression
const WhereOpRegex WhereOp = "regex"

var whereOps = map[string]WhereOp{
	"eq":          WhereOpEq,
	"neq":         WhereOpNeq,
	"ne":          WhereOpNeq,
	"gt":          WhereOpGt,
	"gte":         WhereOpGte,
	"lt":          WhereOpLt,
	"lte":         WhereOpLte,
	"contains":    WhereOpContains,
	"in":          WhereOpIn,
	"nin":         WhereOpNin,
	"exists":      WhereOpExists,
	"containsAll": WhereOpContainsAll,
	"containsAny": WhereOpContainsAny,
	"elemMatch":   WhereOpElemMatch,
	"elem_match":  WhereOpElemMatch,
	"hasPrefix":   WhereOpHasPrefix,
	"hasSuffix":   WhereOpHasSuffix,
	"regex":       WhereOpRegex,
}

// elementField addresses a scalar array element inside an elemMatch filter
const elementField = "$value"

// Where compares the value(s) at a dot notation field against Value
type Where struct {
	// Field is a dot notation path. Intermediate arrays are spread.
	Field string `json:"field" validate:"required"`
	// Op is an operator used to compare the field against the value.
	Op WhereOp `json:"op" validate:"required"`
	// Value is a value to compare against the field. For elemMatch it is a Filter.
	Value any `json:"value"`

	re *regexp.Regexp
}

func (Where) filterNode() {}

// And returns a filter matching documents that match every filter
func And(filters ...Filter) Filter {
	return Logic{Op: LogicAnd, Filters: filters}
}

// Or returns a filter matching documents that match any filter
func Or(filters ...Filter) Filter {
	return Logic{Op: LogicOr, Filters: filters}
}

// Not returns a filter matching documents that do not match the filter
func Not(filter Filter) Filter {
	return Logic{Op: LogicNot, Filters: []Filter{filter}}
}

// Eq returns an equality filter
func Eq(field string, value any) Filter {
	return Where{Field: field, Op: WhereOpEq, Value: value}
}

// Match returns true if the document matches the filter. A nil filter matches everything.
func Match(d *Document, filter Filter) bool {
	if filter == nil {
		return true
	}
	switch f := filter.(type) {
	case Logic:
		return matchLogic(d, f)
	case *Logic:
		return matchLogic(d, *f)
	case Where:
		return matchWhere(d, f)
	case *Where:
		return matchWhere(d, *f)
	}
	return false
}

func matchLogic(d *Document, f Logic) bool {
	switch f.Op {
	case LogicAnd:
		for _, child := range f.Filters {
			if !Match(d, child) {
				return false
			}
		}
		return true
	case LogicOr:
		for _, child := range f.Filters {
			if Match(d, child) {
				return true
			}
		}
		return false
	case LogicNot:
		if len(f.Filters) != 1 {
			return false
		}
		return !Match(d, f.Filters[0])
	}
	return false
}

func matchWhere(d *Document, w Where) bool {
	found := d.GetAll(w.Field)
	values := lo.Map(found, func(p PathValue, _ int) any {
		return p.Value
	})
	switch w.Op {
	case WhereOpEq:
		return lo.SomeBy(values, func(v any) bool { return equalOrContains(v, w.Value) })
	case WhereOpNeq:
		return !lo.SomeBy(values, func(v any) bool { return equalOrContains(v, w.Value) })
	case WhereOpGt, WhereOpGte, WhereOpLt, WhereOpLte:
		return lo.SomeBy(values, func(v any) bool { return compareOp(w.Op, v, w.Value) })
	case WhereOpContains:
		return lo.SomeBy(values, func(v any) bool {
			s, ok := v.(string)
			return ok && strings.Contains(s, cast.ToString(w.Value))
		})
	case WhereOpIn:
		return lo.SomeBy(values, func(v any) bool { return inList(v, w.Value) })
	case WhereOpNin:
		return !lo.SomeBy(values, func(v any) bool { return inList(v, w.Value) })
	case WhereOpExists:
		return (len(values) > 0) == cast.ToBool(w.Value)
	case WhereOpContainsAll:
		return lo.SomeBy(values, func(v any) bool {
			arr, ok := v.([]any)
			return ok && lo.EveryBy(cast.ToSlice(w.Value), func(want any) bool {
				return lo.SomeBy(arr, func(have any) bool { return util.Equal(have, want) })
			})
		})
	case WhereOpContainsAny:
		return lo.SomeBy(values, func(v any) bool {
			arr, ok := v.([]any)
			return ok && lo.SomeBy(cast.ToSlice(w.Value), func(want any) bool {
				return lo.SomeBy(arr, func(have any) bool { return util.Equal(have, want) })
			})
		})
	case WhereOpElemMatch:
		sub, ok := w.Value.(Filter)
		if !ok {
			return false
		}
		return lo.SomeBy(values, func(v any) bool {
			arr, ok := v.([]any)
			return ok && lo.SomeBy(arr, func(element any) bool {
				return Match(elementDocument(element), sub)
			})
		})
	case WhereOpHasPrefix:
		return lo.SomeBy(values, func(v any) bool {
			s, ok := v.(string)
			return ok && strings.HasPrefix(s, cast.ToString(w.Value))
		})
	case WhereOpHasSuffix:
		return lo.SomeBy(values, func(v any) bool {
			s, ok := v.(string)
			return ok && strings.HasSuffix(s, cast.ToString(w.Value))
		})
	case WhereOpRegex:
		re := w.re
		if re == nil {
			var err error
			if re, err = regexp.Compile(cast.ToString(w.Value)); err != nil {
				return false
			}
		}
		return lo.SomeBy(values, func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		})
	}
	return false
}

func elementDocument(element any) *Document {
	if m, ok := element.(map[string]any); ok {
		if d, err := NewDocumentFrom(m); err == nil {
			return d
		}
	}
	return MustDocument(map[string]any{elementField: element})
}

func equalOrContains(have, want any) bool {
	if util.Equal(have, want) {
		return true
	}
	if arr, ok := have.([]any); ok {
		if _, wantArr := want.([]any); !wantArr {
			return lo.SomeBy(arr, func(element any) bool { return util.Equal(element, want) })
		}
	}
	return false
}

func inList(have, list any) bool {
	return lo.SomeBy(cast.ToSlice(list), func(want any) bool {
		return equalOrContains(have, want)
	})
}

func compareOp(op WhereOp, have, want any) bool {
	c, ok := util.Compare(have, want)
	if !ok {
		return false
	}
	// numbers and strings are not compared against each other by range operators
	if util.IsNumber(have) != util.IsNumber(want) {
		return false
	}
	switch op {
	case WhereOpGt:
		return c > 0
	case WhereOpGte:
		return c >= 0
	case WhereOpLt:
		return c < 0
	case WhereOpLte:
		return c <= 0
	}
	return false
}

// ParseFilter parses the object form of a filter:
//
//	{"status": "done", "age": {"$gte": 18}, "$or": [{"a": 1}, {"b": {"$exists": false}}]}
//
// A nil or empty object matches everything.
func ParseFilter(value any) (Filter, error) {
	if value == nil {
		return nil, nil
	}
	if f, ok := value.(Filter); ok {
		return f, nil
	}
	normalized, err := util.Normalize(value)
	if err != nil {
		return nil, err
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil, errors.New(errors.Validation, "invalid filter: expected an object, got %s", util.JSONString(value))
	}
	return parseFilterObject(m)
}

// ParseFilterJSON parses a filter from json bytes
func ParseFilterJSON(bits []byte) (Filter, error) {
	if len(bits) == 0 || string(bits) == "null" {
		return nil, nil
	}
	var m any
	if err := json.Unmarshal(bits, &m); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "invalid filter json")
	}
	return ParseFilter(m)
}

func parseFilterObject(m map[string]any) (Filter, error) {
	keys := lo.Keys(m)
	sort.Strings(keys)
	var filters []Filter
	for _, k := range keys {
		v := m[k]
		switch k {
		case "$and", "$or":
			arr, ok := v.([]any)
			if !ok {
				return nil, errors.New(errors.Validation, "invalid filter: %s expects an array", k)
			}
			children := make([]Filter, 0, len(arr))
			for _, a := range arr {
				child, err := ParseFilter(a)
				if err != nil {
					return nil, err
				}
				if child != nil {
					children = append(children, child)
				}
			}
			op := LogicAnd
			if k == "$or" {
				op = LogicOr
			}
			filters = append(filters, Logic{Op: op, Filters: children})
		case "$not":
			child, err := ParseFilter(v)
			if err != nil {
				return nil, err
			}
			filters = append(filters, Not(child))
		default:
			if strings.HasPrefix(k, "$") && k != elementField {
				return nil, errors.New(errors.Validation, "invalid filter: unknown logical operator '%s'", k)
			}
			conditions, err := parseConditions(k, v)
			if err != nil {
				return nil, err
			}
			filters = append(filters, conditions...)
		}
	}
	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		return filters[0], nil
	}
	return Logic{Op: LogicAnd, Filters: filters}, nil
}

func isOperatorObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func parseConditions(field string, v any) ([]Filter, error) {
	ops, ok := isOperatorObject(v)
	if !ok {
		return []Filter{Where{Field: field, Op: WhereOpEq, Value: v}}, nil
	}
	keys := lo.Keys(ops)
	sort.Strings(keys)
	var filters []Filter
	for _, k := range keys {
		if k == "$not" {
			inner, err := parseConditions(field, ops[k])
			if err != nil {
				return nil, err
			}
			filters = append(filters, Not(Logic{Op: LogicAnd, Filters: inner}))
			continue
		}
		op, ok := whereOps[strings.TrimPrefix(k, "$")]
		if !ok {
			return nil, errors.New(errors.Validation, "invalid filter: unknown operator '%s' on field '%s'", k, field)
		}
		w := Where{Field: field, Op: op, Value: ops[k]}
		if err := w.compile(); err != nil {
			return nil, err
		}
		filters = append(filters, w)
	}
	return filters, nil
}

// compile validates the operand and prepares the where clause for matching
func (w *Where) compile() error {
	switch w.Op {
	case WhereOpIn, WhereOpNin, WhereOpContainsAll, WhereOpContainsAny:
		if _, ok := w.Value.([]any); !ok {
			return errors.New(errors.Validation, "invalid filter: '%s' on field '%s' expects an array", w.Op, w.Field)
		}
	case WhereOpExists:
		if _, ok := w.Value.(bool); !ok {
			return errors.New(errors.Validation, "invalid filter: '%s' on field '%s' expects a boolean", w.Op, w.Field)
		}
	case WhereOpRegex:
		re, err := regexp.Compile(cast.ToString(w.Value))
		if err != nil {
			return errors.Wrap(err, errors.Validation, "invalid filter: bad regex on field '%s'", w.Field)
		}
		w.re = re
	case WhereOpElemMatch:
		sub, err := parseElemMatch(w.Value)
		if err != nil {
			return err
		}
		w.Value = sub
	}
	return nil
}

func parseElemMatch(v any) (Filter, error) {
	if f, ok := v.(Filter); ok {
		return f, nil
	}
	if ops, ok := isOperatorObject(v); ok {
		if _, logical := ops["$and"]; !logical {
			if _, logical := ops["$or"]; !logical {
				conditions, err := parseConditions(elementField, ops)
				if err != nil {
					return nil, err
				}
				return Logic{Op: LogicAnd, Filters: conditions}, nil
			}
		}
	}
	return ParseFilter(v)
}

// FilterValue returns the object form of the filter, the inverse of ParseFilter
func FilterValue(filter Filter) any {
	switch f := filter.(type) {
	case nil:
		return map[string]any{}
	case *Logic:
		return FilterValue(*f)
	case *Where:
		return FilterValue(*f)
	case Logic:
		children := lo.Map(f.Filters, func(c Filter, _ int) any { return FilterValue(c) })
		switch f.Op {
		case LogicNot:
			if len(children) == 1 {
				return map[string]any{"$not": children[0]}
			}
			return map[string]any{"$not": map[string]any{"$and": children}}
		case LogicOr:
			return map[string]any{"$or": children}
		}
		return map[string]any{"$and": children}
	case Where:
		value := f.Value
		if sub, ok := value.(Filter); ok {
			value = FilterValue(sub)
		}
		return map[string]any{f.Field: map[string]any{"$" + string(f.Op): value}}
	}
	return map[string]any{}
}

// MarshalFilter encodes the filter to its json object form
func MarshalFilter(filter Filter) ([]byte, error) {
	return json.Marshal(FilterValue(filter))
}
