package jsondelta

import (
	"encoding/json"
	"time"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cast"
)

// WriteActionType is the type of every write action
const WriteActionType = "write"

// PayloadType discriminates write action payloads
type PayloadType string

const (
	PayloadCreate     PayloadType = "create"
	PayloadUpdate     PayloadType = "update"
	PayloadDelete     PayloadType = "delete"
	PayloadArrayScope PayloadType = "array_scope"
)

// UpdateMethod is how update data is applied to a record
type UpdateMethod string

const (
	// UpdateMerge deep merges objects, arrays and scalars replace
	UpdateMerge UpdateMethod = "merge"
	// UpdateAssign shallowly overwrites top level keys
	UpdateAssign UpdateMethod = "assign"
)

// Payload is one of *CreatePayload, *UpdatePayload, *DeletePayload or *ArrayScopePayload
type Payload interface {
	Type() PayloadType
	payloadNode()
}

// CreatePayload creates a record
type CreatePayload struct {
	Data *Document
}

// UpdatePayload changes every record matching Where. Data must not replace array scopes.
type UpdatePayload struct {
	Data   map[string]any
	Where  Filter
	Method UpdateMethod
}

// DeletePayload deletes every record matching Where
type DeletePayload struct {
	Where Filter
}

// ArrayScopePayload applies Action to the elements of the arrays at Scope (relative to the current scope)
// of every record matching Where
type ArrayScopePayload struct {
	Scope  string
	Action Payload
	Where  Filter
}

func (*CreatePayload) Type() PayloadType     { return PayloadCreate }
func (*UpdatePayload) Type() PayloadType     { return PayloadUpdate }
func (*DeletePayload) Type() PayloadType     { return PayloadDelete }
func (*ArrayScopePayload) Type() PayloadType { return PayloadArrayScope }

func (*CreatePayload) payloadNode()     {}
func (*UpdatePayload) payloadNode()     {}
func (*DeletePayload) payloadNode()     {}
func (*ArrayScopePayload) payloadNode() {}

// WriteAction is a single declarative mutation
type WriteAction struct {
	Type    string
	Ts      int64
	UUID    string
	Payload Payload
}

// NewWriteAction stamps the payload with the current time and a new uuid
func NewWriteAction(payload Payload) WriteAction {
	return WriteAction{
		Type:    WriteActionType,
		Ts:      time.Now().UnixMilli(),
		UUID:    ksuid.New().String(),
		Payload: payload,
	}
}

// Create returns a create write action
func Create(data *Document) WriteAction {
	return NewWriteAction(&CreatePayload{Data: data})
}

// Update returns a merge update write action
func Update(where Filter, data map[string]any) WriteAction {
	return NewWriteAction(&UpdatePayload{Data: data, Where: where, Method: UpdateMerge})
}

// Delete returns a delete write action
func Delete(where Filter) WriteAction {
	return NewWriteAction(&DeletePayload{Where: where})
}

// ArrayScope returns an array_scope write action
func ArrayScope(scope string, where Filter, action Payload) WriteAction {
	return NewWriteAction(&ArrayScopePayload{Scope: scope, Where: where, Action: action})
}

// MarshalJSON encodes the action as {type, ts, uuid, payload}
func (w WriteAction) MarshalJSON() ([]byte, error) {
	payload, err := payloadValue(w.Payload)
	if err != nil {
		return nil, err
	}
	typ := w.Type
	if typ == "" {
		typ = WriteActionType
	}
	return json.Marshal(map[string]any{
		"type":    typ,
		"ts":      w.Ts,
		"uuid":    w.UUID,
		"payload": payload,
	})
}

// UnmarshalJSON decodes the action, discriminating the payload on payload.type
func (w *WriteAction) UnmarshalJSON(bits []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(bits, &raw); err != nil {
		return errors.Wrap(err, errors.Validation, "invalid write action")
	}
	typ := cast.ToString(raw["type"])
	if typ != WriteActionType {
		return errors.New(errors.Validation, "invalid write action type: '%s'", typ)
	}
	payload, err := parsePayload(raw["payload"])
	if err != nil {
		return err
	}
	*w = WriteAction{
		Type:    typ,
		Ts:      cast.ToInt64(raw["ts"]),
		UUID:    cast.ToString(raw["uuid"]),
		Payload: payload,
	}
	return nil
}

// ParseWriteActions decodes a json or yaml array of write actions
func ParseWriteActions(content []byte) ([]WriteAction, error) {
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to convert write actions to json")
	}
	var actions []WriteAction
	if err := json.Unmarshal(jsonContent, &actions); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to decode write actions")
	}
	return actions, nil
}

func payloadValue(p Payload) (map[string]any, error) {
	switch p := p.(type) {
	case *CreatePayload:
		if p.Data == nil {
			return nil, errors.New(errors.Validation, "create payload: missing data")
		}
		return map[string]any{"type": PayloadCreate, "data": p.Data}, nil
	case *UpdatePayload:
		method := p.Method
		if method == "" {
			method = UpdateMerge
		}
		return map[string]any{"type": PayloadUpdate, "data": p.Data, "where": FilterValue(p.Where), "method": method}, nil
	case *DeletePayload:
		return map[string]any{"type": PayloadDelete, "where": FilterValue(p.Where)}, nil
	case *ArrayScopePayload:
		action, err := payloadValue(p.Action)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": PayloadArrayScope, "scope": p.Scope, "where": FilterValue(p.Where), "action": action}, nil
	}
	return nil, errors.New(errors.Validation, "unsupported write payload: %T", p)
}

func parseWhere(value any) (Filter, error) {
	if value == nil {
		return nil, nil
	}
	return ParseFilter(value)
}

func parsePayload(value any) (Payload, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, errors.New(errors.Validation, "write payload must be an object")
	}
	switch PayloadType(cast.ToString(m["type"])) {
	case PayloadCreate:
		data, err := NewDocumentFrom(m["data"])
		if err != nil {
			return nil, errors.Wrap(err, errors.Validation, "create payload: invalid data")
		}
		return &CreatePayload{Data: data}, nil
	case PayloadUpdate:
		data, ok := m["data"].(map[string]any)
		if !ok {
			return nil, errors.New(errors.Validation, "update payload: data must be an object")
		}
		where, err := parseWhere(m["where"])
		if err != nil {
			return nil, err
		}
		method := UpdateMethod(cast.ToString(m["method"]))
		switch method {
		case "":
			method = UpdateMerge
		case UpdateMerge, UpdateAssign:
		default:
			return nil, errors.New(errors.Validation, "update payload: unsupported method '%s'", method)
		}
		return &UpdatePayload{
			Data:   restoreDeleteFields(data).(map[string]any),
			Where:  where,
			Method: method,
		}, nil
	case PayloadDelete:
		where, err := parseWhere(m["where"])
		if err != nil {
			return nil, err
		}
		return &DeletePayload{Where: where}, nil
	case PayloadArrayScope:
		scope := cast.ToString(m["scope"])
		if scope == "" {
			return nil, errors.New(errors.Validation, "array_scope payload: missing scope")
		}
		where, err := parseWhere(m["where"])
		if err != nil {
			return nil, err
		}
		action, err := parsePayload(m["action"])
		if err != nil {
			return nil, err
		}
		return &ArrayScopePayload{Scope: scope, Where: where, Action: action}, nil
	}
	return nil, errors.New(errors.Validation, "unsupported write payload type: '%v'", m["type"])
}

// payloadWhere returns the filter that selects the records a payload applies to
func payloadWhere(p Payload) Filter {
	switch p := p.(type) {
	case *UpdatePayload:
		return p.Where
	case *DeletePayload:
		return p.Where
	case *ArrayScopePayload:
		return p.Where
	}
	return nil
}
