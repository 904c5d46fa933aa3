package jsondelta

import (
	"encoding/json"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
)

const deleteFieldKey = "$delete"

type deleteField struct{}

// MarshalJSON encodes the sentinel as {"$delete":true}
func (deleteField) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]bool{deleteFieldKey: true})
}

// DeleteField is an update value that removes the key it is assigned to
var DeleteField any = deleteField{}

// IsDeleteField returns true if the value is the DeleteField sentinel or its json form
func IsDeleteField(value any) bool {
	switch value := value.(type) {
	case deleteField:
		return true
	case map[string]any:
		return len(value) == 1 && value[deleteFieldKey] == true
	}
	return false
}

// normalizeUpdate converts update values to their generic json form, keeping DeleteField sentinels intact
func normalizeUpdate(values map[string]any) (map[string]any, error) {
	normalized, err := util.Normalize(values)
	if err != nil {
		return nil, err
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil, errors.New(errors.Validation, "update values must be an object")
	}
	return restoreDeleteFields(m).(map[string]any), nil
}

func restoreDeleteFields(value any) any {
	switch value := value.(type) {
	case map[string]any:
		if IsDeleteField(value) {
			return DeleteField
		}
		for k, v := range value {
			value[k] = restoreDeleteFields(v)
		}
		return value
	case []any:
		for i, v := range value {
			value[i] = restoreDeleteFields(v)
		}
		return value
	}
	return value
}
