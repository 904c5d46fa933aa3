package util

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/autom8ter/jsondelta/errors"
	"github.com/ghodss/yaml"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

var validate = validator.New()

// ValidateStruct validates the struct's `validate` tags
func ValidateStruct(val any) error {
	return errors.Wrap(validate.Struct(val), errors.Validation, "")
}

// Decode decodes the input into the output based on json tags
func Decode(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput:     true,
		Result:               output,
		TagName:              "json",
		IgnoreUntaggedFields: true,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// JSONString returns a json string of the input
func JSONString(input any) string {
	bits, _ := json.Marshal(input)
	return string(bits)
}

// YAMLToJSON converts yaml content to json. JSON content is returned as is.
func YAMLToJSON(yamlContent []byte) ([]byte, error) {
	if isJSON(string(yamlContent)) {
		return yamlContent, nil
	}
	return yaml.YAMLToJSON(yamlContent)
}

// JSONToYAML converts json content to yaml
func JSONToYAML(jsonContent []byte) ([]byte, error) {
	return yaml.JSONToYAML(jsonContent)
}

func isJSON(str string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(str), &js) == nil
}

// Normalize converts a go value into its generic json form (map[string]any, []any, float64, string, bool, nil)
func Normalize(value any) (any, error) {
	switch value.(type) {
	case nil, string, bool, float64:
		return value, nil
	}
	bits, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to json encode value: %#v", value)
	}
	var out any
	if err := json.Unmarshal(bits, &out); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to json decode value")
	}
	return out, nil
}

// Equal compares two generic json values structurally. Numbers are compared by value regardless of their go type.
func Equal(a, b any) bool {
	if IsNumber(a) && IsNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	return reflect.DeepEqual(a, b)
}

// IsNumber returns true if the value is a go numeric type
func IsNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

// Compare orders two scalar values. Numbers sort before strings, strings compare lexically.
// The second return value is false if the values are not comparable.
func Compare(a, b any) (int, bool) {
	switch {
	case IsNumber(a) && IsNumber(b):
		x, y := cast.ToFloat64(a), cast.ToFloat64(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case IsNumber(a):
		if _, ok := b.(string); ok {
			return -1, true
		}
	case IsNumber(b):
		if _, ok := a.(string); ok {
			return 1, true
		}
	}
	x, okx := a.(string)
	y, oky := b.(string)
	if okx && oky {
		return strings.Compare(x, y), true
	}
	return 0, false
}
