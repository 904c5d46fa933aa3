package jsondelta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var idKey = FieldKey("id")

func docs(items ...map[string]any) Documents {
	out := make(Documents, 0, len(items))
	for _, item := range items {
		out = append(out, MustDocument(item))
	}
	return out
}

func keysOf(t *testing.T, items Documents) []PrimaryKeyValue {
	t.Helper()
	keys := make([]PrimaryKeyValue, 0, len(items))
	for _, item := range items {
		key, err := idKey.Get(item)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}

func values(items Documents) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, item.Value())
	}
	return out
}
