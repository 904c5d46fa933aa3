package util_test

import (
	"testing"

	"github.com/autom8ter/jsondelta/util"
	"github.com/stretchr/testify/assert"
)

func TestUtil(t *testing.T) {
	t.Run("yaml / json conversions", func(t *testing.T) {
		yml, err := util.JSONToYAML([]byte(`{"id":"1","tags":["a","b"]}`))
		assert.Nil(t, err)
		jsonData, err := util.YAMLToJSON(yml)
		assert.Nil(t, err)
		assert.JSONEq(t, `{"id":"1","tags":["a","b"]}`, string(jsonData))
	})
	t.Run("json passthrough", func(t *testing.T) {
		jsonData, err := util.YAMLToJSON([]byte(`{"a":1}`))
		assert.Nil(t, err)
		assert.Equal(t, `{"a":1}`, string(jsonData))
	})
	t.Run("json string", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, util.JSONString(map[string]any{"a": 1}))
	})
	t.Run("decode", func(t *testing.T) {
		type scope struct {
			PrimaryKey string `json:"primary_key"`
		}
		var s scope
		assert.Nil(t, util.Decode(map[string]any{"primary_key": "id"}, &s))
		assert.Equal(t, "id", s.PrimaryKey)
	})
	t.Run("validate", func(t *testing.T) {
		type usr struct {
			Name string `validate:"required"`
		}
		var u = usr{}
		assert.NotNil(t, util.ValidateStruct(&u))
		u.Name = "a name"
		assert.Nil(t, util.ValidateStruct(&u))
	})
	t.Run("normalize", func(t *testing.T) {
		type contact struct {
			Email string `json:"email"`
		}
		v, err := util.Normalize(contact{Email: "a@b.c"})
		assert.Nil(t, err)
		assert.Equal(t, map[string]any{"email": "a@b.c"}, v)
		v, err = util.Normalize(3)
		assert.Nil(t, err)
		assert.Equal(t, float64(3), v)
	})
	t.Run("equal", func(t *testing.T) {
		assert.True(t, util.Equal(1, 1.0))
		assert.True(t, util.Equal(map[string]any{"a": []any{"x"}}, map[string]any{"a": []any{"x"}}))
		assert.False(t, util.Equal("1", 1))
	})
	t.Run("compare", func(t *testing.T) {
		c, ok := util.Compare(1, 2.5)
		assert.True(t, ok)
		assert.Equal(t, -1, c)
		c, ok = util.Compare("b", "a")
		assert.True(t, ok)
		assert.Equal(t, 1, c)
		c, ok = util.Compare(10, "a")
		assert.True(t, ok)
		assert.Equal(t, -1, c)
		_, ok = util.Compare(true, "a")
		assert.False(t, ok)
	})
}
