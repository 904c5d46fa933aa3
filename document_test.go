package jsondelta

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	type contact struct {
		Email string `json:"email"`
		Phone string `json:"phone,omitempty"`
	}
	type user struct {
		ID      string   `json:"id"`
		Contact contact  `json:"contact"`
		Name    string   `json:"name"`
		Tags    []string `json:"tags"`
	}
	const email = "john.smith@yahoo.com"
	usr := user{ID: gofakeit.UUID(), Contact: contact{Email: email, Phone: gofakeit.Phone()}, Name: "john smith", Tags: []string{"a", "b"}}
	r, err := NewDocumentFrom(&usr)
	require.NoError(t, err)

	t.Run("get", func(t *testing.T) {
		assert.Equal(t, usr.ID, r.Get("id"))
		assert.Equal(t, usr.Contact.Email, r.GetString("contact.email"))
		assert.Equal(t, "b", r.Get("tags.1"))
		assert.True(t, r.Exists("contact.phone"))
		assert.False(t, r.Exists("contact.fax"))
	})
	t.Run("unsafe paths never resolve", func(t *testing.T) {
		d := MustDocument(map[string]any{"__proto__": map[string]any{"polluted": true}})
		assert.Nil(t, d.Get("__proto__.polluted"))
		assert.Empty(t, d.GetAll("__proto__"))
		assert.False(t, d.Exists("constructor"))
		assert.Error(t, d.Set("prototype.x", 1))
	})
	t.Run("invalid documents", func(t *testing.T) {
		_, err := NewDocumentFromBytes([]byte(`[1,2]`))
		assert.Error(t, err)
		_, err = NewDocumentFromBytes([]byte(`{`))
		assert.Error(t, err)
	})
	t.Run("merge", func(t *testing.T) {
		cp := r.Clone()
		require.NoError(t, cp.Merge(map[string]any{
			"contact": map[string]any{"email": "new@example.com"},
			"tags":    []string{"c"},
		}))
		assert.Equal(t, "new@example.com", cp.GetString("contact.email"))
		assert.Equal(t, usr.Contact.Phone, cp.GetString("contact.phone"))
		assert.Equal(t, []any{"c"}, cp.GetArray("tags"))
		assert.Equal(t, email, r.GetString("contact.email"), "clone must not be affected")
	})
	t.Run("merge delete field", func(t *testing.T) {
		cp := r.Clone()
		require.NoError(t, cp.Merge(map[string]any{
			"contact": map[string]any{"phone": DeleteField},
		}))
		assert.False(t, cp.Exists("contact.phone"))
		assert.True(t, cp.Exists("contact.email"))
	})
	t.Run("merge empty object keeps existing", func(t *testing.T) {
		cp := r.Clone()
		require.NoError(t, cp.Merge(map[string]any{"contact": map[string]any{}}))
		assert.Equal(t, email, cp.GetString("contact.email"))
	})
	t.Run("assign", func(t *testing.T) {
		cp := r.Clone()
		require.NoError(t, cp.Assign(map[string]any{
			"contact": map[string]any{"email": "new@example.com"},
			"name":    DeleteField,
		}))
		assert.Equal(t, "new@example.com", cp.GetString("contact.email"))
		assert.False(t, cp.Exists("contact.phone"))
		assert.False(t, cp.Exists("name"))
	})
	t.Run("keys with special characters", func(t *testing.T) {
		d := NewDocument()
		require.NoError(t, d.Assign(map[string]any{"a*b": 1, "c?": 2, "#": 3}))
		assert.Equal(t, float64(1), d.Value()["a*b"])
		assert.Equal(t, float64(2), d.Value()["c?"])
		assert.Equal(t, float64(3), d.Value()["#"])
	})
	t.Run("get all spreads arrays", func(t *testing.T) {
		d := MustDocument(map[string]any{
			"lists": []any{
				map[string]any{"items": []any{map[string]any{"id": 1}}},
				map[string]any{"items": []any{map[string]any{"id": 2}, map[string]any{"id": 3}}},
				map[string]any{"other": true},
			},
		})
		found := d.GetAll("lists.items")
		require.Len(t, found, 2)
		assert.Equal(t, "lists.0.items", found[0].Path())
		assert.Equal(t, "lists.1.items", found[1].Path())
		ids := d.GetAll("lists.items.id")
		assert.Len(t, ids, 3)
		assert.Equal(t, "lists.1.items.1.id", ids[2].Path())
	})
	t.Run("equal and contains", func(t *testing.T) {
		a := MustDocument(map[string]any{"id": 1, "text": "Right", "nested": map[string]any{"x": 1}})
		b := MustDocument(map[string]any{"nested": map[string]any{"x": 1.0}, "text": "Right", "id": 1})
		assert.True(t, a.Equal(b))
		assert.True(t, a.Contains(MustDocument(map[string]any{"id": 1, "text": "Right"})))
		assert.False(t, a.Contains(MustDocument(map[string]any{"id": 1, "text": "Wrong"})))
		assert.False(t, a.Contains(MustDocument(map[string]any{"extra": true})))
	})
	t.Run("scan", func(t *testing.T) {
		var u user
		require.NoError(t, r.Scan(&u))
		assert.Equal(t, usr.ID, u.ID)
		assert.Equal(t, usr.Contact.Email, u.Contact.Email)
	})
	t.Run("field paths", func(t *testing.T) {
		assert.Contains(t, r.FieldPaths(), "contact.email")
	})
	t.Run("json round trip", func(t *testing.T) {
		bits, err := r.MarshalJSON()
		require.NoError(t, err)
		var d Document
		require.NoError(t, d.UnmarshalJSON(bits))
		assert.True(t, d.Equal(r))
	})
}
