package jsondelta_test

import (
	"context"
	"testing"

	"github.com/autom8ter/jsondelta"
	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idKey = jsondelta.FieldKey("id")

func board(id, title string, tasks ...map[string]any) *jsondelta.Document {
	value := map[string]any{
		"id":       id,
		"owner_id": "u1",
		"title":    title,
	}
	if tasks != nil {
		list := make([]any, 0, len(tasks))
		for _, t := range tasks {
			list = append(list, t)
		}
		value["tasks"] = list
	}
	return jsondelta.MustDocument(value)
}

func task(id, title string, subtasks ...map[string]any) map[string]any {
	list := make([]any, 0, len(subtasks))
	for _, s := range subtasks {
		list = append(list, s)
	}
	return map[string]any{"id": id, "title": title, "subtasks": list}
}

func byID(id string) jsondelta.Filter {
	return jsondelta.Eq("id", id)
}

func failureTypes(res *jsondelta.WriteResult) []jsondelta.FailureType {
	var types []jsondelta.FailureType
	for _, f := range res.FailedActions {
		for _, item := range f.AffectedItems {
			types = append(types, item.ErrorDetails.Type)
		}
	}
	return types
}

func TestWriteEngineCreate(t *testing.T) {
	ctx := context.Background()
	engine := testutil.Engine()

	t.Run("create appends", func(t *testing.T) {
		items := jsondelta.Documents{board("1", "one")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(board("2", "two")),
		}, items)
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		require.Len(t, res.Changes.FinalItems, 2)
		assert.Same(t, items[0], res.Changes.FinalItems[0])
		assert.Equal(t, "two", res.Changes.FinalItems[1].GetString("title"))
		require.Len(t, res.Changes.Insert, 1)
		assert.Empty(t, res.Changes.Update)
		require.Len(t, res.SuccessfulActions, 1)
		assert.Equal(t, []jsondelta.PrimaryKeyValue{"2"}, res.SuccessfulActions[0].AffectedItems)
	})
	t.Run("duplicate rejected", func(t *testing.T) {
		items := jsondelta.Documents{board("1", "Right")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(board("1", "Wrong")),
		}, items, jsondelta.WithRecoverDuplicateCreate(jsondelta.RecoverNever))
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteError, res.Status)
		require.Len(t, res.FailedActions, 1)
		assert.True(t, res.FailedActions[0].Unrecoverable)
		assert.Equal(t, []jsondelta.FailureType{jsondelta.FailureCreateDuplicatedKey}, failureTypes(res))
		assert.Equal(t, "Right", res.Changes.FinalItems[0].GetString("title"))
		assert.Same(t, &items[0], &res.Changes.FinalItems[0])
	})
	t.Run("duplicate recovered if identical after later updates", func(t *testing.T) {
		items := jsondelta.Documents{board("1", "Right")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(board("1", "Wrong")),
			jsondelta.Update(byID("1"), map[string]any{"title": "Right"}),
		}, items, jsondelta.WithRecoverDuplicateCreate(jsondelta.RecoverIfIdentical))
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		assert.Empty(t, res.FailedActions)
		assert.Same(t, &items[0], &res.Changes.FinalItems[0])
		assert.Empty(t, res.Changes.Insert)
		assert.Empty(t, res.Changes.Update)
	})
	t.Run("duplicate not recovered when different", func(t *testing.T) {
		items := jsondelta.Documents{board("1", "Right")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(board("1", "Wrong")),
			jsondelta.Update(byID("1"), map[string]any{"title": "Still wrong"}),
		}, items, jsondelta.WithRecoverDuplicateCreate(jsondelta.RecoverIfIdentical))
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteError, res.Status)
		assert.Contains(t, failureTypes(res), jsondelta.FailureCreateDuplicatedKey)
	})
	t.Run("recovery simulation is bounded", func(t *testing.T) {
		items := jsondelta.Documents{board("1", "Right")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(board("1", "Wrong")),
			jsondelta.Update(byID("1"), map[string]any{"title": "Right"}),
		}, items,
			jsondelta.WithRecoverDuplicateCreate(jsondelta.RecoverIfIdentical),
			jsondelta.WithRecoverySimulationLimit(0),
		)
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteError, res.Status)
	})
	t.Run("duplicate always updates", func(t *testing.T) {
		items := jsondelta.Documents{board("1", "Old"), board("2", "Two")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(board("1", "New")),
		}, items, jsondelta.WithRecoverDuplicateCreate(jsondelta.RecoverAlwaysUpdate))
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		require.Len(t, res.Changes.Update, 1)
		assert.Equal(t, "New", res.Changes.Update[0].GetString("title"))
		assert.Equal(t, []string{"New", "Two"}, []string{
			res.Changes.FinalItems[0].GetString("title"),
			res.Changes.FinalItems[1].GetString("title"),
		})
		assert.Same(t, items[1], res.Changes.FinalItems[1])
	})
	t.Run("duplicate within the batch", func(t *testing.T) {
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(board("1", "first")),
			jsondelta.Create(board("1", "second")),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []jsondelta.FailureType{jsondelta.FailureCreateDuplicatedKey}, failureTypes(res))
	})
	t.Run("missing key", func(t *testing.T) {
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(jsondelta.MustDocument(map[string]any{"title": "no id"})),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []jsondelta.FailureType{jsondelta.FailureMissingKey}, failureTypes(res))
		assert.True(t, res.FailedActions[0].Unrecoverable)
	})
	t.Run("schema", func(t *testing.T) {
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(jsondelta.MustDocument(map[string]any{"id": "1", "title": ""})),
		}, nil)
		require.NoError(t, err)
		require.Equal(t, []jsondelta.FailureType{jsondelta.FailureSchema}, failureTypes(res))
		issues := res.FailedActions[0].AffectedItems[0].ErrorDetails.Issues
		require.NotEmpty(t, issues)
		assert.Equal(t, "title", issues[0].Path)
	})
	t.Run("create then delete is a no-op", func(t *testing.T) {
		items := jsondelta.Documents{board("1", "one")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Create(board("2", "two")),
			jsondelta.Delete(byID("2")),
		}, items)
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		assert.Empty(t, res.Changes.Insert)
		assert.Empty(t, res.Changes.RemoveKeys)
		assert.Same(t, &items[0], &res.Changes.FinalItems[0])
	})
	t.Run("created items receive later updates", func(t *testing.T) {
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("1"), map[string]any{"archived": true}),
			jsondelta.Create(board("1", "one")),
		}, nil)
		require.NoError(t, err)
		require.Len(t, res.Changes.Insert, 1)
		assert.Equal(t, true, res.Changes.Insert[0].Get("archived"))
	})
}

func TestWriteEngineUpdate(t *testing.T) {
	ctx := context.Background()
	engine := testutil.Engine()

	t.Run("reference stability", func(t *testing.T) {
		a, b := board("a", "A"), board("b", "B")
		items := jsondelta.Documents{a, b}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("b"), map[string]any{"title": "B2"}),
		}, items)
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		assert.Same(t, a, res.Changes.FinalItems[0])
		assert.NotSame(t, b, res.Changes.FinalItems[1])
		assert.Equal(t, "B2", res.Changes.FinalItems[1].GetString("title"))
		assert.Equal(t, "B", b.GetString("title"))
		require.Len(t, res.Changes.Update, 1)
		assert.Same(t, res.Changes.FinalItems[1], res.Changes.Update[0])
	})
	t.Run("no-op update keeps everything", func(t *testing.T) {
		items := jsondelta.Documents{board("a", "A")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"title": "A"}),
		}, items)
		require.NoError(t, err)
		assert.Empty(t, res.Changes.Update)
		assert.Same(t, &items[0], &res.Changes.FinalItems[0])
	})
	t.Run("merge replaces arrays and deletes fields", func(t *testing.T) {
		doc := jsondelta.MustDocument(map[string]any{
			"id":     "a",
			"title":  "A",
			"labels": []string{"x", "y"},
			"meta":   map[string]any{"color": "red", "size": 1},
		})
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{
				"labels": []string{"z"},
				"meta":   map[string]any{"size": jsondelta.DeleteField, "shape": "round"},
			}),
		}, jsondelta.Documents{doc})
		require.NoError(t, err)
		got := res.Changes.FinalItems[0]
		assert.Equal(t, []any{"z"}, got.Get("labels"))
		assert.Equal(t, map[string]any{"color": "red", "shape": "round"}, got.Get("meta"))
	})
	t.Run("assign overwrites top level", func(t *testing.T) {
		doc := jsondelta.MustDocument(map[string]any{
			"id":    "a",
			"title": "A",
			"meta":  map[string]any{"color": "red"},
		})
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.NewWriteAction(&jsondelta.UpdatePayload{
				Where:  byID("a"),
				Method: jsondelta.UpdateAssign,
				Data:   map[string]any{"meta": map[string]any{"shape": "round"}},
			}),
		}, jsondelta.Documents{doc})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"shape": "round"}, res.Changes.FinalItems[0].Get("meta"))
	})
	t.Run("altered key", func(t *testing.T) {
		items := jsondelta.Documents{board("a", "A")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"id": "z"}),
		}, items)
		require.NoError(t, err)
		assert.Equal(t, []jsondelta.FailureType{jsondelta.FailureUpdateAlteredKey}, failureTypes(res))
	})
	t.Run("partial success", func(t *testing.T) {
		a, b := board("a", "A"), board("b", "B")
		items := jsondelta.Documents{a, b}
		actions := []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"title": "A2"}),
			jsondelta.Update(byID("b"), map[string]any{"title": ""}),
		}
		res, err := engine.Apply(ctx, actions, items, jsondelta.WithAllowPartialSuccess(true))
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteError, res.Status)
		assert.Equal(t, []jsondelta.FailureType{jsondelta.FailureSchema}, failureTypes(res))
		assert.Equal(t, actions[1].UUID, res.FailedActions[0].Action.UUID)
		require.Len(t, res.Changes.Update, 1)
		assert.Equal(t, "A2", res.Changes.FinalItems[0].GetString("title"))
		assert.Same(t, b, res.Changes.FinalItems[1])
		require.Len(t, res.SuccessfulActions, 1)
		assert.Equal(t, actions[0].UUID, res.SuccessfulActions[0].Action.UUID)

		res, err = engine.Apply(ctx, actions, items)
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteError, res.Status)
		assert.Empty(t, res.Changes.Update)
		assert.Empty(t, res.SuccessfulActions)
		assert.Same(t, &items[0], &res.Changes.FinalItems[0])
	})
	t.Run("failed items block later actions", func(t *testing.T) {
		items := jsondelta.Documents{board("a", "A")}
		actions := []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"title": ""}),
			jsondelta.Update(byID("a"), map[string]any{"archived": true}),
		}
		res, err := engine.Apply(ctx, actions, items, jsondelta.WithAllowPartialSuccess(true))
		require.NoError(t, err)
		require.Len(t, res.FailedActions, 2)
		assert.Equal(t, actions[0].UUID, res.FailedActions[1].BlockedByActionUUID)
		assert.Empty(t, res.Changes.Update)
	})
	t.Run("delete", func(t *testing.T) {
		a, b, c := board("a", "A"), board("b", "B"), board("c", "C")
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Delete(byID("b")),
			jsondelta.Update(byID("b"), map[string]any{"title": "ignored"}),
		}, jsondelta.Documents{a, b, c})
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		assert.Equal(t, []jsondelta.PrimaryKeyValue{"b"}, res.Changes.RemoveKeys)
		assert.Equal(t, jsondelta.Documents{a, c}, res.Changes.FinalItems)
		require.Len(t, res.SuccessfulActions, 1)
	})
	t.Run("items without keys are rejected", func(t *testing.T) {
		_, err := engine.Apply(ctx, nil, jsondelta.Documents{jsondelta.MustDocument(map[string]any{"title": "x"})})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("updates cannot replace array scopes", func(t *testing.T) {
		_, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"tasks": []any{}}),
		}, jsondelta.Documents{board("a", "A")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("unknown array scope", func(t *testing.T) {
		_, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.ArrayScope("labels", nil, &jsondelta.DeletePayload{}),
		}, nil)
		require.Error(t, err)
	})
	t.Run("result delta reproduces final items", func(t *testing.T) {
		items := jsondelta.Documents{board("a", "A"), board("b", "B")}
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"title": "A2"}),
			jsondelta.Delete(byID("b")),
			jsondelta.Create(board("c", "C")),
		}, items)
		require.NoError(t, err)
		applied, err := jsondelta.ApplyDelta(items, res.Delta(), idKey)
		require.NoError(t, err)
		assert.True(t, applied.Equal(res.Changes.FinalItems))
	})
	t.Run("in place", func(t *testing.T) {
		a, b := board("a", "A"), board("b", "B")
		items := make(jsondelta.Documents, 2, 4)
		items[0], items[1] = a, b
		backing := &items[:1][0]
		res, err := engine.ApplyInPlace(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("b"), map[string]any{"title": "B2"}),
		}, &items)
		require.NoError(t, err)
		assert.Same(t, backing, &items[0])
		assert.Same(t, a, items[0])
		assert.Equal(t, "B2", items[1].GetString("title"))
		assert.Same(t, &items[0], &res.Changes.FinalItems[0])
	})
}

func TestWriteEngineArrayScope(t *testing.T) {
	ctx := context.Background()
	engine := testutil.Engine()
	newItems := func() jsondelta.Documents {
		return jsondelta.Documents{
			board("b1", "one",
				task("t1", "first", map[string]any{"id": "s1", "text": "a"}, map[string]any{"id": "s2", "text": "b"}),
				task("t2", "second"),
			),
			board("b2", "two"),
		}
	}

	t.Run("update nested item", func(t *testing.T) {
		items := newItems()
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.ArrayScope("tasks", byID("b1"), &jsondelta.UpdatePayload{
				Where: byID("t2"),
				Data:  map[string]any{"done": true},
			}),
		}, items)
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		require.Len(t, res.Changes.Update, 1)
		got := res.Changes.FinalItems[0]
		assert.Equal(t, true, got.Get("tasks.1.done"))
		assert.Nil(t, got.Get("tasks.0.done"))
		assert.Equal(t, "first", got.Get("tasks.0.title"))
		assert.Same(t, items[1], res.Changes.FinalItems[1])
	})
	t.Run("create nested item", func(t *testing.T) {
		items := newItems()
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.ArrayScope("tasks", byID("b2"), &jsondelta.CreatePayload{
				Data: jsondelta.MustDocument(task("t9", "new")),
			}),
		}, items)
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		assert.Equal(t, "t9", res.Changes.FinalItems[1].Get("tasks.0.id"))
	})
	t.Run("nested schema failure fails the outer action", func(t *testing.T) {
		items := newItems()
		action := jsondelta.ArrayScope("tasks", byID("b1"), &jsondelta.UpdatePayload{
			Where: byID("t1"),
			Data:  map[string]any{"points": -5},
		})
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{action}, items, jsondelta.WithAllowPartialSuccess(true))
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteError, res.Status)
		require.Len(t, res.FailedActions, 1)
		assert.Equal(t, action.UUID, res.FailedActions[0].Action.UUID)
		affected := res.FailedActions[0].AffectedItems[0]
		assert.Equal(t, "b1", affected.ItemPK)
		assert.Equal(t, jsondelta.FailureSchema, affected.ErrorDetails.Type)
		assert.Contains(t, affected.ErrorDetails.Message, "t1")
		assert.Same(t, items[0], res.Changes.FinalItems[0])
	})
	t.Run("nested duplicate create", func(t *testing.T) {
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.ArrayScope("tasks", byID("b1"), &jsondelta.CreatePayload{
				Data: jsondelta.MustDocument(task("t1", "again")),
			}),
		}, newItems())
		require.NoError(t, err)
		assert.Equal(t, []jsondelta.FailureType{jsondelta.FailureCreateDuplicatedKey}, failureTypes(res))
	})
	t.Run("growset delete sets a tombstone", func(t *testing.T) {
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.ArrayScope("tasks", byID("b1"), &jsondelta.ArrayScopePayload{
				Scope:  "subtasks",
				Where:  byID("t1"),
				Action: &jsondelta.DeletePayload{Where: byID("s1")},
			}),
		}, newItems())
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		got := res.Changes.FinalItems[0]
		assert.Len(t, got.GetArray("tasks.0.subtasks"), 2)
		assert.Equal(t, true, got.Get("tasks.0.subtasks.0.deleted"))
		assert.Nil(t, got.Get("tasks.0.subtasks.1.deleted"))
	})
	t.Run("nested delete removes", func(t *testing.T) {
		res, err := engine.Apply(ctx, []jsondelta.WriteAction{
			jsondelta.ArrayScope("tasks", nil, &jsondelta.DeletePayload{Where: byID("t1")}),
		}, newItems())
		require.NoError(t, err)
		tasks := res.Changes.FinalItems[0].GetArray("tasks")
		require.Len(t, tasks, 1)
		assert.Equal(t, "t2", res.Changes.FinalItems[0].Get("tasks.0.id"))
		require.Len(t, res.Changes.Update, 1)
	})
}

func TestWriteEnginePermissions(t *testing.T) {
	ctx := context.Background()
	ddl := jsondelta.MustLoadDDL([]byte(`
".":
  primary_key: id
  permissions:
    type: basic_ownership_property
    property_type: id
    path: owner_id
tasks:
  primary_key: id
`))
	alice := &jsondelta.User{ID: "u1"}
	bob := &jsondelta.User{ID: "u2"}

	t.Run("owner may update", func(t *testing.T) {
		res, err := jsondelta.ApplyWriteActions(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"title": "A2"}),
		}, jsondelta.Documents{board("a", "A")}, testutil.Schema(), ddl, jsondelta.WithUser(alice))
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
	})
	t.Run("others may not", func(t *testing.T) {
		res, err := jsondelta.ApplyWriteActions(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"title": "A2"}),
			jsondelta.Create(board("b", "B")),
		}, jsondelta.Documents{board("a", "A")}, testutil.Schema(), ddl, jsondelta.WithUser(bob))
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteError, res.Status)
		require.Len(t, res.FailedActions, 2)
		for _, f := range res.FailedActions {
			assert.Equal(t, jsondelta.FailurePermissionDenied, f.AffectedItems[0].ErrorDetails.Type)
			assert.Equal(t, jsondelta.ReasonNotOwner, f.AffectedItems[0].ErrorDetails.Reason)
			assert.False(t, f.Unrecoverable)
		}
	})
	t.Run("ownership cannot be given away", func(t *testing.T) {
		res, err := jsondelta.ApplyWriteActions(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"owner_id": "u2"}),
		}, jsondelta.Documents{board("a", "A")}, testutil.Schema(), ddl, jsondelta.WithUser(alice))
		require.NoError(t, err)
		assert.Equal(t, []jsondelta.FailureType{jsondelta.FailurePermissionDenied}, failureTypes(res))
	})
	t.Run("missing owner", func(t *testing.T) {
		res, err := jsondelta.ApplyWriteActions(ctx, []jsondelta.WriteAction{
			jsondelta.Create(jsondelta.MustDocument(map[string]any{"id": "x", "title": "X"})),
		}, nil, testutil.Schema(), ddl, jsondelta.WithUser(alice))
		require.NoError(t, err)
		require.Len(t, res.FailedActions, 1)
		assert.Equal(t, jsondelta.ReasonNoOwnerID, res.FailedActions[0].AffectedItems[0].ErrorDetails.Reason)
	})
	t.Run("custom ownership check", func(t *testing.T) {
		var checked []string
		res, err := jsondelta.ApplyWriteActions(ctx, []jsondelta.WriteAction{
			jsondelta.Update(byID("a"), map[string]any{"title": "A2"}),
		}, jsondelta.Documents{board("a", "A")}, testutil.Schema(), ddl,
			jsondelta.WithUser(bob),
			jsondelta.WithOwnershipCheck(func(scope *jsondelta.Scope, item *jsondelta.Document, user *jsondelta.User, action jsondelta.WriteAction) string {
				checked = append(checked, item.GetString("title"))
				return ""
			}),
		)
		require.NoError(t, err)
		assert.Equal(t, jsondelta.WriteOK, res.Status)
		assert.Equal(t, []string{"A", "A2"}, checked)
	})
}

func TestWriteEngineFixtures(t *testing.T) {
	ctx := context.Background()
	logger, err := jsondelta.NewLogger("debug", map[string]any{"test": t.Name()})
	require.NoError(t, err)
	engine := testutil.Engine(jsondelta.WithLogger(logger))
	boards := testutil.NewBoards("u1", 5)
	target := boards[2]
	res, err := engine.Apply(ctx, []jsondelta.WriteAction{
		jsondelta.Update(byID(target.GetString("id")), map[string]any{"archived": true}),
		jsondelta.ArrayScope("tasks", nil, &jsondelta.UpdatePayload{Data: map[string]any{"done": true}}),
	}, boards)
	require.NoError(t, err)
	assert.Equal(t, jsondelta.WriteOK, res.Status)
	require.Len(t, res.Changes.FinalItems, 5)
	for _, b := range res.Changes.FinalItems {
		for _, done := range b.GetAll("tasks.done") {
			assert.Equal(t, true, done.Value)
		}
	}
	assert.Equal(t, true, res.Changes.FinalItems[2].Get("archived"))
}
