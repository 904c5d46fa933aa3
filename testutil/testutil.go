package testutil

import (
	_ "embed"

	"github.com/autom8ter/jsondelta"
	"github.com/brianvoe/gofakeit/v6"
)

var (
	//go:embed testdata/board.json
	BoardSchema []byte
	//go:embed testdata/ddl.yaml
	BoardDDL []byte
)

// Schema returns the board json schema
func Schema() *jsondelta.JSONSchema {
	return jsondelta.MustJSONSchema(BoardSchema)
}

// DDL returns the board ddl
func DDL() jsondelta.DDL {
	return jsondelta.MustLoadDDL(BoardDDL)
}

// Engine returns a write engine for boards
func Engine(opts ...jsondelta.EngineOpt) *jsondelta.WriteEngine {
	e, err := jsondelta.NewWriteEngine(DDL(), Schema(), opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// NewBoard returns a fake board owned by the user with the given number of tasks
func NewBoard(ownerID string, tasks int) *jsondelta.Document {
	taskValues := make([]any, 0, tasks)
	for i := 0; i < tasks; i++ {
		taskValues = append(taskValues, NewTask(2))
	}
	return jsondelta.MustDocument(map[string]any{
		"id":          gofakeit.UUID(),
		"owner_id":    ownerID,
		"owner_email": gofakeit.Email(),
		"title":       gofakeit.HipsterSentence(3),
		"archived":    false,
		"labels":      []string{gofakeit.Color(), gofakeit.Color()},
		"tasks":       taskValues,
	})
}

// NewTask returns a fake task value with the given number of subtasks
func NewTask(subtasks int) map[string]any {
	subtaskValues := make([]any, 0, subtasks)
	for i := 0; i < subtasks; i++ {
		subtaskValues = append(subtaskValues, map[string]any{
			"id":   gofakeit.UUID(),
			"text": gofakeit.LoremIpsumSentence(4),
		})
	}
	return map[string]any{
		"id":       gofakeit.UUID(),
		"title":    gofakeit.BuzzWord(),
		"done":     gofakeit.Bool(),
		"points":   gofakeit.IntRange(0, 13),
		"subtasks": subtaskValues,
	}
}

// NewBoards returns n fake boards
func NewBoards(ownerID string, n int) jsondelta.Documents {
	boards := make(jsondelta.Documents, 0, n)
	for i := 0; i < n; i++ {
		boards = append(boards, NewBoard(ownerID, 2))
	}
	return boards
}
