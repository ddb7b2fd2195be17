package tools

import (
	"context"
	"fmt"

	"github.com/ntars/tars/internal/memory"
)

// SaveMemoryTool persists a key/value pair into the Memory Store.
type SaveMemoryTool struct{ store *memory.Store }

func NewSaveMemoryTool(store *memory.Store) *SaveMemoryTool { return &SaveMemoryTool{store: store} }

func (t *SaveMemoryTool) Name() string        { return "save_memory" }
func (t *SaveMemoryTool) Description() string { return "Save a fact, preference, or note to long-term memory" }
func (t *SaveMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"category": map[string]interface{}{
				"type":        "string",
				"description": "preference, project, context, note, credential, or learned",
			},
			"key":   map[string]interface{}{"type": "string"},
			"value": map[string]interface{}{"type": "string"},
		},
		"required": []string{"category", "key", "value"},
	}
}

func (t *SaveMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	category, _ := args["category"].(string)
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	if category == "" || key == "" {
		return ErrorResult("category and key are required")
	}
	msg, err := t.store.Save(memory.Category(category), key, value)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(msg)
}

// RecallMemoryTool searches the Memory Store by keyword.
type RecallMemoryTool struct{ store *memory.Store }

func NewRecallMemoryTool(store *memory.Store) *RecallMemoryTool { return &RecallMemoryTool{store: store} }

func (t *RecallMemoryTool) Name() string        { return "recall_memory" }
func (t *RecallMemoryTool) Description() string { return "Search memory for relevant information" }
func (t *RecallMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
		"required": []string{"query"},
	}
}

func (t *RecallMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	return NewResult(t.store.Recall(query))
}

// ListMemoryTool lists stored memories, optionally filtered by category.
type ListMemoryTool struct{ store *memory.Store }

func NewListMemoryTool(store *memory.Store) *ListMemoryTool { return &ListMemoryTool{store: store} }

func (t *ListMemoryTool) Name() string        { return "list_memory" }
func (t *ListMemoryTool) Description() string { return "List everything stored in memory, optionally filtered by category" }
func (t *ListMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"category": map[string]interface{}{"type": "string", "description": "optional category filter"},
		},
	}
}

func (t *ListMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	category, _ := args["category"].(string)
	return NewResult(t.store.ListAll(category).Content)
}

// DeleteMemoryTool removes a memory entry or an entire category.
type DeleteMemoryTool struct{ store *memory.Store }

func NewDeleteMemoryTool(store *memory.Store) *DeleteMemoryTool { return &DeleteMemoryTool{store: store} }

func (t *DeleteMemoryTool) Name() string        { return "delete_memory" }
func (t *DeleteMemoryTool) Description() string { return "Delete a memory entry, a whole category, or everything (category=all)" }
func (t *DeleteMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"category": map[string]interface{}{"type": "string"},
			"key":      map[string]interface{}{"type": "string", "description": "optional, specific key to delete"},
		},
		"required": []string{"category"},
	}
}

func (t *DeleteMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	category, _ := args["category"].(string)
	key, _ := args["key"].(string)
	if category == "" {
		return ErrorResult("category is required")
	}
	msg, err := t.store.Delete(category, key)
	if err != nil {
		return ErrorResult(fmt.Sprintf("delete failed: %v", err))
	}
	return SilentResult(msg)
}
