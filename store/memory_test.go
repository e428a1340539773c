package store

import (
	"context"
	"testing"

	"github.com/BaSui01/ragflow/types"
)

func newItem(id, userID, content string, embedding []float64) *types.KnowledgeItem {
	return &types.KnowledgeItem{
		ID:        id,
		UserID:    userID,
		Content:   content,
		Embedding: embedding,
		Metadata:  map[string]any{},
	}
}

func TestMemoryStore_InsertGet(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	item := newItem("k1", "u1", "hello", []float64{1, 0})
	item.Metadata["mode"] = "simple"

	if err := s.Insert(ctx, item); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := s.Get(ctx, "u1", "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "hello" || got.Metadata["mode"] != "simple" {
		t.Errorf("unexpected item: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps must be set on insert")
	}
}

func TestMemoryStore_InsertDuplicate(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	if err := s.Insert(ctx, newItem("k1", "u1", "a", nil)); err != nil {
		t.Fatal(err)
	}
	err := s.Insert(ctx, newItem("k1", "u1", "b", nil))
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestMemoryStore_CrossUserRejected(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	if err := s.Insert(ctx, newItem("k1", "u1", "secret", nil)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, "u2", "k1"); types.GetErrorCode(err) != types.ErrCrossUserAccess {
		t.Errorf("expected CROSS_USER_ACCESS on read, got %v", err)
	}
	if err := s.Delete(ctx, "u2", "k1"); types.GetErrorCode(err) != types.ErrCrossUserAccess {
		t.Errorf("expected CROSS_USER_ACCESS on delete, got %v", err)
	}
	if err := s.Upsert(ctx, newItem("k1", "u2", "hijack", nil)); types.GetErrorCode(err) != types.ErrCrossUserAccess {
		t.Errorf("expected CROSS_USER_ACCESS on upsert, got %v", err)
	}

	// 原行未被破坏
	got, err := s.Get(ctx, "u1", "k1")
	if err != nil || got.Content != "secret" {
		t.Errorf("original row must be intact, got %+v err %v", got, err)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore(nil)
	if _, err := s.Get(context.Background(), "u1", "missing"); types.GetErrorCode(err) != types.ErrNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestMemoryStore_ListByUserIsolated(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	for _, it := range []*types.KnowledgeItem{
		newItem("a1", "u1", "one", nil),
		newItem("a2", "u1", "two", nil),
		newItem("b1", "u2", "other", nil),
	} {
		if err := s.Insert(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	items, err := s.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items for u1, got %d", len(items))
	}
	for _, it := range items {
		if it.UserID != "u1" {
			t.Errorf("leaked item from another user: %+v", it)
		}
	}
}

func TestMemoryStore_ListByMetadata(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	leaf := newItem("leaf", "u1", "leaf text", nil)
	leaf.Metadata[types.MetaTreeLevel] = 0
	summary := newItem("sum", "u1", "summary text", nil)
	summary.Metadata[types.MetaTreeLevel] = 1

	for _, it := range []*types.KnowledgeItem{leaf, summary} {
		if err := s.Insert(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	// int 与 float64 形态都要能匹配
	items, err := s.ListByMetadata(ctx, "u1", types.MetaTreeLevel, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != "sum" {
		t.Errorf("expected only the summary node, got %+v", items)
	}

	items, err = s.ListByMetadata(ctx, "u1", types.MetaTreeLevel, float64(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != "leaf" {
		t.Errorf("expected only the leaf node, got %+v", items)
	}
}

func TestMemoryStore_UpdateMetadataMerges(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	item := newItem("k1", "u1", "text", nil)
	item.Metadata["keep"] = "old"
	if err := s.Insert(ctx, item); err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateMetadata(ctx, "u1", "k1", map[string]any{"new": "value"}); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, "u1", "k1")
	if got.Metadata["keep"] != "old" || got.Metadata["new"] != "value" {
		t.Errorf("metadata must merge, got %+v", got.Metadata)
	}
}

func TestMemoryStore_SearchByVector(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	for _, it := range []*types.KnowledgeItem{
		newItem("close", "u1", "close match", []float64{1, 0, 0}),
		newItem("far", "u1", "far away", []float64{0, 1, 0}),
		newItem("other-user", "u2", "not mine", []float64{1, 0, 0}),
	} {
		if err := s.Insert(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.SearchByVector(ctx, "u1", []float64{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Item.ID != "close" {
		t.Errorf("expected only the close item, got %+v", results)
	}
}

func TestMemoryStore_ReturnedItemsAreCopies(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	item := newItem("k1", "u1", "text", []float64{1})
	item.Metadata["k"] = "v"
	if err := s.Insert(ctx, item); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, "u1", "k1")
	got.Metadata["k"] = "mutated"
	got.Embedding[0] = 99

	again, _ := s.Get(ctx, "u1", "k1")
	if again.Metadata["k"] != "v" || again.Embedding[0] != 1 {
		t.Error("store must not expose internal state to callers")
	}
}

func TestMemoryStore_DeleteAndCount(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	if err := s.Insert(ctx, newItem("k1", "u1", "text", nil)); err != nil {
		t.Fatal(err)
	}
	count, _ := s.CountByUser(ctx, "u1")
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	if err := s.Delete(ctx, "u1", "k1"); err != nil {
		t.Fatal(err)
	}
	count, _ = s.CountByUser(ctx, "u1")
	if count != 0 {
		t.Errorf("expected count 0 after delete, got %d", count)
	}

	// 删除后 id 可复用
	if err := s.Insert(ctx, newItem("k1", "u2", "reused", nil)); err != nil {
		t.Errorf("id should be reusable after delete: %v", err)
	}
}
