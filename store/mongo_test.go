package store

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

// 指向无监听端口的 Mongo 配置，连接惰性建立，构造不应失败。
func unreachableMongoConfig() config.MongoConfig {
	return config.MongoConfig{
		URI:            "mongodb://127.0.0.1:1",
		Database:       "ragflow_test",
		Collection:     "knowledge_items",
		ConnectTimeout: 50 * time.Millisecond,
	}
}

func TestMongoStore_ConstructionIsLazy(t *testing.T) {
	s, err := NewMongoStore(unreachableMongoConfig(), nil)
	if err != nil {
		t.Fatalf("construction must not dial the server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Errorf("Close on a never-connected client failed: %v", err)
	}
}

func TestMongoStore_InsertValidatesBeforeDialing(t *testing.T) {
	s, err := NewMongoStore(unreachableMongoConfig(), nil)
	if err != nil {
		t.Fatalf("NewMongoStore failed: %v", err)
	}

	err = s.Insert(context.Background(), &types.KnowledgeItem{UserID: "u1", Content: "x"})
	if types.GetErrorCode(err) != types.ErrInvalidRequest {
		t.Errorf("missing id must fail validation, got %v", err)
	}
	err = s.Upsert(context.Background(), &types.KnowledgeItem{ID: "k1", Content: "x"})
	if types.GetErrorCode(err) != types.ErrInvalidRequest {
		t.Errorf("missing user_id must fail validation, got %v", err)
	}
}

func TestMongoStore_UnreachableServerSurfacesStoreError(t *testing.T) {
	s, err := NewMongoStore(unreachableMongoConfig(), nil)
	if err != nil {
		t.Fatalf("NewMongoStore failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := s.CountByUser(ctx, "u1"); types.GetErrorCode(err) != types.ErrStoreError {
		t.Errorf("expected STORE_ERROR against an unreachable server, got %v", err)
	}
}

func TestMongoDoc_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	item := &types.KnowledgeItem{
		ID:         "k1",
		UserID:     "u1",
		Content:    "Steve Jobs co-founded Apple.",
		Embedding:  []float64{0.1, 0.2},
		Metadata:   map[string]any{"mode": "simple"},
		ChunkIndex: 2,
		ParentDoc:  "doc-1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	got := fromMongoDoc(toMongoDoc(item))
	if got.ID != item.ID || got.UserID != item.UserID || got.Content != item.Content {
		t.Errorf("identity fields lost: %+v", got)
	}
	if got.ChunkIndex != 2 || got.ParentDoc != "doc-1" {
		t.Errorf("chunk linkage lost: %+v", got)
	}
	if got.Metadata["mode"] != "simple" {
		t.Errorf("metadata lost: %+v", got.Metadata)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Errorf("timestamps lost: %+v", got)
	}
}
