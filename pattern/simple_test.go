package pattern

import (
	"context"
	"strings"
	"testing"

	"github.com/BaSui01/ragflow/testutil/fixtures"
	"github.com/BaSui01/ragflow/types"
)

func TestSimplePattern_SteveJobsScenario(t *testing.T) {
	h := newHarness(t)
	p := NewSimplePattern(h.deps)
	ctx := context.Background()

	summary, err := p.ProcessDocument(ctx, fixtures.AppleDoc, "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if !summary.Success() || summary.Stored == 0 {
		t.Fatalf("ingestion failed: %+v", summary)
	}

	result := p.Query(ctx, "Who founded Apple?", "u1", nil)
	if !result.Success {
		t.Fatalf("query failed: %s", result.Error)
	}
	found := false
	for _, src := range result.Sources {
		if strings.Contains(src.Content, "Steve Jobs") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a source mentioning Steve Jobs, got %+v", result.Sources)
	}
}

func TestSimplePattern_ChunksTaggedWithMode(t *testing.T) {
	h := newHarness(t)
	p := NewSimplePattern(h.deps)
	ctx := context.Background()

	if _, err := p.ProcessDocument(ctx, fixtures.GoDoc, "u1", map[string]any{"topic": "go"}); err != nil {
		t.Fatal(err)
	}

	items, err := h.store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) == 0 {
		t.Fatal("no items stored")
	}
	for _, item := range items {
		if item.MetaString(types.MetaMode) != "simple" {
			t.Errorf("item %s missing mode tag: %+v", item.ID, item.Metadata)
		}
		if item.Metadata["topic"] != "go" {
			t.Errorf("caller metadata must be preserved: %+v", item.Metadata)
		}
		if item.ParentDoc == "" {
			t.Errorf("item %s missing parent doc id", item.ID)
		}
	}
}

func TestSimplePattern_IngestionContinuesPastChunkFailures(t *testing.T) {
	h := newHarness(t)
	p := NewSimplePattern(h.deps)

	// 第二次嵌入调用起失败：第一块成功，其余块失败但摄取继续
	h.embedder.FailAfter = 1
	summary, err := p.ProcessDocument(context.Background(), fixtures.GoDoc, "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDocument must not abort on chunk failures: %v", err)
	}
	if summary.Stored != 1 {
		t.Errorf("expected exactly 1 stored chunk, got %d", summary.Stored)
	}
	if summary.Failed == 0 || len(summary.Errors) == 0 {
		t.Errorf("chunk failures must be reported in the summary: %+v", summary)
	}
}

func TestSimplePattern_RegistrarFailureDoesNotFailStorage(t *testing.T) {
	h := newHarness(t)
	p := NewSimplePattern(h.deps)

	h.registrar.FailNext = true
	summary, err := p.ProcessDocument(context.Background(), fixtures.AppleDoc, "u1", nil)
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if summary.Stored == 0 || summary.Failed != 0 {
		t.Errorf("registrar failure must not affect storage: %+v", summary)
	}
}

func TestSimplePattern_StoredItemsAreRegistered(t *testing.T) {
	h := newHarness(t)
	p := NewSimplePattern(h.deps)

	summary, err := p.ProcessDocument(context.Background(), fixtures.AppleDoc, "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if h.registrar.Count() != summary.Stored {
		t.Errorf("expected %d registrations, got %d", summary.Stored, h.registrar.Count())
	}
}

func TestSimplePattern_UserIsolation(t *testing.T) {
	h := newHarness(t)
	p := NewSimplePattern(h.deps)
	ctx := context.Background()

	if _, err := p.ProcessDocument(ctx, fixtures.AppleDoc, "u1", nil); err != nil {
		t.Fatal(err)
	}

	result := p.Query(ctx, "Who founded Apple?", "u2", nil)
	if !result.Success {
		t.Fatalf("query failed: %s", result.Error)
	}
	if len(result.Sources) != 0 {
		t.Errorf("u2 must not see u1's knowledge, got %d sources", len(result.Sources))
	}
}
