package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// rerankServer 返回固定的重排结果，并记录收到的请求体。
func rerankServer(t *testing.T, status int, respJSON string) (*httptest.Server, *cohereRerankRequest) {
	t.Helper()
	var got cohereRerankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/rerank" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(status)
		w.Write([]byte(respJSON))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestCohereReranker_OrdersByServerScore(t *testing.T) {
	srv, got := rerankServer(t, http.StatusOK,
		`{"results":[{"index":1,"relevance_score":0.92},{"index":0,"relevance_score":0.41}]}`)

	rr := NewCohereReranker(CohereRerankConfig{APIKey: "test-key", BaseURL: srv.URL})
	docs := []string{"apple pie recipe", "apple company history"}

	results, err := rr.Rerank(context.Background(), "who founded apple", docs, 2)
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Index != 1 || results[0].Document != docs[1] {
		t.Errorf("top result should map index 1 back to its document, got %+v", results[0])
	}
	if results[0].RelevanceScore <= results[1].RelevanceScore {
		t.Errorf("server order must be preserved: %v", results)
	}
	if got.Query != "who founded apple" || got.TopN != 2 || len(got.Documents) != 2 {
		t.Errorf("request body not forwarded: %+v", got)
	}
	if got.Model != "rerank-v3.5" {
		t.Errorf("empty model must default, got %q", got.Model)
	}
}

func TestCohereReranker_EmptyDocumentsSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty documents")
	}))
	defer srv.Close()

	rr := NewCohereReranker(CohereRerankConfig{BaseURL: srv.URL})
	results, err := rr.Rerank(context.Background(), "anything", nil, 3)
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %v", results)
	}
}

func TestCohereReranker_DropsOutOfRangeIndices(t *testing.T) {
	srv, _ := rerankServer(t, http.StatusOK,
		`{"results":[{"index":5,"relevance_score":0.9},{"index":-1,"relevance_score":0.8},{"index":0,"relevance_score":0.7}]}`)

	rr := NewCohereReranker(CohereRerankConfig{APIKey: "test-key", BaseURL: srv.URL})
	results, err := rr.Rerank(context.Background(), "q", []string{"only doc"}, 0)
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if len(results) != 1 || results[0].Index != 0 {
		t.Errorf("out-of-range indices must be dropped, got %v", results)
	}
}

func TestCohereReranker_ServerErrorSurfaces(t *testing.T) {
	srv, _ := rerankServer(t, http.StatusInternalServerError, `{"message":"boom"}`)

	rr := NewCohereReranker(CohereRerankConfig{APIKey: "test-key", BaseURL: srv.URL})
	if _, err := rr.Rerank(context.Background(), "q", []string{"doc"}, 1); err == nil {
		t.Fatal("expected an error on HTTP 500")
	}
}
