package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// TestQueryModel tests a successful single-model query
func TestQueryModel(t *testing.T) {
	setupMockGateway(t, CreateMockOpenRouterHandler(t, "Hello from the model"))

	messages := []OpenRouterMessage{{Role: "user", Content: "Hi"}}
	response, err := QueryModel(context.Background(), "test/model", messages, 5*time.Second)

	if err != nil {
		t.Fatalf("QueryModel failed: %v", err)
	}
	if response.Content != "Hello from the model" {
		t.Errorf("Content = %q", response.Content)
	}
}

// TestQueryModelAPIError tests handling of non-200 responses
func TestQueryModelAPIError(t *testing.T) {
	oldDelay := QueryRetryDelay
	QueryRetryDelay = 10 * time.Millisecond
	defer func() { QueryRetryDelay = oldDelay }()

	setupMockGateway(t, CreateMockOpenRouterErrorHandler(http.StatusTooManyRequests, "rate limited"))

	_, err := QueryModel(context.Background(), "test/model", nil, 5*time.Second)
	if err == nil {
		t.Fatal("Expected error for 429 response")
	}
}

// TestQueryModelMalformedResponse tests handling of unparseable bodies
func TestQueryModelMalformedResponse(t *testing.T) {
	oldDelay := QueryRetryDelay
	QueryRetryDelay = 10 * time.Millisecond
	defer func() { QueryRetryDelay = oldDelay }()

	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not json at all"))
	}
	setupMockGateway(t, handler)

	_, err := QueryModel(context.Background(), "test/model", nil, 5*time.Second)
	if err == nil {
		t.Fatal("Expected error for malformed response")
	}
}

// TestQueryModelNoChoices tests handling of empty choices
func TestQueryModelNoChoices(t *testing.T) {
	oldDelay := QueryRetryDelay
	QueryRetryDelay = 10 * time.Millisecond
	defer func() { QueryRetryDelay = oldDelay }()

	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(OpenRouterAPIResponse{})
	}
	setupMockGateway(t, handler)

	_, err := QueryModel(context.Background(), "test/model", nil, 5*time.Second)
	if err == nil {
		t.Fatal("Expected error for response with no choices")
	}
}

// TestQueryModelRetries verifies a transient failure is retried and the
// second attempt can succeed
func TestQueryModelRetries(t *testing.T) {
	oldDelay := QueryRetryDelay
	QueryRetryDelay = 10 * time.Millisecond
	defer func() { QueryRetryDelay = oldDelay }()

	var calls int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeMockChatResponse(w, "second attempt")
	}
	setupMockGateway(t, handler)

	response, err := QueryModel(context.Background(), "test/model", nil, 5*time.Second)
	if err != nil {
		t.Fatalf("QueryModel failed after retry: %v", err)
	}
	if response.Content != "second attempt" {
		t.Errorf("Content = %q, want second attempt", response.Content)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
}

// TestQueryModelCancelledContext verifies retries stop once the context is
// cancelled
func TestQueryModelCancelledContext(t *testing.T) {
	setupMockGateway(t, CreateMockOpenRouterErrorHandler(http.StatusInternalServerError, "down"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := QueryModel(ctx, "test/model", nil, 5*time.Second)
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	// Must not sit out the full retry delay after cancellation
	if elapsed := time.Since(start); elapsed > QueryRetryDelay {
		t.Errorf("QueryModel took %v, should return promptly after cancellation", elapsed)
	}
}

// TestQueryModelsParallel tests parallel fan-out with per-model messages
func TestQueryModelsParallel(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		var request OpenRouterRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeMockChatResponse(w, "echo:"+request.Messages[0].Content)
	}
	setupMockGateway(t, handler)

	models := []string{"test/model1", "test/model2", "test/model3"}
	results := QueryModelsParallel(context.Background(), models, func(model string) []OpenRouterMessage {
		return []OpenRouterMessage{{Role: "user", Content: model}}
	})

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for _, model := range models {
		response := results[model]
		if response == nil {
			t.Errorf("Model %s has nil result", model)
			continue
		}
		// Each model must have received its own message list
		if response.Content != "echo:"+model {
			t.Errorf("Model %s got %q, want %q", model, response.Content, "echo:"+model)
		}
	}
}

// TestQueryModelsParallelPartialFailure verifies one failing model yields
// nil while the others still succeed
func TestQueryModelsParallelPartialFailure(t *testing.T) {
	oldDelay := QueryRetryDelay
	QueryRetryDelay = 10 * time.Millisecond
	defer func() { QueryRetryDelay = oldDelay }()

	handler := func(w http.ResponseWriter, r *http.Request) {
		var request OpenRouterRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if request.Model == "test/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeMockChatResponse(w, "ok")
	}
	setupMockGateway(t, handler)

	models := []string{"test/model1", "test/broken", "test/model2"}
	results := QueryModelsParallel(context.Background(), models, func(model string) []OpenRouterMessage {
		return []OpenRouterMessage{{Role: "user", Content: "Hi"}}
	})

	if len(results) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(results))
	}
	if results["test/broken"] != nil {
		t.Error("Broken model should map to nil")
	}
	if results["test/model1"] == nil || results["test/model2"] == nil {
		t.Error("Healthy models should have responses")
	}
}
