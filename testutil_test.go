package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setupTempStorage redirects all storage directories into a fresh temp dir
// and restores them when the test finishes
func setupTempStorage(t *testing.T) string {
	t.Helper()

	oldDataDir := DataDir
	oldPersonalitiesDir := PersonalitiesDir
	oldDocumentsDir := DocumentsDir
	oldRegistryPath := DocumentRegistryPath

	tempDir := t.TempDir()
	DataDir = filepath.Join(tempDir, "conversations")
	PersonalitiesDir = filepath.Join(tempDir, "personalities")
	DocumentsDir = filepath.Join(tempDir, "documents")
	DocumentRegistryPath = filepath.Join(tempDir, "document_registry.json")
	documentContextCache.Invalidate()

	t.Cleanup(func() {
		DataDir = oldDataDir
		PersonalitiesDir = oldPersonalitiesDir
		DocumentsDir = oldDocumentsDir
		DocumentRegistryPath = oldRegistryPath
		documentContextCache.Invalidate()
	})

	return tempDir
}

// setupMockGateway points the OpenRouter client at a mock server and
// restores the original config when the test finishes
func setupMockGateway(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	oldAPIURL := OpenRouterAPIURL
	oldAPIKey := OpenRouterAPIKey

	server := httptest.NewServer(handler)
	OpenRouterAPIURL = server.URL
	OpenRouterAPIKey = "test-key"

	t.Cleanup(func() {
		OpenRouterAPIURL = oldAPIURL
		OpenRouterAPIKey = oldAPIKey
		server.Close()
	})

	return server
}

// setCouncilModels overrides the council composition for a test
func setCouncilModels(t *testing.T, models []string, chairman string) {
	t.Helper()

	oldModels := CouncilModels
	oldChairman := ChairmanModel
	CouncilModels = models
	ChairmanModel = chairman

	t.Cleanup(func() {
		CouncilModels = oldModels
		ChairmanModel = oldChairman
	})
}

// writeMockChatResponse writes a well-formed chat completion response
func writeMockChatResponse(w http.ResponseWriter, content string) {
	apiResponse := OpenRouterAPIResponse{
		Choices: []struct {
			Message struct {
				Content          string      `json:"content"`
				ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
			} `json:"message"`
		}{
			{
				Message: struct {
					Content          string      `json:"content"`
					ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
				}{
					Content: content,
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse)
}

// CreateMockOpenRouterHandler creates a handler that returns successful responses
func CreateMockOpenRouterHandler(t *testing.T, response string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Verify headers
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		if r.Header.Get("Authorization") == "" {
			t.Errorf("Missing Authorization header")
		}

		writeMockChatResponse(w, response)
	}
}

// CreateMockOpenRouterErrorHandler creates a handler that returns errors
func CreateMockOpenRouterErrorHandler(statusCode int, errorMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		w.Write([]byte(errorMsg))
	}
}

// CreateStageAwareHandler creates a handler that answers differently per
// pipeline stage by inspecting the request prompt. Works regardless of the
// order parallel requests arrive in.
func CreateStageAwareHandler(t *testing.T, ranking string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request OpenRouterRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("Failed to decode mock request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		prompt := ""
		if len(request.Messages) > 0 {
			prompt = request.Messages[len(request.Messages)-1].Content
		}

		// Check the chairman case before the ranking case: the synthesis
		// prompt embeds the stage 2 ranking text.
		switch {
		case strings.Contains(prompt, "Generate a very short title"):
			writeMockChatResponse(w, "Test Conversation Title")
		case strings.Contains(prompt, "Chairman of an LLM Council"):
			writeMockChatResponse(w, "Synthesized final answer from "+request.Model)
		case strings.Contains(prompt, "FINAL RANKING"):
			writeMockChatResponse(w, ranking)
		default:
			writeMockChatResponse(w, "Answer from "+request.Model)
		}
	}
}

// SampleConversation creates a sample conversation for testing
func SampleConversation(id string) *Conversation {
	return &Conversation{
		ID:        id,
		CreatedAt: testTime(),
		Title:     "Test Conversation",
		Messages: []Message{
			NewUserMessage("What is Go?"),
			NewCouncilMessage(
				[]Stage1Response{
					{Model: "test/model1", Response: "Go is a programming language."},
					{Model: "test/model2", Response: "Go is developed by Google."},
				},
				[]Stage2Ranking{
					{
						Model:         "test/model1",
						Ranking:       "FINAL RANKING:\n1. Response B\n2. Response A",
						ParsedRanking: []string{"Response B", "Response A"},
					},
				},
				&Stage3Response{
					Model:    "test/chairman",
					Response: "Go is a programming language developed by Google.",
				},
				&CouncilMetadata{
					LabelToModel: map[string]string{
						"Response A": "test/model1",
						"Response B": "test/model2",
					},
				},
			),
		},
	}
}

// testTime returns a fixed time for testing
func testTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}
