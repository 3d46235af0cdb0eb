package main

import (
	"reflect"
	"testing"
)

// TestLoadConfigEnvOverrides tests API key, CORS and port loading
func TestLoadConfigEnvOverrides(t *testing.T) {
	oldKey := OpenRouterAPIKey
	oldOrigins := CORSAllowedOrigins
	oldPort := ServerPort
	defer func() {
		OpenRouterAPIKey = oldKey
		CORSAllowedOrigins = oldOrigins
		ServerPort = oldPort
	}()

	t.Setenv("OPENROUTER_API_KEY", "test-key-123")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("PORT", "9005")

	LoadConfig()

	if OpenRouterAPIKey != "test-key-123" {
		t.Errorf("API key = %q", OpenRouterAPIKey)
	}

	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(CORSAllowedOrigins, want) {
		t.Errorf("CORS origins = %v, want %v", CORSAllowedOrigins, want)
	}

	if ServerPort != "9005" {
		t.Errorf("Port = %q, want 9005", ServerPort)
	}
}

// TestCouncilConfiguration sanity-checks the council composition
func TestCouncilConfiguration(t *testing.T) {
	if len(CouncilModels) == 0 {
		t.Fatal("Council must have at least one model")
	}

	seen := map[string]bool{}
	for _, model := range CouncilModels {
		if model == "" {
			t.Error("Empty model identifier in council")
		}
		if seen[model] {
			t.Errorf("Duplicate council model %s", model)
		}
		seen[model] = true
	}

	if ChairmanModel == "" {
		t.Error("Chairman model must be configured")
	}
	if TitleModel == "" {
		t.Error("Title model must be configured")
	}
}
