package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration constants
var (
	// OpenRouterAPIKey is the API key for OpenRouter
	OpenRouterAPIKey string

	// CouncilModels is the list of models queried in parallel during
	// stages 1 and 2. Order here is the presentation order used for
	// anonymized labels and for tie-breaking aggregate rankings.
	CouncilModels = []string{
		"openai/gpt-5.1",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4",
	}

	// ChairmanModel is the model used for final synthesis and for
	// chairman-only follow-up turns
	ChairmanModel = "google/gemini-3-pro-preview"

	// TitleModel is a fast model used for conversation title generation
	TitleModel = "google/gemini-2.5-flash"

	// OpenRouterAPIURL is the endpoint for OpenRouter API
	OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"

	// DataDir is the directory for conversation storage
	DataDir = "data/conversations"

	// PersonalitiesDir is the directory for personality storage
	PersonalitiesDir = "data/personalities"

	// DocumentsDir holds per-document text files
	DocumentsDir = "data/documents"

	// DocumentRegistryPath is the JSON registry of document metadata
	DocumentRegistryPath = "data/document_registry.json"

	// Timeout constants
	ModelQueryTimeout = 120 * time.Second
	TitleGenTimeout   = 30 * time.Second
	URLFetchTimeout   = 30 * time.Second

	// MaxQueryAttempts bounds gateway retries. Retries are invisible to
	// the stages: they only ever see eventual success or failure.
	MaxQueryAttempts = 2

	// QueryRetryDelay is the pause between gateway attempts
	QueryRetryDelay = 2 * time.Second

	// HistorySummaryTurns is how many recent turns the stage 2/3 context
	// summary includes
	HistorySummaryTurns = 3

	// HistorySummaryCharLimit caps each summarized message
	HistorySummaryCharLimit = 500

	// MaxDocumentTextLength caps stored document text (500KB)
	MaxDocumentTextLength = 500 * 1024

	// DocumentContextTTL is the time-to-live for the assembled
	// active-documents context cache
	DocumentContextTTL = 5 * time.Minute

	// CORS allowed origins (configurable via environment)
	// In development (empty/default), allows any localhost port
	// In production, set CORS_ALLOWED_ORIGINS environment variable
	CORSAllowedOrigins = []string{}

	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize int64 = 1 << 20

	// ServerPort is the listen port for the HTTP API
	ServerPort = "8001"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	// Load .env file - try multiple locations
	envLocations := []string{
		".env",    // Current directory
		"../.env", // Parent directory
	}

	// Try to find and load .env file
	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				log.Printf("Loaded .env from: %s", absPath)
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		log.Printf("Warning: .env file not found in any expected location")
	}

	// Get OpenRouter API key
	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if OpenRouterAPIKey == "" {
		log.Fatal("OPENROUTER_API_KEY environment variable is required")
	}

	// Load CORS origins from environment if provided (comma-separated)
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		CORSAllowedOrigins = []string{}
		for _, origin := range strings.Split(corsOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				CORSAllowedOrigins = append(CORSAllowedOrigins, origin)
			}
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		ServerPort = port
	}

	log.Println("Configuration loaded successfully")
}
