package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// QueryModel queries a single model via OpenRouter API with the given timeout.
// Remote errors, timeouts and malformed responses all come back as a plain
// error value; callers apply their own fallback policy. A bounded number of
// attempts is made before giving up; retries stop early once the context is
// cancelled.
func QueryModel(ctx context.Context, model string, messages []OpenRouterMessage, timeout time.Duration) (*OpenRouterResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxQueryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(QueryRetryDelay):
			}
		}

		response, err := queryModelOnce(ctx, model, messages, timeout)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if attempt < MaxQueryAttempts {
			log.Printf("Attempt %d querying model %s failed, retrying: %v", attempt, model, err)
		}
	}
	return nil, fmt.Errorf("model %s failed after %d attempts: %w", model, MaxQueryAttempts, lastErr)
}

// queryModelOnce performs a single OpenRouter chat completion request
func queryModelOnce(ctx context.Context, model string, messages []OpenRouterMessage, timeout time.Duration) (*OpenRouterResponse, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: timeout,
	}

	// Build request payload
	payload := OpenRouterRequest{
		Model:    model,
		Messages: messages,
	}

	// Marshal payload to JSON
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, "POST", OpenRouterAPIURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Authorization", "Bearer "+OpenRouterAPIKey)
	req.Header.Set("Content-Type", "application/json")

	// Make the request
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	// Check status code
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	// Read response body
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Parse response
	var apiResponse OpenRouterAPIResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Extract message from response
	if len(apiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	message := apiResponse.Choices[0].Message
	return &OpenRouterResponse{
		Content:          message.Content,
		ReasoningDetails: message.ReasoningDetails,
	}, nil
}

// QueryModelsParallel queries multiple models in parallel using goroutines.
// buildMessages is called once per model so each model can receive its own
// message list (personality system prompts differ per model). Failed models
// return nil in the results map while successful models return their
// responses; an individual failure never aborts the other models, and the
// call always waits for every model to settle.
func QueryModelsParallel(ctx context.Context, models []string, buildMessages func(model string) []OpenRouterMessage) map[string]*OpenRouterResponse {
	g, gctx := errgroup.WithContext(ctx)

	// Results map and mutex for thread-safe writes
	results := make(map[string]*OpenRouterResponse)
	var mu sync.Mutex

	// Launch goroutine for each model
	for _, model := range models {
		model := model // Capture loop variable
		g.Go(func() error {
			response, err := QueryModel(gctx, model, buildMessages(model), ModelQueryTimeout)

			// Graceful degradation: log error but don't fail entire request
			if err != nil {
				log.Printf("Error querying model %s: %v", model, err)
				mu.Lock()
				results[model] = nil
				mu.Unlock()
				return nil // Don't propagate error, continue with other models
			}

			// Store successful response
			mu.Lock()
			results[model] = response
			mu.Unlock()
			return nil
		})
	}

	// Wait for all goroutines to complete. No goroutine returns an error,
	// so Wait only synchronizes.
	_ = g.Wait()

	return results
}
