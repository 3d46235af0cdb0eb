package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// DocumentMetadata describes an uploaded document. The extracted text
// lives in a separate per-document file; the registry holds metadata only.
type DocumentMetadata struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Size       int       `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
	TextLength int       `json:"text_length"`
	Truncated  bool      `json:"truncated,omitempty"`
	IsActive   bool      `json:"is_active"`
	Preview    string    `json:"preview,omitempty"`
}

// EnsureDocumentsDir creates the documents directory if it doesn't exist
func EnsureDocumentsDir() error {
	return os.MkdirAll(DocumentsDir, 0755)
}

// getDocumentTextPath returns the path of a document's extracted text file
func getDocumentTextPath(documentID string) string {
	return filepath.Join(DocumentsDir, documentID+".txt")
}

// loadRegistry reads the document registry. A missing registry is an
// empty one.
func loadRegistry() ([]DocumentMetadata, error) {
	data, err := os.ReadFile(DocumentRegistryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []DocumentMetadata{}, nil
		}
		return nil, fmt.Errorf("failed to read document registry: %w", err)
	}

	var registry []DocumentMetadata
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse document registry: %w", err)
	}
	return registry, nil
}

// saveRegistry writes the document registry to disk
func saveRegistry(registry []DocumentMetadata) error {
	if err := EnsureDocumentsDir(); err != nil {
		return fmt.Errorf("failed to create documents directory: %w", err)
	}

	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document registry: %w", err)
	}

	if err := os.WriteFile(DocumentRegistryPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write document registry: %w", err)
	}
	return nil
}

// CreateDocument stores an uploaded document's extracted text and registers
// it. Text beyond MaxDocumentTextLength is truncated and flagged. New
// documents start active.
func CreateDocument(filename, text string) (*DocumentMetadata, error) {
	if err := EnsureDocumentsDir(); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}

	originalLength := len(text)
	truncated := false
	if len(text) > MaxDocumentTextLength {
		text = text[:MaxDocumentTextLength]
		truncated = true
	}

	doc := DocumentMetadata{
		ID:         uuid.New().String(),
		Filename:   filename,
		Size:       originalLength,
		UploadedAt: time.Now(),
		TextLength: len(text),
		Truncated:  truncated,
		IsActive:   true,
	}

	if err := os.WriteFile(getDocumentTextPath(doc.ID), []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("failed to write document text: %w", err)
	}

	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	registry = append(registry, doc)
	if err := saveRegistry(registry); err != nil {
		return nil, err
	}

	documentContextCache.Invalidate()
	return &doc, nil
}

// GetDocumentText loads a document's extracted text. Returns ("", nil)
// when the document does not exist.
func GetDocumentText(documentID string) (string, error) {
	data, err := os.ReadFile(getDocumentTextPath(documentID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read document text: %w", err)
	}
	return string(data), nil
}

// DocumentListResponse is the document list payload, carrying the
// freshness of the assembled active-documents context alongside the
// documents
type DocumentListResponse struct {
	Documents          []DocumentMetadata `json:"documents"`
	ContextLastUpdated time.Time          `json:"context_last_updated"`
}

// ListDocuments returns all documents newest first, each with a short
// preview of its text
func ListDocuments() ([]DocumentMetadata, error) {
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}

	for i := range registry {
		text, err := GetDocumentText(registry[i].ID)
		if err != nil {
			continue
		}
		preview := text
		if runes := []rune(preview); len(runes) > 200 {
			preview = string(runes[:200])
		}
		registry[i].Preview = preview
	}

	sort.Slice(registry, func(i, j int) bool {
		return registry[i].UploadedAt.After(registry[j].UploadedAt)
	})
	return registry, nil
}

// DeleteDocument removes a document and its text file. Returns false if
// the document did not exist.
func DeleteDocument(documentID string) (bool, error) {
	registry, err := loadRegistry()
	if err != nil {
		return false, err
	}

	found := false
	filtered := registry[:0]
	for _, doc := range registry {
		if doc.ID == documentID {
			found = true
			continue
		}
		filtered = append(filtered, doc)
	}
	if !found {
		return false, nil
	}

	if err := saveRegistry(filtered); err != nil {
		return false, err
	}
	if err := os.Remove(getDocumentTextPath(documentID)); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove document text file for %s: %v", documentID, err)
	}

	documentContextCache.Invalidate()
	return true, nil
}

// SetDocumentActive toggles whether a document is included in the active
// context. Returns (nil, nil) when the document does not exist.
func SetDocumentActive(documentID string, active bool) (*DocumentMetadata, error) {
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}

	for i := range registry {
		if registry[i].ID != documentID {
			continue
		}
		registry[i].IsActive = active
		if err := saveRegistry(registry); err != nil {
			return nil, err
		}
		documentContextCache.Invalidate()
		doc := registry[i]
		return &doc, nil
	}
	return nil, nil
}

// GetActiveDocumentsContext assembles the text of all active documents
// into one context block for prepending to a model query. The assembled
// block is cached; document mutations invalidate it. Returns "" when no
// documents are active.
func GetActiveDocumentsContext() string {
	if cached, ok := documentContextCache.Get(); ok {
		return cached
	}

	registry, err := loadRegistry()
	if err != nil {
		log.Printf("Failed to load document registry: %v", err)
		return ""
	}

	var sections []string
	for _, doc := range registry {
		if !doc.IsActive {
			continue
		}
		text, err := GetDocumentText(doc.ID)
		if err != nil || text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("--- Document: %s ---\n%s", doc.Filename, text))
	}

	assembled := ""
	if len(sections) > 0 {
		assembled = "=== UPLOADED DOCUMENTS ===\n" +
			strings.Join(sections, "\n\n") +
			"\n=== END DOCUMENTS ==="
	}

	documentContextCache.Set(assembled)
	return assembled
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// FetchURLContent fetches a web page and extracts its visible text for use
// as document content. Script, style and noscript contents are dropped and
// whitespace is collapsed.
func FetchURLContent(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic a browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")

	client := &http.Client{
		Timeout: URLFetchTimeout,
	}

	// Execute request with retry logic
	var resp *http.Response
	for attempt := 0; attempt < MaxQueryAttempts; attempt++ {
		resp, err = client.Do(req)
		if err == nil {
			break
		}

		if attempt < MaxQueryAttempts-1 {
			log.Printf("Attempt %d fetching %s failed, retrying: %v", attempt+1, url, err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(QueryRetryDelay):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL after %d attempts: %w", MaxQueryAttempts, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))

	if text == "" {
		return "", fmt.Errorf("no text content found at %s", url)
	}
	return text, nil
}
