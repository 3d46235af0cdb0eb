package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// EnsureDataDir creates the data directory if it doesn't exist
func EnsureDataDir() error {
	return os.MkdirAll(DataDir, 0755)
}

// GetConversationPath returns the file path for a conversation
func GetConversationPath(conversationID string) string {
	return filepath.Join(DataDir, conversationID+".json")
}

// CreateConversation creates a new conversation with a generated ID.
// An optional personality config is frozen into the conversation at
// creation time.
func CreateConversation(personalityConfig *PersonalityConfig) (*Conversation, error) {
	if err := EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conversation := &Conversation{
		ID:                uuid.New().String(),
		CreatedAt:         time.Now(),
		Title:             DefaultConversationTitle,
		Messages:          []Message{},
		PersonalityConfig: personalityConfig,
	}

	if err := SaveConversation(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// GetConversation loads a conversation from disk. Returns (nil, nil) when
// the conversation does not exist.
func GetConversation(conversationID string) (*Conversation, error) {
	path := GetConversationPath(conversationID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conversation Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("failed to parse conversation file: %w", err)
	}
	return &conversation, nil
}

// SaveConversation writes a conversation to disk as JSON
func SaveConversation(conversation *Conversation) error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(conversation, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	path := GetConversationPath(conversation.ID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	return nil
}

// ListConversations returns metadata for all conversations, newest first
func ListConversations() ([]ConversationMetadata, error) {
	if err := EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	entries, err := os.ReadDir(DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	metadata := []ConversationMetadata{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		conversationID := entry.Name()[:len(entry.Name())-len(".json")]
		conversation, err := GetConversation(conversationID)
		if err != nil || conversation == nil {
			// Skip unreadable files rather than failing the whole listing
			continue
		}

		metadata = append(metadata, ConversationMetadata{
			ID:           conversation.ID,
			CreatedAt:    conversation.CreatedAt,
			Title:        conversation.Title,
			MessageCount: len(conversation.Messages),
		})
	}

	sort.Slice(metadata, func(i, j int) bool {
		return metadata[i].CreatedAt.After(metadata[j].CreatedAt)
	})
	return metadata, nil
}

// appendMessage loads a conversation, appends the message and saves it
func appendMessage(conversationID string, message Message) error {
	conversation, err := GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Messages = append(conversation.Messages, message)
	return SaveConversation(conversation)
}

// AddUserMessage appends a user message to a conversation
func AddUserMessage(conversationID, content string) error {
	return appendMessage(conversationID, NewUserMessage(content))
}

// AddCouncilMessage appends a completed council turn. All stage results
// and the metadata are committed atomically as a single message.
func AddCouncilMessage(conversationID string, stage1 []Stage1Response, stage2 []Stage2Ranking, stage3 *Stage3Response, metadata *CouncilMetadata) error {
	return appendMessage(conversationID, NewCouncilMessage(stage1, stage2, stage3, metadata))
}

// AddChairmanMessage appends a chairman-only turn
func AddChairmanMessage(conversationID string, result *Stage3Response) error {
	return appendMessage(conversationID, NewChairmanMessage(result))
}

// AddCancelledMessage appends a cancelled-turn marker. The user message
// stays; no partial stage results are stored.
func AddCancelledMessage(conversationID string) error {
	return appendMessage(conversationID, NewCancelledMessage())
}

// UpdateConversationTitle updates the title of a conversation
func UpdateConversationTitle(conversationID, title string) error {
	conversation, err := GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Title = title
	return SaveConversation(conversation)
}
