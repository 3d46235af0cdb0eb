package main

import "time"

// MessageType discriminates the message variants stored in a conversation.
// A council message always carries stage1, stage2, stage3 and metadata
// together; the constructors below are the only way messages are built, so
// a half-populated council message cannot reach storage.
type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeCouncil   MessageType = "council"
	MessageTypeChairman  MessageType = "chairman"
	MessageTypeCancelled MessageType = "cancelled"
)

// Message represents a single message in a conversation
type Message struct {
	Type             MessageType        `json:"type"`
	Role             string             `json:"role"`
	Content          string             `json:"content,omitempty"`
	Stage1           []Stage1Response   `json:"stage1,omitempty"`
	Stage2           []Stage2Ranking    `json:"stage2,omitempty"`
	Stage3           *Stage3Response    `json:"stage3,omitempty"`
	Metadata         *CouncilMetadata   `json:"metadata,omitempty"`
	ChairmanResponse *Stage3Response    `json:"chairman_response,omitempty"`
}

// NewUserMessage builds a user turn
func NewUserMessage(content string) Message {
	return Message{Type: MessageTypeUser, Role: "user", Content: content}
}

// NewCouncilMessage builds a completed full-deliberation turn. All four
// council fields are committed as one unit.
func NewCouncilMessage(stage1 []Stage1Response, stage2 []Stage2Ranking, stage3 *Stage3Response, metadata *CouncilMetadata) Message {
	return Message{
		Type:     MessageTypeCouncil,
		Role:     "assistant",
		Stage1:   stage1,
		Stage2:   stage2,
		Stage3:   stage3,
		Metadata: metadata,
	}
}

// NewChairmanMessage builds a chairman-only turn
func NewChairmanMessage(result *Stage3Response) Message {
	return Message{Type: MessageTypeChairman, Role: "assistant", ChairmanResponse: result}
}

// NewCancelledMessage marks a turn that was cancelled before completing.
// No partial stage data is ever stored for a cancelled turn.
func NewCancelledMessage() Message {
	return Message{Type: MessageTypeCancelled, Role: "assistant"}
}

// Conversation represents a full conversation with all messages
type Conversation struct {
	ID                string             `json:"id"`
	CreatedAt         time.Time          `json:"created_at"`
	Title             string             `json:"title"`
	Messages          []Message          `json:"messages"`
	PersonalityConfig *PersonalityConfig `json:"personality_config,omitempty"`
}

// ConversationMetadata represents conversation list metadata
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// Stage1Response represents a single model's response in Stage 1.
// Failed models still get an entry, with a placeholder response, so every
// stage sees exactly one answer per configured council model.
type Stage1Response struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Failed   bool   `json:"failed,omitempty"`
}

// Stage2Ranking represents a model's ranking of the anonymized responses
type Stage2Ranking struct {
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking,omitempty"`
	ParsedRanking []string `json:"parsed_ranking,omitempty"`
	Failed        bool     `json:"failed,omitempty"`
}

// Stage3Response represents the chairman's final synthesis (or the
// chairman-only reply). Failed marks the fixed failure-sentinel text.
type Stage3Response struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Failed   bool   `json:"failed,omitempty"`
}

// AggregateRanking is one entry of the combined ranking across all valid
// submissions, Borda-scored and sorted best first.
type AggregateRanking struct {
	Model         string `json:"model"`
	Score         int    `json:"score"`
	RankingsCount int    `json:"rankings_count"`
}

// CouncilMetadata contains additional information about the council process
type CouncilMetadata struct {
	LabelToModel      map[string]string  `json:"label_to_model"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
}

// PersonalityConfig is the per-conversation personality setup
type PersonalityConfig struct {
	Mode                  string            `json:"mode"` // "none" | "all_same" | "each_different"
	CouncilAssignments    map[string]string `json:"council_assignments,omitempty"`
	ChairmanPersonalityID string            `json:"chairman_personality_id,omitempty"`
	ShuffleEachTurn       bool              `json:"shuffle_each_turn,omitempty"`
}

// Personality is a named prompt preset assignable to council models
type Personality struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Type               string   `json:"type"` // "simple" | "detailed"
	Role               string   `json:"role"`
	Expertise          []string `json:"expertise"`
	Perspective        string   `json:"perspective"`
	CommunicationStyle string   `json:"communication_style"`
}

// OpenRouterMessage represents a message for OpenRouter API
type OpenRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenRouterRequest represents a request to OpenRouter API
type OpenRouterRequest struct {
	Model    string              `json:"model"`
	Messages []OpenRouterMessage `json:"messages"`
}

// OpenRouterResponse represents a response from OpenRouter API
type OpenRouterResponse struct {
	Content          string      `json:"content"`
	ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
}

// OpenRouterAPIResponse represents the full API response structure
type OpenRouterAPIResponse struct {
	Choices []struct {
		Message struct {
			Content          string      `json:"content"`
			ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

// CreateConversationRequest represents a request to create a new conversation
type CreateConversationRequest struct {
	PersonalityConfig *PersonalityConfig `json:"personality_config,omitempty"`
}

// SendMessageRequest represents a request to send a message
type SendMessageRequest struct {
	Content          string `json:"content" binding:"required"`
	Mode             string `json:"mode,omitempty"` // "chairman" | "council"
	IncludeDocuments bool   `json:"include_documents,omitempty"`
}

// SendMessageResponse represents the aggregated (non-streaming) response
// after a turn completes. Council turns fill the stage fields; chairman
// turns fill ChairmanResponse only.
type SendMessageResponse struct {
	Mode             string           `json:"mode"`
	Cancelled        bool             `json:"cancelled,omitempty"`
	Stage1           []Stage1Response `json:"stage1,omitempty"`
	Stage2           []Stage2Ranking  `json:"stage2,omitempty"`
	Stage3           *Stage3Response  `json:"stage3,omitempty"`
	Metadata         *CouncilMetadata `json:"metadata,omitempty"`
	ChairmanResponse *Stage3Response  `json:"chairman_response,omitempty"`
}

// CreatePersonalityRequest is the create/update body for personalities
type CreatePersonalityRequest struct {
	Name               string   `json:"name" binding:"required"`
	Role               string   `json:"role" binding:"required"`
	Type               string   `json:"type,omitempty"`
	Expertise          []string `json:"expertise,omitempty"`
	Perspective        string   `json:"perspective,omitempty"`
	CommunicationStyle string   `json:"communication_style,omitempty"`
}
