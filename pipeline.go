package main

import (
	"context"
	"errors"
	"log"
	"sync"
)

// StreamEvent is one lifecycle event of a turn's pipeline. Events are
// emitted in strict order; `complete`, `error` and `cancelled` are
// terminal and nothing follows them.
type StreamEvent struct {
	Type     string      `json:"type"`
	Mode     string      `json:"mode,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Metadata interface{} `json:"metadata,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// EventSink consumes pipeline events. The SSE handler writes them to the
// wire; the non-streaming handler folds them into one aggregate response.
type EventSink func(StreamEvent)

// Event type names
const (
	EventStage1Start      = "stage1_start"
	EventStage1Complete   = "stage1_complete"
	EventStage2Start      = "stage2_start"
	EventStage2Complete   = "stage2_complete"
	EventStage3Start      = "stage3_start"
	EventStage3Complete   = "stage3_complete"
	EventChairmanStart    = "chairman_start"
	EventChairmanComplete = "chairman_complete"
	EventTitleComplete    = "title_complete"
	EventComplete         = "complete"
	EventError            = "error"
	EventCancelled        = "cancelled"
)

var (
	// ErrConversationNotFound is returned before any event is emitted or
	// message appended, so the HTTP layer can answer 404.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrTurnInProgress enforces at most one in-flight turn per
	// conversation.
	ErrTurnInProgress = errors.New("a turn is already in progress for this conversation")
)

// TurnRegistry tracks in-flight turns per conversation so that a turn can
// be cancelled from another request and so that a conversation never has
// two turns running at once.
type TurnRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewTurnRegistry creates an empty registry
func NewTurnRegistry() *TurnRegistry {
	return &TurnRegistry{cancels: make(map[string]context.CancelFunc)}
}

// Begin registers a turn for the conversation and returns its context.
// Fails if a turn is already in flight.
func (r *TurnRegistry) Begin(parent context.Context, conversationID string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cancels[conversationID]; exists {
		return nil, ErrTurnInProgress
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancels[conversationID] = cancel
	return ctx, nil
}

// End releases the conversation's slot after the turn finishes
func (r *TurnRegistry) End(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, exists := r.cancels[conversationID]; exists {
		cancel()
		delete(r.cancels, conversationID)
	}
}

// Cancel requests cancellation of the conversation's in-flight turn.
// Returns false if no turn is running. The pipeline observes the
// cancellation at its next stage boundary.
func (r *TurnRegistry) Cancel(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, exists := r.cancels[conversationID]
	if !exists {
		return false
	}
	cancel()
	return true
}

// Active reports whether a turn is in flight for the conversation
func (r *TurnRegistry) Active(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.cancels[conversationID]
	return exists
}

// Global turn registry, shared by the message and cancel handlers
var turns = NewTurnRegistry()

// TurnRequest describes one submitted turn
type TurnRequest struct {
	ConversationID   string
	Content          string
	Mode             string
	IncludeDocuments bool
}

// RunTurn drives one turn end to end: mode routing, history building, the
// selected pipeline, event emission and the single message commit. The
// user message is appended first; the assistant turn commits exactly one
// message (council, chairman or cancelled) or none on fatal error.
func RunTurn(ctx context.Context, req TurnRequest, emit EventSink) error {
	conversation, err := GetConversation(req.ConversationID)
	if err != nil {
		emitError(emit, "Failed to load conversation: "+err.Error())
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}

	// Build history from committed messages, before the new user message
	history := BuildConversationHistory(conversation.Messages)
	mode, useHistory := ResolveTurnMode(len(conversation.Messages), req.Mode)
	isFirstMessage := len(conversation.Messages) == 0

	if err := AddUserMessage(req.ConversationID, req.Content); err != nil {
		emitError(emit, "Failed to add user message: "+err.Error())
		return err
	}

	// Prepend document context when the caller opted in
	query := req.Content
	if req.IncludeDocuments {
		if docContext := GetActiveDocumentsContext(); docContext != "" {
			query = docContext + "\n\n" + req.Content
		}
	}

	if mode == ModeChairman {
		return runChairmanTurn(ctx, req.ConversationID, query, history, emit)
	}

	if !useHistory {
		history = nil
	}
	return runCouncilTurn(ctx, req.ConversationID, req.Content, query, history, isFirstMessage, conversation.PersonalityConfig, emit)
}

// runChairmanTurn executes the cheap chairman-only path
func runChairmanTurn(ctx context.Context, conversationID, query string, history []OpenRouterMessage, emit EventSink) error {
	emit(StreamEvent{Type: EventChairmanStart})

	result := ChatWithChairman(ctx, query, history)
	if checkpointCancelled(ctx, conversationID, nil, emit) {
		return nil
	}

	if err := AddChairmanMessage(conversationID, result); err != nil {
		emitError(emit, "Failed to save message: "+err.Error())
		return err
	}

	emit(StreamEvent{Type: EventChairmanComplete, Data: result})
	emit(StreamEvent{Type: EventComplete, Mode: ModeChairman})
	return nil
}

// runCouncilTurn executes the full three-stage deliberation
func runCouncilTurn(ctx context.Context, conversationID, content, query string, history []OpenRouterMessage, isFirstMessage bool, config *PersonalityConfig, emit EventSink) error {
	// Start title generation in background on the first turn
	var titleChan chan string
	if isFirstMessage {
		titleChan = startTitleGeneration(content)
	}

	assignments, chairmanPersonality := resolveTurnPersonalities(config)

	contextSummary := ""
	if len(history) > 0 {
		contextSummary = FormatHistorySummary(history, HistorySummaryTurns)
	}

	// Stage 1
	emit(StreamEvent{Type: EventStage1Start})
	stage1 := Stage1CollectResponses(ctx, query, history, assignments)
	if checkpointCancelled(ctx, conversationID, titleChan, emit) {
		return nil
	}
	emit(StreamEvent{Type: EventStage1Complete, Data: stage1})

	// Stage 2
	emit(StreamEvent{Type: EventStage2Start})
	stage2, labelToModel := Stage2CollectRankings(ctx, content, stage1, contextSummary, assignments)
	aggregate := CalculateAggregateRankings(stage2, labelToModel, modelOrder(stage1))
	if checkpointCancelled(ctx, conversationID, titleChan, emit) {
		return nil
	}
	metadata := &CouncilMetadata{
		LabelToModel:      labelToModel,
		AggregateRankings: aggregate,
	}
	emit(StreamEvent{Type: EventStage2Complete, Data: stage2, Metadata: metadata})

	// Stage 3
	emit(StreamEvent{Type: EventStage3Start})
	stage3 := Stage3SynthesizeFinal(ctx, content, stage1, stage2, aggregate, contextSummary, chairmanPersonality)
	if checkpointCancelled(ctx, conversationID, titleChan, emit) {
		return nil
	}
	emit(StreamEvent{Type: EventStage3Complete, Data: stage3})

	// Wait for title if it was being generated
	if titleChan != nil {
		if title := awaitTitle(conversationID, titleChan); title != "" {
			emit(StreamEvent{Type: EventTitleComplete, Data: map[string]string{"title": title}})
		}
	}

	// Commit all four council fields as one message
	if err := AddCouncilMessage(conversationID, stage1, stage2, stage3, metadata); err != nil {
		emitError(emit, "Failed to save message: "+err.Error())
		return err
	}

	emit(StreamEvent{Type: EventComplete, Mode: ModeCouncil})
	return nil
}

// checkpointCancelled is the stage-boundary cancellation check. When the
// turn's context is done, the results of the stage that just finished are
// discarded, a cancelled message is committed in their place and the
// terminal cancelled event is emitted. An in-flight title generation is
// drained first so both conversation writes happen on this goroutine, in
// order.
func checkpointCancelled(ctx context.Context, conversationID string, titleChan chan string, emit EventSink) bool {
	if ctx.Err() == nil {
		return false
	}
	if titleChan != nil {
		awaitTitle(conversationID, titleChan)
	}
	if err := AddCancelledMessage(conversationID); err != nil {
		log.Printf("Failed to record cancelled turn for %s: %v", conversationID, err)
	}
	emit(StreamEvent{Type: EventCancelled})
	return true
}

// resolveTurnPersonalities produces this turn's model-to-personality
// assignments and the chairman personality. With shuffle_each_turn set, a
// fresh random assignment is drawn instead of reusing the fixed one.
func resolveTurnPersonalities(config *PersonalityConfig) (map[string]string, *Personality) {
	if config == nil {
		return nil, nil
	}

	assignments := config.CouncilAssignments
	if config.ShuffleEachTurn {
		personalities, err := ListPersonalities("")
		if err != nil {
			log.Printf("Failed to list personalities for shuffle: %v", err)
		} else if len(personalities) > 0 {
			ids := make([]string, 0, len(personalities))
			for _, p := range personalities {
				ids = append(ids, p.ID)
			}
			assignments = ShuffleAssignments(CouncilModels, ids)
		}
	}

	var chairmanPersonality *Personality
	if config.ChairmanPersonalityID != "" {
		p, err := GetPersonality(config.ChairmanPersonalityID)
		if err != nil {
			log.Printf("Failed to load chairman personality: %v", err)
		} else {
			chairmanPersonality = p
		}
	}

	return assignments, chairmanPersonality
}

// startTitleGeneration generates the conversation title concurrently with
// stage 1. The goroutine only produces the title; the storage write stays
// on the pipeline goroutine (awaitTitle) so it cannot interleave with a
// message commit on the same conversation file. Title generation is
// deliberately detached from the turn's cancellation.
func startTitleGeneration(content string) chan string {
	titleChan := make(chan string, 1)
	go func() {
		defer close(titleChan)
		title, err := GenerateConversationTitle(context.Background(), content)
		if err != nil {
			log.Printf("Failed to generate title: %v", err)
			return
		}
		titleChan <- title
	}()
	return titleChan
}

// awaitTitle receives the generated title and stores it. Returns "" when
// generation failed and the default title stands.
func awaitTitle(conversationID string, titleChan chan string) string {
	title := <-titleChan
	if title == "" {
		return ""
	}
	if err := UpdateConversationTitle(conversationID, title); err != nil {
		log.Printf("Failed to update title: %v", err)
		return ""
	}
	return title
}

// emitError emits the terminal error event
func emitError(emit EventSink, message string) {
	emit(StreamEvent{Type: EventError, Message: message})
}
