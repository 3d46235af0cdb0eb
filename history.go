package main

import (
	"fmt"
	"strings"
)

// Turn modes
const (
	ModeCouncil  = "council"
	ModeChairman = "chairman"
)

// BuildConversationHistory converts a conversation's committed messages
// into a linear chat history usable as model input. A council message
// contributes only its stage 3 synthesis, a chairman message its response;
// cancelled turns contribute nothing.
func BuildConversationHistory(messages []Message) []OpenRouterMessage {
	var history []OpenRouterMessage
	for _, msg := range messages {
		switch msg.Type {
		case MessageTypeUser:
			history = append(history, OpenRouterMessage{Role: "user", Content: msg.Content})
		case MessageTypeCouncil:
			if msg.Stage3 != nil {
				history = append(history, OpenRouterMessage{Role: "assistant", Content: msg.Stage3.Response})
			}
		case MessageTypeChairman:
			if msg.ChairmanResponse != nil {
				history = append(history, OpenRouterMessage{Role: "assistant", Content: msg.ChairmanResponse.Response})
			}
		case MessageTypeCancelled:
			// Nothing was produced for this turn
		}
	}
	return history
}

// FormatHistorySummary formats the most recent turns of a linear history as
// a brief text summary for the structured stage 2/3 prompts, which take a
// summary rather than raw chat history. maxTurns counts user+assistant
// pairs; each message is capped at HistorySummaryCharLimit characters with
// an ellipsis marker. An empty history yields an empty summary.
func FormatHistorySummary(history []OpenRouterMessage, maxTurns int) string {
	if len(history) == 0 {
		return ""
	}

	start := len(history) - maxTurns*2
	if start < 0 {
		start = 0
	}
	recent := history[start:]

	var lines []string
	for _, msg := range recent {
		role := "Assistant"
		if msg.Role == "user" {
			role = "User"
		}
		content := msg.Content
		// Cap on a rune boundary so a split multibyte character never
		// reaches the prompts
		if runes := []rune(content); len(runes) > HistorySummaryCharLimit {
			content = string(runes[:HistorySummaryCharLimit]) + "..."
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, content))
	}
	return strings.Join(lines, "\n")
}

// ResolveTurnMode decides which pipeline a turn uses and whether history is
// eligible to be passed. A conversation's first turn always gets the full
// council regardless of what the caller asked for (and has no history);
// later turns use the requested mode, defaulting to the cheap chairman
// path.
func ResolveTurnMode(priorMessages int, requested string) (mode string, useHistory bool) {
	if priorMessages == 0 {
		return ModeCouncil, false
	}
	if requested == ModeCouncil {
		return ModeCouncil, true
	}
	return ModeChairman, true
}
