package main

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// FailedResponsePlaceholder stands in for a council model that failed
	// to answer in Stage 1. The turn never blocks on a single failure.
	FailedResponsePlaceholder = "[This model failed to respond.]"

	// SynthesisFailedText is the fixed sentinel stored when the chairman
	// call fails. The turn still commits, flagged for the caller.
	SynthesisFailedText = "Error: unable to generate final synthesis."

	// ChairmanFailedText is the sentinel for failed chairman-only turns
	ChairmanFailedText = "Failed to get response"

	// DefaultConversationTitle is used when title generation fails
	DefaultConversationTitle = "New Conversation"
)

// Stage1CollectResponses collects individual responses from all council
// models. Each model independently answers the user's question, with the
// prior conversation history and an optional personality system prompt in
// front of it. The result always has exactly one entry per configured
// council model, in configured order, regardless of which gateway call
// finished first; failed models get the placeholder response.
func Stage1CollectResponses(ctx context.Context, userQuery string, history []OpenRouterMessage, assignments map[string]string) []Stage1Response {
	responses := QueryModelsParallel(ctx, CouncilModels, func(model string) []OpenRouterMessage {
		var messages []OpenRouterMessage
		if prompt := personalityPromptFor(assignments, model, "response"); prompt != "" {
			messages = append(messages, OpenRouterMessage{Role: "system", Content: prompt})
		}
		messages = append(messages, history...)
		messages = append(messages, OpenRouterMessage{Role: "user", Content: userQuery})
		return messages
	})

	// Recombine in configured order
	results := make([]Stage1Response, 0, len(CouncilModels))
	for _, model := range CouncilModels {
		response := responses[model]
		if response == nil {
			results = append(results, Stage1Response{
				Model:    model,
				Response: FailedResponsePlaceholder,
				Failed:   true,
			})
			continue
		}
		results = append(results, Stage1Response{
			Model:    model,
			Response: response.Content,
		})
	}

	return results
}

// Stage2CollectRankings collects rankings from each model on anonymized
// responses. Every answer is shown only under its label ("Response A",
// "Response B", ...); the label-to-model map is built here and never sent
// to the models. A model ranks the full anonymized set, its own answer
// included - anonymization is the bias mitigation. Returns the rankings in
// configured council order and the private label-to-model mapping.
func Stage2CollectRankings(ctx context.Context, userQuery string, stage1Results []Stage1Response, contextSummary string, assignments map[string]string) ([]Stage2Ranking, map[string]string) {
	// Create anonymized labels (A, B, C...)
	labelToModel := make(map[string]string)
	var responsesText strings.Builder

	for i, result := range stage1Results {
		label := fmt.Sprintf("Response %s", string(rune('A'+i)))
		labelToModel[label] = result.Model

		responsesText.WriteString(fmt.Sprintf("%s:\n%s\n\n", label, result.Response))
	}

	// Add context section if conversation history is provided
	contextSection := ""
	if contextSummary != "" {
		contextSection = fmt.Sprintf(`CONVERSATION CONTEXT:
This is a follow-up question. Here is the recent conversation history:
%s

`, contextSummary)
	}

	// Build ranking prompt
	rankingPrompt := fmt.Sprintf(`%sYou are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, contextSection, userQuery, responsesText.String())

	// Query all models in parallel
	responses := QueryModelsParallel(ctx, CouncilModels, func(model string) []OpenRouterMessage {
		var messages []OpenRouterMessage
		if prompt := personalityPromptFor(assignments, model, "ranking"); prompt != "" {
			messages = append(messages, OpenRouterMessage{Role: "system", Content: prompt})
		}
		messages = append(messages, OpenRouterMessage{Role: "user", Content: rankingPrompt})
		return messages
	})

	// Recombine in configured order
	stage2Results := make([]Stage2Ranking, 0, len(CouncilModels))
	for _, model := range CouncilModels {
		response := responses[model]
		if response == nil {
			stage2Results = append(stage2Results, Stage2Ranking{Model: model, Failed: true})
			continue
		}
		fullText := response.Content
		stage2Results = append(stage2Results, Stage2Ranking{
			Model:         model,
			Ranking:       fullText,
			ParsedRanking: ParseRankingFromText(fullText),
		})
	}

	return stage2Results, labelToModel
}

// ParseRankingFromText extracts the ranking from a model's response text.
// Looks for a "FINAL RANKING:" section and parses numbered responses (e.g., "1. Response A").
// Falls back to extracting any "Response X" patterns found in the text.
func ParseRankingFromText(rankingText string) []string {
	// Look for "FINAL RANKING:" section
	if strings.Contains(rankingText, "FINAL RANKING:") {
		parts := strings.Split(rankingText, "FINAL RANKING:")
		if len(parts) >= 2 {
			rankingSection := parts[1]

			// Try to extract numbered list format (e.g., "1. Response A")
			numberedPattern := regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
			numberedMatches := numberedPattern.FindAllString(rankingSection, -1)
			if len(numberedMatches) > 0 {
				// Extract just the "Response X" part
				responsePattern := regexp.MustCompile(`Response [A-Z]`)
				var results []string
				for _, match := range numberedMatches {
					if resp := responsePattern.FindString(match); resp != "" {
						results = append(results, resp)
					}
				}
				return results
			}

			// Fallback: Extract all "Response X" patterns in order
			responsePattern := regexp.MustCompile(`Response [A-Z]`)
			matches := responsePattern.FindAllString(rankingSection, -1)
			if len(matches) > 0 {
				return matches
			}
		}
	}

	// Fallback: try to find any "Response X" patterns in order
	responsePattern := regexp.MustCompile(`Response [A-Z]`)
	matches := responsePattern.FindAllString(rankingText, -1)
	return matches
}

// ValidRankingSubmission reports whether a parsed ranking is a permutation
// of the issued label set: every label exactly once, no unknown labels.
// Anything else (missing, duplicate, unknown) makes the submission invalid
// and it is excluded from aggregation.
func ValidRankingSubmission(parsed []string, labelToModel map[string]string) bool {
	if len(parsed) != len(labelToModel) {
		return false
	}
	seen := make(map[string]bool, len(parsed))
	for _, label := range parsed {
		if _, ok := labelToModel[label]; !ok {
			return false
		}
		if seen[label] {
			return false
		}
		seen[label] = true
	}
	return true
}

// CalculateAggregateRankings computes the combined ranking across all valid
// submissions using Borda points: a label at position p (0 = best) earns
// totalLabels-1-p points, summed over submissions. Models are sorted by total
// score descending; ties keep the Stage 1 presentation order, so identical
// inputs always produce identical output. If no submission is valid the
// aggregate degrades to the presentation order with all scores zero.
func CalculateAggregateRankings(stage2Results []Stage2Ranking, labelToModel map[string]string, presentationOrder []string) []AggregateRanking {
	totalLabels := len(labelToModel)
	scores := make(map[string]int)
	counts := make(map[string]int)
	validSubmissions := 0

	for _, ranking := range stage2Results {
		if ranking.Failed || !ValidRankingSubmission(ranking.ParsedRanking, labelToModel) {
			continue
		}
		validSubmissions++
		for position, label := range ranking.ParsedRanking {
			model := labelToModel[label]
			scores[model] += totalLabels - 1 - position
			counts[model]++
		}
	}

	// Seed in presentation order so the stable sort breaks ties
	// deterministically, and so the degraded (no valid submissions) case
	// falls out as presentation order with zero scores.
	aggregate := make([]AggregateRanking, 0, len(presentationOrder))
	for _, model := range presentationOrder {
		aggregate = append(aggregate, AggregateRanking{
			Model:         model,
			Score:         scores[model],
			RankingsCount: counts[model],
		})
	}

	if validSubmissions == 0 {
		return aggregate
	}

	sort.SliceStable(aggregate, func(i, j int) bool {
		return aggregate[i].Score > aggregate[j].Score
	})

	return aggregate
}

// Stage3SynthesizeFinal synthesizes the final response using the chairman
// model, from the original query, all de-anonymized Stage 1 answers, the
// peer rankings and the aggregate ranking. A gateway failure produces a
// result carrying the fixed sentinel text instead of an error, so the turn
// still completes and is stored.
func Stage3SynthesizeFinal(ctx context.Context, userQuery string, stage1Results []Stage1Response, stage2Results []Stage2Ranking, aggregate []AggregateRanking, contextSummary string, chairmanPersonality *Personality) *Stage3Response {
	// Build comprehensive context with all stage1 results
	var stage1Text strings.Builder
	for _, result := range stage1Results {
		stage1Text.WriteString(fmt.Sprintf("Model: %s\nResponse: %s\n\n", result.Model, result.Response))
	}

	// Build stage2 rankings text
	var stage2Text strings.Builder
	for _, result := range stage2Results {
		if result.Failed {
			continue
		}
		stage2Text.WriteString(fmt.Sprintf("Model: %s\nRanking: %s\n\n", result.Model, result.Ranking))
	}

	// Build aggregate ranking text
	var aggregateText strings.Builder
	for i, entry := range aggregate {
		aggregateText.WriteString(fmt.Sprintf("%d. %s (score: %d)\n", i+1, entry.Model, entry.Score))
	}

	// Add conversation context section if provided
	contextSection := ""
	if contextSummary != "" {
		contextSection = fmt.Sprintf(`CONVERSATION CONTEXT:
This is a follow-up question. Here is the recent conversation history:
%s

`, contextSummary)
	}

	// Create chairman prompt
	chairmanPrompt := fmt.Sprintf(`%sYou are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Peer Rankings:
%s

AGGREGATE RANKING (best to worst):
%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`, contextSection, userQuery, stage1Text.String(), stage2Text.String(), aggregateText.String())

	// Build messages with optional chairman personality
	var messages []OpenRouterMessage
	if prompt := BuildPersonalityPrompt(chairmanPersonality, "synthesis"); prompt != "" {
		messages = append(messages, OpenRouterMessage{Role: "system", Content: prompt})
	}
	messages = append(messages, OpenRouterMessage{Role: "user", Content: chairmanPrompt})

	// Query chairman model
	response, err := QueryModel(ctx, ChairmanModel, messages, ModelQueryTimeout)
	if err != nil {
		return &Stage3Response{
			Model:    ChairmanModel,
			Response: SynthesisFailedText,
			Failed:   true,
		}
	}

	return &Stage3Response{
		Model:    ChairmanModel,
		Response: response.Content,
	}
}

// ChatWithChairman sends history plus the new query directly to the
// chairman model, bypassing the three-stage pipeline. Used for cheap
// follow-up turns. Same sentinel fallback as Stage 3.
func ChatWithChairman(ctx context.Context, userQuery string, history []OpenRouterMessage) *Stage3Response {
	messages := make([]OpenRouterMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, OpenRouterMessage{Role: "user", Content: userQuery})

	response, err := QueryModel(ctx, ChairmanModel, messages, ModelQueryTimeout)
	if err != nil {
		return &Stage3Response{
			Model:    ChairmanModel,
			Response: ChairmanFailedText,
			Failed:   true,
		}
	}

	return &Stage3Response{
		Model:    ChairmanModel,
		Response: response.Content,
	}
}

// GenerateConversationTitle generates a short title for a conversation.
// Uses a fast model to create a 3-5 word summary of the user's query.
// Returns the generated title or an error if generation fails.
func GenerateConversationTitle(ctx context.Context, userQuery string) (string, error) {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	messages := []OpenRouterMessage{
		{Role: "user", Content: titlePrompt},
	}

	response, err := QueryModel(ctx, TitleModel, messages, TitleGenTimeout)
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	title := strings.TrimSpace(response.Content)

	// Clean up the title - remove quotes
	title = strings.Trim(title, "\"'")

	// Truncate if too long, on a rune boundary
	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:47]) + "..."
	}

	return title, nil
}

// personalityPromptFor resolves the stage-specific personality prompt for a
// model from the turn's assignments. Missing assignment, missing
// personality or a storage error all mean no prompt.
func personalityPromptFor(assignments map[string]string, model string, stage string) string {
	if len(assignments) == 0 {
		return ""
	}
	personalityID, ok := assignments[model]
	if !ok || personalityID == "" {
		return ""
	}
	personality, err := GetPersonality(personalityID)
	if err != nil || personality == nil {
		return ""
	}
	return BuildPersonalityPrompt(personality, stage)
}

// modelOrder returns the Stage 1 presentation order of models
func modelOrder(stage1Results []Stage1Response) []string {
	order := make([]string, 0, len(stage1Results))
	for _, result := range stage1Results {
		order = append(order, result.Model)
	}
	return order
}
