package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Seed personalities created on first startup. They carry fixed IDs so
// existing conversations keep resolving after a restart, and they behave
// like any user-created personality afterwards.
var seedPersonalities = []Personality{
	{
		ID:                 "seed-systems-architect",
		Name:               "Systems Architect",
		Type:               "detailed",
		Role:               "a pragmatic senior systems architect",
		Expertise:          []string{"distributed systems", "API design", "operational reliability"},
		Perspective:        "Favors simple, observable designs over clever ones; asks what breaks at 3am.",
		CommunicationStyle: "Direct and structured, with concrete trade-offs.",
	},
	{
		ID:                 "seed-value-investor",
		Name:               "Value Investor",
		Type:               "detailed",
		Role:               "a long-term value investor",
		Expertise:          []string{"capital allocation", "business moats", "risk assessment"},
		Perspective:        "Judges ideas by durable fundamentals rather than momentum.",
		CommunicationStyle: "Measured and skeptical, fond of base rates.",
	},
	{
		ID:                 "seed-academic-philosopher",
		Name:               "Academic Philosopher",
		Type:               "detailed",
		Role:               "an analytic philosopher",
		Expertise:          []string{"epistemology", "ethics", "argument analysis"},
		Perspective:        "Surfaces hidden assumptions and tests claims against counterexamples.",
		CommunicationStyle: "Careful and precise, defining terms before using them.",
	},
}

// EnsurePersonalitiesDir creates the personalities directory if needed
func EnsurePersonalitiesDir() error {
	return os.MkdirAll(PersonalitiesDir, 0755)
}

// GetPersonalityPath returns the file path for a personality
func GetPersonalityPath(personalityID string) string {
	return filepath.Join(PersonalitiesDir, personalityID+".json")
}

// savePersonality writes a personality to disk
func savePersonality(p *Personality) error {
	if err := EnsurePersonalitiesDir(); err != nil {
		return fmt.Errorf("failed to create personalities directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal personality: %w", err)
	}

	if err := os.WriteFile(GetPersonalityPath(p.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write personality file: %w", err)
	}
	return nil
}

// CreatePersonality creates a new personality with a generated ID
func CreatePersonality(req CreatePersonalityRequest) (*Personality, error) {
	pType := req.Type
	if pType == "" {
		pType = "simple"
	}
	if pType != "simple" && pType != "detailed" {
		return nil, fmt.Errorf("invalid personality type: %s", pType)
	}

	p := &Personality{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		Type:               pType,
		Role:               req.Role,
		Expertise:          req.Expertise,
		Perspective:        req.Perspective,
		CommunicationStyle: req.CommunicationStyle,
	}

	if err := savePersonality(p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPersonality loads a personality from disk. Returns (nil, nil) when it
// does not exist.
func GetPersonality(personalityID string) (*Personality, error) {
	data, err := os.ReadFile(GetPersonalityPath(personalityID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read personality file: %w", err)
	}

	var p Personality
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse personality file: %w", err)
	}
	return &p, nil
}

// UpdatePersonality replaces an existing personality's fields. Returns
// (nil, nil) when the personality does not exist.
func UpdatePersonality(personalityID string, req CreatePersonalityRequest) (*Personality, error) {
	existing, err := GetPersonality(personalityID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	pType := req.Type
	if pType == "" {
		pType = existing.Type
	}
	if pType != "simple" && pType != "detailed" {
		return nil, fmt.Errorf("invalid personality type: %s", pType)
	}

	existing.Name = req.Name
	existing.Type = pType
	existing.Role = req.Role
	existing.Expertise = req.Expertise
	existing.Perspective = req.Perspective
	existing.CommunicationStyle = req.CommunicationStyle

	if err := savePersonality(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// DeletePersonality removes a personality. Returns false if it did not
// exist.
func DeletePersonality(personalityID string) (bool, error) {
	err := os.Remove(GetPersonalityPath(personalityID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete personality file: %w", err)
	}
	return true, nil
}

// ListPersonalities returns all personalities sorted by name, optionally
// filtered by type ("simple" or "detailed")
func ListPersonalities(typeFilter string) ([]Personality, error) {
	if err := EnsurePersonalitiesDir(); err != nil {
		return nil, fmt.Errorf("failed to create personalities directory: %w", err)
	}

	entries, err := os.ReadDir(PersonalitiesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read personalities directory: %w", err)
	}

	personalities := []Personality{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		personalityID := entry.Name()[:len(entry.Name())-len(".json")]
		p, err := GetPersonality(personalityID)
		if err != nil || p == nil {
			continue
		}
		if typeFilter != "" && p.Type != typeFilter {
			continue
		}
		personalities = append(personalities, *p)
	}

	sort.Slice(personalities, func(i, j int) bool {
		return strings.ToLower(personalities[i].Name) < strings.ToLower(personalities[j].Name)
	})
	return personalities, nil
}

// InitializeSeedPersonalities creates the seed personalities that don't
// exist yet. Existing files are left alone so user edits survive restarts.
func InitializeSeedPersonalities() error {
	for i := range seedPersonalities {
		seed := seedPersonalities[i]
		existing, err := GetPersonality(seed.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := savePersonality(&seed); err != nil {
			return err
		}
	}
	return nil
}

// ShuffleAssignments draws a random personality assignment for the council
// models. With fewer personalities than models, the surplus models go
// without one; with more, a random subset is used.
func ShuffleAssignments(models []string, personalityIDs []string) map[string]string {
	if len(personalityIDs) == 0 {
		return nil
	}

	shuffled := make([]string, len(personalityIDs))
	copy(shuffled, personalityIDs)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	assignments := make(map[string]string)
	for i, model := range models {
		if i >= len(shuffled) {
			break
		}
		assignments[model] = shuffled[i]
	}
	return assignments
}

// BuildPersonalityPrompt renders a personality as a system prompt for the
// given pipeline stage. The stage wording keeps the persona in character
// while reminding it what the stage is for. A nil personality yields an
// empty prompt.
func BuildPersonalityPrompt(p *Personality, stage string) string {
	if p == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You are ")
	sb.WriteString(p.Role)
	sb.WriteString(".")

	if p.Type == "detailed" {
		if len(p.Expertise) > 0 {
			sb.WriteString(" Your areas of expertise: ")
			sb.WriteString(strings.Join(p.Expertise, ", "))
			sb.WriteString(".")
		}
		if p.Perspective != "" {
			sb.WriteString(" Your perspective: ")
			sb.WriteString(p.Perspective)
		}
		if p.CommunicationStyle != "" {
			sb.WriteString(" Your communication style: ")
			sb.WriteString(p.CommunicationStyle)
		}
	}

	switch stage {
	case "response":
		sb.WriteString(" Answer the user's question from this persona's viewpoint while staying accurate and useful.")
	case "ranking":
		sb.WriteString(" Evaluate the candidate responses through this persona's lens, but rank them honestly on quality and accuracy.")
	case "synthesis":
		sb.WriteString(" Synthesize the council's work into a final answer in this persona's voice.")
	}

	return sb.String()
}
