package main

import (
	"strings"
	"testing"
)

// TestCreateAndGetPersonality tests personality creation and retrieval
func TestCreateAndGetPersonality(t *testing.T) {
	setupTempStorage(t)

	req := CreatePersonalityRequest{
		Name:               "Skeptical Engineer",
		Role:               "a skeptical staff engineer",
		Type:               "detailed",
		Expertise:          []string{"testing", "reliability"},
		Perspective:        "Assumes everything is broken until proven otherwise.",
		CommunicationStyle: "Blunt.",
	}

	created, err := CreatePersonality(req)
	if err != nil {
		t.Fatalf("CreatePersonality failed: %v", err)
	}
	if created.ID == "" {
		t.Error("Personality should have a generated ID")
	}

	loaded, err := GetPersonality(created.ID)
	if err != nil {
		t.Fatalf("GetPersonality failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Personality not found after creation")
	}
	if loaded.Name != "Skeptical Engineer" || loaded.Type != "detailed" {
		t.Errorf("Loaded = %+v", loaded)
	}
}

// TestCreatePersonalityDefaultsToSimple verifies the default type
func TestCreatePersonalityDefaultsToSimple(t *testing.T) {
	setupTempStorage(t)

	created, err := CreatePersonality(CreatePersonalityRequest{Name: "Minimal", Role: "a poet"})
	if err != nil {
		t.Fatalf("CreatePersonality failed: %v", err)
	}
	if created.Type != "simple" {
		t.Errorf("Type = %q, want simple", created.Type)
	}
}

// TestCreatePersonalityInvalidType rejects unknown types
func TestCreatePersonalityInvalidType(t *testing.T) {
	setupTempStorage(t)

	_, err := CreatePersonality(CreatePersonalityRequest{Name: "Bad", Role: "x", Type: "elaborate"})
	if err == nil {
		t.Error("Expected error for invalid type")
	}
}

// TestGetPersonalityNotFound verifies the (nil, nil) contract
func TestGetPersonalityNotFound(t *testing.T) {
	setupTempStorage(t)

	p, err := GetPersonality("does-not-exist")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p != nil {
		t.Error("Expected nil for missing personality")
	}
}

// TestUpdatePersonality tests in-place replacement
func TestUpdatePersonality(t *testing.T) {
	setupTempStorage(t)

	created, err := CreatePersonality(CreatePersonalityRequest{Name: "Original", Role: "a historian"})
	if err != nil {
		t.Fatalf("CreatePersonality failed: %v", err)
	}

	updated, err := UpdatePersonality(created.ID, CreatePersonalityRequest{
		Name: "Revised",
		Role: "an economist",
	})
	if err != nil {
		t.Fatalf("UpdatePersonality failed: %v", err)
	}
	if updated == nil {
		t.Fatal("Expected updated personality")
	}
	if updated.ID != created.ID {
		t.Error("Update must keep the same ID")
	}
	if updated.Name != "Revised" || updated.Role != "an economist" {
		t.Errorf("Updated = %+v", updated)
	}

	// Missing personality updates return nil
	missing, err := UpdatePersonality("does-not-exist", CreatePersonalityRequest{Name: "x", Role: "y"})
	if err != nil || missing != nil {
		t.Errorf("Expected (nil, nil) for missing personality, got (%v, %v)", missing, err)
	}
}

// TestDeletePersonality tests deletion
func TestDeletePersonality(t *testing.T) {
	setupTempStorage(t)

	created, err := CreatePersonality(CreatePersonalityRequest{Name: "Temp", Role: "a critic"})
	if err != nil {
		t.Fatalf("CreatePersonality failed: %v", err)
	}

	deleted, err := DeletePersonality(created.ID)
	if err != nil {
		t.Fatalf("DeletePersonality failed: %v", err)
	}
	if !deleted {
		t.Error("Expected deletion to report true")
	}

	if p, _ := GetPersonality(created.ID); p != nil {
		t.Error("Personality still present after deletion")
	}

	deleted, err = DeletePersonality(created.ID)
	if err != nil {
		t.Fatalf("DeletePersonality failed: %v", err)
	}
	if deleted {
		t.Error("Second deletion should report false")
	}
}

// TestListPersonalities tests sorting and type filtering
func TestListPersonalities(t *testing.T) {
	setupTempStorage(t)

	for _, entry := range []struct{ name, pType string }{
		{"zebra", "simple"},
		{"Alpha", "detailed"},
		{"mango", "simple"},
	} {
		if _, err := CreatePersonality(CreatePersonalityRequest{Name: entry.name, Role: "r", Type: entry.pType}); err != nil {
			t.Fatalf("CreatePersonality failed: %v", err)
		}
	}

	all, err := ListPersonalities("")
	if err != nil {
		t.Fatalf("ListPersonalities failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 personalities, got %d", len(all))
	}
	// Case-insensitive name sort
	if all[0].Name != "Alpha" || all[1].Name != "mango" || all[2].Name != "zebra" {
		t.Errorf("Sort order: %s, %s, %s", all[0].Name, all[1].Name, all[2].Name)
	}

	simple, err := ListPersonalities("simple")
	if err != nil {
		t.Fatalf("ListPersonalities failed: %v", err)
	}
	if len(simple) != 2 {
		t.Errorf("Expected 2 simple personalities, got %d", len(simple))
	}
}

// TestInitializeSeedPersonalities verifies seeds are created once and user
// edits survive re-initialization
func TestInitializeSeedPersonalities(t *testing.T) {
	setupTempStorage(t)

	if err := InitializeSeedPersonalities(); err != nil {
		t.Fatalf("InitializeSeedPersonalities failed: %v", err)
	}

	all, err := ListPersonalities("")
	if err != nil {
		t.Fatalf("ListPersonalities failed: %v", err)
	}
	if len(all) != len(seedPersonalities) {
		t.Fatalf("Expected %d seeds, got %d", len(seedPersonalities), len(all))
	}

	// Edit a seed, re-initialize, edit must survive
	seedID := seedPersonalities[0].ID
	if _, err := UpdatePersonality(seedID, CreatePersonalityRequest{Name: "Customized", Role: "edited role"}); err != nil {
		t.Fatalf("UpdatePersonality failed: %v", err)
	}
	if err := InitializeSeedPersonalities(); err != nil {
		t.Fatalf("Re-initialization failed: %v", err)
	}

	edited, _ := GetPersonality(seedID)
	if edited == nil || edited.Name != "Customized" {
		t.Error("Re-initialization overwrote a user-edited seed")
	}
}

// TestShuffleAssignments verifies assignment shape under different pool sizes
func TestShuffleAssignments(t *testing.T) {
	models := []string{"model/a", "model/b", "model/c"}

	t.Run("enough personalities", func(t *testing.T) {
		ids := []string{"p1", "p2", "p3", "p4"}
		assignments := ShuffleAssignments(models, ids)

		if len(assignments) != 3 {
			t.Fatalf("Expected 3 assignments, got %d", len(assignments))
		}
		seen := map[string]bool{}
		for _, model := range models {
			id, ok := assignments[model]
			if !ok {
				t.Errorf("Model %s has no assignment", model)
				continue
			}
			if seen[id] {
				t.Errorf("Personality %s assigned twice", id)
			}
			seen[id] = true
		}
	})

	t.Run("fewer personalities than models", func(t *testing.T) {
		assignments := ShuffleAssignments(models, []string{"p1"})
		if len(assignments) != 1 {
			t.Errorf("Expected 1 assignment, got %d", len(assignments))
		}
	})

	t.Run("no personalities", func(t *testing.T) {
		if assignments := ShuffleAssignments(models, nil); assignments != nil {
			t.Errorf("Expected nil assignments, got %v", assignments)
		}
	})
}

// TestBuildPersonalityPrompt tests prompt rendering per stage
func TestBuildPersonalityPrompt(t *testing.T) {
	p := &Personality{
		ID:                 "test",
		Name:               "Test",
		Type:               "detailed",
		Role:               "a pragmatic senior systems architect",
		Expertise:          []string{"distributed systems", "API design"},
		Perspective:        "Favors simple designs.",
		CommunicationStyle: "Direct.",
	}

	response := BuildPersonalityPrompt(p, "response")
	if !strings.Contains(response, "a pragmatic senior systems architect") {
		t.Error("Prompt missing role")
	}
	if !strings.Contains(response, "distributed systems") {
		t.Error("Detailed prompt missing expertise")
	}
	if !strings.Contains(response, "Answer the user's question") {
		t.Error("Response-stage prompt missing stage instruction")
	}

	ranking := BuildPersonalityPrompt(p, "ranking")
	if !strings.Contains(ranking, "rank them honestly") {
		t.Error("Ranking-stage prompt missing stage instruction")
	}

	synthesis := BuildPersonalityPrompt(p, "synthesis")
	if !strings.Contains(synthesis, "final answer") {
		t.Error("Synthesis-stage prompt missing stage instruction")
	}

	// Simple personalities only render the role
	simple := &Personality{Type: "simple", Role: "a poet", Expertise: []string{"verse"}}
	prompt := BuildPersonalityPrompt(simple, "response")
	if strings.Contains(prompt, "verse") {
		t.Error("Simple prompt should not include detailed fields")
	}

	if BuildPersonalityPrompt(nil, "response") != "" {
		t.Error("Nil personality should yield empty prompt")
	}
}
