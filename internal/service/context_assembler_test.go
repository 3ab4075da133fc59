package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alers-api/internal/llm"
	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/internal/prompt"
)

func seededSession(store *fakeChatStore) *models.ChatSession {
	session := &models.ChatSession{ID: "s1", EnrollmentID: "e1"}
	store.addSession(session)
	store.add("s1", models.MessageRoleSystem, "banner", false)
	store.add("s1", models.MessageRoleSystem, "course", false)
	return session
}

func addExchanges(store *fakeChatStore, sessionID string, n int) {
	for i := 1; i <= n; i++ {
		role := models.MessageRoleUser
		if i%2 == 0 {
			role = models.MessageRoleAssistant
		}
		store.add(sessionID, role, fmt.Sprintf("m%d", i), true)
	}
}

func texts(turns []llm.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Text)
	}
	return out
}

func TestCompactIncludesAllMessagesWithinWindow(t *testing.T) {
	store := newFakeChatStore()
	session := seededSession(store)
	addExchanges(store, "s1", 5)
	catalog := prompt.Default()

	assembler := NewContextAssembler(store, &fakeSummaryStore{}, catalog, 8)
	turns, err := assembler.Compact(context.Background(), session, "")
	require.NoError(t, err)

	assert.Equal(t, []string{catalog.Persona, "banner", "course", "m1", "m2", "m3", "m4", "m5"}, texts(turns))
}

func TestCompactKeepsMostRecentWindowInOrder(t *testing.T) {
	store := newFakeChatStore()
	session := seededSession(store)
	addExchanges(store, "s1", 12)
	catalog := prompt.Default()

	assembler := NewContextAssembler(store, &fakeSummaryStore{}, catalog, 8)
	turns, err := assembler.Compact(context.Background(), session, "next question")
	require.NoError(t, err)

	assert.Equal(t, []string{catalog.Persona, "banner", "course", "m5", "m6", "m7", "m8", "m9", "m10", "m11", "m12", "next question"}, texts(turns))
	assert.Equal(t, llm.RoleUser, turns[len(turns)-1].Role)
}

func TestCompactPersonaFirstExactlyOnce(t *testing.T) {
	store := newFakeChatStore()
	session := seededSession(store)
	addExchanges(store, "s1", 20)
	catalog := prompt.Default()

	turns, err := NewContextAssembler(store, &fakeSummaryStore{}, catalog, 0).Compact(context.Background(), session, "hi")
	require.NoError(t, err)

	count := 0
	for _, turn := range turns {
		if turn.Text == catalog.Persona {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, catalog.Persona, turns[0].Text)
	assert.Equal(t, llm.RoleSystem, turns[0].Role)
}

func TestCompactAddsSummaryTurnOnlyWhenPresent(t *testing.T) {
	store := newFakeChatStore()
	session := seededSession(store)
	addExchanges(store, "s1", 2)
	catalog := prompt.Default()

	empty := &fakeSummaryStore{summary: &models.EnrollmentSummary{EnrollmentID: "e1", Summary: "  "}}
	turns, err := NewContextAssembler(store, empty, catalog, 8).Compact(context.Background(), session, "")
	require.NoError(t, err)
	assert.Len(t, turns, 5)

	filled := &fakeSummaryStore{summary: &models.EnrollmentSummary{EnrollmentID: "e1", Summary: "Student understands binary-to-decimal conversion"}}
	turns, err = NewContextAssembler(store, filled, catalog, 8).Compact(context.Background(), session, "")
	require.NoError(t, err)
	require.Len(t, turns, 6)
	assert.Equal(t, llm.RoleSystem, turns[3].Role)
	assert.Equal(t, catalog.Summary.ContextPrefix+"\nStudent understands binary-to-decimal conversion", turns[3].Text)
	assert.Equal(t, "m1", turns[4].Text)
}

func TestCompactIgnoresHiddenMessages(t *testing.T) {
	store := newFakeChatStore()
	session := seededSession(store)
	store.add("s1", models.MessageRoleUser, "visible", true)
	store.add("s1", models.MessageRoleTool, "hidden", false)

	turns, err := NewContextAssembler(store, &fakeSummaryStore{}, prompt.Default(), 8).Compact(context.Background(), session, "")
	require.NoError(t, err)
	assert.NotContains(t, texts(turns), "hidden")
	assert.Contains(t, texts(turns), "visible")
}

func TestFullReturnsEntireHistory(t *testing.T) {
	store := newFakeChatStore()
	seededSession(store)
	addExchanges(store, "s1", 12)

	turns, err := NewContextAssembler(store, &fakeSummaryStore{}, prompt.Default(), 8).Full(context.Background(), "s1", "more")
	require.NoError(t, err)
	require.Len(t, turns, 15)
	assert.Equal(t, "banner", turns[0].Text)
	assert.Equal(t, "more", turns[14].Text)
}

func TestAssemblerRejectsUnknownRole(t *testing.T) {
	store := newFakeChatStore()
	seededSession(store)
	store.add("s1", models.MessageRole("narrator"), "??", true)

	_, err := NewContextAssembler(store, &fakeSummaryStore{}, prompt.Default(), 8).Full(context.Background(), "s1", "")
	require.Error(t, err)
}
