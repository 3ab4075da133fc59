package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsComplete(t *testing.T) {
	c := Default()

	require.NoError(t, c.Validate())
	assert.Contains(t, c.Persona, "Embedded Systems")
	assert.Equal(t, "(nog leeg)", c.Summary.Placeholder)
	assert.Equal(t, "Gespreks-samenvatting (tot nu toe):", c.Summary.ContextPrefix)
	assert.Equal(t, "AI Instructor", c.Seed.DefaultInstructor)
	assert.True(t, len(c.Intake.SummaryTailPhrases) >= 3)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("persona: You are a strict tutor.\nsummary:\n  placeholder: (empty)\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "You are a strict tutor.", c.Persona)
	assert.Equal(t, "(empty)", c.Summary.Placeholder)
	assert.NotEmpty(t, c.Summary.Instruction)
}

func TestLoadRejectsBlankPersona(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("persona: \"  \"\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "persona must not be empty")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestChatFallbackGreeting(t *testing.T) {
	c := Default()
	assert.Equal(t, "Hallo! Welkom bij Embedded Systems. Hoe kan ik je vandaag helpen met de cursus?", c.ChatFallbackGreeting("Embedded Systems"))
}

func TestStripSummaryTail(t *testing.T) {
	c := Default()

	got := c.StripSummaryTail("• **Hobby:** gamen\n• **Doel:** slagen.\n\nAls je vragen hebt, laat het weten!")
	assert.Equal(t, "• **Hobby:** gamen\n• **Doel:** slagen", got)

	assert.Equal(t, "• **Hobby:** lezen", c.StripSummaryTail("• **Hobby:** lezen"))
}
