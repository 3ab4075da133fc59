package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8, cfg.Chat.RecentWindow)
	assert.Equal(t, 5, cfg.Chat.SummaryBatchSize)
	assert.Equal(t, 60*time.Second, cfg.OpenAI.CompletionTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, []string{"gpt-4o"}, cfg.OpenAI.PrivilegedModels)
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.1, cfg.Tracing.SampleRatio)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("CHAT_RECENT_WINDOW", 0)
	v.Set("CHAT_SUMMARY_BATCH_SIZE", 12)
	v.Set("OPENAI_COMPLETION_TIMEOUT", "90s")
	v.Set("OPENAI_BASE_URL", "http://llm.local/")
	v.Set("OPENAI_PRIVILEGED_MODELS", "gpt-4o, gpt-4.1 ,")
	v.Set("OTEL_SAMPLER_RATIO", 3)
	v.Set("CHAT_PROMPT_FILE", "prompts.yaml")

	cfg := fromViper(v)

	assert.Equal(t, 8, cfg.Chat.RecentWindow)
	assert.Equal(t, 12, cfg.Chat.SummaryBatchSize)
	assert.Equal(t, 90*time.Second, cfg.OpenAI.CompletionTimeout)
	assert.Equal(t, "http://llm.local", cfg.OpenAI.BaseURL)
	assert.Equal(t, []string{"gpt-4o", "gpt-4.1"}, cfg.OpenAI.PrivilegedModels)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Equal(t, "prompts.yaml", cfg.Chat.PromptFile)
}

func TestParseSeconds(t *testing.T) {
	assert.Equal(t, 45*time.Second, parseSeconds("45", time.Minute))
	assert.Equal(t, 2*time.Minute, parseSeconds("2m", time.Minute))
	assert.Equal(t, time.Minute, parseSeconds("nope", time.Minute))
	assert.Equal(t, time.Minute, parseSeconds("", time.Minute))
}
