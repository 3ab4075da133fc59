// Package prompt holds the instruction texts sent to the completion gateway.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// Catalog is the full set of prompt texts.
type Catalog struct {
	Persona string `yaml:"persona"`

	Seed struct {
		Banner            string `yaml:"banner"`
		DefaultInstructor string `yaml:"default_instructor"`
	} `yaml:"seed"`

	Summary struct {
		Instruction   string `yaml:"instruction"`
		Placeholder   string `yaml:"placeholder"`
		ContextPrefix string `yaml:"context_prefix"`
	} `yaml:"summary"`

	Progress struct {
		Instruction string `yaml:"instruction"`
	} `yaml:"progress"`

	Chat struct {
		GreetingRequest  string `yaml:"greeting_request"`
		FallbackGreeting string `yaml:"fallback_greeting"`
	} `yaml:"chat"`

	Intake struct {
		Persona            string   `yaml:"persona"`
		GreetingRequest    string   `yaml:"greeting_request"`
		FallbackGreeting   string   `yaml:"fallback_greeting"`
		SummaryInstruction string   `yaml:"summary_instruction"`
		SummaryTailPhrases []string `yaml:"summary_tail_phrases"`
	} `yaml:"intake"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal(defaultCatalog, &c); err != nil {
		panic(fmt.Sprintf("prompt: embedded catalog is invalid: %v", err))
	}
	return &c
}

// Load returns the built-in catalog overlaid with the YAML file at path.
// An empty path yields the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("prompt file %s: %w", path, err)
	}
	return c, nil
}

// Validate rejects catalogs with blank required texts.
func (c *Catalog) Validate() error {
	required := map[string]string{
		"persona":                    c.Persona,
		"seed.banner":                c.Seed.Banner,
		"summary.instruction":        c.Summary.Instruction,
		"progress.instruction":       c.Progress.Instruction,
		"intake.persona":             c.Intake.Persona,
		"intake.summary_instruction": c.Intake.SummaryInstruction,
	}
	var errs []error
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}
	return errors.Join(errs...)
}

// ChatFallbackGreeting renders the static greeting for a course.
func (c *Catalog) ChatFallbackGreeting(course string) string {
	return strings.ReplaceAll(c.Chat.FallbackGreeting, "{course}", course)
}

// StripSummaryTail cuts an intake summary at the first conversational tail
// phrase and drops trailing punctuation left behind.
func (c *Catalog) StripSummaryTail(summary string) string {
	for _, phrase := range c.Intake.SummaryTailPhrases {
		if phrase == "" {
			continue
		}
		if idx := strings.Index(summary, phrase); idx != -1 {
			return strings.TrimRight(strings.TrimSpace(summary[:idx]), ".,;:")
		}
	}
	return summary
}
