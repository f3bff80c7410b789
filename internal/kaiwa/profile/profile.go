// Package profile loads the optional bot profile document: the persona and
// model settings an operator can tune without rebuilding the binary. The
// document is YAML, validated against an embedded JSON Schema before any
// value is used.
package profile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// APIVersion is the only accepted apiVersion value.
const APIVersion = "kaiwa/v1"

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("profile.schema.json", schemaJSON)

// Profile is a parsed, validated bot profile. The zero value means "no
// profile": no system prompt and all model settings at their defaults.
type Profile struct {
	APIVersion string  `yaml:"apiVersion" json:"apiVersion"`
	Persona    Persona `yaml:"persona" json:"persona"`
	Model      Model   `yaml:"model" json:"model"`
}

// Persona shapes how the bot presents itself.
type Persona struct {
	// SystemPrompt is prepended to every completion request.
	SystemPrompt string `yaml:"systemPrompt" json:"systemPrompt"`
}

// Model overrides completion settings.
type Model struct {
	Name        string  `yaml:"name" json:"name"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"maxTokens" json:"maxTokens"`
}

// Load reads and parses the profile at path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a profile YAML document and validates it against the schema.
// It is the canonical entry point for loading profiles.
func Parse(data []byte) (*Profile, error) {
	// Decode generically first so the schema sees the whole document,
	// including any keys the struct would silently drop.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	// The schema validator wants json.Unmarshal-shaped values, so round-trip
	// the YAML tree through JSON before validating.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(raw, &jsonDoc); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	if err := schema.Validate(jsonDoc); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &p, nil
}
