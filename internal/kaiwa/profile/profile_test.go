package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bdobrica/kaiwa/internal/kaiwa/profile"
)

const validDoc = `apiVersion: kaiwa/v1
persona:
  systemPrompt: "You are a polite assistant."
model:
  name: gpt-4o-mini
  temperature: 0.7
  maxTokens: 1024
`

func TestParse_ValidDocument(t *testing.T) {
	p, err := profile.Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Persona.SystemPrompt != "You are a polite assistant." {
		t.Errorf("systemPrompt: got %q", p.Persona.SystemPrompt)
	}
	if p.Model.Name != "gpt-4o-mini" {
		t.Errorf("model name: got %q", p.Model.Name)
	}
	if p.Model.Temperature != 0.7 {
		t.Errorf("temperature: got %v", p.Model.Temperature)
	}
	if p.Model.MaxTokens != 1024 {
		t.Errorf("maxTokens: got %d", p.Model.MaxTokens)
	}
}

func TestParse_MinimalDocument(t *testing.T) {
	p, err := profile.Parse([]byte("apiVersion: kaiwa/v1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Persona.SystemPrompt != "" || p.Model.Name != "" {
		t.Errorf("expected zero persona/model, got %+v", p)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"missing apiVersion", "persona:\n  systemPrompt: hi\n"},
		{"wrong apiVersion", "apiVersion: kaiwa/v2\n"},
		{"unknown top-level key", "apiVersion: kaiwa/v1\nplugins: []\n"},
		{"temperature out of range", "apiVersion: kaiwa/v1\nmodel:\n  temperature: 3.5\n"},
		{"maxTokens not integer", "apiVersion: kaiwa/v1\nmodel:\n  maxTokens: many\n"},
		{"empty model name", "apiVersion: kaiwa/v1\nmodel:\n  name: \"\"\n"},
		{"not yaml", ":\n-- nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := profile.Parse([]byte(tc.doc)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(validDoc), 0o644); err != nil {
		t.Fatalf("write temp profile: %v", err)
	}

	p, err := profile.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Model.Name != "gpt-4o-mini" {
		t.Errorf("model name: got %q", p.Model.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := profile.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
