package config_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/MrWong99/reverie/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openrouter
    api_key: "sk-test"
    model: "anthropic/claude-3.5-sonnet"
  llm_fallbacks:
    - name: ollama
      base_url: "http://localhost:11434"
      model: "llama3"
  embeddings:
    name: openai
    api_key: "sk-test"
storage:
  backend: postgres
  postgres_dsn: "postgres://localhost/reverie"
  embedding_dimensions: 1536
summary:
  default_threshold: 6000
  default_length: 1000
  bounds:
    start: 20
    end: 80
  sweep_interval_seconds: 300
  prompt_template:
    - role: system
      content: "Summarise the scene."
    - role: user
      content: "<INPUT_TEXT>"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.Name != "openrouter" {
		t.Errorf("llm name = %q", cfg.Providers.LLM.Name)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "ollama" {
		t.Errorf("fallbacks = %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Storage.Backend != config.BackendPostgres {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Summary.Bounds == nil || cfg.Summary.Bounds.Start != 20 || cfg.Summary.Bounds.End != 80 {
		t.Errorf("bounds = %+v", cfg.Summary.Bounds)
	}
	if len(cfg.Summary.PromptTemplate) != 2 {
		t.Errorf("prompt template = %+v", cfg.Summary.PromptTemplate)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
strage:
  backend: file
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
providers:
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MissingLLMProvider(t *testing.T) {
	t.Parallel()
	yaml := `
storage:
  backend: file
  path: ./data
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing LLM provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.llm.name") {
		t.Errorf("error should mention providers.llm.name, got: %v", err)
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
storage:
  backend: postgres
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for postgres backend without DSN, got nil")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("error should mention postgres_dsn, got: %v", err)
	}
}

func TestValidate_FileRequiresPath(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
storage:
  backend: file
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for file backend without path, got nil")
	}
	if !strings.Contains(err.Error(), "storage.path") {
		t.Errorf("error should mention storage.path, got: %v", err)
	}
}

func TestValidate_InvalidBounds(t *testing.T) {
	t.Parallel()
	cases := []struct{ start, end int }{
		{-10, 50},
		{50, 120},
		{70, 30},
		{40, 40},
	}
	for _, tc := range cases {
		yaml := `
providers:
  llm:
    name: openai
summary:
  bounds:
    start: ` + strconv.Itoa(tc.start) + `
    end: ` + strconv.Itoa(tc.end) + `
`
		_, err := config.LoadFromReader(strings.NewReader(yaml))
		if err == nil {
			t.Errorf("bounds {%d,%d}: expected error, got nil", tc.start, tc.end)
		}
	}
}

func TestValidate_InvalidPromptRole(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
summary:
  prompt_template:
    - role: wizard
      content: "Summarise."
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid prompt role, got nil")
	}
	if !strings.Contains(err.Error(), "prompt_template") {
		t.Errorf("error should mention prompt_template, got: %v", err)
	}
}

func TestValidate_NegativeDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
summary:
  default_threshold: -1
  default_length: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative defaults, got nil")
	}
	if !strings.Contains(err.Error(), "default_threshold") {
		t.Errorf("error should mention default_threshold, got: %v", err)
	}
	if !strings.Contains(err.Error(), "default_length") {
		t.Errorf("error should mention default_length, got: %v", err)
	}
}

func TestValidate_FallbackWithoutName(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  llm_fallbacks:
    - model: "llama3"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallback without name, got nil")
	}
	if !strings.Contains(err.Error(), "llm_fallbacks[0]") {
		t.Errorf("error should mention llm_fallbacks[0], got: %v", err)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("REVERIE_TEST_KEY", "sk-from-env")
	yaml := `
providers:
  llm:
    name: openai
    api_key: ${REVERIE_TEST_KEY}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want value from environment", cfg.Providers.LLM.APIKey)
	}
}
