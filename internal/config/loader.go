package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "openai-compatible", "openrouter", "gemini", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "cloud-relay"},
	"embeddings": {"openai", "ollama"},
}

// promptRoles are the roles accepted in a prompt template stub.
var promptRoles = []string{"system", "user", "model", "assistant"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// ${VAR} references are expanded from the environment before decoding, so
// API keys can stay out of the file. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required; summaries cannot be generated without a completion backend"))
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == BackendPostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}
	if cfg.Storage.Backend == BackendFile && cfg.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage.backend is file"))
	}
	if cfg.Storage.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("storage.embedding_dimensions %d must not be negative", cfg.Storage.EmbeddingDimensions))
	}

	// Semantic search needs both an embeddings provider and postgres.
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.Backend == BackendFile {
		slog.Warn("providers.embeddings is configured but the file backend does not support summary search; embeddings will not be used")
	}

	// Summary defaults
	if cfg.Summary.DefaultThreshold < 0 {
		errs = append(errs, fmt.Errorf("summary.default_threshold %d must not be negative", cfg.Summary.DefaultThreshold))
	}
	if cfg.Summary.DefaultLength < 0 {
		errs = append(errs, fmt.Errorf("summary.default_length %d must not be negative", cfg.Summary.DefaultLength))
	}
	if b := cfg.Summary.Bounds; b != nil {
		if b.Start < 0 || b.End > 100 || b.Start >= b.End {
			errs = append(errs, fmt.Errorf("summary.bounds {start: %d, end: %d} must satisfy 0 <= start < end <= 100", b.Start, b.End))
		}
	}
	for i, stub := range cfg.Summary.PromptTemplate {
		if !slices.Contains(promptRoles, stub.Role) {
			errs = append(errs, fmt.Errorf("summary.prompt_template[%d].role %q is invalid; valid values: system, user, model, assistant", i, stub.Role))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
