package gemini

import (
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/reverie/pkg/provider/llm"
)

func TestBuildRequest(t *testing.T) {
	contents, cfg := buildRequest(llm.CompletionRequest{
		SystemPrompt: "Summarise the conversation.",
		Messages: []llm.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "model", Content: "again"},
		},
		Temperature: 0.3,
		MaxTokens:   256,
	})

	if cfg.SystemInstruction == nil {
		t.Fatal("expected system instruction to be set")
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.3 {
		t.Errorf("unexpected temperature: %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 256 {
		t.Errorf("MaxOutputTokens = %d, want 256", cfg.MaxOutputTokens)
	}

	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != genai.RoleUser {
		t.Errorf("contents[0].Role = %q, want user", contents[0].Role)
	}
	// Both "assistant" and "model" map to the Gemini model role.
	if contents[1].Role != genai.RoleModel {
		t.Errorf("contents[1].Role = %q, want model", contents[1].Role)
	}
	if contents[2].Role != genai.RoleModel {
		t.Errorf("contents[2].Role = %q, want model", contents[2].Role)
	}
}

func TestBuildRequest_Defaults(t *testing.T) {
	contents, cfg := buildRequest(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if cfg.SystemInstruction != nil {
		t.Error("expected no system instruction")
	}
	if cfg.Temperature != nil {
		t.Error("expected nil temperature for provider default")
	}
	if cfg.MaxOutputTokens != 0 {
		t.Errorf("MaxOutputTokens = %d, want 0", cfg.MaxOutputTokens)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
}

func TestExtractText(t *testing.T) {
	c := genai.NewContentFromText("generated summary", genai.RoleModel)
	if got := extractText(c); got != "generated summary" {
		t.Errorf("extractText() = %q", got)
	}
	if got := extractText(&genai.Content{}); got != "" {
		t.Errorf("extractText(empty) = %q, want empty", got)
	}
}

func TestModelCapabilities(t *testing.T) {
	if caps := modelCapabilities("gemini-1.5-pro"); caps.ContextWindow != 2_097_152 {
		t.Errorf("gemini-1.5-pro window = %d", caps.ContextWindow)
	}
	if caps := modelCapabilities("gemini-2.0-flash"); caps.ContextWindow != 1_048_576 {
		t.Errorf("gemini-2.0-flash window = %d", caps.ContextWindow)
	}
	if caps := modelCapabilities("gemini-x"); caps.ContextWindow != 128_000 {
		t.Errorf("unknown model window = %d", caps.ContextWindow)
	}
}
