package summary

import (
	"strings"
	"testing"

	"github.com/MrWong99/reverie/pkg/chat"
)

func TestFormatTranscript(t *testing.T) {
	messages := []chat.Message{
		{Role: chat.RoleUser, Text: "The knight draws her sword."},
		{Role: chat.RoleModel, Text: "The dragon rears back."},
	}
	got := FormatTranscript(messages)
	want := "User: The knight draws her sword.\n\nModel: The dragon rears back."
	if got != want {
		t.Errorf("FormatTranscript:\ngot  %q\nwant %q", got, want)
	}
}

func TestBuild_DefaultPrompt(t *testing.T) {
	a := NewAssembler(nil)
	messages := []chat.Message{{Role: chat.RoleUser, Text: "hello"}}

	req := a.Build(messages, 500)

	if req.SystemPrompt == "" {
		t.Fatal("expected built-in system prompt")
	}
	if !strings.Contains(req.SystemPrompt, "500") {
		t.Errorf("system prompt should mention the target length, got: %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("expected a single user message, got %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "User: hello") {
		t.Errorf("transcript missing from user message: %q", req.Messages[0].Content)
	}
	if req.MaxTokens <= 0 {
		t.Error("expected a positive MaxTokens ceiling")
	}
}

func TestBuild_ZeroTargetUsesDefault(t *testing.T) {
	a := NewAssembler(nil)
	req := a.Build([]chat.Message{{Role: chat.RoleUser, Text: "x"}}, 0)
	if !strings.Contains(req.SystemPrompt, "1000") {
		t.Errorf("expected default target length in prompt, got: %q", req.SystemPrompt)
	}
}

func TestBuild_TemplateSplicing(t *testing.T) {
	template := []chat.PromptStub{
		{Role: "system", Content: "You are the chronicler."},
		{Role: "user", Content: "Recap this:\n" + PlaceholderToken},
		{Role: "model", Content: "Understood, here is the recap:"},
	}
	a := NewAssembler(template)

	req := a.Build([]chat.Message{{Role: chat.RoleUser, Text: "hello"}}, 300)

	if req.SystemPrompt != "You are the chronicler." {
		t.Errorf("unexpected system prompt: %q", req.SystemPrompt)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 chat messages, got %d", len(req.Messages))
	}
	if strings.Contains(req.Messages[0].Content, PlaceholderToken) {
		t.Error("placeholder token was not replaced")
	}
	if !strings.Contains(req.Messages[0].Content, "User: hello") {
		t.Errorf("transcript not spliced in: %q", req.Messages[0].Content)
	}
	// "model" stubs come out as "assistant" for chat-completion providers.
	if req.Messages[1].Role != "assistant" {
		t.Errorf("model stub role = %q, want assistant", req.Messages[1].Role)
	}
}

func TestBuild_TemplateWithoutToken(t *testing.T) {
	template := []chat.PromptStub{
		{Role: "system", Content: "Summarise what follows."},
	}
	a := NewAssembler(template)

	req := a.Build([]chat.Message{{Role: chat.RoleUser, Text: "hello"}}, 300)

	// The transcript must never be dropped.
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("expected appended user message, got %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "User: hello") {
		t.Errorf("transcript missing: %q", req.Messages[0].Content)
	}
}

func TestBuild_LastUserStubWithoutToken(t *testing.T) {
	template := []chat.PromptStub{
		{Role: "system", Content: "You are the chronicler."},
		{Role: "user", Content: "Recap the adventure so far."},
	}
	a := NewAssembler(template)

	req := a.Build([]chat.Message{{Role: chat.RoleUser, Text: "hello"}}, 300)

	// The transcript lands inside the existing user stub, not in an extra
	// trailing message.
	if len(req.Messages) != 1 {
		t.Fatalf("expected 1 chat message, got %d", len(req.Messages))
	}
	want := "Recap the adventure so far.\n\nUser: hello"
	if req.Messages[0].Content != want {
		t.Errorf("user stub content:\ngot  %q\nwant %q", req.Messages[0].Content, want)
	}
}

func TestBuild_OnlyLastUserStubSpliced(t *testing.T) {
	template := []chat.PromptStub{
		{Role: "user", Content: "Earlier instruction: " + PlaceholderToken},
		{Role: "model", Content: "Understood."},
		{Role: "user", Content: "Recap this:\n" + PlaceholderToken},
	}
	a := NewAssembler(template)

	req := a.Build([]chat.Message{{Role: chat.RoleUser, Text: "hello"}}, 300)

	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 chat messages, got %d", len(req.Messages))
	}
	// Only the last user stub carries the transcript.
	if !strings.Contains(req.Messages[0].Content, PlaceholderToken) {
		t.Errorf("earlier user stub must stay untouched: %q", req.Messages[0].Content)
	}
	if strings.Contains(req.Messages[2].Content, PlaceholderToken) {
		t.Error("placeholder in the last user stub was not replaced")
	}
	if !strings.Contains(req.Messages[2].Content, "User: hello") {
		t.Errorf("transcript not spliced into the last user stub: %q", req.Messages[2].Content)
	}
}

func TestSetTemplate_HotSwap(t *testing.T) {
	a := NewAssembler(nil)
	a.SetTemplate([]chat.PromptStub{
		{Role: "user", Content: "custom: " + PlaceholderToken},
	})

	req := a.Build([]chat.Message{{Role: chat.RoleUser, Text: "hi"}}, 300)
	if req.SystemPrompt != "" {
		t.Errorf("expected no system prompt, got %q", req.SystemPrompt)
	}
	if !strings.HasPrefix(req.Messages[0].Content, "custom: ") {
		t.Errorf("swapped template not used: %q", req.Messages[0].Content)
	}

	// Swapping back to nil reverts to the built-in prompt.
	a.SetTemplate(nil)
	req = a.Build([]chat.Message{{Role: chat.RoleUser, Text: "hi"}}, 300)
	if req.SystemPrompt == "" {
		t.Error("expected built-in system prompt after reverting")
	}
}
