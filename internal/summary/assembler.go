package summary

import (
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/provider/llm"
)

// PlaceholderToken marks where the conversation transcript is spliced into a
// custom prompt template.
const PlaceholderToken = "<INPUT_TEXT>"

// defaultPromptFormat is the instruction used when no custom template is
// configured. The %d verb receives the target summary length in characters.
const defaultPromptFormat = `Summarise the roleplay conversation below as a narrative recap.
Preserve: key plot events, decisions, revealed information, emotional developments, promises made, and changes in relationships between the characters.
Write in past tense from a neutral narrator's perspective. Do not invent events that did not happen.
Keep the summary under roughly %d characters.`

// Assembler builds LLM completion requests from a slice of conversation
// messages, either through a configured prompt template or a built-in
// instruction. Safe for concurrent use; the template can be swapped at
// runtime via [Assembler.SetTemplate].
type Assembler struct {
	mu       sync.RWMutex
	template []chat.PromptStub
}

// NewAssembler creates an Assembler. template may be nil or empty, in which
// case the built-in instructional prompt is used.
func NewAssembler(template []chat.PromptStub) *Assembler {
	a := &Assembler{}
	a.SetTemplate(template)
	return a
}

// SetTemplate replaces the prompt template. Passing nil or an empty slice
// reverts to the built-in prompt.
func (a *Assembler) SetTemplate(template []chat.PromptStub) {
	cp := append([]chat.PromptStub(nil), template...)
	a.mu.Lock()
	a.template = cp
	a.mu.Unlock()
}

// Build assembles the completion request for summarising messages down to
// roughly targetLength characters.
//
// With a template, every stub is emitted in order: system stubs concatenate
// into the request's system prompt and other stubs become chat messages. The
// transcript goes into the last user-role stub: its [PlaceholderToken]
// occurrences are replaced, or, when the stub never mentions the token, the
// transcript is appended to its content. A template without a user stub gets
// the transcript as an extra trailing user message so the conversation text
// is never silently dropped.
func (a *Assembler) Build(messages []chat.Message, targetLength int) llm.CompletionRequest {
	if targetLength <= 0 {
		targetLength = chat.DefaultSummaryLength
	}
	transcript := FormatTranscript(messages)

	a.mu.RLock()
	template := a.template
	a.mu.RUnlock()

	if len(template) == 0 {
		return llm.CompletionRequest{
			SystemPrompt: fmt.Sprintf(defaultPromptFormat, targetLength),
			Messages: []llm.Message{
				{Role: "user", Content: transcript},
			},
			Temperature: 0.3,
			MaxTokens:   maxTokensFor(targetLength),
		}
	}

	splice := -1
	for i, stub := range template {
		if stub.Role == "user" {
			splice = i
		}
	}

	var (
		systemParts []string
		msgs        []llm.Message
	)
	for i, stub := range template {
		content := stub.Content
		if i == splice {
			if strings.Contains(content, PlaceholderToken) {
				content = strings.ReplaceAll(content, PlaceholderToken, transcript)
			} else if content == "" {
				content = transcript
			} else {
				content += "\n\n" + transcript
			}
		}
		switch stub.Role {
		case "system":
			systemParts = append(systemParts, content)
		case "model":
			// Gemini-style templates name the assistant turn "model".
			msgs = append(msgs, llm.Message{Role: "assistant", Content: content})
		default:
			msgs = append(msgs, llm.Message{Role: stub.Role, Content: content})
		}
	}
	if splice < 0 {
		msgs = append(msgs, llm.Message{Role: "user", Content: transcript})
	}

	return llm.CompletionRequest{
		SystemPrompt: strings.Join(systemParts, "\n\n"),
		Messages:     msgs,
		Temperature:  0.3,
		MaxTokens:    maxTokensFor(targetLength),
	}
}

// FormatTranscript renders messages as a plain-text transcript:
// title-cased role, colon, text, with blank lines between turns.
func FormatTranscript(messages []chat.Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(titleRole(string(m.Role)))
		sb.WriteString(": ")
		sb.WriteString(m.Text)
	}
	return sb.String()
}

// maxTokensFor converts a character budget into a token ceiling with slack,
// so the model is cut off only well past the requested length.
func maxTokensFor(targetLength int) int {
	return targetLength/2 + 256
}

func titleRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
