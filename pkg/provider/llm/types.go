package llm

// Message represents a single message in a provider conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string
}

// EstimateTokens returns a rough token count for messages using the
// 1-token-per-4-characters heuristic, which avoids pulling in a tokenizer
// dependency. English text averages roughly 4 characters per token across
// common LLM tokenizers.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		// ~4 chars per token, plus per-message overhead (role + formatting).
		total += (len(m.Content) + len(m.Name) + 3) / 4
		total += 4
	}
	return total
}
