package anthropic

// CachedSystemPrompt wraps a system prompt in a single block with an
// ephemeral cache breakpoint. Every lead in a job shares the same prompt, so
// after the first draft the prompt prefix is served from cache.
func CachedSystemPrompt(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
