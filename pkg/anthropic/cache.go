package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. Every enrichment batch of a run shares the same instructions,
// so after the first call the prompt prefix is served from cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}
