package cache

// Key generates the deterministic cache key for a word's frame set.
// Format: keypoints:word:<word>
//
// The word is used verbatim. Lookups are case and whitespace sensitive,
// matching the exact-match semantics of the durable store, so "Hello" and
// "hello" occupy distinct slots.
func Key(word string) string {
	return "keypoints:word:" + word
}
