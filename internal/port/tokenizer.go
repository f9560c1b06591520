package port

type Tokenizer interface {
	Tokenize(text string) []string

	CountTokens(text string) int

	// Truncate cuts text so that CountTokens(result) <= maxTokens.
	Truncate(text string, maxTokens int) string
}
