package domain

// TokenCounter converts text to a token count with a fixed encoding.
type TokenCounter interface {
	Count(text string) int

	// Encoding names the encoding in use.
	Encoding() string
}
