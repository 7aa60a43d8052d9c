// Package tokens counts tokens with tiktoken encodings.
package tokens

import (
	"log/slog"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultModel is the model whose encoding is used when none is configured.
const DefaultModel = "gpt-4o-mini"

// FallbackEncoding is substituted when a model has no known encoding.
const FallbackEncoding = tokenizer.Cl100kBase

// Counter counts tokens with one encoding fixed at construction.
// It is safe for concurrent use.
type Counter struct {
	model    string
	encoding tokenizer.Encoding
	codec    tokenizer.Codec
}

// NewCounter resolves the encoding for model. Unknown models fall back to
// cl100k_base with a warning; only a failure to load that encoding is an error.
func NewCounter(model string, logger *slog.Logger) (*Counter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultModel
	}

	if enc, ok := knownEncoding(model); ok {
		if codec, err := tokenizer.ForModel(mapModelName(model)); err == nil {
			return &Counter{model: model, encoding: enc, codec: codec}, nil
		}
	}

	logger.Warn("no direct encoding mapping for model, falling back",
		slog.String("model", model),
		slog.String("encoding", string(FallbackEncoding)))

	codec, err := tokenizer.Get(FallbackEncoding)
	if err != nil {
		return nil, err
	}
	return &Counter{model: model, encoding: FallbackEncoding, codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		// Encode only fails on invalid special tokens; approximate instead of failing the request.
		return (len(text) + 3) / 4
	}
	return len(ids)
}

// Encoding returns the encoding name in use.
func (c *Counter) Encoding() string {
	return string(c.encoding)
}

// Model returns the configured model name.
func (c *Counter) Model() string {
	return c.model
}

// mapModelName maps a model string to tokenizer.Model
func mapModelName(model string) tokenizer.Model {
	model = strings.ToLower(model)

	switch {
	case model == "gpt-5-mini" || strings.HasPrefix(model, "gpt-5-mini-"):
		return tokenizer.GPT5Mini
	case model == "gpt-5-nano" || strings.HasPrefix(model, "gpt-5-nano-"):
		return tokenizer.GPT5Nano
	case strings.HasPrefix(model, "gpt-5"):
		return tokenizer.GPT5
	case strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.GPT41
	case strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.GPT4o
	case strings.HasPrefix(model, "gpt-4"):
		return tokenizer.GPT4
	case strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.GPT35Turbo
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.TextEmbeddingAda002
	default:
		return tokenizer.Model(model)
	}
}

// knownEncoding reports the encoding for model families we recognise.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
func knownEncoding(model string) (tokenizer.Encoding, bool) {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.O200kBase, true
	case strings.HasPrefix(model, "gpt-4"),
		strings.HasPrefix(model, "gpt-3.5"),
		strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase, true
	default:
		return "", false
	}
}
