package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
	"github.com/caviaarmode/shopping-assistant/internal/knowledge"
)

// SystemPrompt constrains the model to storefront topics.
const SystemPrompt = `You are a focused e-commerce assistant for Caviaar Mode fashion website. 

STRICT RULES:
- ONLY answer questions about: products, sizing, payments, returns, shipping, offers, and store policies
- DO NOT provide: coding help, weather info, general knowledge, or any non-shopping topics
- Keep responses under 150 words
- Only include [button links](URL) when specifically relevant to the query
- Be helpful but stay within e-commerce scope
- For product suggestions, use the provided product data

Your expertise: fashion products, sizing guides, payment methods, return policies, shipping info, and customer service.`

// Canned replies. They link to siteURL so a storefront move is one config change.
type replies struct {
	siteURL string
}

func (r replies) nonEcommerce() string {
	return "I'm specifically designed to help with Caviaar Mode shopping questions like products, sizing, payments, returns, and shipping. " +
		fmt.Sprintf("For other topics, please visit our [contact page](%s/contact-us).", r.siteURL)
}

func (r replies) tooLong() string {
	return "I'm sorry, but your query is too long. Please try a shorter question about our products, sizing, or services."
}

func (r replies) quotaExceeded(ceiling int) string {
	return fmt.Sprintf("You've reached your daily limit of %d tokens. Please try again tomorrow or contact support for extended access.", ceiling)
}

func (r replies) apology() string {
	return fmt.Sprintf("I'm having trouble right now. Please visit our [website](%s) or [contact support](%s/contact) for assistance!", r.siteURL, r.siteURL)
}

// buildUserPrompt embeds the intent and its reference payload ahead of the question.
func buildUserPrompt(intent domain.Intent, entry knowledge.Entry, query string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return "", fmt.Errorf("encode reference data: %w", err)
	}
	info := strings.TrimSuffix(buf.String(), "\n")

	return fmt.Sprintf("Query type: %s\nAvailable info: %s\nUser question: %s", intent, info, query), nil
}
